package service

import (
	"context"
	"time"

	"coop_door/internal/models"
	"coop_door/internal/repository"
)

type MonitoringService struct {
	ctrl      DoorController
	stateRepo repository.StateRepo
}

func NewMonitoringService(ctrl DoorController, stateRepo repository.StateRepo) *MonitoringService {
	return &MonitoringService{ctrl: ctrl, stateRepo: stateRepo}
}

// GetStatus returns the live controller status. Before the controller has
// started it falls back to the last persisted snapshot, or a closed baseline
// for an empty database.
func (s *MonitoringService) GetStatus(ctx context.Context) (models.DoorStatus, error) {
	st := s.ctrl.Status()
	if st.State != "" {
		st.UpdatedAt = toUTC(st.UpdatedAt)
		return st, nil
	}

	snap, ok, err := s.stateRepo.Load(ctx)
	if err != nil {
		return models.DoorStatus{}, err
	}
	if !ok {
		return baselineStatus(st), nil
	}
	st.State = snap.State
	st.Motion = snap.Motion
	st.FaultCause = snap.FaultCause
	st.Faults = snap.Faults
	st.Disabled = snap.Disabled
	st.Override = snap.Override
	st.UpdatedAt = toUTC(snap.UpdatedAt)
	return st, nil
}

func baselineStatus(st models.DoorStatus) models.DoorStatus {
	st.State = models.StateClosed
	st.Reading.Position = models.PositionUnknown
	return st
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
