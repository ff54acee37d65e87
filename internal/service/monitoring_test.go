package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"coop_door/internal/models"
)

// monitoringStateRepoStub satisfies repository.StateRepo.
type monitoringStateRepoStub struct {
	snap    models.DoorSnapshot
	ok      bool
	loadErr error
	loads   int
}

func (s *monitoringStateRepoStub) Load(ctx context.Context) (models.DoorSnapshot, bool, error) {
	s.loads++
	return s.snap, s.ok, s.loadErr
}

func (s *monitoringStateRepoStub) Save(ctx context.Context, snap models.DoorSnapshot) error {
	return nil
}

// stubController satisfies DoorController.
type stubController struct {
	status models.DoorStatus
	err    error

	gotTarget models.TargetState
	calls     []string
}

func (c *stubController) Run(ctx context.Context, tick time.Duration) { c.calls = append(c.calls, "run") }
func (c *stubController) Status() models.DoorStatus                  { return c.status }

func (c *stubController) Recover(ctx context.Context) (models.DoorStatus, error) {
	c.calls = append(c.calls, "recover")
	return c.status, c.err
}

func (c *stubController) ClearFaults(ctx context.Context) (models.DoorStatus, error) {
	c.calls = append(c.calls, "clear_faults")
	return c.status, c.err
}

func (c *stubController) SetOverride(ctx context.Context, target models.TargetState) (models.DoorStatus, error) {
	c.calls = append(c.calls, "set_override")
	c.gotTarget = target
	return c.status, c.err
}

func (c *stubController) ClearOverride(ctx context.Context) (models.DoorStatus, error) {
	c.calls = append(c.calls, "clear_override")
	return c.status, c.err
}

func TestMonitoringService_GetStatus(t *testing.T) {
	t.Parallel()

	westOfUTC := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", -3*3600))
	wantUTC := time.Date(2025, 1, 2, 6, 4, 5, 0, time.UTC)

	cases := []struct {
		name       string
		live       models.DoorStatus
		repo       *monitoringStateRepoStub
		assertFunc func(t *testing.T, got models.DoorStatus, err error, repo *monitoringStateRepoStub)
	}{
		{
			name: "live status wins and is normalized to UTC",
			live: models.DoorStatus{State: models.StateOpen, UpdatedAt: westOfUTC},
			repo: &monitoringStateRepoStub{},
			assertFunc: func(t *testing.T, got models.DoorStatus, err error, repo *monitoringStateRepoStub) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.State != models.StateOpen {
					t.Fatalf("state: want OPEN, got %s", got.State)
				}
				if !got.UpdatedAt.Equal(wantUTC) || got.UpdatedAt.Location() != time.UTC {
					t.Errorf("UpdatedAt: want %v, got %v", wantUTC, got.UpdatedAt)
				}
				if repo.loads != 0 {
					t.Errorf("repository should not be read while the controller is live")
				}
			},
		},
		{
			name: "falls back to persisted snapshot before start",
			repo: &monitoringStateRepoStub{ok: true, snap: models.DoorSnapshot{
				State:      models.StateFaulted,
				FaultCause: models.FaultStallTimeout,
				Faults:     []models.FaultRecord{{Kind: models.FaultStallTimeout, Count: 2}},
				Disabled:   true,
				UpdatedAt:  westOfUTC,
			}},
			assertFunc: func(t *testing.T, got models.DoorStatus, err error, repo *monitoringStateRepoStub) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.State != models.StateFaulted || got.FaultCause != models.FaultStallTimeout || !got.Disabled {
					t.Errorf("unexpected status fields: %+v", got)
				}
				if len(got.Faults) != 1 || got.Faults[0].Count != 2 {
					t.Errorf("faults not carried over: %+v", got.Faults)
				}
				if !got.UpdatedAt.Equal(wantUTC) {
					t.Errorf("UpdatedAt: want %v, got %v", wantUTC, got.UpdatedAt)
				}
			},
		},
		{
			name: "baseline when nothing persisted",
			repo: &monitoringStateRepoStub{},
			assertFunc: func(t *testing.T, got models.DoorStatus, err error, repo *monitoringStateRepoStub) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.State != models.StateClosed {
					t.Errorf("baseline state: want CLOSED, got %s", got.State)
				}
				if got.Reading.Position != models.PositionUnknown {
					t.Errorf("baseline position: want UNKNOWN, got %s", got.Reading.Position)
				}
			},
		},
		{
			name: "propagates repository error",
			repo: &monitoringStateRepoStub{loadErr: errors.New("db down")},
			assertFunc: func(t *testing.T, got models.DoorStatus, err error, repo *monitoringStateRepoStub) {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if got.State != "" {
					t.Errorf("expected empty status, got %s", got.State)
				}
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := NewMonitoringService(&stubController{status: tc.live}, tc.repo)
			got, err := svc.GetStatus(context.Background())
			tc.assertFunc(t, got, err, tc.repo)
		})
	}
}
