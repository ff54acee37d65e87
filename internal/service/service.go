package service

import (
	"context"
	"time"

	"coop_door/internal/config"
	"coop_door/internal/models"
	"coop_door/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Door exposes the operator commands: recovery, fault reset and overrides.
type Door interface {
	Recover(ctx context.Context) (models.DoorStatus, error)
	ClearFaults(ctx context.Context) (models.DoorStatus, error)
	SetOverride(ctx context.Context, target string) (models.DoorStatus, error)
	ClearOverride(ctx context.Context) (models.DoorStatus, error)
}

// Monitoring exposes the read-only door status.
type Monitoring interface {
	GetStatus(ctx context.Context) (models.DoorStatus, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.DoorEvent, error)
}

// Loop runs the control loop until ctx is cancelled.
type Loop interface {
	Run(ctx context.Context, tick time.Duration)
}

// DoorController is the part of the controller the service layer drives.
type DoorController interface {
	Loop
	Status() models.DoorStatus
	Recover(ctx context.Context) (models.DoorStatus, error)
	ClearFaults(ctx context.Context) (models.DoorStatus, error)
	SetOverride(ctx context.Context, target models.TargetState) (models.DoorStatus, error)
	ClearOverride(ctx context.Context) (models.DoorStatus, error)
}

type Service struct {
	Door
	Monitoring
	EventLog
	Loop
	Authorization
}

func NewService(repos *repository.Repository, ctrl DoorController, auth config.AuthConfig) *Service {
	return &Service{
		Door:          NewDoorService(ctrl),
		Monitoring:    NewMonitoringService(ctrl, repos.StateRepo),
		EventLog:      NewEventLogService(repos.EventRepo),
		Loop:          ctrl,
		Authorization: NewAuthService(repos.Auth, auth),
	}
}
