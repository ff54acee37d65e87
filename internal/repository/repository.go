package repository

import (
	"context"
	"database/sql"
	"time"

	"coop_door/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// StateRepo persists the committed door snapshot. Load reports false when
// nothing has been saved yet.
type StateRepo interface {
	Save(ctx context.Context, s models.DoorSnapshot) error
	Load(ctx context.Context) (models.DoorSnapshot, bool, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.DoorEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.DoorEvent, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
