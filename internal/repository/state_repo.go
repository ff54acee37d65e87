package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coop_door/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

var _ StateRepo = (*StateSQLite)(nil)

const (
	doorStateRowID = 1

	upsertDoorStateSQL = `
		INSERT INTO door_state (id, state, motion_direction, motion_since, motion_deadline,
			fault_cause, disabled, override, override_day, faults_reset_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state,
			motion_direction=excluded.motion_direction,
			motion_since=excluded.motion_since,
			motion_deadline=excluded.motion_deadline,
			fault_cause=excluded.fault_cause,
			disabled=excluded.disabled,
			override=excluded.override,
			override_day=excluded.override_day,
			faults_reset_at=excluded.faults_reset_at,
			updated_at=excluded.updated_at
	`

	selectDoorStateSQL = `
		SELECT state, motion_direction, motion_since, motion_deadline,
			fault_cause, disabled, override, override_day, faults_reset_at, updated_at
		FROM door_state WHERE id=?
	`

	deleteFaultRecordsSQL = `DELETE FROM fault_records`
	insertFaultRecordSQL  = `INSERT INTO fault_records (kind, count, last_occurred) VALUES (?, ?, ?)`
	selectFaultRecordsSQL = `SELECT kind, count, last_occurred FROM fault_records ORDER BY kind`
)

// Save writes the door_state row (id always 1) and replaces the fault
// records in one transaction.
func (r *StateSQLite) Save(ctx context.Context, s models.DoorSnapshot) error {
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	var (
		direction       sql.NullString
		since, deadline sql.NullTime
		resetAt         sql.NullTime
	)
	if !s.FaultsResetAt.IsZero() {
		resetAt = sql.NullTime{Time: s.FaultsResetAt.UTC(), Valid: true}
	}
	if s.Motion != nil {
		direction = sql.NullString{String: string(s.Motion.Direction), Valid: true}
		since = sql.NullTime{Time: s.Motion.Since.UTC(), Valid: true}
		deadline = sql.NullTime{Time: s.Motion.Deadline.UTC(), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save door state: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertDoorStateSQL,
		doorStateRowID,
		string(s.State),
		direction,
		since,
		deadline,
		string(s.FaultCause),
		s.Disabled,
		string(s.Override),
		s.OverrideDay,
		resetAt,
		updated.UTC(),
	); err != nil {
		return fmt.Errorf("upsert door state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, deleteFaultRecordsSQL); err != nil {
		return fmt.Errorf("clear fault records: %w", err)
	}
	for _, f := range s.Faults {
		if _, err := tx.ExecContext(ctx, insertFaultRecordSQL, string(f.Kind), f.Count, f.LastOccurred.UTC()); err != nil {
			return fmt.Errorf("insert fault record %s: %w", f.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit door state: %w", err)
	}
	return nil
}

// Load fetches the door_state row and its fault records.
func (r *StateSQLite) Load(ctx context.Context) (models.DoorSnapshot, bool, error) {
	var (
		s               models.DoorSnapshot
		state, cause    string
		override        string
		direction       sql.NullString
		since, deadline sql.NullTime
		resetAt         sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, selectDoorStateSQL, doorStateRowID).Scan(
		&state,
		&direction,
		&since,
		&deadline,
		&cause,
		&s.Disabled,
		&override,
		&s.OverrideDay,
		&resetAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DoorSnapshot{}, false, nil
		}
		return models.DoorSnapshot{}, false, fmt.Errorf("select door state: %w", err)
	}

	s.State = models.DoorState(state)
	if !s.State.Valid() {
		return models.DoorSnapshot{}, false, fmt.Errorf("stored door state %q is not valid", state)
	}
	s.FaultCause = models.FaultKind(cause)
	s.Override = models.TargetState(override)
	s.UpdatedAt = s.UpdatedAt.UTC()
	if resetAt.Valid {
		s.FaultsResetAt = resetAt.Time.UTC()
	}
	if direction.Valid {
		s.Motion = &models.Motion{
			Direction: models.Direction(direction.String),
			Since:     since.Time.UTC(),
			Deadline:  deadline.Time.UTC(),
		}
	}

	faults, err := r.loadFaults(ctx)
	if err != nil {
		return models.DoorSnapshot{}, false, err
	}
	s.Faults = faults
	return s, true, nil
}

func (r *StateSQLite) loadFaults(ctx context.Context) ([]models.FaultRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectFaultRecordsSQL)
	if err != nil {
		return nil, fmt.Errorf("select fault records: %w", err)
	}
	defer rows.Close()

	var out []models.FaultRecord
	for rows.Next() {
		var (
			f    models.FaultRecord
			kind string
		)
		if err := rows.Scan(&kind, &f.Count, &f.LastOccurred); err != nil {
			return nil, fmt.Errorf("scan fault record: %w", err)
		}
		f.Kind = models.FaultKind(kind)
		f.LastOccurred = f.LastOccurred.UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
