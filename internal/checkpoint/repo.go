package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists checkpoints in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const checkpointColumns = `id, company_id, creator_id, name, latitude, longitude,
	start_time, end_time, is_recurring, recurring_hours, last_recurrence,
	lifecycle, original_checkpoint_id, is_recurring_instance, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (Checkpoint, error) {
	var cp Checkpoint
	var lastRec sql.NullTime
	var original sql.NullString
	err := row.Scan(&cp.ID, &cp.CompanyID, &cp.CreatorID, &cp.Name, &cp.Latitude,
		&cp.Longitude, &cp.StartTime, &cp.EndTime, &cp.IsRecurring,
		&cp.RecurringHours, &lastRec, &cp.Lifecycle, &original,
		&cp.IsRecurringInstance, &cp.CreatedAt)
	if err != nil {
		return Checkpoint{}, err
	}
	if lastRec.Valid {
		t := lastRec.Time
		cp.LastRecurrence = &t
	}
	if original.Valid {
		cp.OriginalCheckpointID = original.String
	}
	return cp, nil
}

// Insert writes a new checkpoint (template or materialized occurrence).
func (r *Repository) Insert(ctx context.Context, cp Checkpoint) error {
	var lastRec any
	if cp.LastRecurrence != nil {
		lastRec = *cp.LastRecurrence
	}
	var original any
	if cp.OriginalCheckpointID != "" {
		original = cp.OriginalCheckpointID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, company_id, creator_id, name, latitude, longitude,
			start_time, end_time, is_recurring, recurring_hours, last_recurrence,
			lifecycle, original_checkpoint_id, is_recurring_instance)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, cp.ID, cp.CompanyID, cp.CreatorID, cp.Name, cp.Latitude, cp.Longitude,
		cp.StartTime, cp.EndTime, cp.IsRecurring, cp.RecurringHours, lastRec,
		cp.Lifecycle, original, cp.IsRecurringInstance)
	return err
}

// Exists reports whether a checkpoint id is already present.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM checkpoints WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// Get returns a single checkpoint, or nil when not found.
func (r *Repository) Get(ctx context.Context, id string) (*Checkpoint, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE id = $1`, id)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cp, nil
}

// ListByCompany returns all checkpoints for a tenant, templates and
// materialized occurrences alike.
func (r *Repository) ListByCompany(ctx context.Context, companyID string) ([]Checkpoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+checkpointColumns+` FROM checkpoints
		WHERE company_id = $1
		ORDER BY start_time
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// ListRecurringTemplates returns active recurring templates (not materialized
// children) for the maintenance pass.
func (r *Repository) ListRecurringTemplates(ctx context.Context) ([]Checkpoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+checkpointColumns+` FROM checkpoints
		WHERE is_recurring AND NOT is_recurring_instance AND lifecycle = 'active'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// UpdateWindow persists a rolled template window together with the throttle
// timestamp.
func (r *Repository) UpdateWindow(ctx context.Context, id string, start, end, lastRecurrence time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE checkpoints
		SET start_time = $2, end_time = $3, last_recurrence = $4
		WHERE id = $1
	`, id, start, end, lastRecurrence)
	return err
}

// Delete removes a checkpoint; scoped by company so one tenant cannot delete
// another's.
func (r *Repository) Delete(ctx context.Context, id, companyID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE id = $1 AND company_id = $2`, id, companyID)
	return err
}
