package verification

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists verification records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, checkpoint_id, guard_id, company_id, window_start,
	verified_at, status, verified_latitude, verified_longitude, created_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.CheckpointID, &rec.GuardID, &rec.CompanyID,
		&rec.WindowStart, &rec.VerifiedAt, &rec.Status, &rec.VerifiedLatitude,
		&rec.VerifiedLongitude, &rec.CreatedAt)
	return rec, err
}

// Insert writes a new record. The unique index on (checkpoint_id, guard_id,
// window_start) turns a duplicate commit for the same occurrence window into
// ErrAlreadyVerified with nothing written, while a rolled template's next
// window stays verifiable.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO checkpoint_verifications
			(id, checkpoint_id, guard_id, company_id, window_start, verified_at,
			 status, verified_latitude, verified_longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (checkpoint_id, guard_id, window_start) DO NOTHING
	`, rec.ID, rec.CheckpointID, rec.GuardID, rec.CompanyID, rec.WindowStart,
		rec.VerifiedAt, rec.Status, rec.VerifiedLatitude, rec.VerifiedLongitude)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyVerified
	}
	return nil
}

// Get returns a record by id, or nil when not found.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM checkpoint_verifications WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// GetForGuard returns the record a guard holds for one occurrence window of a
// checkpoint, or nil. Records from earlier windows of the same rolling
// template do not match.
func (r *Repository) GetForGuard(ctx context.Context, checkpointID, guardID string, windowStart time.Time) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM checkpoint_verifications
		WHERE checkpoint_id = $1 AND guard_id = $2 AND window_start = $3
	`, checkpointID, guardID, windowStart)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// MapForGuard returns a guard's records for a whole company keyed by
// checkpoint id, so a rounds listing classifies without one query per
// occurrence. When a rolling template accumulated records across windows the
// latest window's record wins; the classifier ignores it anyway once the
// template has rolled past it.
func (r *Repository) MapForGuard(ctx context.Context, companyID, guardID string) (map[string]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM checkpoint_verifications
		WHERE company_id = $1 AND guard_id = $2
		ORDER BY window_start ASC
	`, companyID, guardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[rec.CheckpointID] = rec
	}
	return out, rows.Err()
}

// ListByCompany returns recent records for the admin monitor view, newest
// first.
func (r *Repository) ListByCompany(ctx context.Context, companyID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM checkpoint_verifications
		WHERE company_id = $1
		ORDER BY verified_at DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
