package company

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DefaultLateWindowMinutes applies when a company has no settings row or left
// the field unset.
const DefaultLateWindowMinutes = 15

// Settings holds per-tenant configuration.
type Settings struct {
	CompanyID         string    `json:"company_id"`
	Name              string    `json:"name"`
	LateWindowMinutes int       `json:"late_window_minutes"`
	CreatedAt         time.Time `json:"created_at"`
}

// LateWindow returns the grace period as a duration, falling back to the
// default when unset.
func (s Settings) LateWindow() time.Duration {
	m := s.LateWindowMinutes
	if m <= 0 {
		m = DefaultLateWindowMinutes
	}
	return time.Duration(m) * time.Minute
}

// Repository persists company settings in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns a company's settings. A missing row yields defaults rather
// than an error, matching the fallback every read path applies anyway.
func (r *Repository) Get(ctx context.Context, companyID string) (Settings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT company_id, name, late_window_minutes, created_at
		FROM companies WHERE company_id = $1
	`, companyID)
	var s Settings
	if err := row.Scan(&s.CompanyID, &s.Name, &s.LateWindowMinutes, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Settings{CompanyID: companyID, LateWindowMinutes: DefaultLateWindowMinutes}, nil
		}
		return Settings{}, err
	}
	return s, nil
}

// LateWindow is a convenience wrapper used by the verification handlers.
func (r *Repository) LateWindow(ctx context.Context, companyID string) (time.Duration, error) {
	s, err := r.Get(ctx, companyID)
	if err != nil {
		return 0, err
	}
	return s.LateWindow(), nil
}

// SetLateWindow upserts the grace period for a tenant.
func (r *Repository) SetLateWindow(ctx context.Context, companyID string, minutes int) error {
	if minutes < 0 {
		return errors.New("late window minutes must be non-negative")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO companies (company_id, late_window_minutes)
		VALUES ($1, $2)
		ON CONFLICT (company_id) DO UPDATE SET late_window_minutes = EXCLUDED.late_window_minutes
	`, companyID, minutes)
	return err
}
