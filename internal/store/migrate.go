package store

import (
	"database/sql"
	"fmt"
)

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS companies (
		company_id          TEXT PRIMARY KEY,
		name                TEXT NOT NULL DEFAULT '',
		late_window_minutes INT  NOT NULL DEFAULT 15,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL,
		company_id    TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id                     TEXT PRIMARY KEY,
		company_id             TEXT NOT NULL,
		creator_id             TEXT NOT NULL DEFAULT '',
		name                   TEXT NOT NULL,
		latitude               DOUBLE PRECISION NOT NULL,
		longitude              DOUBLE PRECISION NOT NULL,
		start_time             TIMESTAMPTZ NOT NULL,
		end_time               TIMESTAMPTZ NOT NULL,
		is_recurring           BOOLEAN NOT NULL DEFAULT FALSE,
		recurring_hours        INT NOT NULL DEFAULT 0,
		last_recurrence        TIMESTAMPTZ,
		lifecycle              TEXT NOT NULL DEFAULT 'active',
		original_checkpoint_id TEXT,
		is_recurring_instance  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_company ON checkpoints (company_id, start_time);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_templates ON checkpoints (is_recurring)
		WHERE is_recurring AND NOT is_recurring_instance;

	CREATE TABLE IF NOT EXISTS checkpoint_verifications (
		id                 TEXT PRIMARY KEY,
		checkpoint_id      TEXT NOT NULL,
		guard_id           TEXT NOT NULL,
		company_id         TEXT NOT NULL,
		window_start       TIMESTAMPTZ NOT NULL,
		verified_at        TIMESTAMPTZ NOT NULL,
		status             TEXT NOT NULL,
		verified_latitude  DOUBLE PRECISION NOT NULL,
		verified_longitude DOUBLE PRECISION NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (checkpoint_id, guard_id, window_start)
	);
	CREATE INDEX IF NOT EXISTS idx_verifications_company ON checkpoint_verifications (company_id, verified_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
