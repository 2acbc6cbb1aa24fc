package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migrate runs all schema migrations. Statements are idempotent so the
// full list is replayed on every open.
func Migrate(db *sql.DB, d Dialect) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			// Tolerate re-applied ALTER TABLE ADD COLUMN statements.
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("migration %d (%s): %w", i, d, err)
		}
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate column name") || strings.Contains(msg, "already exists")
}

// Timestamps are stored as fixed-width UTC text so lexical order equals
// chronological order on both engines.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS test_sessions (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'in_progress'
		                   CHECK(status IN ('in_progress','completed','aborted')),
		current_step       INTEGER NOT NULL DEFAULT 1
		                   CHECK(current_step BETWEEN 1 AND 7),
		started_at         TEXT NOT NULL,
		ph_result_ready_at TEXT,
		results_ready_at   TEXT,
		completed_at       TEXT,
		abort_reason       TEXT NOT NULL DEFAULT '',
		updated_at         TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_test_sessions_user ON test_sessions(user_id, status, started_at)`,

	// At most one running session per user.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_test_sessions_one_open
		ON test_sessions(user_id) WHERE status = 'in_progress'`,

	`CREATE TABLE IF NOT EXISTS test_logs (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE REFERENCES test_sessions(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		ph         DOUBLE PRECISION,
		h2o2       TEXT,
		le         TEXT,
		sna        TEXT,
		beta_g     TEXT,
		nag        TEXT,
		status     TEXT NOT NULL DEFAULT 'draft'
		           CHECK(status IN ('draft','finalized')),
		analysis   TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_test_logs_user ON test_logs(user_id)`,

	`CREATE TABLE IF NOT EXISTS session_cache (
		actor      TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}
