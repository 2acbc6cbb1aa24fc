package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/domain"
)

// SQLSnapshotRepo stores cached session snapshots as JSON in session_cache.
type SQLSnapshotRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

func NewSQLSnapshotRepo(conn db.DBTX, dialect db.Dialect) *SQLSnapshotRepo {
	return &SQLSnapshotRepo{db: conn, dialect: dialect}
}

// Load returns ErrNotFound when nothing is cached for actor.
func (r *SQLSnapshotRepo) Load(ctx context.Context, actor string) (*domain.SessionSnapshot, error) {
	query := `SELECT payload FROM session_cache WHERE actor = ?`
	var payload string
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), actor).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session snapshot: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("loading session snapshot: %w", err)
	}
	var s domain.SessionSnapshot
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("decoding session snapshot: %w", err)
	}
	return &s, nil
}

// Save upserts the snapshot. A nil snapshot deletes the entry.
func (r *SQLSnapshotRepo) Save(ctx context.Context, actor string, s *domain.SessionSnapshot) error {
	if s == nil {
		return r.Delete(ctx, actor)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session snapshot: %w", err)
	}
	query := `INSERT INTO session_cache (actor, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(actor) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), actor, string(payload), formatTime(time.Now())); err != nil {
		return fmt.Errorf("saving session snapshot: %w", err)
	}
	return nil
}

func (r *SQLSnapshotRepo) Delete(ctx context.Context, actor string) error {
	query := `DELETE FROM session_cache WHERE actor = ?`
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), actor); err != nil {
		return fmt.Errorf("deleting session snapshot: %w", err)
	}
	return nil
}
