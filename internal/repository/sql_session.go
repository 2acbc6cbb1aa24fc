package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/domain"
)

const sessionColumns = `id, user_id, status, current_step, started_at,
	ph_result_ready_at, results_ready_at, completed_at, abort_reason, updated_at`

// SQLSessionRepo implements TestSessionRepo on SQLite or Postgres.
type SQLSessionRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

// NewSQLSessionRepo creates a new SQLSessionRepo.
func NewSQLSessionRepo(conn db.DBTX, dialect db.Dialect) *SQLSessionRepo {
	return &SQLSessionRepo{db: conn, dialect: dialect}
}

func (r *SQLSessionRepo) Create(ctx context.Context, s *domain.TestSession) error {
	query := `INSERT INTO test_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		s.ID,
		s.UserID,
		string(s.Status),
		s.CurrentStep,
		formatTime(s.StartedAt),
		nullableTimeToString(s.PHResultReadyAt),
		nullableTimeToString(s.ResultsReadyAt),
		nullableTimeToString(s.CompletedAt),
		s.AbortReason,
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return wrapWriteErr("inserting test session", err)
	}
	return nil
}

func (r *SQLSessionRepo) GetByID(ctx context.Context, id string) (*domain.TestSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM test_sessions WHERE id = ?`
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id)
	return r.scanSession(row)
}

func (r *SQLSessionRepo) GetOpenByUser(ctx context.Context, userID string) (*domain.TestSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM test_sessions
		WHERE user_id = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1`
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), userID, string(domain.SessionInProgress))
	return r.scanSession(row)
}

// ListByUser returns the user's sessions newest first. An empty statuses
// slice matches every status; limit <= 0 means no limit.
func (r *SQLSessionRepo) ListByUser(ctx context.Context, userID string, statuses []domain.SessionStatus, limit int) ([]*domain.TestSession, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + sessionColumns + ` FROM test_sessions WHERE user_id = ?`)
	args := []any{userID}
	if len(statuses) > 0 {
		b.WriteString(` AND status IN (` + placeholders(len(statuses)) + `)`)
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	b.WriteString(` ORDER BY started_at DESC`)
	if limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("listing test sessions: %w", err)
	}
	defer rows.Close()
	return r.scanSessions(rows)
}

func (r *SQLSessionRepo) Update(ctx context.Context, s *domain.TestSession) error {
	query := `UPDATE test_sessions SET
		status = ?, current_step = ?, ph_result_ready_at = ?, results_ready_at = ?,
		completed_at = ?, abort_reason = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		string(s.Status),
		s.CurrentStep,
		nullableTimeToString(s.PHResultReadyAt),
		nullableTimeToString(s.ResultsReadyAt),
		nullableTimeToString(s.CompletedAt),
		s.AbortReason,
		formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return wrapWriteErr("updating test session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating test session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("test session %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLSessionRepo) scanSession(row *sql.Row) (*domain.TestSession, error) {
	s, err := scanSessionRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("test session: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning test session: %w", err)
	}
	return s, nil
}

func (r *SQLSessionRepo) scanSessions(rows *sql.Rows) ([]*domain.TestSession, error) {
	var sessions []*domain.TestSession
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning test session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating test sessions: %w", err)
	}
	return sessions, nil
}

func scanSessionRow(sc rowScanner) (*domain.TestSession, error) {
	var s domain.TestSession
	var status, startedAt, updatedAt string
	var phReady, resultsReady, completedAt sql.NullString

	if err := sc.Scan(
		&s.ID, &s.UserID, &status, &s.CurrentStep, &startedAt,
		&phReady, &resultsReady, &completedAt, &s.AbortReason, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	s.Status = domain.SessionStatus(status)
	if s.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	s.PHResultReadyAt = parseNullableTime(phReady)
	s.ResultsReadyAt = parseNullableTime(resultsReady)
	s.CompletedAt = parseNullableTime(completedAt)
	return &s, nil
}
