package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/domain"
)

const logColumns = `id, session_id, user_id, ph, h2o2, le, sna, beta_g, nag,
	status, analysis, created_at, updated_at`

// SQLTestLogRepo implements TestLogRepo on SQLite or Postgres.
type SQLTestLogRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

// NewSQLTestLogRepo creates a new SQLTestLogRepo.
func NewSQLTestLogRepo(conn db.DBTX, dialect db.Dialect) *SQLTestLogRepo {
	return &SQLTestLogRepo{db: conn, dialect: dialect}
}

func (r *SQLTestLogRepo) Create(ctx context.Context, l *domain.TestLog) error {
	query := `INSERT INTO test_logs (` + logColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		l.ID,
		l.SessionID,
		l.UserID,
		nullableFloat(l.PH),
		nullableReading(l.H2O2),
		nullableReading(l.LE),
		nullableReading(l.SNA),
		nullableReading(l.BetaG),
		nullableReading(l.NAG),
		string(l.Status),
		l.Analysis,
		formatTime(l.CreatedAt),
		formatTime(l.UpdatedAt),
	)
	if err != nil {
		return wrapWriteErr("inserting test log", err)
	}
	return nil
}

func (r *SQLTestLogRepo) GetBySession(ctx context.Context, sessionID string) (*domain.TestLog, error) {
	query := `SELECT ` + logColumns + ` FROM test_logs WHERE session_id = ?`
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), sessionID)
	l, err := scanLogRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("test log: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning test log: %w", err)
	}
	return l, nil
}

// ListBySessions returns the logs of the given sessions keyed by session id.
// Sessions without a log are absent from the map.
func (r *SQLTestLogRepo) ListBySessions(ctx context.Context, sessionIDs []string) (map[string]*domain.TestLog, error) {
	out := make(map[string]*domain.TestLog, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}
	query := `SELECT ` + logColumns + ` FROM test_logs WHERE session_id IN (` + placeholders(len(sessionIDs)) + `)`
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing test logs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		l, err := scanLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning test log row: %w", err)
		}
		out[l.SessionID] = l
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating test logs: %w", err)
	}
	return out, nil
}

func (r *SQLTestLogRepo) Update(ctx context.Context, l *domain.TestLog) error {
	query := `UPDATE test_logs SET
		ph = ?, h2o2 = ?, le = ?, sna = ?, beta_g = ?, nag = ?,
		status = ?, analysis = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		nullableFloat(l.PH),
		nullableReading(l.H2O2),
		nullableReading(l.LE),
		nullableReading(l.SNA),
		nullableReading(l.BetaG),
		nullableReading(l.NAG),
		string(l.Status),
		l.Analysis,
		formatTime(l.UpdatedAt),
		l.ID,
	)
	if err != nil {
		return wrapWriteErr("updating test log", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating test log: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("test log %s: %w", l.ID, ErrNotFound)
	}
	return nil
}

func scanLogRow(sc rowScanner) (*domain.TestLog, error) {
	var l domain.TestLog
	var ph sql.NullFloat64
	var h2o2, le, sna, betaG, nag sql.NullString
	var status, createdAt, updatedAt string

	if err := sc.Scan(
		&l.ID, &l.SessionID, &l.UserID, &ph, &h2o2, &le, &sna, &betaG, &nag,
		&status, &l.Analysis, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	l.Status = domain.LogStatus(status)
	l.PH = parseNullableFloat(ph)
	l.H2O2 = parseNullableReading(h2o2)
	l.LE = parseNullableReading(le)
	l.SNA = parseNullableReading(sna)
	l.BetaG = parseNullableReading(betaG)
	l.NAG = parseNullableReading(nag)
	return &l, nil
}
