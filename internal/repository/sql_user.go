package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/domain"
)

// SQLUserRepo implements UserRepo on SQLite or Postgres.
type SQLUserRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

func NewSQLUserRepo(conn db.DBTX, dialect db.Dialect) *SQLUserRepo {
	return &SQLUserRepo{db: conn, dialect: dialect}
}

func (r *SQLUserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		u.ID, normalizeEmail(u.Email), u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		return wrapWriteErr("inserting user", err)
	}
	return nil
}

func (r *SQLUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id))
}

// GetByEmail matches case-insensitively.
func (r *SQLUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), normalizeEmail(email)))
}

func (r *SQLUserRepo) scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	u.CreatedAt = t
	return &u, nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
