package repository

import (
	"context"
	"errors"

	"github.com/santelle/santelle/internal/domain"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("conflict")
)

type TestSessionRepo interface {
	Create(ctx context.Context, s *domain.TestSession) error
	GetByID(ctx context.Context, id string) (*domain.TestSession, error)
	// GetOpenByUser returns the most recently started in-progress session.
	GetOpenByUser(ctx context.Context, userID string) (*domain.TestSession, error)
	ListByUser(ctx context.Context, userID string, statuses []domain.SessionStatus, limit int) ([]*domain.TestSession, error)
	Update(ctx context.Context, s *domain.TestSession) error
}

type TestLogRepo interface {
	Create(ctx context.Context, l *domain.TestLog) error
	GetBySession(ctx context.Context, sessionID string) (*domain.TestLog, error)
	ListBySessions(ctx context.Context, sessionIDs []string) (map[string]*domain.TestLog, error)
	Update(ctx context.Context, l *domain.TestLog) error
}

type UserRepo interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// SnapshotRepo persists the locally cached session projection per actor.
type SnapshotRepo interface {
	Load(ctx context.Context, actor string) (*domain.SessionSnapshot, error)
	Save(ctx context.Context, actor string, s *domain.SessionSnapshot) error
	Delete(ctx context.Context, actor string) error
}
