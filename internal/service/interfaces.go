package service

import (
	"context"

	"github.com/santelle/santelle/internal/domain"
)

// TestSessionService owns the session lifecycle for one acting user.
// Sessions of other users are reported as not found.
type TestSessionService interface {
	// Start returns the user's open session, creating one if none exists.
	Start(ctx context.Context, userID string) (*domain.TestSession, error)
	// GetOpen returns repository.ErrNotFound when the user has no open session.
	GetOpen(ctx context.Context, userID string) (*domain.TestSession, error)
	Get(ctx context.Context, userID, id string) (*domain.TestSession, error)
	Patch(ctx context.Context, userID, id string, patch domain.SessionPatch) (*domain.TestSession, error)
	Complete(ctx context.Context, userID, id string) (*domain.TestSession, error)
	Abort(ctx context.Context, userID, id, reason string) error
	// History lists concluded sessions with their logs, newest first.
	History(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error)
}

type TestLogService interface {
	// Upsert creates the session's log on first write and merges the patch.
	Upsert(ctx context.Context, userID, sessionID string, patch domain.LogPatch) (*domain.TestLog, error)
	Get(ctx context.Context, userID, sessionID string) (*domain.TestLog, error)
}

type AuthService interface {
	Register(ctx context.Context, email, password string) (*domain.User, error)
	// Login returns a signed token for valid credentials.
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	// Authenticate resolves a token to the user id it was issued for.
	Authenticate(ctx context.Context, token string) (string, error)
}
