// Package client translates session-store operations into typed calls, either
// in-process over the service layer or against the HTTP API.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/santelle/santelle/internal/domain"
)

var (
	// ErrUnavailable indicates the store could not be reached.
	ErrUnavailable = errors.New("session store unavailable")

	// ErrNotFound indicates the session or log does not exist for the actor.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the write contradicts stored state: the session
	// is closed, a set-once field differs or the log is finalized.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized indicates a missing or rejected actor token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalid indicates the request itself was malformed.
	ErrInvalid = errors.New("invalid request")
)

// Client is the typed surface over the session record store for one actor.
type Client interface {
	// Actor returns the id of the user every call acts for.
	Actor() string

	CreateSession(ctx context.Context) (*domain.TestSession, error)
	// FetchOpen returns the actor's open session, or nil when there is none.
	FetchOpen(ctx context.Context) (*domain.TestSession, error)
	SetStep(ctx context.Context, sessionID string, step int) (*domain.TestSession, error)
	SetPHResultReadyAt(ctx context.Context, sessionID string, at time.Time) (*domain.TestSession, error)
	SetResultsReadyAt(ctx context.Context, sessionID string, at time.Time) (*domain.TestSession, error)
	Complete(ctx context.Context, sessionID string) (*domain.TestSession, error)
	Abort(ctx context.Context, sessionID, reason string) error

	UpsertResults(ctx context.Context, sessionID string, patch domain.LogPatch) (*domain.TestLog, error)
	// GetLog returns nil when the session has no log yet.
	GetLog(ctx context.Context, sessionID string) (*domain.TestLog, error)
	History(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}

// kindOf returns the client error kind of a domain rule violation.
func kindOf(err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrAlreadySet),
		errors.Is(err, domain.ErrLogFinalized):
		return ErrConflict
	case errors.Is(err, domain.ErrInvalidStep),
		errors.Is(err, domain.ErrInvalidReading):
		return ErrInvalid
	default:
		return nil
	}
}
