package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
	"github.com/santelle/santelle/internal/service"
)

// Local calls the service layer in-process. It is used when no API server
// is configured.
type Local struct {
	sessions service.TestSessionService
	logs     service.TestLogService
	actor    string
}

func NewLocal(sessions service.TestSessionService, logs service.TestLogService, actor string) *Local {
	return &Local{sessions: sessions, logs: logs, actor: actor}
}

func (c *Local) Actor() string { return c.actor }

func (c *Local) CreateSession(ctx context.Context) (*domain.TestSession, error) {
	s, err := c.sessions.Start(ctx, c.actor)
	return s, c.wrap("create session", err)
}

func (c *Local) FetchOpen(ctx context.Context) (*domain.TestSession, error) {
	s, err := c.sessions.GetOpen(ctx, c.actor)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return s, c.wrap("fetch open session", err)
}

func (c *Local) SetStep(ctx context.Context, sessionID string, step int) (*domain.TestSession, error) {
	s, err := c.sessions.Patch(ctx, c.actor, sessionID, domain.SessionPatch{CurrentStep: &step})
	return s, c.wrap("set step", err)
}

func (c *Local) SetPHResultReadyAt(ctx context.Context, sessionID string, at time.Time) (*domain.TestSession, error) {
	s, err := c.sessions.Patch(ctx, c.actor, sessionID, domain.SessionPatch{PHResultReadyAt: &at})
	return s, c.wrap("set ph_result_ready_at", err)
}

func (c *Local) SetResultsReadyAt(ctx context.Context, sessionID string, at time.Time) (*domain.TestSession, error) {
	s, err := c.sessions.Patch(ctx, c.actor, sessionID, domain.SessionPatch{ResultsReadyAt: &at})
	return s, c.wrap("set results_ready_at", err)
}

func (c *Local) Complete(ctx context.Context, sessionID string) (*domain.TestSession, error) {
	s, err := c.sessions.Complete(ctx, c.actor, sessionID)
	return s, c.wrap("complete session", err)
}

func (c *Local) Abort(ctx context.Context, sessionID, reason string) error {
	return c.wrap("abort session", c.sessions.Abort(ctx, c.actor, sessionID, reason))
}

func (c *Local) UpsertResults(ctx context.Context, sessionID string, patch domain.LogPatch) (*domain.TestLog, error) {
	l, err := c.logs.Upsert(ctx, c.actor, sessionID, patch)
	return l, c.wrap("upsert results", err)
}

func (c *Local) GetLog(ctx context.Context, sessionID string) (*domain.TestLog, error) {
	l, err := c.logs.Get(ctx, c.actor, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return l, c.wrap("get log", err)
}

func (c *Local) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	h, err := c.sessions.History(ctx, c.actor, limit)
	return h, c.wrap("history", err)
}

// wrap tags err with its client kind while keeping the original chain.
func (c *Local) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	if kind := kindOf(err); kind != nil {
		return fmt.Errorf("%s: %w: %w", op, kind, err)
	}
	// Anything else is a storage failure.
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
