package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
)

// DefaultHistoryLimit caps History when the caller passes no limit.
const DefaultHistoryLimit = 20

type testSessionService struct {
	sessions repository.TestSessionRepo
	logs     repository.TestLogRepo
	uow      db.UnitOfWork
	observer UseCaseObserver
	now      func() time.Time
}

func NewTestSessionService(
	sessions repository.TestSessionRepo,
	logs repository.TestLogRepo,
	uow db.UnitOfWork,
	observers ...UseCaseObserver,
) TestSessionService {
	return &testSessionService{
		sessions: sessions,
		logs:     logs,
		uow:      uow,
		observer: useCaseObserverOrNoop(observers),
		now:      time.Now,
	}
}

func (s *testSessionService) Start(ctx context.Context, userID string) (session *domain.TestSession, err error) {
	defer observe(ctx, s.observer, "start-session", time.Now(), map[string]any{"user_id": userID}, &err)

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		txSessions := repository.NewSQLSessionRepo(tx, s.uow.Dialect())

		open, getErr := txSessions.GetOpenByUser(ctx, userID)
		if getErr == nil {
			session = open
			return nil
		}
		if !errors.Is(getErr, repository.ErrNotFound) {
			return getErr
		}

		session = domain.NewTestSession(uuid.New().String(), userID, s.now())
		return txSessions.Create(ctx, session)
	})
	if errors.Is(err, repository.ErrConflict) {
		// Lost a race with a concurrent start; the winner is the open session.
		session, err = s.sessions.GetOpenByUser(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	return session, nil
}

func (s *testSessionService) GetOpen(ctx context.Context, userID string) (*domain.TestSession, error) {
	return s.sessions.GetOpenByUser(ctx, userID)
}

func (s *testSessionService) Get(ctx context.Context, userID, id string) (*domain.TestSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("test session %s: %w", id, repository.ErrNotFound)
	}
	return session, nil
}

func (s *testSessionService) Patch(ctx context.Context, userID, id string, patch domain.SessionPatch) (session *domain.TestSession, err error) {
	fields := map[string]any{"session_id": id}
	if patch.CurrentStep != nil {
		fields["step"] = *patch.CurrentStep
	}
	defer observe(ctx, s.observer, "patch-session", time.Now(), fields, &err)

	err = s.mutate(ctx, userID, id, func(sess *domain.TestSession) (bool, error) {
		if patch.IsEmpty() {
			return false, nil
		}
		return true, sess.Apply(patch, s.now())
	}, &session)
	return session, err
}

func (s *testSessionService) Complete(ctx context.Context, userID, id string) (session *domain.TestSession, err error) {
	defer observe(ctx, s.observer, "complete-session", time.Now(), map[string]any{"session_id": id}, &err)

	err = s.mutate(ctx, userID, id, func(sess *domain.TestSession) (bool, error) {
		return true, sess.Complete(s.now())
	}, &session)
	return session, err
}

func (s *testSessionService) Abort(ctx context.Context, userID, id, reason string) (err error) {
	defer observe(ctx, s.observer, "abort-session", time.Now(), map[string]any{"session_id": id}, &err)

	var session *domain.TestSession
	return s.mutate(ctx, userID, id, func(sess *domain.TestSession) (bool, error) {
		return true, sess.Abort(reason, s.now())
	}, &session)
}

// mutate loads the session inside a transaction, applies fn and persists the
// result when fn reports a change.
func (s *testSessionService) mutate(
	ctx context.Context,
	userID, id string,
	fn func(*domain.TestSession) (bool, error),
	out **domain.TestSession,
) error {
	return s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		txSessions := repository.NewSQLSessionRepo(tx, s.uow.Dialect())

		sess, err := txSessions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if sess.UserID != userID {
			return fmt.Errorf("test session %s: %w", id, repository.ErrNotFound)
		}
		changed, err := fn(sess)
		if err != nil {
			return err
		}
		if changed {
			if err := txSessions.Update(ctx, sess); err != nil {
				return err
			}
		}
		*out = sess
		return nil
	})
}

func (s *testSessionService) History(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	sessions, err := s.sessions.ListByUser(ctx, userID,
		[]domain.SessionStatus{domain.SessionCompleted, domain.SessionAborted}, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	logs, err := s.logs.ListBySessions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading history logs: %w", err)
	}

	entries := make([]domain.HistoryEntry, len(sessions))
	for i, sess := range sessions {
		entries[i] = domain.HistoryEntry{Session: sess, Log: logs[sess.ID]}
	}
	return entries, nil
}
