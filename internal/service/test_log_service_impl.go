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

type testLogService struct {
	logs     repository.TestLogRepo
	sessions repository.TestSessionRepo
	uow      db.UnitOfWork
	observer UseCaseObserver
	now      func() time.Time
}

func NewTestLogService(
	logs repository.TestLogRepo,
	sessions repository.TestSessionRepo,
	uow db.UnitOfWork,
	observers ...UseCaseObserver,
) TestLogService {
	return &testLogService{
		logs:     logs,
		sessions: sessions,
		uow:      uow,
		observer: useCaseObserverOrNoop(observers),
		now:      time.Now,
	}
}

func (s *testLogService) Upsert(ctx context.Context, userID, sessionID string, patch domain.LogPatch) (log *domain.TestLog, err error) {
	defer observe(ctx, s.observer, "upsert-log", time.Now(), map[string]any{"session_id": sessionID}, &err)

	if err = patch.Validate(); err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		txSessions := repository.NewSQLSessionRepo(tx, s.uow.Dialect())
		txLogs := repository.NewSQLTestLogRepo(tx, s.uow.Dialect())

		sess, getErr := txSessions.GetByID(ctx, sessionID)
		if getErr != nil {
			return getErr
		}
		if sess.UserID != userID {
			return fmt.Errorf("test session %s: %w", sessionID, repository.ErrNotFound)
		}

		now := s.now()
		existing, getErr := txLogs.GetBySession(ctx, sessionID)
		switch {
		case getErr == nil:
			if applyErr := existing.Apply(patch, now); applyErr != nil {
				return applyErr
			}
			log = existing
			return txLogs.Update(ctx, existing)
		case errors.Is(getErr, repository.ErrNotFound):
			created := domain.NewTestLog(uuid.New().String(), sessionID, userID, now)
			if applyErr := created.Apply(patch, now); applyErr != nil {
				return applyErr
			}
			log = created
			return txLogs.Create(ctx, created)
		default:
			return getErr
		}
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

func (s *testLogService) Get(ctx context.Context, userID, sessionID string) (*domain.TestLog, error) {
	log, err := s.logs.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if log.UserID != userID {
		return nil, fmt.Errorf("test log: %w", repository.ErrNotFound)
	}
	return log, nil
}
