package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
	"github.com/santelle/santelle/internal/testutil"
)

var errInjected = errors.New("injected write failure")

func TestTestSessionService_PatchRollsBackOnWriteFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)

	f.sessions.uow = &testutil.FailOnNthExecUoW{DB: f.db, FailOn: 1, Err: errInjected}
	step := 3
	_, err = f.sessions.Patch(ctx, f.userID, sess.ID, domain.SessionPatch{CurrentStep: &step})
	assert.ErrorIs(t, err, errInjected)

	got, err := repository.NewSQLSessionRepo(f.db, db.SQLite).GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStep)
}

func TestTestLogService_UpsertRollsBackOnWriteFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)

	f.logs.uow = &testutil.FailOnNthExecUoW{DB: f.db, FailOn: 1, Err: errInjected}
	_, err = f.logs.Upsert(ctx, f.userID, sess.ID, domain.PHPatch(4.4))
	assert.ErrorIs(t, err, errInjected)

	_, err = f.logs.Get(ctx, f.userID, sess.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
