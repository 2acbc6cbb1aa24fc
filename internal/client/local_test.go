package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
	"github.com/santelle/santelle/internal/service"
	"github.com/santelle/santelle/internal/testutil"
)

func newLocal(t *testing.T, actor string) *Local {
	t.Helper()
	database := testutil.NewTestDB(t)
	uow := testutil.NewTestUoW(database)
	sessions := repository.NewSQLSessionRepo(database, db.SQLite)
	logs := repository.NewSQLTestLogRepo(database, db.SQLite)
	return NewLocal(
		service.NewTestSessionService(sessions, logs, uow),
		service.NewTestLogService(logs, sessions, uow),
		actor,
	)
}

func TestLocal_SessionLifecycle(t *testing.T) {
	c := newLocal(t, "local")
	ctx := context.Background()
	assert.Equal(t, "local", c.Actor())

	open, err := c.FetchOpen(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)

	s, err := c.CreateSession(ctx)
	require.NoError(t, err)

	s, err = c.SetStep(ctx, s.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, s.CurrentStep)

	at := time.Now().Add(domain.PHWait)
	s, err = c.SetPHResultReadyAt(ctx, s.ID, at)
	require.NoError(t, err)
	require.NotNil(t, s.PHResultReadyAt)

	_, err = c.SetPHResultReadyAt(ctx, s.ID, at.Add(time.Minute))
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, domain.ErrAlreadySet)

	_, err = c.SetStep(ctx, s.ID, 9)
	assert.ErrorIs(t, err, ErrInvalid)

	l, err := c.GetLog(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = c.UpsertResults(ctx, s.ID, domain.PHPatch(4.6))
	require.NoError(t, err)
	assert.InDelta(t, 4.6, *l.PH, 0.0001)

	done, err := c.Complete(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, done.Status)

	err = c.Abort(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	history, err := c.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, s.ID, history[0].Session.ID)
}

func TestLocal_UnknownSessionIsNotFound(t *testing.T) {
	c := newLocal(t, "local")

	_, err := c.SetStep(context.Background(), "missing", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_StorageFailureIsUnavailable(t *testing.T) {
	database := testutil.NewTestDB(t)
	uow := testutil.NewTestUoW(database)
	sessions := repository.NewSQLSessionRepo(database, db.SQLite)
	logs := repository.NewSQLTestLogRepo(database, db.SQLite)
	c := NewLocal(service.NewTestSessionService(sessions, logs, uow), service.NewTestLogService(logs, sessions, uow), "local")
	require.NoError(t, database.Close())

	_, err := c.CreateSession(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
