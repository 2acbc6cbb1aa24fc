package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/repository"
	"github.com/santelle/santelle/internal/testutil"
)

type fixture struct {
	db       *sql.DB
	sessions *testSessionService
	logs     *testLogService
	userID   string
	clock    *fakeClock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := testutil.NewTestDB(t)
	uow := testutil.NewTestUoW(database)
	sessRepo := repository.NewSQLSessionRepo(database, db.SQLite)
	logRepo := repository.NewSQLTestLogRepo(database, db.SQLite)

	user := testutil.NewTestUser()
	require.NoError(t, repository.NewSQLUserRepo(database, db.SQLite).Create(context.Background(), user))

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	ss := NewTestSessionService(sessRepo, logRepo, uow).(*testSessionService)
	ss.now = clock.Now
	ls := NewTestLogService(logRepo, sessRepo, uow).(*testLogService)
	ls.now = clock.Now

	return &fixture{db: database, sessions: ss, logs: ls, userID: user.ID, clock: clock}
}
