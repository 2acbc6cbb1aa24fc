package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/santelle/santelle/internal/auth"
	"github.com/santelle/santelle/internal/client"
	"github.com/santelle/santelle/internal/contract"
	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
	"github.com/santelle/santelle/internal/service"
	"github.com/santelle/santelle/internal/testutil"
)

type apiFixture struct {
	srv     *httptest.Server
	hub     *Hub
	authSvc service.AuthService
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	database := testutil.NewTestDB(t)
	uow := testutil.NewTestUoW(database)
	sessions := repository.NewSQLSessionRepo(database, db.SQLite)
	logs := repository.NewSQLTestLogRepo(database, db.SQLite)
	users := repository.NewSQLUserRepo(database, db.SQLite)

	authSvc := service.NewAuthService(users, auth.NewBcryptHasher(bcrypt.MinCost), auth.NewTokenService("test-secret", time.Hour))
	hub := NewHub(nil)
	h := NewHandler(
		service.NewTestSessionService(sessions, logs, uow),
		service.NewTestLogService(logs, sessions, uow),
		authSvc, hub, nil,
	)
	srv := httptest.NewServer(NewRouter(h, hub, nil))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &apiFixture{srv: srv, hub: hub, authSvc: authSvc}
}

// login registers email and returns a client acting for it.
func (f *apiFixture) login(t *testing.T, email string) *client.HTTP {
	t.Helper()
	ctx := context.Background()
	_, err := f.authSvc.Register(ctx, email, "correct horse")
	require.NoError(t, err)
	resp, err := client.Login(ctx, f.srv.URL, email, "correct horse")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)

	c, err := client.NewHTTP(client.HTTPConfig{BaseURL: f.srv.URL, Token: resp.Token, Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, c.Actor())
	return c
}

func TestAPI_Health(t *testing.T) {
	f := newAPI(t)
	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RequiresToken(t *testing.T) {
	f := newAPI(t)
	for _, header := range []string{"", "Basic abc", "Bearer not-a-jwt"} {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/sessions/open", nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "header %q", header)
	}
}

func TestAPI_LoginRejectsBadPassword(t *testing.T) {
	f := newAPI(t)
	ctx := context.Background()
	_, err := f.authSvc.Register(ctx, "a@example.com", "right")
	require.NoError(t, err)

	_, err = client.Login(ctx, f.srv.URL, "a@example.com", "wrong")
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestAPI_SessionLifecycleThroughClient(t *testing.T) {
	f := newAPI(t)
	c := f.login(t, "user@example.com")
	ctx := context.Background()

	open, err := c.FetchOpen(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)

	s, err := c.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, s.Status)
	assert.Equal(t, 1, s.CurrentStep)

	again, err := c.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)

	s, err = c.SetStep(ctx, s.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, s.CurrentStep)

	at := time.Now().Add(domain.ResultsWait).UTC().Truncate(time.Millisecond)
	s, err = c.SetResultsReadyAt(ctx, s.ID, at)
	require.NoError(t, err)
	require.NotNil(t, s.ResultsReadyAt)
	assert.True(t, at.Equal(*s.ResultsReadyAt))

	_, err = c.SetResultsReadyAt(ctx, s.ID, at)
	assert.NoError(t, err, "identical value is idempotent")

	_, err = c.SetResultsReadyAt(ctx, s.ID, at.Add(time.Minute))
	assert.ErrorIs(t, err, client.ErrConflict)
	assert.ErrorIs(t, err, domain.ErrAlreadySet)

	_, err = c.SetStep(ctx, s.ID, 8)
	assert.ErrorIs(t, err, client.ErrInvalid)
	assert.ErrorIs(t, err, domain.ErrInvalidStep)

	l, err := c.GetLog(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = c.UpsertResults(ctx, s.ID, domain.PHPatch(4.4))
	require.NoError(t, err)
	require.NotNil(t, l.PH)
	assert.Equal(t, 4.4, *l.PH)

	_, err = c.UpsertResults(ctx, s.ID, domain.ReadingPatch(domain.BiomarkerSNA, domain.ReadingPositive3))
	assert.ErrorIs(t, err, domain.ErrInvalidReading)

	_, err = c.UpsertResults(ctx, s.ID, domain.ReadingPatch(domain.BiomarkerLE, domain.ReadingPositive2))
	require.NoError(t, err)
	_, err = c.UpsertResults(ctx, s.ID, domain.FinalizePatch())
	require.NoError(t, err)
	_, err = c.UpsertResults(ctx, s.ID, domain.PHPatch(5.4))
	assert.ErrorIs(t, err, domain.ErrLogFinalized)

	s, err = c.Complete(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, s.Status)
	assert.NotNil(t, s.CompletedAt)

	err = c.Abort(ctx, s.ID, "too late")
	assert.ErrorIs(t, err, client.ErrConflict)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	history, err := c.History(ctx, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, s.ID, history[0].Session.ID)
	require.NotNil(t, history[0].Log)
	assert.Equal(t, domain.LogFinalized, history[0].Log.Status)
}

func TestAPI_SessionsAreScopedToActor(t *testing.T) {
	f := newAPI(t)
	alice := f.login(t, "alice@example.com")
	bob := f.login(t, "bob@example.com")
	ctx := context.Background()

	s, err := alice.CreateSession(ctx)
	require.NoError(t, err)

	_, err = bob.SetStep(ctx, s.ID, 2)
	assert.ErrorIs(t, err, client.ErrNotFound)
	err = bob.Abort(ctx, s.ID, "")
	assert.ErrorIs(t, err, client.ErrNotFound)

	open, err := bob.FetchOpen(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestAPI_AbortWithoutBody(t *testing.T) {
	f := newAPI(t)
	c := f.login(t, "user@example.com")
	ctx := context.Background()
	s, err := c.CreateSession(ctx)
	require.NoError(t, err)

	token, err := auth.NewTokenService("test-secret", time.Hour).GenerateToken(c.Actor(), "")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/sessions/"+s.ID+"/abort", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	open, err := c.FetchOpen(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestAPI_RejectsMalformedBodies(t *testing.T) {
	f := newAPI(t)
	c := f.login(t, "user@example.com")
	s, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	token, err := auth.NewTokenService("test-secret", time.Hour).GenerateToken(c.Actor(), "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"empty patch", http.MethodPatch, "/sessions/" + s.ID, `{}`},
		{"unknown field", http.MethodPatch, "/sessions/" + s.ID, `{"step": 3}`},
		{"not json", http.MethodPut, "/sessions/" + s.ID + "/log", `ph=4`},
		{"bad limit", http.MethodGet, "/sessions/history?limit=-1", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, f.srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAPI_EventsArePushedToActor(t *testing.T) {
	f := newAPI(t)
	c := f.login(t, "user@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan contract.Event, 4)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- c.Watch(ctx, func(ev contract.Event) { events <- ev })
	}()
	require.Eventually(t, func() bool { return f.hub.Connections(c.Actor()) == 1 }, 2*time.Second, 10*time.Millisecond)

	s, err := c.CreateSession(context.Background())
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, contract.EventSessionChanged, ev.Type)
		assert.Equal(t, s.ID, ev.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-watchErr:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   contract.ErrorCode
	}{
		{repository.ErrNotFound, http.StatusNotFound, contract.CodeNotFound},
		{domain.ErrSessionClosed, http.StatusConflict, contract.CodeSessionClosed},
		{domain.ErrAlreadySet, http.StatusConflict, contract.CodeAlreadySet},
		{domain.ErrLogFinalized, http.StatusConflict, contract.CodeLogFinalized},
		{domain.ErrInvalidStep, http.StatusBadRequest, contract.CodeInvalidStep},
		{domain.ErrInvalidReading, http.StatusBadRequest, contract.CodeInvalidReading},
		{errBadRequest, http.StatusBadRequest, contract.CodeInvalidRequest},
		{service.ErrEmailTaken, http.StatusConflict, contract.CodeConflict},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, contract.CodeUnauthorized},
		{auth.ErrInvalidToken, http.StatusUnauthorized, contract.CodeUnauthorized},
		{errors.New("disk on fire"), http.StatusInternalServerError, contract.CodeInternal},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
