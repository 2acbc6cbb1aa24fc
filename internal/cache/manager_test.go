package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santelle/santelle/internal/client"
	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
	"github.com/santelle/santelle/internal/service"
	"github.com/santelle/santelle/internal/testutil"
)

func newManager(t *testing.T) (*Manager, *fakeClient, *memPersister) {
	t.Helper()
	fc := newFakeClient()
	p := newMemPersister()
	m := NewManager(fc, p, nil)
	t.Cleanup(m.Close)
	return m, fc, p
}

func hydrated(t *testing.T, step int) (*Manager, *fakeClient, *memPersister) {
	t.Helper()
	m, fc, p := newManager(t)
	fc.seed(step)
	res := m.HydrateFromServer(context.Background())
	require.NoError(t, res.Err)
	require.NotNil(t, res.Session)
	return m, fc, p
}

func waitCalls(t *testing.T, fc *fakeClient, op string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return fc.callCount(op) >= n }, time.Second, time.Millisecond)
}

func TestReconcile_IsPure(t *testing.T) {
	optimistic := &domain.SessionSnapshot{ID: "s1", CurrentStep: 4, Status: domain.SessionInProgress}
	pending := Mutation{Kind: MutationStep, Phase: Pending, Value: optimistic, Generation: 7}
	server := &domain.SessionSnapshot{ID: "s1", CurrentStep: 3, Status: domain.SessionInProgress}

	got := Reconcile(pending, server)

	assert.Equal(t, Confirmed, got.Phase)
	assert.Equal(t, uint64(7), got.Generation)
	assert.True(t, got.Value.Equal(server))
	assert.Equal(t, 4, pending.Value.CurrentStep)
	assert.Equal(t, Pending, pending.Phase)

	server.CurrentStep = 6
	assert.Equal(t, 3, got.Value.CurrentStep)
}

func TestManager_HydrateFromServer(t *testing.T) {
	m, fc, p := newManager(t)
	ctx := context.Background()

	res := m.HydrateFromServer(ctx)
	require.True(t, res.OK())
	assert.Nil(t, res.Session)
	assert.False(t, m.State().Loading)

	s := fc.seed(3)
	res = m.HydrateFromServer(ctx)
	require.True(t, res.OK())
	assert.Equal(t, s.ID, res.Session.ID)
	assert.Equal(t, 3, m.Session().CurrentStep)
	assert.False(t, m.State().HydratedAt.IsZero())

	saved := p.get(fc.Actor())
	require.NotNil(t, saved)
	assert.Equal(t, s.ID, saved.ID)
}

func TestManager_HydrateFailureKeepsPriorCache(t *testing.T) {
	m, fc, _ := hydrated(t, 2)
	fc.setFail("fetch", client.ErrUnavailable)

	res := m.HydrateFromServer(context.Background())

	assert.ErrorIs(t, res.Err, client.ErrUnavailable)
	require.NotNil(t, m.Session())
	assert.Equal(t, 2, m.Session().CurrentStep)
	st := m.State()
	assert.ErrorIs(t, st.Err, client.ErrUnavailable)
	assert.Equal(t, Failed, st.Mutations[MutationHydrate].Phase)
	assert.False(t, st.Loading)
}

func TestManager_SetStepOptimisticThenConfirmed(t *testing.T) {
	m, fc, p := hydrated(t, 3)
	release := fc.gate("step")

	done := make(chan Result, 1)
	go func() { done <- m.SetStep(context.Background(), 4) }()
	waitCalls(t, fc, "step", 1)

	st := m.State()
	assert.Equal(t, 4, st.Session.CurrentStep)
	assert.Equal(t, Pending, st.Mutations[MutationStep].Phase)

	close(release)
	res := <-done
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Session.CurrentStep)

	st = m.State()
	assert.Equal(t, Confirmed, st.Mutations[MutationStep].Phase)
	assert.Equal(t, 4, st.Mutations[MutationStep].Value.CurrentStep)
	assert.Equal(t, 4, p.get(fc.Actor()).CurrentStep)
}

func TestManager_SetStepFailureRevertsAfterRehydrate(t *testing.T) {
	m, fc, _ := hydrated(t, 2)
	fc.setFail("step", client.ErrUnavailable)
	release := fc.gate("step")

	done := make(chan Result, 1)
	go func() { done <- m.SetStep(context.Background(), 3) }()
	waitCalls(t, fc, "step", 1)

	// The optimistic value is visible until the call settles.
	assert.Equal(t, 3, m.Session().CurrentStep)

	close(release)
	res := <-done
	assert.ErrorIs(t, res.Err, client.ErrUnavailable)

	st := m.State()
	assert.Equal(t, 2, st.Session.CurrentStep)
	assert.ErrorIs(t, st.Err, client.ErrUnavailable)
	mut := st.Mutations[MutationStep]
	assert.Equal(t, Failed, mut.Phase)
	assert.Equal(t, 2, mut.Value.CurrentStep)
	assert.Equal(t, 2, fc.callCount("fetch"))
}

func TestManager_SetStepRejectsOutOfRange(t *testing.T) {
	m, fc, _ := hydrated(t, 2)

	res := m.SetStep(context.Background(), 8)

	assert.ErrorIs(t, res.Err, domain.ErrInvalidStep)
	assert.ErrorIs(t, res.Err, client.ErrInvalid)
	assert.Zero(t, fc.callCount("step"))
	assert.Equal(t, 2, m.Session().CurrentStep)
}

func TestManager_ReadyAtIsSetOnce(t *testing.T) {
	m, fc, _ := hydrated(t, 4)
	ctx := context.Background()
	first := time.Date(2025, 6, 1, 9, 1, 0, 0, time.UTC)

	res := m.SetPHResultReadyAt(ctx, first)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Session.PHResultReadyAt)
	assert.True(t, first.Equal(*res.Session.PHResultReadyAt))

	res = m.SetPHResultReadyAt(ctx, first.Add(time.Minute))
	require.NoError(t, res.Err)
	assert.True(t, first.Equal(*res.Session.PHResultReadyAt))
	assert.Equal(t, 1, fc.callCount("ph"))

	resultsAt := first.Add(9 * time.Minute)
	require.NoError(t, m.SetResultsReadyAt(ctx, resultsAt).Err)
	require.NoError(t, m.SetResultsReadyAt(ctx, resultsAt).Err)
	assert.Equal(t, 1, fc.callCount("results"))
	assert.True(t, resultsAt.Equal(*m.Session().ResultsReadyAt))
}

func TestManager_ReadyAtConflictAdoptsServerValue(t *testing.T) {
	m, fc, _ := hydrated(t, 4)
	ctx := context.Background()
	serverAt := time.Date(2025, 6, 1, 9, 10, 0, 0, time.UTC)

	// Another device anchored the timer after our last hydration.
	fc.mu.Lock()
	fc.session.ResultsReadyAt = &serverAt
	fc.mu.Unlock()

	res := m.SetResultsReadyAt(ctx, serverAt.Add(time.Minute))

	assert.ErrorIs(t, res.Err, domain.ErrAlreadySet)
	require.NotNil(t, m.Session().ResultsReadyAt)
	assert.True(t, serverAt.Equal(*m.Session().ResultsReadyAt))
}

func TestManager_CompleteFailureKeepsActive(t *testing.T) {
	m, fc, p := hydrated(t, 7)
	ctx := context.Background()
	fc.setFail("complete", client.ErrUnavailable)

	res := m.Complete(ctx)
	assert.ErrorIs(t, res.Err, client.ErrUnavailable)
	assert.True(t, m.Session().IsActive())
	assert.Equal(t, 7, m.Session().CurrentStep)
	assert.NotNil(t, p.get(fc.Actor()))

	fc.setFail("complete", nil)
	res = m.Complete(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, domain.SessionCompleted, res.Session.Status)
	assert.False(t, m.Session().IsActive())
	assert.Nil(t, p.get(fc.Actor()))
	assert.NoError(t, m.State().Err)
}

func TestManager_AbortClearsCacheAndPersistedEntry(t *testing.T) {
	m, fc, p := hydrated(t, 5)
	ctx := context.Background()
	require.NotNil(t, p.get(fc.Actor()))

	fc.setFail("abort", client.ErrUnavailable)
	res := m.Abort(ctx, "spilled")
	assert.ErrorIs(t, res.Err, client.ErrUnavailable)
	assert.NotNil(t, m.Session())
	assert.NotNil(t, p.get(fc.Actor()))

	fc.setFail("abort", nil)
	res = m.Abort(ctx, "spilled")
	require.NoError(t, res.Err)
	assert.Nil(t, res.Session)
	assert.Nil(t, m.Session())
	assert.Nil(t, p.get(fc.Actor()))
	assert.Equal(t, domain.SessionAborted, fc.session.Status)
}

func TestManager_WithoutSession(t *testing.T) {
	m, fc, _ := newManager(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.SetStep(ctx, 2).Err, ErrNoSession)
	assert.ErrorIs(t, m.Complete(ctx).Err, ErrNoSession)
	assert.ErrorIs(t, m.Abort(ctx, "").Err, ErrNoSession)
	assert.ErrorIs(t, m.UpsertResults(ctx, domain.PHPatch(4.4)).Err, ErrNoSession)
	assert.ErrorIs(t, m.State().Err, ErrNoSession)
	assert.Zero(t, fc.callCount("step"))
}

func TestManager_SupersededResponseIsDiscarded(t *testing.T) {
	m, fc, _ := hydrated(t, 3)
	ctx := context.Background()
	release := fc.gate("step")

	done := make(chan Result, 1)
	go func() { done <- m.SetStep(ctx, 4) }()
	waitCalls(t, fc, "step", 1)

	res := m.SetStep(ctx, 5)
	require.NoError(t, res.Err)
	assert.Equal(t, 5, m.Session().CurrentStep)

	close(release)
	late := <-done
	assert.True(t, late.Discarded)
	assert.Equal(t, 5, m.Session().CurrentStep)
}

func TestManager_HydrationKeepsPendingField(t *testing.T) {
	m, fc, _ := hydrated(t, 3)
	ctx := context.Background()
	release := fc.gate("step")

	done := make(chan Result, 1)
	go func() { done <- m.SetStep(ctx, 4) }()
	waitCalls(t, fc, "step", 1)

	require.NoError(t, m.HydrateFromServer(ctx).Err)
	assert.Equal(t, 4, m.Session().CurrentStep)

	close(release)
	require.NoError(t, (<-done).Err)
	assert.Equal(t, 4, m.Session().CurrentStep)
}

func TestManager_CloseDropsInflightResponses(t *testing.T) {
	m, fc, _ := newManager(t)
	fc.seed(2)
	release := fc.gate("fetch")

	done := make(chan Result, 1)
	go func() { done <- m.HydrateFromServer(context.Background()) }()
	waitCalls(t, fc, "fetch", 1)

	m.Close()
	close(release)

	res := <-done
	assert.True(t, res.Discarded)
	assert.Nil(t, m.Session())
	assert.ErrorIs(t, m.StartSession(context.Background()).Err, ErrClosed)
}

func TestManager_Subscribe(t *testing.T) {
	m, fc, _ := newManager(t)
	fc.seed(1)

	var mu sync.Mutex
	var seen []State
	unsubscribe := m.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	m.HydrateFromServer(context.Background())

	mu.Lock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Loading)
	assert.False(t, seen[1].Loading)
	assert.Equal(t, 1, seen[1].Session.CurrentStep)
	mu.Unlock()

	unsubscribe()
	m.SetStep(context.Background(), 2)

	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}

func TestManager_RestoreThenHydrate(t *testing.T) {
	m, fc, p := newManager(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 9, 10, 0, 0, time.UTC)
	require.NoError(t, p.Save(ctx, fc.Actor(), &domain.SessionSnapshot{
		ID: "stale", CurrentStep: 6, Status: domain.SessionInProgress, ResultsReadyAt: &at,
	}))

	res := m.Restore(ctx)
	require.NoError(t, res.Err)
	require.NotNil(t, m.Session())
	assert.Equal(t, "stale", m.Session().ID)

	// The next successful hydration always supersedes the persisted entry.
	res = m.HydrateFromServer(ctx)
	require.NoError(t, res.Err)
	assert.Nil(t, m.Session())
	assert.Nil(t, p.get(fc.Actor()))
}

func TestManager_RestoreWithNothingPersisted(t *testing.T) {
	m, _, _ := newManager(t)
	res := m.Restore(context.Background())
	assert.NoError(t, res.Err)
	assert.Nil(t, res.Session)
}

func TestManager_UpsertResultsLeavesSessionAlone(t *testing.T) {
	m, fc, _ := hydrated(t, 7)
	ctx := context.Background()
	before := m.Session()

	res := m.UpsertResults(ctx, domain.ReadingPatch(domain.BiomarkerLE, domain.ReadingPositive))
	require.NoError(t, res.Err)
	require.NotNil(t, res.Log)
	assert.True(t, before.Equal(m.Session()))
	assert.Equal(t, Confirmed, m.State().Mutations[MutationResults].Phase)

	fc.setFail("upsert", client.ErrConflict)
	res = m.UpsertResults(ctx, domain.PHPatch(4.4))
	assert.ErrorIs(t, res.Err, client.ErrConflict)
	assert.True(t, before.Equal(m.Session()))
	assert.Equal(t, Failed, m.State().Mutations[MutationResults].Phase)
}

func TestManager_ResetLocal(t *testing.T) {
	m, fc, p := hydrated(t, 4)
	fc.setFail("step", client.ErrUnavailable)
	m.SetStep(context.Background(), 5)
	require.Error(t, m.State().Err)

	m.ResetLocal(context.Background())

	st := m.State()
	assert.Nil(t, st.Session)
	assert.NoError(t, st.Err)
	assert.Empty(t, st.Mutations)
	assert.Nil(t, p.get(fc.Actor()))
	assert.Equal(t, domain.SessionInProgress, fc.session.Status)
}

func TestManager_StartSessionAdoptsOpen(t *testing.T) {
	m, fc, _ := newManager(t)
	s := fc.seed(2)

	res := m.StartSession(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, s.ID, res.Session.ID)
	assert.Equal(t, 2, res.Session.CurrentStep)
}

func TestManager_LocalStoreRoundTrip(t *testing.T) {
	database := testutil.NewTestDB(t)
	uow := testutil.NewTestUoW(database)
	sessions := repository.NewSQLSessionRepo(database, db.SQLite)
	logs := repository.NewSQLTestLogRepo(database, db.SQLite)
	c := client.NewLocal(
		service.NewTestSessionService(sessions, logs, uow),
		service.NewTestLogService(logs, sessions, uow),
		"local",
	)
	snapshots := repository.NewSQLSnapshotRepo(database, db.SQLite)
	m := NewManager(c, snapshots, nil)
	defer m.Close()
	ctx := context.Background()

	res := m.StartSession(ctx)
	require.NoError(t, res.Err)
	id := res.Session.ID

	require.NoError(t, m.SetStep(ctx, 4).Err)
	require.NoError(t, m.SetResultsReadyAt(ctx, time.Now().Add(domain.ResultsWait)).Err)

	saved, err := snapshots.Load(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, id, saved.ID)
	assert.Equal(t, 4, saved.CurrentStep)
	assert.NotNil(t, saved.ResultsReadyAt)

	fresh := NewManager(c, snapshots, nil)
	defer fresh.Close()
	require.NoError(t, fresh.Restore(ctx).Err)
	assert.Equal(t, id, fresh.Session().ID)

	require.NoError(t, m.Abort(ctx, "").Err)
	_, err = snapshots.Load(ctx, "local")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
