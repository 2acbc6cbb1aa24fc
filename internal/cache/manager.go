// Package cache holds the locally cached projection of the actor's open
// session and applies mutations to it optimistically.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/client"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
)

// ErrClosed is returned by operations issued after Close.
var ErrClosed = errors.New("session cache closed")

// Persister stores the cached projection between runs.
type Persister interface {
	Load(ctx context.Context, actor string) (*domain.SessionSnapshot, error)
	Save(ctx context.Context, actor string, s *domain.SessionSnapshot) error
	Delete(ctx context.Context, actor string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for HydratedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type subscriber struct {
	id int
	fn func(State)
}

// Manager owns the cached session and is safe for concurrent use.
// Subscribers are called outside the lock after every state change.
type Manager struct {
	client    client.Client
	persister Persister
	logger    *zap.Logger
	now       func() time.Time

	gen atomic.Uint64

	mu      sync.Mutex
	state   State
	applied map[MutationKind]uint64
	closed  bool
	subs    []subscriber
	nextSub int

	persistMu    sync.Mutex
	persistedGen uint64
}

func NewManager(c client.Client, p Persister, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		client:    c,
		persister: p,
		logger:    logger,
		now:       time.Now,
		applied:   make(map[MutationKind]uint64),
	}
	m.state.Mutations = make(map[MutationKind]Mutation)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a copy of the current cache state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Session returns a copy of the cached session, or nil.
func (m *Manager) Session() *domain.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Session.Clone()
}

// Subscribe registers fn and returns a function removing it.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Close drops every response still in flight and detaches subscribers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.gen.Add(1)
	m.subs = nil
}

// Restore seeds the cache from the persisted entry when nothing has been
// hydrated yet.
func (m *Manager) Restore(ctx context.Context) Result {
	if m.persister == nil {
		return Result{Session: m.Session()}
	}
	snap, err := m.persister.Load(ctx, m.client.Actor())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{Session: m.Session()}
		}
		m.logger.Warn("restore session cache", zap.Error(err))
		return Result{Session: m.Session(), Err: err}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{Err: ErrClosed}
	}
	if m.state.Session == nil && m.state.HydratedAt.IsZero() && snap.IsActive() {
		m.state.Session = snap.Clone()
	}
	out := m.state.Session.Clone()
	m.mu.Unlock()

	m.publish()
	return Result{Session: out}
}

// HydrateFromServer replaces the cache with the actor's open session. On
// failure the prior cache is kept and the error recorded.
func (m *Manager) HydrateFromServer(ctx context.Context) Result {
	gen, err := m.issueWhole(MutationHydrate, false)
	if err != nil {
		return Result{Session: m.Session(), Err: err}
	}
	s, err := m.client.FetchOpen(ctx)
	if err != nil {
		return m.fail(MutationHydrate, gen, nil, fmt.Errorf("hydrate session: %w", err))
	}
	var snap *domain.SessionSnapshot
	if s != nil && s.IsActive() {
		snap = s.Snapshot()
	}
	return m.confirm(ctx, MutationHydrate, gen, snap)
}

// StartSession creates a remote session, or adopts the open one, and seeds
// the cache with it.
func (m *Manager) StartSession(ctx context.Context) Result {
	gen, err := m.issueWhole(MutationStart, false)
	if err != nil {
		return Result{Session: m.Session(), Err: err}
	}
	s, err := m.client.CreateSession(ctx)
	if err != nil {
		return m.fail(MutationStart, gen, nil, fmt.Errorf("start session: %w", err))
	}
	return m.confirm(ctx, MutationStart, gen, s.Snapshot())
}

// SetStep writes the step optimistically.
func (m *Manager) SetStep(ctx context.Context, step int) Result {
	if !domain.ValidStep(step) {
		return m.reject(fmt.Errorf("set step %d: %w: %w", step, client.ErrInvalid, domain.ErrInvalidStep))
	}
	return m.mutateField(ctx, MutationStep,
		func(s *domain.SessionSnapshot) bool {
			s.CurrentStep = step
			return true
		},
		func(ctx context.Context, id string) (*domain.TestSession, error) {
			return m.client.SetStep(ctx, id, step)
		})
}

// SetPHResultReadyAt writes the pH ready time unless one is already cached.
func (m *Manager) SetPHResultReadyAt(ctx context.Context, at time.Time) Result {
	at = domain.NormalizeTime(at)
	return m.mutateField(ctx, MutationPHReadyAt,
		func(s *domain.SessionSnapshot) bool {
			if s.PHResultReadyAt != nil {
				return false
			}
			s.PHResultReadyAt = &at
			return true
		},
		func(ctx context.Context, id string) (*domain.TestSession, error) {
			return m.client.SetPHResultReadyAt(ctx, id, at)
		})
}

// SetResultsReadyAt writes the results ready time unless one is already cached.
func (m *Manager) SetResultsReadyAt(ctx context.Context, at time.Time) Result {
	at = domain.NormalizeTime(at)
	return m.mutateField(ctx, MutationResultsReadyAt,
		func(s *domain.SessionSnapshot) bool {
			if s.ResultsReadyAt != nil {
				return false
			}
			s.ResultsReadyAt = &at
			return true
		},
		func(ctx context.Context, id string) (*domain.TestSession, error) {
			return m.client.SetResultsReadyAt(ctx, id, at)
		})
}

// Complete concludes the session. The cache changes only on success.
func (m *Manager) Complete(ctx context.Context) Result {
	gen, err := m.issueWhole(MutationComplete, true)
	if err != nil {
		return m.reject(err)
	}
	id := m.sessionID()
	s, err := m.client.Complete(ctx, id)
	if err != nil {
		return m.fail(MutationComplete, gen, nil, fmt.Errorf("complete session: %w", err))
	}
	return m.confirm(ctx, MutationComplete, gen, s.Snapshot())
}

// Abort ends the session remotely and clears the cache and persisted entry.
// On failure the cache is kept.
func (m *Manager) Abort(ctx context.Context, reason string) Result {
	gen, err := m.issueWhole(MutationAbort, true)
	if err != nil {
		return m.reject(err)
	}
	if err := m.client.Abort(ctx, m.sessionID(), reason); err != nil {
		return m.fail(MutationAbort, gen, nil, fmt.Errorf("abort session: %w", err))
	}
	return m.confirm(ctx, MutationAbort, gen, nil)
}

// UpsertResults writes a partial biomarker patch to the session's log. The
// session projection is not touched.
func (m *Manager) UpsertResults(ctx context.Context, patch domain.LogPatch) Result {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{Err: ErrClosed}
	}
	if !m.state.Session.IsActive() {
		m.mu.Unlock()
		return m.reject(fmt.Errorf("upsert results: %w", ErrNoSession))
	}
	gen := m.gen.Add(1)
	id := m.state.Session.ID
	m.state.Mutations[MutationResults] = Mutation{
		Kind: MutationResults, Phase: Pending, Value: m.state.Session.Clone(), Generation: gen,
	}
	m.mu.Unlock()
	m.publish()

	log, err := m.client.UpsertResults(ctx, id, patch)

	m.mu.Lock()
	if m.closed || m.state.Mutations[MutationResults].Generation != gen {
		m.mu.Unlock()
		m.logger.Debug("discarding superseded response", zap.String("kind", string(MutationResults)), zap.Uint64("generation", gen))
		return Result{Log: log, Err: err, Discarded: true}
	}
	pending := m.state.Mutations[MutationResults]
	if err != nil {
		err = fmt.Errorf("upsert results: %w", err)
		m.state.Mutations[MutationResults] = Fail(pending, m.state.Session, err)
		m.state.Err = err
	} else {
		m.state.Mutations[MutationResults] = Reconcile(pending, m.state.Session)
		m.state.Err = nil
		m.applied[MutationResults] = gen
	}
	out := m.state.Session.Clone()
	m.mu.Unlock()
	m.publish()

	return Result{Session: out, Log: log, Err: err}
}

// ResetLocal clears the cache and its error without any remote call.
func (m *Manager) ResetLocal(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	gen := m.gen.Add(1)
	m.state = State{Mutations: make(map[MutationKind]Mutation)}
	m.applied = make(map[MutationKind]uint64)
	m.mu.Unlock()

	m.persist(ctx, gen, nil)
	m.publish()
}

func (m *Manager) sessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Session == nil {
		return ""
	}
	return m.state.Session.ID
}

// reject records err without issuing anything.
func (m *Manager) reject(err error) Result {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{Err: ErrClosed}
	}
	m.state.Err = err
	out := m.state.Session.Clone()
	m.mu.Unlock()
	m.publish()
	return Result{Session: out, Err: err}
}

// issueWhole stamps a snapshot-replacing operation and marks it pending.
func (m *Manager) issueWhole(kind MutationKind, needsSession bool) (uint64, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	if needsSession && !m.state.Session.IsActive() {
		m.mu.Unlock()
		return 0, fmt.Errorf("%s: %w", kind, ErrNoSession)
	}
	gen := m.gen.Add(1)
	m.state.Mutations[kind] = Mutation{
		Kind: kind, Phase: Pending, Value: m.state.Session.Clone(), Generation: gen,
	}
	m.state.Loading = true
	m.mu.Unlock()
	m.publish()
	return gen, nil
}

// mutateField applies a one-field change optimistically and then
// reconciles it with the server.
func (m *Manager) mutateField(
	ctx context.Context,
	kind MutationKind,
	apply func(*domain.SessionSnapshot) bool,
	call func(ctx context.Context, sessionID string) (*domain.TestSession, error),
) Result {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{Err: ErrClosed}
	}
	if !m.state.Session.IsActive() {
		m.mu.Unlock()
		return m.reject(fmt.Errorf("%s: %w", kind, ErrNoSession))
	}
	prev := m.state.Session.Clone()
	if !apply(m.state.Session) {
		m.mu.Unlock()
		return Result{Session: prev}
	}
	gen := m.gen.Add(1)
	m.state.Mutations[kind] = Mutation{
		Kind: kind, Phase: Pending, Value: m.state.Session.Clone(), Generation: gen,
	}
	id := m.state.Session.ID
	m.mu.Unlock()
	m.publish()

	s, err := call(ctx, id)
	if err != nil {
		err = fmt.Errorf("%s: %w", kind, err)
		res := m.fail(kind, gen, prev, err)
		if res.Discarded {
			return res
		}
		m.refresh(ctx, kind, gen, err)
		return Result{Session: m.Session(), Err: err}
	}
	return m.confirm(ctx, kind, gen, s.Snapshot())
}

// stale reports whether a response for (kind, gen) has been superseded.
// Caller holds m.mu.
func (m *Manager) stale(kind MutationKind, gen uint64) bool {
	mut := m.state.Mutations[kind]
	if m.closed || mut.Generation != gen {
		return true
	}
	if !kind.replacesSnapshot() {
		// Field responses only land on the session they were issued against.
		return !m.state.Session.IsActive() || mut.Value == nil || mut.Value.ID != m.state.Session.ID
	}
	for k, g := range m.applied {
		if k != MutationResults && g > gen {
			return true
		}
	}
	return false
}

// confirm applies the server's value for a successful operation.
func (m *Manager) confirm(ctx context.Context, kind MutationKind, gen uint64, server *domain.SessionSnapshot) Result {
	m.mu.Lock()
	if m.stale(kind, gen) {
		out := m.state.Session.Clone()
		m.mu.Unlock()
		m.logger.Debug("discarding superseded response", zap.String("kind", string(kind)), zap.Uint64("generation", gen))
		return Result{Session: out, Discarded: true}
	}
	m.state.Mutations[kind] = Reconcile(m.state.Mutations[kind], server)
	m.state.Session = m.merge(server)
	m.state.Err = nil
	m.applied[kind] = gen
	if kind.replacesSnapshot() {
		m.state.Loading = false
		m.state.HydratedAt = m.now()
		m.state.Revision = gen
	}
	out := m.state.Session.Clone()
	m.mu.Unlock()

	m.persist(ctx, gen, out)
	m.publish()
	return Result{Session: out}
}

// fail records err for (kind, gen). For field operations prev restores the
// optimistically written field.
func (m *Manager) fail(kind MutationKind, gen uint64, prev *domain.SessionSnapshot, err error) Result {
	m.mu.Lock()
	if m.stale(kind, gen) {
		out := m.state.Session.Clone()
		m.mu.Unlock()
		m.logger.Debug("discarding superseded failure", zap.String("kind", string(kind)), zap.Error(err))
		return Result{Session: out, Err: err, Discarded: true}
	}
	if prev != nil && m.state.Session != nil && m.state.Session.ID == prev.ID {
		copyField(kind, m.state.Session, prev)
	}
	m.state.Mutations[kind] = Fail(m.state.Mutations[kind], m.state.Session, err)
	m.state.Err = err
	if kind.replacesSnapshot() {
		m.state.Loading = false
	}
	out := m.state.Session.Clone()
	m.mu.Unlock()

	m.logger.Warn("session cache operation failed", zap.String("kind", string(kind)), zap.Error(err))
	m.publish()
	return Result{Session: out, Err: err}
}

// refresh re-reads the server after a rejected field write. The failed
// mutation then carries the re-read value and the original error stays
// visible.
func (m *Manager) refresh(ctx context.Context, kind MutationKind, gen uint64, cause error) {
	m.HydrateFromServer(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if mut := m.state.Mutations[kind]; mut.Generation == gen && mut.Phase == Failed {
		mut.Value = m.state.Session.Clone()
		m.state.Mutations[kind] = mut
	}
	m.state.Err = cause
	m.mu.Unlock()
	m.publish()
}

// merge returns server with every field that still has a pending write
// overlaid from the local copy. Caller holds m.mu.
func (m *Manager) merge(server *domain.SessionSnapshot) *domain.SessionSnapshot {
	next := server.Clone()
	local := m.state.Session
	if !next.IsActive() || local == nil || local.ID != next.ID {
		return next
	}
	for k, mut := range m.state.Mutations {
		if mut.Phase == Pending && !k.replacesSnapshot() {
			copyField(k, next, local)
		}
	}
	return next
}

func (m *Manager) persist(ctx context.Context, gen uint64, s *domain.SessionSnapshot) {
	if m.persister == nil {
		return
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if gen < m.persistedGen {
		return
	}
	m.persistedGen = gen

	ctx = context.WithoutCancel(ctx)
	actor := m.client.Actor()
	var err error
	if s.IsActive() {
		err = m.persister.Save(ctx, actor, s)
	} else {
		err = m.persister.Delete(ctx, actor)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		m.logger.Warn("persist session cache", zap.String("actor", actor), zap.Error(err))
	}
}

func (m *Manager) publish() {
	m.mu.Lock()
	st := m.state.clone()
	subs := make([]func(State), len(m.subs))
	for i, s := range m.subs {
		subs[i] = s.fn
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

func copyField(kind MutationKind, dst, src *domain.SessionSnapshot) {
	switch kind {
	case MutationStep:
		dst.CurrentStep = src.CurrentStep
	case MutationPHReadyAt:
		dst.PHResultReadyAt = cloneTime(src.PHResultReadyAt)
	case MutationResultsReadyAt:
		dst.ResultsReadyAt = cloneTime(src.ResultsReadyAt)
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
