package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/santelle/santelle/internal/client"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
)

// fakeClient is an in-memory session store. Calls to an operation listed in
// fail return that error; an operation listed in gates blocks until the
// channel is closed.
type fakeClient struct {
	mu      sync.Mutex
	actor   string
	session *domain.TestSession
	log     *domain.TestLog
	fail    map[string]error
	gates   map[string]chan struct{}
	calls   map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		actor: "u1",
		fail:  map[string]error{},
		gates: map[string]chan struct{}{},
		calls: map[string]int{},
	}
}

func (f *fakeClient) seed(step int) *domain.TestSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := domain.NewTestSession(uuid.NewString(), f.actor, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	s.CurrentStep = step
	f.session = s
	return s
}

func (f *fakeClient) setFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

func (f *fakeClient) gate(op string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[op] = ch
	return ch
}

func (f *fakeClient) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeClient) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	ch := f.gates[op]
	delete(f.gates, op)
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *fakeClient) current(id string) (*domain.TestSession, error) {
	if f.session == nil || f.session.ID != id {
		return nil, client.ErrNotFound
	}
	return f.session, nil
}

func copySession(s *domain.TestSession) *domain.TestSession {
	c := *s
	return &c
}

func (f *fakeClient) Actor() string { return f.actor }

func (f *fakeClient) CreateSession(ctx context.Context) (*domain.TestSession, error) {
	if err := f.enter("create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil || !f.session.IsActive() {
		f.session = domain.NewTestSession(uuid.NewString(), f.actor, time.Now())
	}
	return copySession(f.session), nil
}

func (f *fakeClient) FetchOpen(ctx context.Context) (*domain.TestSession, error) {
	if err := f.enter("fetch"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil || !f.session.IsActive() {
		return nil, nil
	}
	return copySession(f.session), nil
}

func (f *fakeClient) patch(op, id string, p domain.SessionPatch) (*domain.TestSession, error) {
	if err := f.enter(op); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.current(id)
	if err != nil {
		return nil, err
	}
	if err := s.Apply(p, time.Now()); err != nil {
		return nil, err
	}
	return copySession(s), nil
}

func (f *fakeClient) SetStep(ctx context.Context, id string, step int) (*domain.TestSession, error) {
	return f.patch("step", id, domain.SessionPatch{CurrentStep: &step})
}

func (f *fakeClient) SetPHResultReadyAt(ctx context.Context, id string, at time.Time) (*domain.TestSession, error) {
	return f.patch("ph", id, domain.SessionPatch{PHResultReadyAt: &at})
}

func (f *fakeClient) SetResultsReadyAt(ctx context.Context, id string, at time.Time) (*domain.TestSession, error) {
	return f.patch("results", id, domain.SessionPatch{ResultsReadyAt: &at})
}

func (f *fakeClient) Complete(ctx context.Context, id string) (*domain.TestSession, error) {
	if err := f.enter("complete"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.current(id)
	if err != nil {
		return nil, err
	}
	if err := s.Complete(time.Now()); err != nil {
		return nil, err
	}
	return copySession(s), nil
}

func (f *fakeClient) Abort(ctx context.Context, id, reason string) error {
	if err := f.enter("abort"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.current(id)
	if err != nil {
		return err
	}
	return s.Abort(reason, time.Now())
}

func (f *fakeClient) UpsertResults(ctx context.Context, id string, patch domain.LogPatch) (*domain.TestLog, error) {
	if err := f.enter("upsert"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.current(id); err != nil {
		return nil, err
	}
	if f.log == nil {
		f.log = domain.NewTestLog(uuid.NewString(), id, f.actor, time.Now())
	}
	if err := f.log.Apply(patch, time.Now()); err != nil {
		return nil, err
	}
	c := *f.log
	return &c, nil
}

func (f *fakeClient) GetLog(ctx context.Context, id string) (*domain.TestLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.log == nil || f.log.SessionID != id {
		return nil, nil
	}
	c := *f.log
	return &c, nil
}

func (f *fakeClient) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

// memPersister is a map-backed Persister.
type memPersister struct {
	mu      sync.Mutex
	entries map[string]*domain.SessionSnapshot
	deletes int
}

func newMemPersister() *memPersister {
	return &memPersister{entries: map[string]*domain.SessionSnapshot{}}
}

func (p *memPersister) Load(ctx context.Context, actor string) (*domain.SessionSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.entries[actor]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

func (p *memPersister) Save(ctx context.Context, actor string, s *domain.SessionSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[actor] = s.Clone()
	return nil
}

func (p *memPersister) Delete(ctx context.Context, actor string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes++
	delete(p.entries, actor)
	return nil
}

func (p *memPersister) get(actor string) *domain.SessionSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[actor].Clone()
}
