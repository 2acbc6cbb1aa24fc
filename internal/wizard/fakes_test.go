package wizard

import (
	"context"
	"fmt"
	"time"

	"github.com/santelle/santelle/internal/cache"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/notify"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakePort stands in for the session cache. server is what a hydration
// returns; session is the cached value.
type fakePort struct {
	session *domain.SessionSnapshot
	server  *domain.SessionSnapshot
	fail    map[string]error
	calls   []string
	patches []domain.LogPatch
}

func newFakePort(s *domain.SessionSnapshot) *fakePort {
	return &fakePort{session: s.Clone(), server: s.Clone(), fail: map[string]error{}}
}

func activeSnapshot(id string, step int) *domain.SessionSnapshot {
	return &domain.SessionSnapshot{ID: id, CurrentStep: step, Status: domain.SessionInProgress}
}

func (p *fakePort) count(op string) int {
	n := 0
	for _, c := range p.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (p *fakePort) result(op string) (cache.Result, bool) {
	p.calls = append(p.calls, op)
	if err := p.fail[op]; err != nil {
		// A failed write re-reads the store.
		p.session = p.server.Clone()
		return cache.Result{Session: p.session.Clone(), Err: fmt.Errorf("%s: %w", op, err)}, false
	}
	return cache.Result{}, true
}

func (p *fakePort) Session() *domain.SessionSnapshot { return p.session.Clone() }

func (p *fakePort) HydrateFromServer(ctx context.Context) cache.Result {
	if res, ok := p.result("hydrate"); !ok {
		return res
	}
	p.session = p.server.Clone()
	return cache.Result{Session: p.session.Clone()}
}

func (p *fakePort) SetStep(ctx context.Context, step int) cache.Result {
	if res, ok := p.result("step"); !ok {
		return res
	}
	p.session.CurrentStep = step
	p.server = p.session.Clone()
	return cache.Result{Session: p.session.Clone()}
}

func (p *fakePort) SetPHResultReadyAt(ctx context.Context, at time.Time) cache.Result {
	if res, ok := p.result("ph"); !ok {
		return res
	}
	if p.session.PHResultReadyAt == nil {
		p.session.PHResultReadyAt = &at
	}
	p.server = p.session.Clone()
	return cache.Result{Session: p.session.Clone()}
}

func (p *fakePort) SetResultsReadyAt(ctx context.Context, at time.Time) cache.Result {
	if res, ok := p.result("results"); !ok {
		return res
	}
	if p.session.ResultsReadyAt == nil {
		p.session.ResultsReadyAt = &at
	}
	p.server = p.session.Clone()
	return cache.Result{Session: p.session.Clone()}
}

func (p *fakePort) UpsertResults(ctx context.Context, patch domain.LogPatch) cache.Result {
	if res, ok := p.result("upsert"); !ok {
		return res
	}
	p.patches = append(p.patches, patch)
	return cache.Result{Session: p.session.Clone(), Log: &domain.TestLog{SessionID: p.session.ID}}
}

func (p *fakePort) Complete(ctx context.Context) cache.Result {
	if res, ok := p.result("complete"); !ok {
		return res
	}
	p.session.Status = domain.SessionCompleted
	p.server = nil
	return cache.Result{Session: p.session.Clone()}
}

func (p *fakePort) Abort(ctx context.Context, reason string) cache.Result {
	if res, ok := p.result("abort"); !ok {
		return res
	}
	p.session = nil
	p.server = nil
	return cache.Result{}
}

type scheduled struct {
	id string
	at time.Time
}

type fakeNotifier struct {
	now       func() time.Time
	next      int
	active    map[string]time.Time
	scheduled []scheduled
	cancelled []string
}

func newFakeNotifier(clock *fakeClock) *fakeNotifier {
	return &fakeNotifier{now: clock.Now, active: map[string]time.Time{}}
}

func (n *fakeNotifier) Schedule(at time.Time, c notify.Content) (string, error) {
	if !at.After(n.now()) {
		return "", notify.ErrInPast
	}
	n.next++
	id := fmt.Sprintf("n%d", n.next)
	n.active[id] = at
	n.scheduled = append(n.scheduled, scheduled{id: id, at: at})
	return id, nil
}

func (n *fakeNotifier) Cancel(id string) bool {
	if _, ok := n.active[id]; !ok {
		return false
	}
	delete(n.active, id)
	n.cancelled = append(n.cancelled, id)
	return true
}
