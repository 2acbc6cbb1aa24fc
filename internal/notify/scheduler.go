// Package notify schedules local notifications at absolute times.
package notify

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInPast is returned for trigger times that have already passed.
	ErrInPast = errors.New("notification time is in the past")
	// ErrInvalidTime is returned for a zero trigger time.
	ErrInvalidTime = errors.New("invalid notification time")
)

// Content is what the user sees when a notification fires.
type Content struct {
	Title string
	Body  string
}

// ResultsReady is shown when the results wait is over.
var ResultsReady = Content{
	Title: "Time to read your results",
	Body:  "Your 10-minute wait is done.",
}

// Notification is a scheduled or delivered notification.
type Notification struct {
	ID string
	At time.Time
	Content
}

// Deliverer presents a notification to the user.
type Deliverer interface {
	Deliver(n Notification)
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(Notification)

func (f DelivererFunc) Deliver(n Notification) { f(n) }

type pending struct {
	n     Notification
	timer *time.Timer
}

// Scheduler arms in-process timers. It is safe for concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*pending
	deliver Deliverer
	logger  *zap.Logger
	now     func() time.Time
	closed  bool
}

func NewScheduler(d Deliverer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		pending: make(map[string]*pending),
		deliver: d,
		logger:  logger.Named("notify"),
		now:     time.Now,
	}
}

// Schedule arms a notification for at and returns its id.
func (s *Scheduler) Schedule(at time.Time, c Content) (string, error) {
	if at.IsZero() {
		return "", ErrInvalidTime
	}
	delay := at.Sub(s.now())
	if delay <= 0 {
		return "", fmt.Errorf("%s: %w", at.Format(time.RFC3339), ErrInPast)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("notify: scheduler closed")
	}

	id := uuid.New().String()
	p := &pending{n: Notification{ID: id, At: at, Content: c}}
	p.timer = time.AfterFunc(delay, func() { s.fire(id) })
	s.pending[id] = p
	s.logger.Debug("scheduled", zap.String("id", id), zap.Time("at", at))
	return id, nil
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.logger.Info("delivering", zap.String("id", id), zap.String("title", p.n.Title))
	if s.deliver != nil {
		s.deliver.Deliver(p.n)
	}
}

// Cancel disarms a notification. It reports whether one was pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, id)
	return true
}

// Pending lists armed notifications, soonest first.
func (s *Scheduler) Pending() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Close disarms everything; later Schedule calls fail.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.closed = true
}
