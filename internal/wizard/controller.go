// Package wizard drives the seven-step test procedure: paging, the two
// anchored countdowns and the gates on steps 4 and 7. It holds no
// terminal or network code; the session cache, notifications and the
// clock are injected.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/cache"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/notify"
)

var (
	// ErrWrongStep is returned when an action is issued on another step.
	ErrWrongStep = errors.New("action not available on this step")
	// ErrTimerRunning is returned when a reading is logged before its wait
	// is over.
	ErrTimerRunning = errors.New("timer still running")
)

// SessionPort is the part of the session cache the controller drives.
type SessionPort interface {
	Session() *domain.SessionSnapshot
	HydrateFromServer(ctx context.Context) cache.Result
	SetStep(ctx context.Context, step int) cache.Result
	SetPHResultReadyAt(ctx context.Context, at time.Time) cache.Result
	SetResultsReadyAt(ctx context.Context, at time.Time) cache.Result
	UpsertResults(ctx context.Context, patch domain.LogPatch) cache.Result
	Complete(ctx context.Context) cache.Result
	Abort(ctx context.Context, reason string) cache.Result
}

// Notifier arms and cancels the results-ready notification.
type Notifier interface {
	Schedule(at time.Time, c notify.Content) (string, error)
	Cancel(id string) bool
}

type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Dispatcher runs a session operation for the controller. done must be
// called on the goroutine that owns the controller.
type Dispatcher func(ctx context.Context, name string, op func(context.Context) cache.Result, done func(cache.Result))

// Inline runs op and done on the calling goroutine.
func Inline(ctx context.Context, name string, op func(context.Context) cache.Result, done func(cache.Result)) {
	done(op(ctx))
}

// Origin tags who caused a page move.
type Origin int

const (
	UserInitiated Origin = iota
	ControllerInitiated
)

func (o Origin) String() string {
	if o == ControllerInitiated {
		return "controller"
	}
	return "user"
}

// Correction reasons.
const (
	ReasonBelowMinimum     = "progress cannot go back past the resumed step"
	ReasonStep3Unconfirmed = "confirm step 3 first"
	ReasonResultsPending   = "results are not ready yet"
)

// Transition describes one settled page move.
type Transition struct {
	From      int
	To        int
	Page      int
	Origin    Origin
	Corrected bool
	Reason    string
}

// Timer is a countdown derived from its end time and the shared clock.
type Timer struct {
	EndsAt    *time.Time
	Duration  time.Duration
	Remaining time.Duration
	Running   bool
}

// Elapsed is the fraction of the wait already passed, in [0,1].
func (t Timer) Elapsed() float64 {
	if t.EndsAt == nil || t.Duration <= 0 {
		return 0
	}
	return 1 - float64(t.Remaining)/float64(t.Duration)
}

func newTimer(endsAt *time.Time, d time.Duration, now time.Time) Timer {
	t := Timer{EndsAt: endsAt, Duration: d}
	if endsAt == nil {
		return t
	}
	t.Remaining = Remaining(*endsAt, now)
	t.Running = t.Remaining > 0
	return t
}

// Remaining is max(0, endsAt - now).
func Remaining(endsAt, now time.Time) time.Duration {
	if d := endsAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Option configures a Controller.
type Option func(*Controller)

func WithDispatcher(d Dispatcher) Option {
	return func(c *Controller) { c.dispatch = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller is the wizard state machine. It is not safe for concurrent
// use; every method runs on the UI event loop.
type Controller struct {
	port     SessionPort
	notifier Notifier
	clock    Clock
	dispatch Dispatcher
	logger   *zap.Logger

	sessionID      string
	step           int
	minAllowed     int
	phEndsAt       *time.Time
	resultsEndsAt  *time.Time
	now            time.Time
	step3Confirmed bool
	resultsGate    bool
	notificationID string

	ph       *float64
	readings map[domain.Biomarker]domain.Reading

	finished bool
	aborted  bool
	err      error
}

func NewController(port SessionPort, notifier Notifier, clock Clock, opts ...Option) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	c := &Controller{
		port:     port,
		notifier: notifier,
		clock:    clock,
		dispatch: Inline,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reset()
	return c
}

func (c *Controller) reset() {
	c.sessionID = ""
	c.step = domain.FirstStep
	c.minAllowed = domain.FirstStep
	c.phEndsAt = nil
	c.resultsEndsAt = nil
	c.now = c.clock.Now()
	c.step3Confirmed = false
	c.resultsGate = false
	c.notificationID = ""
	c.ph = nil
	c.readings = make(map[domain.Biomarker]domain.Reading)
	c.finished = false
	c.aborted = false
	c.err = nil
}

func (c *Controller) Step() int              { return c.step }
func (c *Controller) Page() int              { return c.step - 1 }
func (c *Controller) MinAllowedStep() int    { return c.minAllowed }
func (c *Controller) Step3Confirmed() bool   { return c.step3Confirmed }
func (c *Controller) Now() time.Time         { return c.now }
func (c *Controller) Finished() bool         { return c.finished }
func (c *Controller) Aborted() bool          { return c.aborted }
func (c *Controller) NotificationID() string { return c.notificationID }

// Err returns the error of the last session operation, if it failed.
func (c *Controller) Err() error { return c.err }

// Card returns the catalog entry of the current step.
func (c *Controller) Card() Step { return StepAt(c.step) }

func (c *Controller) PH() Timer {
	return newTimer(c.phEndsAt, domain.PHWait, c.now)
}

func (c *Controller) Results() Timer {
	return newTimer(c.resultsEndsAt, domain.ResultsWait, c.now)
}

// PHValue returns the pH logged in this run, or nil.
func (c *Controller) PHValue() *float64 { return c.ph }

// Reading returns the reading logged in this run for b, if any.
func (c *Controller) Reading(b domain.Biomarker) (domain.Reading, bool) {
	r, ok := c.readings[b]
	return r, ok
}

// resultsOpen reports whether step 7 may be entered. The latch survives a
// clock that moves backwards.
func (c *Controller) resultsOpen() bool {
	return c.resultsGate || !c.Results().Running
}

// OnStepChanged settles a page move. Controller-initiated moves only commit
// the step. User-initiated moves are clamped and gated, and the first
// arrival at step 4 anchors both countdowns.
func (c *Controller) OnStepChanged(ctx context.Context, newStep int, origin Origin) Transition {
	from := c.step
	target := domain.ClampStep(newStep)

	if origin == ControllerInitiated {
		c.step = target
		return Transition{From: from, To: target, Page: target - 1, Origin: origin}
	}

	reason := ""
	switch {
	case target < c.minAllowed:
		target, reason = c.minAllowed, ReasonBelowMinimum
	case target >= domain.TimerStartStep && !c.step3Confirmed:
		target, reason = domain.ConfirmStep, ReasonStep3Unconfirmed
	case target >= domain.FinalReadStep && !c.resultsOpen():
		target, reason = max(domain.PHReadStep, c.minAllowed), ReasonResultsPending
	}
	if reason != "" {
		// The counter-scroll is a move of its own and carries no side effects.
		t := c.OnStepChanged(ctx, target, ControllerInitiated)
		t.From = from
		t.Corrected = true
		t.Reason = reason
		c.logger.Debug("step corrected",
			zap.Int("requested", newStep), zap.Int("settled", target), zap.String("reason", reason))
		return t
	}

	c.step = target
	if target == domain.TimerStartStep && (c.phEndsAt == nil || c.resultsEndsAt == nil) {
		c.anchorTimers()
	}
	c.persistProgress(ctx, target)
	return Transition{From: from, To: target, Page: target - 1, Origin: origin}
}

// anchorTimers fixes the missing end times relative to now and arms the
// results notification.
func (c *Controller) anchorTimers() {
	t := domain.NormalizeTime(c.clock.Now())
	c.now = t
	if c.phEndsAt == nil {
		v := t.Add(domain.PHWait)
		c.phEndsAt = &v
	}
	if c.resultsEndsAt == nil {
		v := t.Add(domain.ResultsWait)
		c.resultsEndsAt = &v
	}
	c.reschedule(*c.resultsEndsAt)
}

// persistProgress writes the step when it advances past the cached one, and
// every local end time the cached session lacks. The writes are independent:
// a failed step write does not hold back the anchors, and anchors lost to a
// failure are pushed again on the next move.
func (c *Controller) persistProgress(ctx context.Context, step int) {
	if c.port == nil {
		return
	}
	s := c.port.Session()
	if !s.IsActive() {
		return
	}

	var writes []func(context.Context) cache.Result
	if step > s.CurrentStep {
		writes = append(writes, func(ctx context.Context) cache.Result { return c.port.SetStep(ctx, step) })
	}
	if c.phEndsAt != nil && s.PHResultReadyAt == nil {
		at := *c.phEndsAt
		writes = append(writes, func(ctx context.Context) cache.Result { return c.port.SetPHResultReadyAt(ctx, at) })
	}
	if c.resultsEndsAt != nil && s.ResultsReadyAt == nil {
		at := *c.resultsEndsAt
		writes = append(writes, func(ctx context.Context) cache.Result { return c.port.SetResultsReadyAt(ctx, at) })
	}
	if len(writes) == 0 {
		return
	}

	c.run(ctx, "save progress", func(ctx context.Context) cache.Result {
		var out cache.Result
		for i, w := range writes {
			res := w(ctx)
			if i == 0 || (out.OK() && !res.OK()) {
				out = res
			}
		}
		return out
	}, nil)
}

func (c *Controller) Next(ctx context.Context) Transition {
	return c.OnStepChanged(ctx, c.step+1, UserInitiated)
}

func (c *Controller) Back(ctx context.Context) Transition {
	return c.OnStepChanged(ctx, c.step-1, UserInitiated)
}

func (c *Controller) GoToStep(ctx context.Context, step int) Transition {
	return c.OnStepChanged(ctx, step, UserInitiated)
}

// ConfirmStep3 latches the step 3 gate and, when on step 3, moves on.
func (c *Controller) ConfirmStep3(ctx context.Context) Transition {
	c.step3Confirmed = true
	if c.step != domain.ConfirmStep {
		return Transition{From: c.step, To: c.step, Page: c.Page(), Origin: UserInitiated}
	}
	return c.OnStepChanged(ctx, domain.TimerStartStep, UserInitiated)
}

// Tick advances the shared clock.
func (c *Controller) Tick(now time.Time) {
	c.now = now
	if c.resultsEndsAt != nil && !now.Before(*c.resultsEndsAt) {
		c.resultsGate = true
	}
}

// SkipResultsTimer ends the results wait immediately. The stored anchor is
// left as it is.
func (c *Controller) SkipResultsTimer(ctx context.Context) {
	now := c.clock.Now()
	c.now = now
	c.resultsEndsAt = &now
	c.resultsGate = true
	c.cancelNotification()
}

// Hydrate adopts remote session state. Local anchors win over remote ones,
// and the resumed step becomes the floor for paging.
func (c *Controller) Hydrate(s *domain.SessionSnapshot) Transition {
	if !s.IsActive() {
		return Transition{From: c.step, To: c.step, Page: c.Page(), Origin: ControllerInitiated}
	}
	if c.sessionID != "" && c.sessionID != s.ID {
		c.logger.Debug("session replaced", zap.String("previous", c.sessionID), zap.String("session_id", s.ID))
		c.cancelNotification()
		c.reset()
	}
	c.sessionID = s.ID
	c.now = c.clock.Now()

	if s.PHResultReadyAt != nil && c.phEndsAt == nil {
		t := *s.PHResultReadyAt
		c.phEndsAt = &t
	}
	if s.ResultsReadyAt != nil && c.resultsEndsAt == nil {
		t := *s.ResultsReadyAt
		c.resultsEndsAt = &t
	}
	if c.resultsEndsAt != nil && c.notificationID == "" && c.Results().Running {
		c.reschedule(*c.resultsEndsAt)
	}

	step := domain.ClampStep(s.CurrentStep)
	c.minAllowed = step
	if step >= domain.TimerStartStep {
		c.step3Confirmed = true
	}
	if step >= domain.FinalReadStep || (c.resultsEndsAt != nil && !c.Results().Running) {
		c.resultsGate = true
	}
	t := c.OnStepChanged(context.Background(), step, ControllerInitiated)
	c.persistProgress(context.Background(), step)
	return t
}

// Mount hydrates from the cache, fetching from the store when nothing is
// cached yet.
func (c *Controller) Mount(ctx context.Context) {
	if s := c.port.Session(); s != nil {
		c.Hydrate(s)
		return
	}
	c.run(ctx, "hydrate", c.port.HydrateFromServer, func(res cache.Result) {
		if res.OK() && res.Session != nil {
			c.Hydrate(res.Session)
		}
	})
}

// RecordPH logs the pH reading. It is accepted on step 5 once the pH wait
// is over.
func (c *Controller) RecordPH(ctx context.Context, value float64) error {
	if c.step != domain.PHReadStep {
		return fmt.Errorf("record pH on step %d: %w", c.step, ErrWrongStep)
	}
	if c.PH().Running {
		return fmt.Errorf("record pH: %w", ErrTimerRunning)
	}
	patch := domain.PHPatch(value)
	if err := patch.Validate(); err != nil {
		return err
	}
	c.ph = &value
	c.run(ctx, "record pH", func(ctx context.Context) cache.Result {
		return c.port.UpsertResults(ctx, patch)
	}, nil)
	return nil
}

// RecordReading logs one qualitative reading on step 7.
func (c *Controller) RecordReading(ctx context.Context, b domain.Biomarker, r domain.Reading) error {
	if c.step != domain.FinalReadStep {
		return fmt.Errorf("record %s on step %d: %w", b, c.step, ErrWrongStep)
	}
	patch := domain.ReadingPatch(b, r)
	if patch.IsEmpty() {
		return fmt.Errorf("record %s: %w", b, domain.ErrInvalidReading)
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	c.readings[b] = r
	c.run(ctx, "record reading", func(ctx context.Context) cache.Result {
		return c.port.UpsertResults(ctx, patch)
	}, nil)
	return nil
}

// Finish finalizes the log and completes the session.
func (c *Controller) Finish(ctx context.Context) error {
	if c.step != domain.FinalReadStep {
		return fmt.Errorf("finish on step %d: %w", c.step, ErrWrongStep)
	}
	c.cancelNotification()
	c.run(ctx, "finish", func(ctx context.Context) cache.Result {
		if res := c.port.UpsertResults(ctx, domain.FinalizePatch()); !res.OK() {
			return res
		}
		return c.port.Complete(ctx)
	}, func(res cache.Result) {
		c.finished = res.OK()
	})
	return nil
}

// Cancel aborts the session. Aborting is terminal; the controller resets
// once the store confirms.
func (c *Controller) Cancel(ctx context.Context, reason string) {
	c.cancelNotification()
	c.run(ctx, "abort", func(ctx context.Context) cache.Result {
		return c.port.Abort(ctx, reason)
	}, func(res cache.Result) {
		if res.OK() {
			c.reset()
			c.aborted = true
			return
		}
		if c.resultsEndsAt != nil && Remaining(*c.resultsEndsAt, c.clock.Now()) > 0 {
			c.reschedule(*c.resultsEndsAt)
		}
	})
}

func (c *Controller) run(ctx context.Context, name string, op func(context.Context) cache.Result, done func(cache.Result)) {
	c.dispatch(ctx, name, op, func(res cache.Result) {
		if res.Discarded {
			return
		}
		c.err = res.Err
		if res.Err != nil {
			c.logger.Warn("session operation failed", zap.String("op", name), zap.Error(res.Err))
		}
		if done != nil {
			done(res)
		}
	})
}

// reschedule replaces any armed notification with one at at. Scheduling
// failures are logged and otherwise ignored.
func (c *Controller) reschedule(at time.Time) {
	if c.notifier == nil {
		return
	}
	c.cancelNotification()
	id, err := c.notifier.Schedule(at, notify.ResultsReady)
	if err != nil {
		c.logger.Warn("results notification not scheduled", zap.Time("at", at), zap.Error(err))
		return
	}
	c.notificationID = id
}

func (c *Controller) cancelNotification() {
	if c.notifier == nil || c.notificationID == "" {
		return
	}
	c.notifier.Cancel(c.notificationID)
	c.notificationID = ""
}
