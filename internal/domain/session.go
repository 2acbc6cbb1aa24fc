package domain

import (
	"fmt"
	"time"
)

// TestSession is one run of the guided test procedure.
type TestSession struct {
	ID              string
	UserID          string
	Status          SessionStatus
	CurrentStep     int
	StartedAt       time.Time
	PHResultReadyAt *time.Time
	ResultsReadyAt  *time.Time
	CompletedAt     *time.Time
	AbortReason     string
	UpdatedAt       time.Time
}

// SessionPatch is a partial update of the mutable session fields.
// Nil fields are left untouched.
type SessionPatch struct {
	CurrentStep     *int
	PHResultReadyAt *time.Time
	ResultsReadyAt  *time.Time
}

// IsEmpty reports whether the patch carries no field.
func (p SessionPatch) IsEmpty() bool {
	return p.CurrentStep == nil && p.PHResultReadyAt == nil && p.ResultsReadyAt == nil
}

// NewTestSession returns an in-progress session at the first step.
func NewTestSession(id, userID string, now time.Time) *TestSession {
	now = NormalizeTime(now)
	return &TestSession{
		ID:          id,
		UserID:      userID,
		Status:      SessionInProgress,
		CurrentStep: FirstStep,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// IsActive reports whether the session is the user's running session.
func (s *TestSession) IsActive() bool {
	return s.Status == SessionInProgress
}

// Apply validates and applies patch. Either every field is applied or none is.
func (s *TestSession) Apply(p SessionPatch, now time.Time) error {
	if !s.IsActive() {
		return fmt.Errorf("session %s is %s: %w", s.ID, s.Status, ErrSessionClosed)
	}
	if p.CurrentStep != nil && !ValidStep(*p.CurrentStep) {
		return fmt.Errorf("step %d: %w", *p.CurrentStep, ErrInvalidStep)
	}
	if p.PHResultReadyAt != nil && !setOnceAllowed(s.PHResultReadyAt, *p.PHResultReadyAt) {
		return fmt.Errorf("ph_result_ready_at: %w", ErrAlreadySet)
	}
	if p.ResultsReadyAt != nil && !setOnceAllowed(s.ResultsReadyAt, *p.ResultsReadyAt) {
		return fmt.Errorf("results_ready_at: %w", ErrAlreadySet)
	}

	if p.CurrentStep != nil {
		s.CurrentStep = *p.CurrentStep
	}
	if p.PHResultReadyAt != nil && s.PHResultReadyAt == nil {
		t := NormalizeTime(*p.PHResultReadyAt)
		s.PHResultReadyAt = &t
	}
	if p.ResultsReadyAt != nil && s.ResultsReadyAt == nil {
		t := NormalizeTime(*p.ResultsReadyAt)
		s.ResultsReadyAt = &t
	}
	s.UpdatedAt = NormalizeTime(now)
	return nil
}

// Complete moves the session to completed and stamps CompletedAt.
func (s *TestSession) Complete(now time.Time) error {
	if !s.Status.CanTransitionTo(SessionCompleted) {
		return fmt.Errorf("complete session %s (%s): %w", s.ID, s.Status, ErrSessionClosed)
	}
	now = NormalizeTime(now)
	s.Status = SessionCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Abort moves the session to aborted.
func (s *TestSession) Abort(reason string, now time.Time) error {
	if !s.Status.CanTransitionTo(SessionAborted) {
		return fmt.Errorf("abort session %s (%s): %w", s.ID, s.Status, ErrSessionClosed)
	}
	s.Status = SessionAborted
	s.AbortReason = reason
	s.UpdatedAt = NormalizeTime(now)
	return nil
}

// Snapshot projects the session onto the fields the UI caches locally.
func (s *TestSession) Snapshot() *SessionSnapshot {
	return &SessionSnapshot{
		ID:              s.ID,
		CurrentStep:     s.CurrentStep,
		Status:          s.Status,
		PHResultReadyAt: cloneTime(s.PHResultReadyAt),
		ResultsReadyAt:  cloneTime(s.ResultsReadyAt),
	}
}

// SessionSnapshot is the locally cached projection of a TestSession.
type SessionSnapshot struct {
	ID              string        `json:"id"`
	CurrentStep     int           `json:"current_step"`
	Status          SessionStatus `json:"status"`
	PHResultReadyAt *time.Time    `json:"ph_result_ready_at"`
	ResultsReadyAt  *time.Time    `json:"results_ready_at"`
}

// IsActive reports whether the snapshot describes a running session.
func (s *SessionSnapshot) IsActive() bool {
	return s != nil && s.Status == SessionInProgress
}

// Clone returns a deep copy. A nil receiver yields nil.
func (s *SessionSnapshot) Clone() *SessionSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.PHResultReadyAt = cloneTime(s.PHResultReadyAt)
	c.ResultsReadyAt = cloneTime(s.ResultsReadyAt)
	return &c
}

// Equal compares two snapshots field by field.
func (s *SessionSnapshot) Equal(o *SessionSnapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.ID == o.ID &&
		s.CurrentStep == o.CurrentStep &&
		s.Status == o.Status &&
		timePtrEqual(s.PHResultReadyAt, o.PHResultReadyAt) &&
		timePtrEqual(s.ResultsReadyAt, o.ResultsReadyAt)
}

// HistoryEntry pairs a concluded session with its test log, if any.
type HistoryEntry struct {
	Session *TestSession
	Log     *TestLog
}

// NormalizeTime converts t to the precision and zone used for storage.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func setOnceAllowed(current *time.Time, next time.Time) bool {
	return current == nil || current.Equal(NormalizeTime(next))
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
