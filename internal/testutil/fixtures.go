package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/santelle/santelle/internal/domain"
)

var testEmailCounter atomic.Int64

// User options
type UserOption func(*domain.User)

func WithEmail(email string) UserOption {
	return func(u *domain.User) {
		u.Email = email
	}
}

func WithPasswordHash(hash string) UserOption {
	return func(u *domain.User) {
		u.PasswordHash = hash
	}
}

func NewTestUser(opts ...UserOption) *domain.User {
	n := testEmailCounter.Add(1)
	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        fmt.Sprintf("tester%02d@example.com", n),
		PasswordHash: "x",
		CreatedAt:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Session options
type SessionOption func(*domain.TestSession)

func WithStep(step int) SessionOption {
	return func(s *domain.TestSession) {
		s.CurrentStep = step
	}
}

func WithSessionStatus(status domain.SessionStatus) SessionOption {
	return func(s *domain.TestSession) {
		s.Status = status
		if status == domain.SessionCompleted {
			t := s.StartedAt.Add(15 * time.Minute)
			s.CompletedAt = &t
		}
	}
}

func WithStartedAt(t time.Time) SessionOption {
	return func(s *domain.TestSession) {
		s.StartedAt = domain.NormalizeTime(t)
		s.UpdatedAt = s.StartedAt
	}
}

func WithPHReadyAt(t time.Time) SessionOption {
	return func(s *domain.TestSession) {
		v := domain.NormalizeTime(t)
		s.PHResultReadyAt = &v
	}
}

func WithResultsReadyAt(t time.Time) SessionOption {
	return func(s *domain.TestSession) {
		v := domain.NormalizeTime(t)
		s.ResultsReadyAt = &v
	}
}

func NewTestSession(userID string, opts ...SessionOption) *domain.TestSession {
	s := domain.NewTestSession(uuid.New().String(), userID, time.Now())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log options
type LogOption func(*domain.TestLog)

func WithPH(ph float64) LogOption {
	return func(l *domain.TestLog) {
		l.PH = &ph
	}
}

func WithReading(b domain.Biomarker, r domain.Reading) LogOption {
	return func(l *domain.TestLog) {
		v := r
		switch b {
		case domain.BiomarkerH2O2:
			l.H2O2 = &v
		case domain.BiomarkerLE:
			l.LE = &v
		case domain.BiomarkerSNA:
			l.SNA = &v
		case domain.BiomarkerBetaG:
			l.BetaG = &v
		case domain.BiomarkerNAG:
			l.NAG = &v
		}
	}
}

func WithLogStatus(status domain.LogStatus) LogOption {
	return func(l *domain.TestLog) {
		l.Status = status
	}
}

func NewTestLog(sessionID, userID string, opts ...LogOption) *domain.TestLog {
	l := domain.NewTestLog(uuid.New().String(), sessionID, userID, time.Now())
	for _, opt := range opts {
		opt(l)
	}
	return l
}
