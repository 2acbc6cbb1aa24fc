// Package contract defines the JSON wire types shared by the API server and
// the HTTP session client.
package contract

import (
	"time"

	"github.com/santelle/santelle/internal/domain"
)

type Session struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Status          string     `json:"status"`
	CurrentStep     int        `json:"current_step"`
	StartedAt       time.Time  `json:"started_at"`
	PHResultReadyAt *time.Time `json:"ph_result_ready_at"`
	ResultsReadyAt  *time.Time `json:"results_ready_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	AbortReason     string     `json:"abort_reason,omitempty"`
}

func FromSession(s *domain.TestSession) Session {
	return Session{
		ID:              s.ID,
		UserID:          s.UserID,
		Status:          string(s.Status),
		CurrentStep:     s.CurrentStep,
		StartedAt:       s.StartedAt,
		PHResultReadyAt: s.PHResultReadyAt,
		ResultsReadyAt:  s.ResultsReadyAt,
		CompletedAt:     s.CompletedAt,
		AbortReason:     s.AbortReason,
	}
}

func (s Session) ToDomain() *domain.TestSession {
	return &domain.TestSession{
		ID:              s.ID,
		UserID:          s.UserID,
		Status:          domain.SessionStatus(s.Status),
		CurrentStep:     s.CurrentStep,
		StartedAt:       s.StartedAt,
		PHResultReadyAt: s.PHResultReadyAt,
		ResultsReadyAt:  s.ResultsReadyAt,
		CompletedAt:     s.CompletedAt,
		AbortReason:     s.AbortReason,
	}
}

// SessionPatch is the body of PATCH /sessions/{id}. Absent fields are left
// untouched.
type SessionPatch struct {
	CurrentStep     *int       `json:"current_step,omitempty"`
	PHResultReadyAt *time.Time `json:"ph_result_ready_at,omitempty"`
	ResultsReadyAt  *time.Time `json:"results_ready_at,omitempty"`
}

func (p SessionPatch) ToDomain() domain.SessionPatch {
	return domain.SessionPatch{
		CurrentStep:     p.CurrentStep,
		PHResultReadyAt: p.PHResultReadyAt,
		ResultsReadyAt:  p.ResultsReadyAt,
	}
}

type AbortRequest struct {
	Reason string `json:"reason,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}
