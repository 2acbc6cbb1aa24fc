package contract

import (
	"time"

	"github.com/santelle/santelle/internal/domain"
)

type Log struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	PH        *float64        `json:"ph"`
	H2O2      *domain.Reading `json:"h2o2"`
	LE        *domain.Reading `json:"le"`
	SNA       *domain.Reading `json:"sna"`
	BetaG     *domain.Reading `json:"beta_g"`
	NAG       *domain.Reading `json:"nag"`
	Status    string          `json:"status"`
	Analysis  string          `json:"analysis,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func FromLog(l *domain.TestLog) *Log {
	if l == nil {
		return nil
	}
	return &Log{
		ID:        l.ID,
		SessionID: l.SessionID,
		UserID:    l.UserID,
		PH:        l.PH,
		H2O2:      l.H2O2,
		LE:        l.LE,
		SNA:       l.SNA,
		BetaG:     l.BetaG,
		NAG:       l.NAG,
		Status:    string(l.Status),
		Analysis:  l.Analysis,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func (l *Log) ToDomain() *domain.TestLog {
	if l == nil {
		return nil
	}
	return &domain.TestLog{
		ID:        l.ID,
		SessionID: l.SessionID,
		UserID:    l.UserID,
		PH:        l.PH,
		H2O2:      l.H2O2,
		LE:        l.LE,
		SNA:       l.SNA,
		BetaG:     l.BetaG,
		NAG:       l.NAG,
		Status:    domain.LogStatus(l.Status),
		Analysis:  l.Analysis,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

type HistoryEntry struct {
	Session Session `json:"session"`
	Log     *Log    `json:"log"`
}

func FromHistory(entries []domain.HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntry{Session: FromSession(e.Session), Log: FromLog(e.Log)}
	}
	return out
}

func ToHistory(entries []HistoryEntry) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = domain.HistoryEntry{Session: e.Session.ToDomain(), Log: e.Log.ToDomain()}
	}
	return out
}
