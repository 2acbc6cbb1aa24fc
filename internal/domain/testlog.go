package domain

import (
	"fmt"
	"strings"
	"time"
)

// Biomarker identifies one measured indicator on the kit.
type Biomarker string

const (
	BiomarkerPH    Biomarker = "ph"
	BiomarkerH2O2  Biomarker = "h2o2"
	BiomarkerLE    Biomarker = "le"
	BiomarkerSNA   Biomarker = "sna"
	BiomarkerBetaG Biomarker = "beta_g"
	BiomarkerNAG   Biomarker = "nag"
)

// Biomarkers lists all indicators in display order.
var Biomarkers = []Biomarker{
	BiomarkerPH, BiomarkerH2O2, BiomarkerLE, BiomarkerSNA, BiomarkerBetaG, BiomarkerNAG,
}

// QualitativeBiomarkers are the indicators read at the final step.
var QualitativeBiomarkers = []Biomarker{
	BiomarkerH2O2, BiomarkerLE, BiomarkerSNA, BiomarkerBetaG, BiomarkerNAG,
}

// Label returns the name printed on the kit.
func (b Biomarker) Label() string {
	switch b {
	case BiomarkerPH:
		return "pH"
	case BiomarkerH2O2:
		return "H₂O₂"
	case BiomarkerLE:
		return "LE"
	case BiomarkerSNA:
		return "SNA"
	case BiomarkerBetaG:
		return "β-G"
	case BiomarkerNAG:
		return "NAG"
	default:
		return string(b)
	}
}

// ParseBiomarker accepts column names and kit labels, case-insensitively.
func ParseBiomarker(s string) (Biomarker, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ph":
		return BiomarkerPH, nil
	case "h2o2", "h₂o₂":
		return BiomarkerH2O2, nil
	case "le":
		return BiomarkerLE, nil
	case "sna":
		return BiomarkerSNA, nil
	case "beta_g", "betag", "β-g", "beta-g":
		return BiomarkerBetaG, nil
	case "nag":
		return BiomarkerNAG, nil
	}
	return "", fmt.Errorf("unknown biomarker %q", s)
}

// Reading is a qualitative result symbol.
type Reading string

const (
	ReadingNegative  Reading = "-"
	ReadingTrace     Reading = "±"
	ReadingPositive  Reading = "+"
	ReadingPositive2 Reading = "++"
	ReadingPositive3 Reading = "+++"
)

var (
	basicReadings = []Reading{ReadingPositive, ReadingTrace, ReadingNegative}
	leReadings    = []Reading{ReadingPositive3, ReadingPositive2, ReadingPositive, ReadingTrace, ReadingNegative}
)

// PHOptions are the swatches on the kit's pH colour guide.
var PHOptions = []float64{5.4, 4.8, 4.6, 4.4, 3.8}

const (
	minPH = 3.0
	maxPH = 8.0
)

// ReadingsFor returns the accepted readings for a qualitative biomarker,
// strongest first.
func ReadingsFor(b Biomarker) []Reading {
	switch b {
	case BiomarkerLE:
		return leReadings
	case BiomarkerH2O2, BiomarkerSNA, BiomarkerBetaG, BiomarkerNAG:
		return basicReadings
	default:
		return nil
	}
}

// Accepts reports whether r is a valid reading for b.
func (b Biomarker) Accepts(r Reading) bool {
	for _, v := range ReadingsFor(b) {
		if v == r {
			return true
		}
	}
	return false
}

// ParseReading normalizes common spellings of a result symbol.
func ParseReading(s string) (Reading, error) {
	v := strings.TrimSpace(strings.ReplaceAll(s, "−", "-"))
	switch strings.ToLower(v) {
	case "-", "neg", "negative":
		return ReadingNegative, nil
	case "±", "+/-", "+-", "trace":
		return ReadingTrace, nil
	case "+", "pos", "positive":
		return ReadingPositive, nil
	case "++":
		return ReadingPositive2, nil
	case "+++":
		return ReadingPositive3, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidReading)
}

// TestLog holds the readings recorded for one session.
type TestLog struct {
	ID        string
	SessionID string
	UserID    string
	PH        *float64
	H2O2      *Reading
	LE        *Reading
	SNA       *Reading
	BetaG     *Reading
	NAG       *Reading
	Status    LogStatus
	Analysis  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LogPatch is a partial write of log fields. Nil fields are left untouched.
type LogPatch struct {
	PH       *float64   `json:"ph,omitempty"`
	H2O2     *Reading   `json:"h2o2,omitempty"`
	LE       *Reading   `json:"le,omitempty"`
	SNA      *Reading   `json:"sna,omitempty"`
	BetaG    *Reading   `json:"beta_g,omitempty"`
	NAG      *Reading   `json:"nag,omitempty"`
	Analysis *string    `json:"analysis,omitempty"`
	Status   *LogStatus `json:"status,omitempty"`
}

// IsEmpty reports whether the patch carries no field.
func (p LogPatch) IsEmpty() bool {
	return p.PH == nil && p.H2O2 == nil && p.LE == nil && p.SNA == nil &&
		p.BetaG == nil && p.NAG == nil && p.Analysis == nil && p.Status == nil
}

// ReadingPatch builds a patch setting a single qualitative reading.
func ReadingPatch(b Biomarker, r Reading) LogPatch {
	var p LogPatch
	switch b {
	case BiomarkerH2O2:
		p.H2O2 = &r
	case BiomarkerLE:
		p.LE = &r
	case BiomarkerSNA:
		p.SNA = &r
	case BiomarkerBetaG:
		p.BetaG = &r
	case BiomarkerNAG:
		p.NAG = &r
	}
	return p
}

// PHPatch builds a patch setting the pH value.
func PHPatch(ph float64) LogPatch {
	return LogPatch{PH: &ph}
}

// FinalizePatch marks the log finalized.
func FinalizePatch() LogPatch {
	s := LogFinalized
	return LogPatch{Status: &s}
}

// NewTestLog returns an empty draft log for a session.
func NewTestLog(id, sessionID, userID string, now time.Time) *TestLog {
	now = NormalizeTime(now)
	return &TestLog{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		Status:    LogDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks every field of the patch without applying it.
func (p LogPatch) Validate() error {
	if p.PH != nil && (*p.PH < minPH || *p.PH > maxPH) {
		return fmt.Errorf("ph %.1f outside [%.1f, %.1f]: %w", *p.PH, minPH, maxPH, ErrInvalidReading)
	}
	checks := []struct {
		b Biomarker
		r *Reading
	}{
		{BiomarkerH2O2, p.H2O2}, {BiomarkerLE, p.LE}, {BiomarkerSNA, p.SNA},
		{BiomarkerBetaG, p.BetaG}, {BiomarkerNAG, p.NAG},
	}
	for _, c := range checks {
		if c.r != nil && !c.b.Accepts(*c.r) {
			return fmt.Errorf("%s %q: %w", c.b.Label(), *c.r, ErrInvalidReading)
		}
	}
	if p.Status != nil && *p.Status != LogDraft && *p.Status != LogFinalized {
		return fmt.Errorf("unknown log status %q", *p.Status)
	}
	return nil
}

// Apply validates and merges a patch. Finalized logs reject every patch.
func (l *TestLog) Apply(p LogPatch, now time.Time) error {
	if l.Status == LogFinalized {
		return fmt.Errorf("log %s: %w", l.ID, ErrLogFinalized)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.PH != nil {
		v := *p.PH
		l.PH = &v
	}
	l.H2O2 = mergeReading(l.H2O2, p.H2O2)
	l.LE = mergeReading(l.LE, p.LE)
	l.SNA = mergeReading(l.SNA, p.SNA)
	l.BetaG = mergeReading(l.BetaG, p.BetaG)
	l.NAG = mergeReading(l.NAG, p.NAG)
	if p.Analysis != nil {
		l.Analysis = *p.Analysis
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	l.UpdatedAt = NormalizeTime(now)
	return nil
}

// Reading returns the recorded qualitative reading for b, or nil.
func (l *TestLog) Reading(b Biomarker) *Reading {
	switch b {
	case BiomarkerH2O2:
		return l.H2O2
	case BiomarkerLE:
		return l.LE
	case BiomarkerSNA:
		return l.SNA
	case BiomarkerBetaG:
		return l.BetaG
	case BiomarkerNAG:
		return l.NAG
	default:
		return nil
	}
}

// Complete reports whether every biomarker has a value.
func (l *TestLog) Complete() bool {
	if l.PH == nil {
		return false
	}
	for _, b := range QualitativeBiomarkers {
		if l.Reading(b) == nil {
			return false
		}
	}
	return true
}

func mergeReading(current, next *Reading) *Reading {
	if next == nil {
		return current
	}
	v := *next
	return &v
}
