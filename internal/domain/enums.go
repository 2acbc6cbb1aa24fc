package domain

import "time"

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAborted    SessionStatus = "aborted"
)

// Terminal reports whether no further status transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// CanTransitionTo reports whether s may move to next. The only legal moves
// are in_progress -> completed and in_progress -> aborted.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s != SessionInProgress {
		return false
	}
	return next == SessionCompleted || next == SessionAborted
}

// ValidSessionStatuses is the canonical set of accepted status strings.
var ValidSessionStatuses = map[string]bool{
	"in_progress": true, "completed": true, "aborted": true,
}

type LogStatus string

const (
	LogDraft     LogStatus = "draft"
	LogFinalized LogStatus = "finalized"
)

// Procedure bounds.
const (
	FirstStep  = 1
	LastStep   = 7
	TotalSteps = LastStep - FirstStep + 1

	// ConfirmStep is the step whose completion must be confirmed explicitly
	// before the timed part of the procedure can start.
	ConfirmStep = 3
	// TimerStartStep anchors both countdowns on first arrival.
	TimerStartStep = 4
	// PHReadStep is where the pH reading is logged.
	PHReadStep = 5
	// FinalReadStep is where the remaining readings are logged; it is
	// gated on the results countdown.
	FinalReadStep = 7
)

const (
	PHWait      = 60 * time.Second
	ResultsWait = 600 * time.Second
)

// ClampStep bounds step to [FirstStep, LastStep].
func ClampStep(step int) int {
	if step < FirstStep {
		return FirstStep
	}
	if step > LastStep {
		return LastStep
	}
	return step
}

// ValidStep reports whether step lies inside the procedure.
func ValidStep(step int) bool {
	return step >= FirstStep && step <= LastStep
}
