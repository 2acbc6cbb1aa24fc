package wizard

import "github.com/santelle/santelle/internal/domain"

// TimerKind names the countdown shown on a step card.
type TimerKind int

const (
	NoTimer TimerKind = iota
	PHTimer
	ResultsTimer
)

// Action is what a step card asks of the user besides paging.
type Action int

const (
	NoAction Action = iota
	ActionConfirm
	ActionLogPH
	ActionLogReadings
)

// Step is one card of the procedure.
type Step struct {
	Number       int
	Title        string
	Instructions []string
	Timer        TimerKind
	Action       Action
}

// ConfirmPrompt is the explicit acknowledgement required on step 3.
const ConfirmPrompt = "I've added 1 drop to each well"

// Steps is the kit procedure, indexed by page.
var Steps = []Step{
	{
		Number: 1,
		Title:  "Collect your sample",
		Instructions: []string{
			"Insert the swab gently about 5 cm into your vagina",
			"Rotate the swab slowly and evenly against the vaginal wall for 10-15 seconds",
			"Make sure vaginal secretions are visible on the swab",
			"Remove the swab and do not touch it to any surface",
		},
	},
	{
		Number: 2,
		Title:  "Prepare your solution",
		Instructions: []string{
			"Insert the swab into the sample tube (purple) containing diluent",
			"Swish it around for 10 seconds",
			"Squeeze the tube walls for a few seconds to extract the sample",
		},
	},
	{
		Number: 3,
		Title:  "Add your solution to the wells",
		Instructions: []string{
			"Discard the swab",
			"Tighten the sample tube cap",
			"Remove the dropper cap",
			"Add 1 drop of the solution to each reaction well",
		},
		Action: ActionConfirm,
	},
	{
		Number: 4,
		Title:  "Add reagent to the SNA well",
		Instructions: []string{
			"Use the pasteur dropper to add 1 drop of reagent (blue cap) to the SNA well ONLY",
		},
	},
	{
		Number:       5,
		Title:        "Wait for the pH result",
		Instructions: []string{"Log your pH results"},
		Timer:        PHTimer,
		Action:       ActionLogPH,
	},
	{
		Number: 6,
		Title:  "Wait for the rest of the results",
		Instructions: []string{
			"Add 1 drop of stop solution (grey cap) to the NAG well",
			"Note: Disregard all results past 15 minutes",
		},
		Timer: ResultsTimer,
	},
	{
		Number:       7,
		Title:        "Log Final Results",
		Instructions: []string{"Log your final test results"},
		Action:       ActionLogReadings,
	},
}

// StepAt returns the card for a 1-based step number, clamped to the procedure.
func StepAt(n int) Step {
	return Steps[domain.ClampStep(n)-1]
}
