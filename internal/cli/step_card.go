package cli

import (
	"fmt"
	"strings"

	"github.com/santelle/santelle/internal/cli/formatter"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/wizard"
)

// stepHeading renders "Step n of 7  ●●●○○○○" and the card title.
func stepHeading(ctrl *wizard.Controller) string {
	card := ctrl.Card()
	return fmt.Sprintf("%s  %s\n%s",
		formatter.Dim(fmt.Sprintf("Step %d of %d", card.Number, domain.TotalSteps)),
		formatter.StepDots(card.Number, domain.TotalSteps),
		formatter.StyleHeader.Render(card.Title))
}

func stepInstructions(card wizard.Step) string {
	var b strings.Builder
	for i, line := range card.Instructions {
		fmt.Fprintf(&b, "  %s %s\n", formatter.Dim(fmt.Sprintf("%d.", i+1)), line)
	}
	return b.String()
}

// renderStepCard is the plain rendering used by one-shot commands.
func renderStepCard(ctrl *wizard.Controller) string {
	card := ctrl.Card()
	var b strings.Builder
	b.WriteString(stepHeading(ctrl))
	b.WriteString("\n\n")
	b.WriteString(stepInstructions(card))
	switch card.Timer {
	case wizard.PHTimer:
		t := ctrl.PH()
		b.WriteString("\n" + formatter.WaitLine("pH result", t.EndsAt, t.Duration, ctrl.Now()) + "\n")
	case wizard.ResultsTimer:
		t := ctrl.Results()
		b.WriteString("\n" + formatter.WaitLine("Other results", t.EndsAt, t.Duration, ctrl.Now()) + "\n")
	}
	if card.Action == wizard.ActionConfirm && !ctrl.Step3Confirmed() {
		b.WriteString("\n" + formatter.Dim("Pass --confirm once you have: "+wizard.ConfirmPrompt) + "\n")
	}
	return b.String()
}
