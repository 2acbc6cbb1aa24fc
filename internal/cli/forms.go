package cli

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/santelle/santelle/internal/cli/formatter"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/wizard"
)

// santelleHuhTheme returns a huh theme matching the formatter palette.
func santelleHuhTheme() *huh.Theme {
	t := huh.ThemeBase()

	// Focused state: orange accent
	t.Focused.Title = lipgloss.NewStyle().Foreground(formatter.ColorHeader).Bold(true)
	t.Focused.SelectSelector = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(formatter.ColorGreen)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(formatter.ColorFg)
	t.Focused.FocusedButton = lipgloss.NewStyle().Foreground(formatter.ColorFg).Background(formatter.ColorHeader).Padding(0, 1)
	t.Focused.BlurredButton = lipgloss.NewStyle().Foreground(formatter.ColorDim).Padding(0, 1)
	t.Focused.TextInput.Cursor = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.TextInput.Prompt = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.TextInput.Text = lipgloss.NewStyle().Foreground(formatter.ColorFg)
	t.Focused.TextInput.Placeholder = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Focused.Description = lipgloss.NewStyle().Foreground(formatter.ColorDim)

	// Blurred state: dimmed
	t.Blurred.Title = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.SelectSelector = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.SelectedOption = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.UnselectedOption = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.TextInput.Prompt = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.TextInput.Text = lipgloss.NewStyle().Foreground(formatter.ColorDim)

	return t
}

func themed(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).WithTheme(santelleHuhTheme()).WithShowHelp(false)
}

// confirmForm asks a yes/no question.
func confirmForm(title, affirmative, negative string, value *bool) *huh.Form {
	return themed(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Affirmative(affirmative).
			Negative(negative).
			Value(value),
	))
}

// step3Form is the explicit acknowledgement that unlocks the timed steps.
func step3Form(value *bool) *huh.Form {
	return confirmForm(wizard.ConfirmPrompt+"?", "Yes", "Not yet", value)
}

// abortForm confirms abandoning the test.
func abortForm(value *bool) *huh.Form {
	return confirmForm("Abandon this test? It cannot be resumed.", "Abandon", "Keep going", value)
}

// phForm selects the swatch matching the pH well.
func phForm(value *float64) *huh.Form {
	opts := make([]huh.Option[float64], 0, len(domain.PHOptions))
	for _, v := range domain.PHOptions {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%.1f", v), v))
	}
	return themed(huh.NewGroup(
		huh.NewSelect[float64]().
			Title("pH result").
			Description("Pick the swatch closest to the pH well colour").
			Options(opts...).
			Value(value),
	))
}

// readingsForm selects one reading per qualitative biomarker.
func readingsForm(values map[domain.Biomarker]*domain.Reading) *huh.Form {
	fields := make([]huh.Field, 0, len(domain.QualitativeBiomarkers))
	for _, b := range domain.QualitativeBiomarkers {
		readings := domain.ReadingsFor(b)
		opts := make([]huh.Option[domain.Reading], 0, len(readings))
		for _, r := range readings {
			opts = append(opts, huh.NewOption(string(r), r))
		}
		fields = append(fields, huh.NewSelect[domain.Reading]().
			Title(b.Label()).
			Options(opts...).
			Value(values[b]))
	}
	return themed(huh.NewGroup(fields...))
}
