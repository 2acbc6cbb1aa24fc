package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/santelle/santelle/internal/domain"
)

// WaitLine renders one countdown row such as "pH result  [███░░] 60%  0:24".
func WaitLine(label string, endsAt *time.Time, wait time.Duration, now time.Time) string {
	if endsAt == nil {
		return fmt.Sprintf("%-16s %s", label, Dim("not started"))
	}
	remaining := endsAt.Sub(now)
	if remaining <= 0 {
		return fmt.Sprintf("%-16s %s %s", label, RenderProgress(1, 20), StyleGreen.Render("ready"))
	}
	pct := 1 - float64(remaining)/float64(wait)
	return fmt.Sprintf("%-16s %s %s", label, RenderProgress(pct, 20), StyleYellow.Render(Countdown(remaining)))
}

// FormatSession renders the cached session for `santelle session status`.
func FormatSession(s *domain.SessionSnapshot, now time.Time) string {
	if s == nil {
		return Dim("No test in progress. Run `santelle session start` to begin.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", StatusPill(s.Status), TruncID(s.ID))
	fmt.Fprintf(&b, "Step %d of %d  %s\n\n", s.CurrentStep, domain.TotalSteps, StepDots(s.CurrentStep, domain.TotalSteps))
	b.WriteString(WaitLine("pH result", s.PHResultReadyAt, domain.PHWait, now))
	b.WriteString("\n")
	b.WriteString(WaitLine("Other results", s.ResultsReadyAt, domain.ResultsWait, now))
	return RenderBox("Current test", b.String())
}

// FormatResults renders one status line per biomarker.
func FormatResults(l *domain.TestLog) string {
	if l == nil {
		return Dim("No results recorded.")
	}
	rows := make([][]string, 0, len(domain.Biomarkers))
	for _, in := range domain.Interpret(l) {
		rows = append(rows, []string{
			Bold(in.Biomarker.Label()),
			in.Value,
			ToneIndicator(in.Tone, in.Tag),
		})
	}
	out := RenderTable([]string{"MARKER", "RESULT", "STATUS"}, rows)
	if domain.IsolatedInflammation(l) {
		out += "\n" + StyleYellow.Render("Inflammation without other markers; consider retesting in a few days.") + "\n"
	}
	if l.Analysis != "" {
		out += "\n" + Dim(l.Analysis) + "\n"
	}
	return out
}

// FormatHistory renders concluded sessions newest first.
func FormatHistory(entries []domain.HistoryEntry, now time.Time) string {
	if len(entries) == 0 {
		return Dim("No past tests.")
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		when := e.Session.StartedAt
		if e.Session.CompletedAt != nil {
			when = *e.Session.CompletedAt
		}
		ph := Dim("--")
		if e.Log != nil && e.Log.PH != nil {
			tone, _ := domain.PHStatus(e.Log.PH)
			ph = ToneStyle(tone).Render(fmt.Sprintf("%.1f", *e.Log.PH))
		}
		rows = append(rows, []string{
			TruncID(e.Session.ID),
			HumanTimestamp(when, now),
			StatusPill(e.Session.Status),
			ph,
		})
	}
	return RenderTable([]string{"ID", "WHEN", "STATUS", "PH"}, rows)
}
