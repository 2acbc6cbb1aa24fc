package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/santelle/santelle/internal/cli/formatter"
	"github.com/santelle/santelle/internal/domain"
)

const historyPageSize = 20

// historyLoadedMsg signals that past sessions have been loaded.
type historyLoadedMsg struct {
	entries []domain.HistoryEntry
	err     error
}

// historyView lists concluded sessions newest first.
type historyView struct {
	state   *SharedState
	entries []domain.HistoryEntry
	cursor  int
	loading bool
	err     error
}

func newHistoryView(state *SharedState) *historyView {
	return &historyView{state: state, loading: true}
}

func (v *historyView) ID() ViewID    { return ViewHistory }
func (v *historyView) Title() string { return "History" }

func (v *historyView) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "move")),
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "results")),
	}
}

func (v *historyView) Init() tea.Cmd {
	return v.load()
}

func (v *historyView) load() tea.Cmd {
	app, ctx := v.state.App, v.state.ctx()
	return func() tea.Msg {
		entries, err := app.Client.History(ctx, historyPageSize)
		return historyLoadedMsg{entries: entries, err: err}
	}
}

func (v *historyView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		v.loading = false
		v.entries, v.err = msg.entries, msg.err
		if v.cursor >= len(v.entries) {
			v.cursor = max(len(v.entries)-1, 0)
		}
		return v, nil

	case refreshViewMsg:
		return v, v.load()

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if v.cursor > 0 {
				v.cursor--
			}
		case "down", "j":
			if v.cursor < len(v.entries)-1 {
				v.cursor++
			}
		case "enter":
			if v.cursor < len(v.entries) {
				e := v.entries[v.cursor]
				if e.Log == nil {
					return v, nil
				}
				return v, pushView(newResultsView(v.state, e.Session.ID, e.Log))
			}
		}
	}
	return v, nil
}

func (v *historyView) View() string {
	if v.loading {
		return "\n  " + formatter.Dim("Loading history...")
	}
	if v.err != nil {
		return "\n  " + formatter.Error(v.err)
	}
	if len(v.entries) == 0 {
		return "\n  " + formatter.Dim("No past tests.")
	}

	now := v.state.App.now()
	var b strings.Builder
	b.WriteString("\n")
	for i, e := range v.entries {
		cursor := "  "
		whenStyle := formatter.StyleFg
		if i == v.cursor {
			cursor = formatter.StyleGreen.Render("▸ ")
			whenStyle = formatter.StyleBold
		}
		when := e.Session.StartedAt
		if e.Session.CompletedAt != nil {
			when = *e.Session.CompletedAt
		}
		detail := formatter.Dim("no results")
		if e.Log != nil {
			detail = summarizeLog(e.Log)
		}
		b.WriteString(fmt.Sprintf("%s%-9s %s  %s  %s\n",
			cursor,
			formatter.StyleGreen.Render(formatter.TruncID(e.Session.ID)),
			whenStyle.Render(formatter.HumanTimestamp(when, now)),
			formatter.StatusPill(e.Session.Status),
			detail,
		))
	}
	return b.String()
}

// summarizeLog renders the pH value and the number of positive readings.
func summarizeLog(l *domain.TestLog) string {
	parts := []string{}
	if l.PH != nil {
		tone, _ := domain.PHStatus(l.PH)
		parts = append(parts, formatter.ToneStyle(tone).Render(fmt.Sprintf("pH %.1f", *l.PH)))
	}
	positive := 0
	for _, b := range domain.QualitativeBiomarkers {
		r := l.Reading(b)
		if r == nil {
			continue
		}
		switch *r {
		case domain.ReadingPositive, domain.ReadingPositive2, domain.ReadingPositive3:
			positive++
		}
	}
	if positive > 0 {
		parts = append(parts, formatter.StyleYellow.Render(fmt.Sprintf("%d positive", positive)))
	}
	if len(parts) == 0 {
		return formatter.Dim("not recorded")
	}
	return strings.Join(parts, "  ")
}
