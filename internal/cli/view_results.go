package cli

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/santelle/santelle/internal/cli/formatter"
	"github.com/santelle/santelle/internal/domain"
)

// logLoadedMsg carries a test log fetched for the results view.
type logLoadedMsg struct {
	sessionID string
	log       *domain.TestLog
	err       error
}

// resultsView shows the interpreted readings of one session.
type resultsView struct {
	state     *SharedState
	sessionID string
	log       *domain.TestLog
	loading   bool
	err       error
}

// newResultsView shows log, or fetches the session's log when log is nil.
func newResultsView(state *SharedState, sessionID string, log *domain.TestLog) *resultsView {
	return &resultsView{
		state:     state,
		sessionID: sessionID,
		log:       log,
		loading:   log == nil && sessionID != "",
	}
}

func (v *resultsView) ID() ViewID    { return ViewResults }
func (v *resultsView) Title() string { return "Results" }

func (v *resultsView) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "done")),
	}
}

func (v *resultsView) Init() tea.Cmd {
	if !v.loading {
		return nil
	}
	app, ctx, id := v.state.App, v.state.ctx(), v.sessionID
	return func() tea.Msg {
		log, err := app.Client.GetLog(ctx, id)
		return logLoadedMsg{sessionID: id, log: log, err: err}
	}
}

func (v *resultsView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case logLoadedMsg:
		if msg.sessionID != v.sessionID {
			return v, nil
		}
		v.loading = false
		v.log, v.err = msg.log, msg.err
		return v, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyEnter {
			return v, popView("")
		}
	}
	return v, nil
}

func (v *resultsView) View() string {
	var b strings.Builder
	b.WriteString("\n")
	switch {
	case v.loading:
		b.WriteString("  " + formatter.Dim("Loading results...") + "\n")
	case v.err != nil:
		b.WriteString("  " + formatter.Error(v.err) + "\n")
	default:
		b.WriteString(formatter.RenderBox("Your results", formatter.FormatResults(v.log)))
		b.WriteString("\n\n  " + formatter.Dim("These results are informational and are not a diagnosis.") + "\n")
	}
	return b.String()
}
