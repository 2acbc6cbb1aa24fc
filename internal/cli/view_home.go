package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/santelle/santelle/internal/cache"
	"github.com/santelle/santelle/internal/cli/formatter"
)

// hydratedMsg signals that the home view's refresh from the store finished.
type hydratedMsg struct {
	res cache.Result
}

// startedMsg signals that a new session was created.
type startedMsg struct {
	res cache.Result
}

var homeKeys = struct {
	Start, History, Refresh key.Binding
}{
	Start:   key.NewBinding(key.WithKeys("enter", "s"), key.WithHelp("enter", "start/resume")),
	History: key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
}

// homeView is the landing screen: it offers to resume the open test or to
// start a new one.
type homeView struct {
	state    *SharedState
	loading  bool
	starting bool
	err      error
}

func newHomeView(state *SharedState) *homeView {
	return &homeView{state: state, loading: true}
}

func (v *homeView) ID() ViewID    { return ViewHome }
func (v *homeView) Title() string { return "" }

func (v *homeView) ShortHelp() []key.Binding {
	return []key.Binding{homeKeys.Start, homeKeys.History, homeKeys.Refresh}
}

func (v *homeView) Init() tea.Cmd {
	return v.hydrate()
}

func (v *homeView) hydrate() tea.Cmd {
	v.loading = true
	app, ctx := v.state.App, v.state.ctx()
	return func() tea.Msg {
		return hydratedMsg{res: app.Cache.HydrateFromServer(ctx)}
	}
}

func (v *homeView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case hydratedMsg:
		v.loading = false
		v.err = msg.res.Err
		return v, nil

	case startedMsg:
		v.starting = false
		if msg.res.Err != nil {
			v.err = msg.res.Err
			return v, nil
		}
		v.err = nil
		return v, pushView(newWizardView(v.state))

	case refreshViewMsg:
		return v, v.hydrate()

	case tea.KeyMsg:
		if v.loading || v.starting {
			return v, nil
		}
		switch {
		case key.Matches(msg, homeKeys.Start):
			return v, v.startOrResume()
		case key.Matches(msg, homeKeys.History):
			return v, pushView(newHistoryView(v.state))
		case key.Matches(msg, homeKeys.Refresh):
			return v, v.hydrate()
		}
	}
	return v, nil
}

func (v *homeView) startOrResume() tea.Cmd {
	if v.state.App.Cache.Session().IsActive() {
		return pushView(newWizardView(v.state))
	}
	v.starting = true
	v.err = nil
	app, ctx := v.state.App, v.state.ctx()
	return func() tea.Msg {
		return startedMsg{res: app.Cache.StartSession(ctx)}
	}
}

func (v *homeView) View() string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case v.loading:
		b.WriteString("  " + formatter.Dim("Loading...") + "\n")
		return b.String()
	case v.starting:
		b.WriteString("  " + formatter.Dim("Starting a new test...") + "\n")
		return b.String()
	}

	s := v.state.App.Cache.Session()
	if s.IsActive() {
		b.WriteString("  " + formatter.Bold("You have a test in progress.") + "\n\n")
		b.WriteString("  " + formatter.FormatSession(s, v.state.App.now()) + "\n\n")
		b.WriteString("  " + formatter.StyleGreen.Render("▸ ") +
			fmt.Sprintf("Press enter to resume at step %d.", s.CurrentStep) + "\n")
	} else {
		b.WriteString("  " + formatter.Bold("Ready when you are.") + "\n\n")
		b.WriteString("  " + formatter.Dim("The test takes about 15 minutes. Keep the kit and a timer nearby.") + "\n\n")
		b.WriteString("  " + formatter.StyleGreen.Render("▸ ") + "Press enter to start a new test.\n")
	}

	if v.err != nil {
		b.WriteString("\n  " + formatter.Error(v.err) + "\n")
	} else if text := v.state.App.Cache.State().ErrorText(); text != "" {
		b.WriteString("\n  " + formatter.StyleRed.Render(text) + "\n")
	}
	return b.String()
}
