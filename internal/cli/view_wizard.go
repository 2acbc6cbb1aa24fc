package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/santelle/santelle/internal/cache"
	"github.com/santelle/santelle/internal/cli/formatter"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/wizard"
)

var wizardKeys = struct {
	Next, Back, Confirm, Log, Skip, Finish, Abort key.Binding
}{
	Next:    key.NewBinding(key.WithKeys("right", "l", "enter"), key.WithHelp("→", "next")),
	Back:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "back")),
	Confirm: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "confirm")),
	Log:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "record")),
	Skip:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip wait")),
	Finish:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "finish")),
	Abort:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "abandon")),
}

// wizardView is the thin TUI adapter over wizard.Controller. Session
// operations are queued by the controller's dispatcher and run as tea.Cmds;
// their continuations come back as opDoneMsg on the event loop.
type wizardView struct {
	state *SharedState
	ctrl  *wizard.Controller

	pending  []tea.Cmd
	inFlight int

	// Cache revision and session last handed to the controller.
	revision  uint64
	sessionID string

	last    wizard.Transition
	formErr error
	bar     progress.Model
}

func newWizardView(state *SharedState) *wizardView {
	v := &wizardView{state: state}
	app := state.App
	v.ctrl = wizard.NewController(app.Cache, app.Notifier, app.Clock,
		wizard.WithDispatcher(v.dispatch),
		wizard.WithLogger(app.logger().Named("wizard")),
	)
	v.bar = progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	v.bar.Width = 40
	return v
}

func (v *wizardView) ID() ViewID    { return ViewWizard }
func (v *wizardView) Title() string { return "Test" }

func (v *wizardView) ShortHelp() []key.Binding {
	hints := []key.Binding{wizardKeys.Back, wizardKeys.Next}
	switch v.ctrl.Card().Action {
	case wizard.ActionConfirm:
		if !v.ctrl.Step3Confirmed() {
			hints = append(hints, wizardKeys.Confirm)
		}
	case wizard.ActionLogPH:
		hints = append(hints, wizardKeys.Log)
	case wizard.ActionLogReadings:
		hints = append(hints, wizardKeys.Log, wizardKeys.Finish)
	}
	if v.ctrl.Card().Timer == wizard.ResultsTimer && v.ctrl.Results().Running {
		hints = append(hints, wizardKeys.Skip)
	}
	return append(hints, wizardKeys.Abort)
}

// dispatch is the controller's wizard.Dispatcher.
func (v *wizardView) dispatch(ctx context.Context, name string, op func(context.Context) cache.Result, done func(cache.Result)) {
	v.inFlight++
	v.pending = append(v.pending, func() tea.Msg {
		return opDoneMsg{name: name, res: op(ctx), done: done}
	})
}

// flush hands the queued operations to the runtime.
func (v *wizardView) flush() tea.Cmd {
	cmds := v.pending
	v.pending = nil
	return tea.Batch(cmds...)
}

func (v *wizardView) Init() tea.Cmd {
	v.ctrl.Mount(v.state.ctx())
	v.mark()
	return tea.Batch(v.flush(), tick())
}

// mark records the cache revision the controller has seen.
func (v *wizardView) mark() {
	st := v.state.App.Cache.State()
	v.revision = st.Revision
	v.sessionID = ""
	if st.Session != nil {
		v.sessionID = st.Session.ID
	}
}

// sync re-hydrates the controller when the cache replaced its snapshot.
// Field confirmations do not bump the revision, so in-flight writes never
// move the page backwards. Nothing is adopted while operations are running;
// the last one to finish syncs.
func (v *wizardView) sync() tea.Cmd {
	if v.inFlight > 0 {
		return nil
	}
	st := v.state.App.Cache.State()
	id := ""
	if st.Session != nil {
		id = st.Session.ID
	}
	if st.Revision == v.revision && id == v.sessionID {
		return nil
	}
	hadSession := v.sessionID != ""
	v.revision, v.sessionID = st.Revision, id

	switch {
	case st.Session.IsActive():
		v.ctrl.Hydrate(st.Session)
		return v.flush()
	case hadSession && !v.ctrl.Finished() && !v.ctrl.Aborted():
		return popView("This test was closed on another device.")
	}
	return nil
}

func (v *wizardView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ctx := v.state.ctx()

	switch msg := msg.(type) {
	case tickMsg:
		v.ctrl.Tick(time.Time(msg))
		return v, tick()

	case cacheChangedMsg:
		return v, v.sync()

	case opDoneMsg:
		v.inFlight = max(v.inFlight-1, 0)
		if msg.done != nil {
			msg.done(msg.res)
		}
		switch {
		case v.ctrl.Finished():
			return v, replaceView(newResultsView(v.state, v.sessionID, nil))
		case v.ctrl.Aborted():
			v.mark()
			return v, popView("Test abandoned.")
		}
		return v, tea.Batch(v.sync(), v.flush())

	case tea.KeyMsg:
		v.formErr = nil
		switch {
		case key.Matches(msg, wizardKeys.Next):
			v.last = v.ctrl.Next(ctx)
		case key.Matches(msg, wizardKeys.Back):
			v.last = v.ctrl.Back(ctx)
		case key.Matches(msg, wizardKeys.Confirm):
			return v, v.confirmStep3()
		case key.Matches(msg, wizardKeys.Log):
			return v, v.record()
		case key.Matches(msg, wizardKeys.Skip):
			if v.ctrl.Card().Timer == wizard.ResultsTimer {
				v.ctrl.SkipResultsTimer(ctx)
			}
		case key.Matches(msg, wizardKeys.Finish):
			v.formErr = v.ctrl.Finish(ctx)
		case key.Matches(msg, wizardKeys.Abort):
			return v, v.abandon()
		default:
			if s := msg.String(); len(s) == 1 && s[0] >= '1' && s[0] <= '7' {
				v.last = v.ctrl.GoToStep(ctx, int(s[0]-'0'))
			}
		}
		return v, v.flush()
	}
	return v, nil
}

func (v *wizardView) confirmStep3() tea.Cmd {
	if v.ctrl.Card().Action != wizard.ActionConfirm {
		return nil
	}
	confirmed := false
	return startFormCmd(v.state, "Confirm", step3Form(&confirmed), func() tea.Cmd {
		return v.applyStep3(confirmed)
	})
}

func (v *wizardView) applyStep3(confirmed bool) tea.Cmd {
	if !confirmed {
		return nil
	}
	v.last = v.ctrl.ConfirmStep3(v.state.ctx())
	return v.flush()
}

func (v *wizardView) record() tea.Cmd {
	switch v.ctrl.Card().Action {
	case wizard.ActionLogPH:
		if v.ctrl.PH().Running {
			v.formErr = fmt.Errorf("pH result in %s: %w", formatter.Countdown(v.ctrl.PH().Remaining), wizard.ErrTimerRunning)
			return nil
		}
		value := domain.PHOptions[len(domain.PHOptions)/2]
		if p := v.ctrl.PHValue(); p != nil {
			value = *p
		}
		return startFormCmd(v.state, "pH", phForm(&value), func() tea.Cmd {
			return v.applyPH(value)
		})
	case wizard.ActionLogReadings:
		values := make(map[domain.Biomarker]*domain.Reading, len(domain.QualitativeBiomarkers))
		for _, b := range domain.QualitativeBiomarkers {
			r := domain.ReadingNegative
			if prev, ok := v.ctrl.Reading(b); ok {
				r = prev
			}
			values[b] = &r
		}
		return startFormCmd(v.state, "Readings", readingsForm(values), func() tea.Cmd {
			return v.applyReadings(values)
		})
	}
	return nil
}

func (v *wizardView) applyPH(value float64) tea.Cmd {
	v.formErr = v.ctrl.RecordPH(v.state.ctx(), value)
	return v.flush()
}

func (v *wizardView) applyReadings(values map[domain.Biomarker]*domain.Reading) tea.Cmd {
	ctx := v.state.ctx()
	for _, b := range domain.QualitativeBiomarkers {
		r := values[b]
		if r == nil {
			continue
		}
		if err := v.ctrl.RecordReading(ctx, b, *r); err != nil {
			v.formErr = err
			break
		}
	}
	return v.flush()
}

func (v *wizardView) abandon() tea.Cmd {
	ok := false
	return startFormCmd(v.state, "Abandon", abortForm(&ok), func() tea.Cmd {
		return v.applyAbandon(ok)
	})
}

func (v *wizardView) applyAbandon(confirmed bool) tea.Cmd {
	if !confirmed {
		return nil
	}
	v.ctrl.Cancel(v.state.ctx(), "abandoned from the app")
	return v.flush()
}

// ── rendering ───────────────────────────────────────────────────────────────

func (v *wizardView) View() string {
	card := v.ctrl.Card()
	var b strings.Builder

	b.WriteString(stepHeading(v.ctrl))
	b.WriteString("\n\n")
	b.WriteString(stepInstructions(card))

	switch card.Timer {
	case wizard.PHTimer:
		b.WriteString("\n" + v.renderTimer("pH result", v.ctrl.PH()) + "\n")
		if p := v.ctrl.PHValue(); p != nil {
			tone, tag := domain.PHStatus(p)
			b.WriteString(fmt.Sprintf("\n  Logged pH %.1f  %s\n", *p, formatter.ToneIndicator(tone, tag)))
		}
	case wizard.ResultsTimer:
		b.WriteString("\n" + v.renderTimer("Other results", v.ctrl.Results()) + "\n")
	}

	switch card.Action {
	case wizard.ActionConfirm:
		if v.ctrl.Step3Confirmed() {
			b.WriteString("\n  " + formatter.StyleGreen.Render("✔ "+wizard.ConfirmPrompt) + "\n")
		} else {
			b.WriteString("\n  " + formatter.Dim("Press c once you have: "+wizard.ConfirmPrompt) + "\n")
		}
	case wizard.ActionLogReadings:
		b.WriteString("\n" + v.renderReadings())
	}

	if v.last.Corrected && v.last.Reason != "" {
		b.WriteString("\n  " + formatter.StyleYellow.Render(capitalize(v.last.Reason)) + "\n")
	}
	if err := v.errorLine(); err != "" {
		b.WriteString("\n  " + err + "\n")
	}
	return b.String()
}

func (v *wizardView) renderTimer(label string, t wizard.Timer) string {
	if t.EndsAt == nil {
		return "  " + formatter.Dim(label+": not started")
	}
	if !t.Running {
		return fmt.Sprintf("  %s %s", v.bar.ViewAs(1), formatter.StyleGreen.Render(label+" ready"))
	}
	return fmt.Sprintf("  %s %s  %s", v.bar.ViewAs(t.Elapsed()), label, formatter.StyleYellow.Render(formatter.Countdown(t.Remaining)))
}

func (v *wizardView) renderReadings() string {
	var b strings.Builder
	for _, bm := range domain.QualitativeBiomarkers {
		value := formatter.Dim("—")
		if r, ok := v.ctrl.Reading(bm); ok {
			tone, tag := domain.ReadingStatus(bm, &r, v.ctrl.PHValue())
			value = string(r) + "  " + formatter.ToneIndicator(tone, tag)
		}
		fmt.Fprintf(&b, "  %-6s %s\n", bm.Label(), value)
	}
	return b.String()
}

func (v *wizardView) errorLine() string {
	if v.formErr != nil {
		return formatter.Error(v.formErr)
	}
	if err := v.ctrl.Err(); err != nil {
		if errors.Is(err, cache.ErrClosed) {
			return ""
		}
		return formatter.Error(err)
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
