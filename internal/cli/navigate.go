package cli

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/santelle/santelle/internal/cache"
	"github.com/santelle/santelle/internal/notify"
)

// Navigation messages used by views to request view transitions.
// The appModel handles these in its Update method.

// pushViewMsg pushes a new view onto the navigation stack.
type pushViewMsg struct {
	view View
}

// popViewMsg pops the current view off the navigation stack.
type popViewMsg struct {
	notice string
}

// replaceViewMsg replaces the current top view with a new one.
type replaceViewMsg struct {
	view View
}

// refreshViewMsg asks every view on the stack to reload its data.
type refreshViewMsg struct{}

// formCompleteMsg is sent when a form completes or is cancelled.
// The appModel handles it atomically: pop the form view, then run nextCmd.
type formCompleteMsg struct {
	nextCmd tea.Cmd
}

// Background messages are delivered to every view on the stack, so a view
// hidden behind a form still sees its own operations finish.

// cacheChangedMsg signals that the session cache published a new state.
type cacheChangedMsg struct{}

// notificationMsg carries a delivered local notification.
type notificationMsg struct {
	n notify.Notification
}

// tickMsg advances the wizard clock once per second.
type tickMsg time.Time

// opDoneMsg carries the result of a session operation run off the event
// loop, together with the continuation to run on it.
type opDoneMsg struct {
	name string
	res  cache.Result
	done func(cache.Result)
}

func isBackground(msg tea.Msg) bool {
	switch msg.(type) {
	case cacheChangedMsg, notificationMsg, tickMsg, opDoneMsg, refreshViewMsg:
		return true
	}
	return false
}

// pushView returns a tea.Cmd that pushes a view onto the stack.
func pushView(v View) tea.Cmd {
	return func() tea.Msg { return pushViewMsg{view: v} }
}

// popView returns a tea.Cmd that pops the current view.
func popView(notice string) tea.Cmd {
	return func() tea.Msg { return popViewMsg{notice: notice} }
}

// replaceView returns a tea.Cmd that replaces the top view.
func replaceView(v View) tea.Cmd {
	return func() tea.Msg { return replaceViewMsg{view: v} }
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
