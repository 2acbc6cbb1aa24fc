package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/santelle/santelle/internal/teatest"
)

// TestDriver wraps teatest.Driver with inspection of the appModel internals
// (view stack, shared state, the wizard view) the generic driver can't see.
type TestDriver struct {
	*teatest.Driver
}

// NewTestDriver creates a TestDriver from a test App.
// It constructs the appModel, sets terminal size, and drains Init()
// (which hydrates the cache synchronously via in-memory SQLite).
func NewTestDriver(t *testing.T, app *App) *TestDriver {
	t.Helper()

	m := newAppModel(context.Background(), app)
	d := teatest.New(t, m, teatest.WithSize(120, 40))
	d.DrainInit()

	return &TestDriver{Driver: d}
}

// ── High-level helpers ───────────────────────────────────────────────────────

// StartTest presses enter on the home view and expects the wizard.
func (d *TestDriver) StartTest() *wizardView {
	d.T.Helper()
	d.PressEnter()
	require.Equal(d.T, ViewWizard, d.ActiveViewID())
	return d.Wizard()
}

// Wizard returns the wizard view on top of the stack.
func (d *TestDriver) Wizard() *wizardView {
	d.T.Helper()
	v, ok := d.appModel().activeView().(*wizardView)
	require.True(d.T, ok, "active view is %v, not the wizard", d.ActiveViewID())
	return v
}

// ── Inspection ───────────────────────────────────────────────────────────────

func (d *TestDriver) appModel() *appModel {
	m := d.Model.(appModel)
	return &m
}

// ActiveViewID returns the ViewID of the top view on the stack.
func (d *TestDriver) ActiveViewID() ViewID {
	v := d.appModel().activeView()
	if v == nil {
		return ViewID(-1)
	}
	return v.ID()
}

// ViewStackIDs returns the ViewIDs of all views on the stack, bottom to top.
func (d *TestDriver) ViewStackIDs() []ViewID {
	m := d.appModel()
	ids := make([]ViewID, len(m.viewStack))
	for i, v := range m.viewStack {
		ids[i] = v.ID()
	}
	return ids
}

// State returns the shared state for inspection.
func (d *TestDriver) State() *SharedState {
	return d.appModel().state
}

// IsQuitting returns whether the app has signaled a quit.
func (d *TestDriver) IsQuitting() bool {
	return d.appModel().quitting || d.Quitting
}
