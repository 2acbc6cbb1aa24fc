package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/notify"
	"github.com/santelle/santelle/internal/wizard"
)

func TestTUI_HomeOffersNewTest(t *testing.T) {
	app, _ := testApp(t)
	d := NewTestDriver(t, app)

	assert.Equal(t, []ViewID{ViewHome}, d.ViewStackIDs())
	assert.Contains(t, d.View(), "start a new test")
}

func TestTUI_HomeOffersResume(t *testing.T) {
	app, _ := testApp(t)
	_, err := executeCmd(t, app, "session", "start")
	require.NoError(t, err)
	_, err = executeCmd(t, app, "session", "step", "2")
	require.NoError(t, err)

	d := NewTestDriver(t, app)
	assert.Contains(t, d.View(), "resume at step 2")

	w := d.StartTest()
	assert.Equal(t, 2, w.ctrl.Step())
	assert.Equal(t, 2, w.ctrl.MinAllowedStep())
}

func TestTUI_StartCreatesSessionAndPages(t *testing.T) {
	app, _ := testApp(t)
	d := NewTestDriver(t, app)

	w := d.StartTest()
	require.NotNil(t, storedSession(t, app))
	assert.Contains(t, d.View(), "Collect your sample")

	d.PressRight()
	assert.Equal(t, 2, w.ctrl.Step())
	assert.Equal(t, 2, storedSession(t, app).CurrentStep)

	d.PressKey('l')
	assert.Equal(t, 3, w.ctrl.Step())

	d.PressLeft()
	assert.Equal(t, 2, w.ctrl.Step())
	assert.Equal(t, 3, storedSession(t, app).CurrentStep, "moving back does not rewind the store")
}

func TestTUI_Step3GateAndConfirmation(t *testing.T) {
	app, clock := testApp(t)
	d := NewTestDriver(t, app)
	w := d.StartTest()

	d.PressKey('3')
	require.Equal(t, 3, w.ctrl.Step())

	d.PressRight()
	assert.Equal(t, 3, w.ctrl.Step())
	assert.Contains(t, d.View(), "Confirm step 3 first")

	d.PressKey('c')
	require.Equal(t, ViewForm, d.ActiveViewID())
	d.PressEsc()
	require.Equal(t, ViewWizard, d.ActiveViewID())
	assert.False(t, w.ctrl.Step3Confirmed(), "a dismissed form confirms nothing")

	d.Drain(w.applyStep3(true))
	assert.Equal(t, 4, w.ctrl.Step())

	s := storedSession(t, app)
	assert.Equal(t, 4, s.CurrentStep)
	require.NotNil(t, s.PHResultReadyAt)
	assert.True(t, s.PHResultReadyAt.Equal(domain.NormalizeTime(clock.Now()).Add(domain.PHWait)))
}

func TestTUI_PHEntryWaitsForTimer(t *testing.T) {
	app, clock := testApp(t)
	d := NewTestDriver(t, app)
	w := d.StartTest()
	d.PressKey('3')
	d.Drain(w.applyStep3(true))
	d.PressRight()
	require.Equal(t, domain.PHReadStep, w.ctrl.Step())

	d.PressKey('r')
	assert.Equal(t, ViewWizard, d.ActiveViewID(), "no form while the pH wait runs")
	assert.Contains(t, d.View(), "timer still running")

	clock.Advance(domain.PHWait)
	d.Send(tickMsg(clock.Now()))
	assert.Contains(t, d.View(), "pH result ready")

	d.PressKey('r')
	require.Equal(t, ViewForm, d.ActiveViewID())
	d.PressEsc()

	d.Drain(w.applyPH(4.4))
	log, err := app.Client.GetLog(context.Background(), storedSession(t, app).ID)
	require.NoError(t, err)
	require.NotNil(t, log.PH)
	assert.InDelta(t, 4.4, *log.PH, 1e-9)
	assert.Contains(t, d.View(), "Logged pH 4.4")
}

func TestTUI_ResultsGateAndSkip(t *testing.T) {
	app, _ := testApp(t)
	d := NewTestDriver(t, app)
	w := d.StartTest()
	d.PressKey('3')
	d.Drain(w.applyStep3(true))

	d.PressKey('7')
	assert.Equal(t, domain.PHReadStep, w.ctrl.Step())
	assert.Contains(t, d.View(), "Results are not ready yet")

	d.PressKey('6')
	require.Equal(t, 6, w.ctrl.Step())
	d.PressKey('s')
	d.PressRight()
	assert.Equal(t, domain.FinalReadStep, w.ctrl.Step())
}

func TestTUI_FinishShowsResults(t *testing.T) {
	app, clock := testApp(t)
	d := NewTestDriver(t, app)
	w := d.StartTest()
	id := storedSession(t, app).ID

	d.PressKey('3')
	d.Drain(w.applyStep3(true))
	clock.Advance(domain.ResultsWait)
	d.Send(tickMsg(clock.Now()))
	d.PressRight()
	d.Drain(w.applyPH(4.4))
	d.PressKey('7')
	require.Equal(t, domain.FinalReadStep, w.ctrl.Step())

	le := domain.ReadingPositive
	neg := domain.ReadingNegative
	d.Drain(w.applyReadings(map[domain.Biomarker]*domain.Reading{
		domain.BiomarkerH2O2:  &neg,
		domain.BiomarkerLE:    &le,
		domain.BiomarkerSNA:   &neg,
		domain.BiomarkerBetaG: &neg,
		domain.BiomarkerNAG:   &neg,
	}))
	assert.Contains(t, d.View(), "LE")

	d.PressKey('f')
	require.Equal(t, ViewResults, d.ActiveViewID())
	assert.Equal(t, []ViewID{ViewHome, ViewResults}, d.ViewStackIDs())
	assert.Contains(t, d.View(), "YOUR RESULTS")
	assert.Contains(t, d.View(), "4.4")

	log, err := app.Client.GetLog(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.LogFinalized, log.Status)
	assert.Nil(t, storedSession(t, app))

	d.PressEnter()
	assert.Equal(t, []ViewID{ViewHome}, d.ViewStackIDs())
	assert.Contains(t, d.View(), "start a new test")
}

func TestTUI_AbandonReturnsHome(t *testing.T) {
	app, _ := testApp(t)
	d := NewTestDriver(t, app)
	w := d.StartTest()

	d.PressKey('x')
	require.Equal(t, ViewForm, d.ActiveViewID())
	d.PressEsc()
	require.NotNil(t, storedSession(t, app), "dismissing the form keeps the test")

	d.Drain(w.applyAbandon(true))
	assert.Equal(t, []ViewID{ViewHome}, d.ViewStackIDs())
	assert.Equal(t, "Test abandoned.", d.State().Notice)
	assert.Nil(t, storedSession(t, app))
	assert.Contains(t, d.View(), "start a new test")
}

func TestTUI_EscReturnsHomeAndResumes(t *testing.T) {
	app, _ := testApp(t)
	d := NewTestDriver(t, app)
	w := d.StartTest()
	d.PressRight()
	require.Equal(t, 2, w.ctrl.Step())

	d.PressEsc()
	assert.Equal(t, []ViewID{ViewHome}, d.ViewStackIDs())
	assert.Contains(t, d.View(), "resume at step 2")

	w = d.StartTest()
	assert.Equal(t, 2, w.ctrl.Step())
}

func TestTUI_SessionClosedElsewhere(t *testing.T) {
	app, _ := testApp(t)
	d := NewTestDriver(t, app)
	d.StartTest()

	require.NoError(t, app.Client.Abort(context.Background(), storedSession(t, app).ID, ""))
	res := app.Cache.HydrateFromServer(context.Background())
	require.NoError(t, res.Err)
	d.Send(cacheChangedMsg{})

	assert.Equal(t, []ViewID{ViewHome}, d.ViewStackIDs())
	assert.Equal(t, "This test was closed on another device.", d.State().Notice)
}

func TestTUI_NotificationBanner(t *testing.T) {
	app, _ := testApp(t)
	d := NewTestDriver(t, app)

	d.Send(notificationMsg{n: notify.Notification{ID: "n1", Content: notify.Content{Title: "Your results are ready"}}})
	assert.Contains(t, d.View(), "Your results are ready")

	d.PressKey('r')
	assert.Empty(t, d.State().Notice, "any key dismisses the banner")
}

func TestTUI_HistoryListsPastTests(t *testing.T) {
	app, _ := testApp(t)
	_, err := executeCmd(t, app, "session", "start")
	require.NoError(t, err)
	_, err = executeCmd(t, app, "session", "abort")
	require.NoError(t, err)

	_, err = executeCmd(t, app, "session", "start")
	require.NoError(t, err)
	_, err = executeCmd(t, app, "session", "abort")
	require.NoError(t, err)

	d := NewTestDriver(t, app)
	d.PressKey('h')
	require.Equal(t, ViewHistory, d.ActiveViewID())
	assert.Contains(t, d.View(), "Aborted")

	h, ok := d.appModel().activeView().(*historyView)
	require.True(t, ok)
	require.Len(t, h.entries, 2)
	d.PressDown()
	assert.Equal(t, 1, h.cursor)
	d.PressDown()
	assert.Equal(t, 1, h.cursor, "cursor stops at the last entry")
	d.PressUp()
	assert.Equal(t, 0, h.cursor)

	d.PressEnter()
	assert.Equal(t, ViewHistory, d.ActiveViewID(), "entries without results do not open")

	d.PressEsc()
	assert.Equal(t, ViewHome, d.ActiveViewID())
}

func TestTUI_QuitKeys(t *testing.T) {
	app, _ := testApp(t)
	d := NewTestDriver(t, app)

	d.PressKey('q')
	assert.True(t, d.IsQuitting())
}

func TestWizardView_ShortHelpFollowsStep(t *testing.T) {
	app, _ := testApp(t)
	d := NewTestDriver(t, app)
	w := d.StartTest()

	keys := func() []string {
		var out []string
		for _, b := range w.ShortHelp() {
			out = append(out, b.Help().Desc)
		}
		return out
	}
	assert.NotContains(t, keys(), "confirm")

	d.PressKey('3')
	assert.Contains(t, keys(), "confirm")

	d.Drain(w.applyStep3(true))
	d.PressRight()
	assert.Contains(t, keys(), "record")
	assert.Equal(t, wizard.ActionLogPH, w.ctrl.Card().Action)
}
