package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func TestSessionStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		ok       bool
	}{
		{SessionInProgress, SessionCompleted, true},
		{SessionInProgress, SessionAborted, true},
		{SessionInProgress, SessionInProgress, false},
		{SessionCompleted, SessionAborted, false},
		{SessionCompleted, SessionInProgress, false},
		{SessionAborted, SessionCompleted, false},
		{SessionAborted, SessionInProgress, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTestSession_TerminalStatesRejectEverything(t *testing.T) {
	s := NewTestSession("s1", "u1", t0)
	require.NoError(t, s.Complete(t0.Add(time.Minute)))
	require.NotNil(t, s.CompletedAt)

	assert.ErrorIs(t, s.Complete(t0), ErrSessionClosed)
	assert.ErrorIs(t, s.Abort("late", t0), ErrSessionClosed)
	assert.ErrorIs(t, s.Apply(SessionPatch{CurrentStep: intPtr(2)}, t0), ErrSessionClosed)
	assert.Equal(t, SessionCompleted, s.Status)

	a := NewTestSession("s2", "u1", t0)
	require.NoError(t, a.Abort("spilled", t0))
	assert.Equal(t, "spilled", a.AbortReason)
	assert.ErrorIs(t, a.Complete(t0), ErrSessionClosed)
	assert.False(t, a.IsActive())
}

func TestTestSession_ApplyStepRange(t *testing.T) {
	s := NewTestSession("s1", "u1", t0)

	assert.ErrorIs(t, s.Apply(SessionPatch{CurrentStep: intPtr(0)}, t0), ErrInvalidStep)
	assert.ErrorIs(t, s.Apply(SessionPatch{CurrentStep: intPtr(8)}, t0), ErrInvalidStep)
	require.NoError(t, s.Apply(SessionPatch{CurrentStep: intPtr(7)}, t0))
	assert.Equal(t, 7, s.CurrentStep)
}

func TestTestSession_ReadyAtIsSetOnce(t *testing.T) {
	s := NewTestSession("s1", "u1", t0)
	first := t0.Add(PHWait)

	require.NoError(t, s.Apply(SessionPatch{PHResultReadyAt: &first}, t0))
	require.NotNil(t, s.PHResultReadyAt)

	// Re-sending the same instant is a no-op.
	same := first.Add(200 * time.Microsecond)
	require.NoError(t, s.Apply(SessionPatch{PHResultReadyAt: &same}, t0))
	assert.True(t, s.PHResultReadyAt.Equal(first))

	other := first.Add(time.Second)
	err := s.Apply(SessionPatch{PHResultReadyAt: &other, CurrentStep: intPtr(5)}, t0)
	assert.ErrorIs(t, err, ErrAlreadySet)
	assert.Equal(t, FirstStep, s.CurrentStep, "rejected patch must not partially apply")
	assert.True(t, s.PHResultReadyAt.Equal(first))
}

func TestSessionSnapshot_CloneAndEqual(t *testing.T) {
	s := NewTestSession("s1", "u1", t0)
	ready := t0.Add(ResultsWait)
	require.NoError(t, s.Apply(SessionPatch{ResultsReadyAt: &ready}, t0))

	snap := s.Snapshot()
	clone := snap.Clone()
	assert.True(t, snap.Equal(clone))

	*clone.ResultsReadyAt = clone.ResultsReadyAt.Add(time.Hour)
	assert.False(t, snap.Equal(clone))

	var empty *SessionSnapshot
	assert.Nil(t, empty.Clone())
	assert.True(t, empty.Equal(nil))
	assert.False(t, empty.IsActive())
}

func TestClampStep(t *testing.T) {
	assert.Equal(t, 1, ClampStep(-3))
	assert.Equal(t, 1, ClampStep(0))
	assert.Equal(t, 4, ClampStep(4))
	assert.Equal(t, 7, ClampStep(12))
}
