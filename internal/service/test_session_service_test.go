package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
)

func intPtr(v int) *int { return &v }

func TestTestSessionService_StartReturnsOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, first.Status)
	assert.Equal(t, domain.FirstStep, first.CurrentStep)

	second, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	open, err := f.sessions.GetOpen(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)
}

func TestTestSessionService_GetOpen_None(t *testing.T) {
	f := newFixture(t)

	_, err := f.sessions.GetOpen(context.Background(), f.userID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTestSessionService_PatchStepAndTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)

	anchor := f.clock.Now()
	ph := anchor.Add(domain.PHWait)
	results := anchor.Add(domain.ResultsWait)
	updated, err := f.sessions.Patch(ctx, f.userID, sess.ID, domain.SessionPatch{
		CurrentStep:     intPtr(4),
		PHResultReadyAt: &ph,
		ResultsReadyAt:  &results,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.CurrentStep)
	require.NotNil(t, updated.PHResultReadyAt)
	assert.True(t, updated.PHResultReadyAt.Equal(ph))

	// Same value again is an idempotent success.
	_, err = f.sessions.Patch(ctx, f.userID, sess.ID, domain.SessionPatch{ResultsReadyAt: &results})
	require.NoError(t, err)

	// A different value is rejected and nothing changes.
	later := results.Add(domain.PHWait)
	_, err = f.sessions.Patch(ctx, f.userID, sess.ID, domain.SessionPatch{
		CurrentStep:    intPtr(6),
		ResultsReadyAt: &later,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadySet)

	got, err := f.sessions.Get(ctx, f.userID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.CurrentStep)
	assert.True(t, got.ResultsReadyAt.Equal(results))
}

func TestTestSessionService_PatchRejectsInvalidStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)

	_, err = f.sessions.Patch(ctx, f.userID, sess.ID, domain.SessionPatch{CurrentStep: intPtr(8)})
	assert.ErrorIs(t, err, domain.ErrInvalidStep)
	_, err = f.sessions.Patch(ctx, f.userID, sess.ID, domain.SessionPatch{CurrentStep: intPtr(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidStep)
}

func TestTestSessionService_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)

	done, err := f.sessions.Complete(ctx, f.userID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	assert.ErrorIs(t, f.sessions.Abort(ctx, f.userID, sess.ID, "late"), domain.ErrSessionClosed)
	_, err = f.sessions.Complete(ctx, f.userID, sess.ID)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	_, err = f.sessions.Patch(ctx, f.userID, sess.ID, domain.SessionPatch{CurrentStep: intPtr(2)})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	_, err = f.sessions.GetOpen(ctx, f.userID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// A new session can start after the previous one concluded.
	next, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, next.ID)
}

func TestTestSessionService_Abort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Abort(ctx, f.userID, sess.ID, "spilled sample"))

	got, err := f.sessions.Get(ctx, f.userID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionAborted, got.Status)
	assert.Equal(t, "spilled sample", got.AbortReason)
	assert.Nil(t, got.CompletedAt)
}

func TestTestSessionService_OtherUsersSessionIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)

	_, err = f.sessions.Get(ctx, "intruder", sess.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.sessions.Patch(ctx, "intruder", sess.ID, domain.SessionPatch{CurrentStep: intPtr(2)})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, f.sessions.Abort(ctx, "intruder", sess.ID, ""), repository.ErrNotFound)
}

func TestTestSessionService_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)
	_, err = f.logs.Upsert(ctx, f.userID, first.ID, domain.PHPatch(4.4))
	require.NoError(t, err)
	_, err = f.sessions.Complete(ctx, f.userID, first.ID)
	require.NoError(t, err)

	f.clock.Advance(domain.ResultsWait)
	second, err := f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Abort(ctx, f.userID, second.ID, ""))

	f.clock.Advance(domain.ResultsWait)
	_, err = f.sessions.Start(ctx, f.userID)
	require.NoError(t, err)

	history, err := f.sessions.History(ctx, f.userID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].Session.ID)
	assert.Nil(t, history[0].Log)
	assert.Equal(t, first.ID, history[1].Session.ID)
	require.NotNil(t, history[1].Log)
	assert.InDelta(t, 4.4, *history[1].Log.PH, 0.0001)

	limited, err := f.sessions.History(ctx, f.userID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
