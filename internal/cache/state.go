package cache

import (
	"errors"
	"time"

	"github.com/santelle/santelle/internal/domain"
)

// ErrNoSession is returned by mutations issued while no active session is
// cached.
var ErrNoSession = errors.New("no active session")

// MutationKind names a remote-issuing cache operation.
type MutationKind string

const (
	MutationHydrate        MutationKind = "hydrate"
	MutationStart          MutationKind = "start"
	MutationStep           MutationKind = "step"
	MutationPHReadyAt      MutationKind = "ph_result_ready_at"
	MutationResultsReadyAt MutationKind = "results_ready_at"
	MutationComplete       MutationKind = "complete"
	MutationAbort          MutationKind = "abort"
	MutationResults        MutationKind = "results"
)

// replacesSnapshot reports whether the operation's response replaces the
// whole cached projection rather than one field of it.
func (k MutationKind) replacesSnapshot() bool {
	switch k {
	case MutationStep, MutationPHReadyAt, MutationResultsReadyAt, MutationResults:
		return false
	default:
		return true
	}
}

// Phase is the lifecycle stage of one mutation.
type Phase int

const (
	// Pending carries the optimistic value while the remote call is in flight.
	Pending Phase = iota + 1
	// Confirmed carries the server's authoritative value.
	Confirmed
	// Failed carries the last known good value after a rejected call.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Mutation is the latest state of one kind of operation.
type Mutation struct {
	Kind       MutationKind
	Phase      Phase
	Value      *domain.SessionSnapshot
	Generation uint64
	Err        error
}

// Reconcile turns a pending mutation into its confirmed form using the
// server's response. It does not touch any shared state.
func Reconcile(pending Mutation, server *domain.SessionSnapshot) Mutation {
	return Mutation{
		Kind:       pending.Kind,
		Phase:      Confirmed,
		Value:      server.Clone(),
		Generation: pending.Generation,
	}
}

// Fail turns a pending mutation into its failed form.
func Fail(pending Mutation, lastKnownGood *domain.SessionSnapshot, err error) Mutation {
	return Mutation{
		Kind:       pending.Kind,
		Phase:      Failed,
		Value:      lastKnownGood.Clone(),
		Generation: pending.Generation,
		Err:        err,
	}
}

// State is what subscribers observe.
type State struct {
	Session    *domain.SessionSnapshot
	Loading    bool
	Err        error
	HydratedAt time.Time
	// Revision changes whenever the session is replaced from the store
	// rather than patched field by field.
	Revision  uint64
	Mutations map[MutationKind]Mutation
}

// ErrorText returns the last error as display text, or "".
func (s State) ErrorText() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

func (s State) clone() State {
	c := s
	c.Session = s.Session.Clone()
	c.Mutations = make(map[MutationKind]Mutation, len(s.Mutations))
	for k, m := range s.Mutations {
		m.Value = m.Value.Clone()
		c.Mutations[k] = m
	}
	return c
}

// Result is the outcome of one cache operation.
type Result struct {
	Session *domain.SessionSnapshot
	Log     *domain.TestLog
	Err     error
	// Discarded is set when the response arrived after a newer operation
	// and was not applied.
	Discarded bool
}

func (r Result) OK() bool { return r.Err == nil }
