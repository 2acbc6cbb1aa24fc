package domain

import "errors"

var (
	// ErrSessionClosed indicates a mutation against a completed or aborted session.
	ErrSessionClosed = errors.New("session is no longer in progress")

	// ErrInvalidStep indicates a step outside the procedure range.
	ErrInvalidStep = errors.New("step out of range")

	// ErrAlreadySet indicates a second, different write to a set-once timestamp.
	ErrAlreadySet = errors.New("timestamp already set")

	// ErrLogFinalized indicates a patch against a finalized test log.
	ErrLogFinalized = errors.New("test log is finalized")

	// ErrInvalidReading indicates a reading not accepted for its biomarker.
	ErrInvalidReading = errors.New("invalid reading")
)
