package contract

import (
	"errors"
	"fmt"

	"github.com/santelle/santelle/internal/domain"
)

// ErrorCode is the machine-readable reason carried in error bodies.
type ErrorCode string

const (
	CodeNotFound       ErrorCode = "not_found"
	CodeSessionClosed  ErrorCode = "session_closed"
	CodeInvalidStep    ErrorCode = "invalid_step"
	CodeAlreadySet     ErrorCode = "already_set"
	CodeLogFinalized   ErrorCode = "log_finalized"
	CodeInvalidReading ErrorCode = "invalid_reading"
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeUnauthorized   ErrorCode = "unauthorized"
	CodeConflict       ErrorCode = "conflict"
	CodeInternal       ErrorCode = "internal"
)

type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// domainErrors maps codes back to the sentinel errors they were produced from.
var domainErrors = map[ErrorCode]error{
	CodeSessionClosed:  domain.ErrSessionClosed,
	CodeInvalidStep:    domain.ErrInvalidStep,
	CodeAlreadySet:     domain.ErrAlreadySet,
	CodeLogFinalized:   domain.ErrLogFinalized,
	CodeInvalidReading: domain.ErrInvalidReading,
}

// DomainCode returns the code of a domain rule violation, if err is one.
func DomainCode(err error) (ErrorCode, bool) {
	for code, sentinel := range domainErrors {
		if errors.Is(err, sentinel) {
			return code, true
		}
	}
	return "", false
}

// DomainError rebuilds a domain sentinel from an error body, or nil when the
// code does not name a domain rule.
func (e ErrorResponse) DomainError() error {
	sentinel, ok := domainErrors[e.Code]
	if !ok {
		return nil
	}
	return fmt.Errorf("%s: %w", e.Error, sentinel)
}
