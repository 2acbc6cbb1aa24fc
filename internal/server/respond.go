package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/auth"
	"github.com/santelle/santelle/internal/contract"
	"github.com/santelle/santelle/internal/repository"
	"github.com/santelle/santelle/internal/service"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code contract.ErrorCode, msg string) {
	writeJSON(w, status, contract.ErrorResponse{Error: msg, Code: code})
}

// classify maps an error to its HTTP status and wire code.
func classify(err error) (int, contract.ErrorCode) {
	if code, ok := contract.DomainCode(err); ok {
		switch code {
		case contract.CodeInvalidStep, contract.CodeInvalidReading:
			return http.StatusBadRequest, code
		default:
			return http.StatusConflict, code
		}
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, contract.CodeNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, contract.CodeInvalidRequest
	case errors.Is(err, repository.ErrConflict), errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, contract.CodeConflict
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, contract.CodeUnauthorized
	default:
		return http.StatusInternalServerError, contract.CodeInternal
	}
}

// respondError writes err as an error body. Internal errors are logged and
// their text is not sent.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}
