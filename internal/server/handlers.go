package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/contract"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/service"
)

const maxBodyBytes = 64 << 10

// Handler serves the session API for the authenticated actor.
type Handler struct {
	sessions service.TestSessionService
	logs     service.TestLogService
	auth     service.AuthService
	hub      *Hub
	logger   *zap.Logger
}

func NewHandler(
	sessions service.TestSessionService,
	logs service.TestLogService,
	authSvc service.AuthService,
	hub *Hub,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logs: logs, auth: authSvc, hub: hub, logger: logger}
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func actorOf(r *http.Request) string {
	actor, _ := ActorFromContext(r.Context())
	return actor
}

func (h *Handler) changed(actor, sessionID string) {
	if h.hub == nil {
		return
	}
	h.hub.Publish(actor, contract.Event{Type: contract.EventSessionChanged, SessionID: sessionID})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req contract.LoginRequest
	if err := decode(r, &req, false); err != nil {
		h.respondError(w, r, err)
		return
	}
	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.LoginResponse{Token: token, UserID: user.ID})
}

func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.GetOpen(r.Context(), actorOf(r))
	if err != nil {
		status, _ := classify(err)
		if status == http.StatusNotFound {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.FromSession(s))
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	s, err := h.sessions.Start(r.Context(), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.changed(actor, s.ID)
	writeJSON(w, http.StatusCreated, contract.FromSession(s))
}

func (h *Handler) PatchSession(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	var body contract.SessionPatch
	if err := decode(r, &body, false); err != nil {
		h.respondError(w, r, err)
		return
	}
	patch := body.ToDomain()
	if patch.IsEmpty() {
		h.respondError(w, r, fmt.Errorf("%w: empty patch", errBadRequest))
		return
	}
	s, err := h.sessions.Patch(r.Context(), actor, mux.Vars(r)["id"], patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.changed(actor, s.ID)
	writeJSON(w, http.StatusOK, contract.FromSession(s))
}

func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	s, err := h.sessions.Complete(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.changed(actor, s.ID)
	writeJSON(w, http.StatusOK, contract.FromSession(s))
}

func (h *Handler) AbortSession(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	id := mux.Vars(r)["id"]
	var body contract.AbortRequest
	if err := decode(r, &body, true); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.sessions.Abort(r.Context(), actor, id, body.Reason); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.changed(actor, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, r, fmt.Errorf("%w: limit %q", errBadRequest, raw))
			return
		}
		limit = n
	}
	entries, err := h.sessions.History(r.Context(), actorOf(r), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.FromHistory(entries))
}

func (h *Handler) PutLog(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	id := mux.Vars(r)["id"]
	var patch domain.LogPatch
	if err := decode(r, &patch, false); err != nil {
		h.respondError(w, r, err)
		return
	}
	l, err := h.logs.Upsert(r.Context(), actor, id, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.changed(actor, id)
	writeJSON(w, http.StatusOK, contract.FromLog(l))
}

func (h *Handler) GetLog(w http.ResponseWriter, r *http.Request) {
	l, err := h.logs.Get(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.FromLog(l))
}
