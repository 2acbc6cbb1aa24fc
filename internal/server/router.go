package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter registers the API routes. Everything except health and login
// requires a bearer token.
func NewRouter(h *Handler, hub *Hub, logger *zap.Logger) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(logger))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(AuthMiddleware(h.auth))

	// Static segments are registered before the {id} routes.
	api.HandleFunc("/sessions/open", h.OpenSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/history", h.History).Methods(http.MethodGet)
	api.HandleFunc("/sessions", h.StartSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.PatchSession).Methods(http.MethodPatch)
	api.HandleFunc("/sessions/{id}/complete", h.CompleteSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/abort", h.AbortSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/log", h.PutLog).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/log", h.GetLog).Methods(http.MethodGet)
	if hub != nil {
		api.HandleFunc("/events", hub.ServeWS).Methods(http.MethodGet)
	}
	return r
}
