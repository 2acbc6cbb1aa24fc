package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/auth"
	"github.com/santelle/santelle/internal/contract"
	"github.com/santelle/santelle/internal/service"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorFromContext returns the authenticated user id.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey).(string)
	return actor, ok && actor != ""
}

// AuthMiddleware resolves the bearer token to a user id.
func AuthMiddleware(authSvc service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, contract.CodeUnauthorized, err.Error())
				return
			}
			actor, err := authSvc.Authenticate(r.Context(), token)
			if err != nil {
				status, code := classify(err)
				if status == http.StatusUnauthorized {
					writeError(w, status, code, "invalid token")
				} else {
					writeError(w, status, code, "internal error")
				}
				return
			}
			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs one line per request. Websocket upgrades are
// passed through untouched so the connection can be hijacked.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("latency", time.Since(start)))
		})
	}
}
