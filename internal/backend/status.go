package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthCheck reports whether a dependency of the service is usable.
type HealthCheck func(ctx context.Context) error

const healthTimeout = 2 * time.Second

// NewStatusRouter returns the router serving /metrics and /health. Every
// check must pass for /health to answer 200.
func NewStatusRouter(logger *slog.Logger, metricsHandler http.Handler, checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", metricsHandler)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", "check", name, "error", err)
				body[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	})

	return r
}
