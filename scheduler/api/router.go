// Package api exposes the scheduler over JSON HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/practicekit/libsched/scheduler/metrics"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool
	// HealthChecker, when non-nil, backs /readyz. The pgx store
	// implements it; the in-memory store needs none.
	HealthChecker interface {
		HealthCheck(ctx context.Context) error
	}
}

// NewRouter wires all HTTP routes of the scheduling API.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.HealthChecker != nil {
		r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.HealthChecker.HealthCheck(ctx); err != nil {
				http.Error(w, "unready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}

	if cfg.MetricsEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Patch("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
		r.Get("/{id}/summary", h.GetSummary)
		r.Get("/{id}/occurrences", h.GetOccurrences)
		r.Get("/{id}/ics", h.ExportEvent)
	})

	r.Get("/recurrence/monthly-options", h.MonthlyOptions)

	return r
}
