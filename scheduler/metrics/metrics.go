// Package metrics instruments the scheduling API and its storage layer
// with Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libsched_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "libsched_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libsched_mutations_total",
		Help: "Total number of scheduling mutations applied, by action and scope.",
	}, []string{"action", "scope"})

	storageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "libsched_storage_latency_seconds",
		Help:    "Histogram of storage operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Middleware records request counts and latencies labeled by chi route
// pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			status := strconv.Itoa(ww.Status())
			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, status).
				Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountMutation records one applied scheduling mutation.
func CountMutation(action, scope string) {
	mutationsTotal.WithLabelValues(action, scope).Inc()
}

// ObserveStorageLatency records a storage operation's latency.
func ObserveStorageLatency(operation string, start time.Time) {
	storageLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
