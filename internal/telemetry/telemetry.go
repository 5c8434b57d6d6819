// Package telemetry exposes Prometheus metrics for the submission service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayback_submissions_total",
			Help: "Total number of archive submissions, labeled by method and outcome status.",
		},
		[]string{"method", "status"},
	)

	remoteCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wayback_remote_call_duration_seconds",
			Help:    "Histogram of archive endpoint call latencies, labeled by operation.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
		},
		[]string{"operation"},
	)

	sweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayback_sweep_runs_total",
			Help: "Total number of background sweep runs, labeled by sweep kind.",
		},
		[]string{"sweep"},
	)

	sweepItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayback_sweep_items_total",
			Help: "Total number of records handled by background sweeps, labeled by sweep kind and outcome.",
		},
		[]string{"sweep", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveSubmission records the outcome of one archive submission.
func ObserveSubmission(method, status string) {
	submissionsTotal.WithLabelValues(method, status).Inc()
}

// ObserveRemoteCall records the latency of one archive endpoint call.
func ObserveRemoteCall(operation string, duration time.Duration) {
	remoteCallDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveSweepRun records one run of a background sweep.
func ObserveSweepRun(sweep string) {
	sweepRunsTotal.WithLabelValues(sweep).Inc()
}

// ObserveSweepItem records one record handled by a background sweep.
func ObserveSweepItem(sweep, outcome string) {
	sweepItemsTotal.WithLabelValues(sweep, outcome).Inc()
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
