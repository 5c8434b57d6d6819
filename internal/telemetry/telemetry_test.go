package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveSubmission(t *testing.T) {
	before := testutil.ToFloat64(submissionsTotal.WithLabelValues("simple", "success"))
	ObserveSubmission("simple", "success")
	after := testutil.ToFloat64(submissionsTotal.WithLabelValues("simple", "success"))
	require.Equal(t, before+1, after)
}

func TestObserveSweepItem(t *testing.T) {
	before := testutil.ToFloat64(sweepItemsTotal.WithLabelValues("retry", "skipped"))
	ObserveSweepItem("retry", "skipped")
	after := testutil.ToFloat64(sweepItemsTotal.WithLabelValues("retry", "skipped"))
	require.Equal(t, before+1, after)
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/content/{content_id}/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))

	req := httptest.NewRequest(http.MethodGet, "/v1/content/7/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))
	require.Equal(t, before+1, after)
}

func TestHandler_ServesMetrics(t *testing.T) {
	ObserveSweepRun("queue")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "wayback_sweep_runs_total")
}
