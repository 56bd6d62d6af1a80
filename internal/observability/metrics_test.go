package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/relnotes/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	require.NoError(t, jobs.Track("release:pipeline").End(nil))

	require.Contains(t, scrape(t, metrics), `relnotes_jobs_total{job="release:pipeline",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/releases/{date}/status")

	req := httptest.NewRequest(http.MethodGet, "/releases/2026-10-19/status", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `relnotes_http_requests_total{code="418",route="/releases/{date}/status"} 1`)
	require.Contains(t, body, `relnotes_http_request_duration_seconds_bucket{route="/releases/{date}/status"`)
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveVote("approved")
	metrics.ObserveVote("approved")
	metrics.ObserveVote("rejected")
	metrics.ObserveAnnouncement("not_ready")
	metrics.ObserveWebhook("ignored")

	body := scrape(t, metrics)
	require.Contains(t, body, `relnotes_votes_total{decision="approved"} 2`)
	require.Contains(t, body, `relnotes_votes_total{decision="rejected"} 1`)
	require.Contains(t, body, `relnotes_announcements_total{result="not_ready"} 1`)
	require.Contains(t, body, `relnotes_webhook_events_total{status="ignored"} 1`)

	var nilMetrics *Metrics
	nilMetrics.ObserveVote("approved")
	rr := httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
