package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/relnotes/internal/approval"
	approvalhttp "github.com/odyssey-erp/relnotes/internal/approval/http"
	"github.com/odyssey-erp/relnotes/internal/notify"
	"github.com/odyssey-erp/relnotes/internal/observability"
	"github.com/odyssey-erp/relnotes/internal/webhook"
)

type stubTrigger struct {
	dates []time.Time
}

func (s *stubTrigger) TriggerRun(_ context.Context, date time.Time) error {
	s.dates = append(s.dates, date)
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *stubTrigger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	svc := approval.NewService(approval.ServiceConfig{
		Repo:     approval.NewMemoryRepository(),
		Notifier: notify.NewLog(logger),
		Metrics:  metrics,
		Logger:   logger,
	})
	trigger := &stubTrigger{}
	router := NewRouter(RouterParams{
		Logger:          logger,
		Config:          &Config{AppRequestTimeout: 5 * time.Second, RateLimit: 1000},
		ApprovalHandler: approvalhttp.NewHandler(logger, svc, nil),
		WebhookHandler:  webhook.NewHandler(webhook.Config{Trigger: trigger, Metrics: metrics, Logger: logger}),
		Metrics:         metrics,
	})
	return router, trigger
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := serve(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestRouterMountsReleaseAndWebhookRoutes(t *testing.T) {
	router, trigger := newTestRouter(t)

	rr := serve(router, http.MethodPost, "/releases/2026-10-19/seed", `{"items":[{"name":"DSP","version":"61.0"}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = serve(router, http.MethodPost, "/releases/2026-10-19/items/DSP/vote", `{"decision":"approve","voter":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = serve(router, http.MethodPost, "/webhooks/jira", `{"webhookEvent":"jira:version_released","version":{"name":"DSP 61.0","releaseDate":"2026-10-19"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, trigger.dates, 1)

	rr = serve(router, http.MethodGet, "/webhooks/jira", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "jira-webhook")

	rr = serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, `relnotes_votes_total{decision="approved"} 1`)
	require.Contains(t, body, `relnotes_webhook_events_total{status="ok"} 1`)
	require.Contains(t, body, `route="/releases/{date}/items/{name}/vote"`)
}
