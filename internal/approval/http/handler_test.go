package approvalhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/relnotes/internal/approval"
	"github.com/odyssey-erp/relnotes/internal/sheets"
)

type stubNotifier struct {
	mu   sync.Mutex
	fail error
	sent []string
}

func (s *stubNotifier) Send(_ context.Context, message, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, message)
	return nil
}

type countingSheet struct {
	mu        sync.Mutex
	published []approval.Release
}

func (c *countingSheet) Publish(_ context.Context, rel approval.Release) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, rel)
	return nil
}

type testAPI struct {
	router   chi.Router
	notifier *stubNotifier
	sheet    *countingSheet
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := &stubNotifier{}
	svc := approval.NewService(approval.ServiceConfig{
		Repo:            approval.NewMemoryRepository(),
		Notifier:        notifier,
		Logger:          logger,
		AnnounceChannel: "#releases",
		Clock:           func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) },
	})
	sheet := &countingSheet{}
	router := chi.NewRouter()
	NewHandler(logger, svc, sheet).MountRoutes(router)
	return &testAPI{router: router, notifier: notifier, sheet: sheet}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) seed(t *testing.T) {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/releases/2026-10-19/seed",
		`{"tldr":"Bidder fixes","items":[{"name":"DSP Core PL3","version":"4.0","summary":"Bidder fixes"},{"name":"Helix","version":"3.0"}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestSeedAndShowRelease(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rr := api.do(t, http.MethodGet, "/releases/2026-10-19", "")
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[releaseView](t, rr)
	require.Equal(t, "19th October 2026", view.Title)
	require.Len(t, view.Items, 2)
	require.Equal(t, "⏳ Pending", view.Items[0].Label)
	require.Equal(t, 2, view.Stats.Pending)
	require.Len(t, api.sheet.published, 1)
}

func TestVoteFlowAndAnnouncement(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rr := api.do(t, http.MethodPost, "/releases/2026-10-19/items/DSP%20Core%20PL3/vote", `{"decision":"approve","voter":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "APPROVED", decode[itemView](t, rr).Status)

	rr = api.do(t, http.MethodPost, "/releases/2026-10-19/items/DSP%20Core%20PL3/vote", `{"decision":"reject","voter":"bob"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(t, http.MethodPost, "/releases/2026-10-19/announce", `{"by":"alice"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = api.do(t, http.MethodPost, "/releases/2026-10-19/items/Helix/vote", `{"decision":"tomorrow","voter":"bob"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(t, http.MethodGet, "/releases/2026-10-19/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[map[string]any](t, rr)
	require.Equal(t, true, status["ready_to_announce"])
	require.Equal(t, float64(1), status["approved"])
	require.Equal(t, float64(1), status["deferred"])

	rr = api.do(t, http.MethodPost, "/releases/2026-10-19/announce", `{"by":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, api.notifier.sent, 1)
	require.Contains(t, api.notifier.sent[0], "✅ DSP Core PL3: 4.0")

	rr = api.do(t, http.MethodPost, "/releases/2026-10-19/announce", `{"by":"alice"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(t, http.MethodGet, "/releases/2026-10-20", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Helix", decode[releaseView](t, rr).Items[0].Name)
}

func TestAnnounceDeliveryFailureIsBadGateway(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)
	api.do(t, http.MethodPost, "/releases/2026-10-19/items/Helix/vote", `{"decision":"approve","voter":"bob"}`)
	api.do(t, http.MethodPost, "/releases/2026-10-19/items/DSP%20Core%20PL3/vote", `{"decision":"approve","voter":"bob"}`)

	api.notifier.fail = errors.New("connection refused")
	rr := api.do(t, http.MethodPost, "/releases/2026-10-19/announce", `{"by":"alice"}`)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = api.do(t, http.MethodGet, "/releases/2026-10-19/status", "")
	require.Equal(t, false, decode[map[string]any](t, rr)["announced"])
}

func TestEditEventsMapToVotes(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rr := api.do(t, http.MethodPost, "/releases/2026-10-19/edits", fmt.Sprintf(`{"row":4,"column":%d,"value":"✗","voter":"carol"}`, sheets.ColReject))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "recorded", decode[map[string]any](t, rr)["status"])

	rr = api.do(t, http.MethodPost, "/releases/2026-10-19/edits", `{"row":3,"column":2,"value":"new text","voter":"carol"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ignored", decode[map[string]any](t, rr)["status"])

	rr = api.do(t, http.MethodPost, "/releases/2026-10-19/edits", `{"row":1,"column":6,"value":"✓","voter":"carol"}`)
	require.Equal(t, "ignored", decode[map[string]any](t, rr)["status"])

	view := decode[releaseView](t, api.do(t, http.MethodGet, "/releases/2026-10-19", ""))
	require.Equal(t, "REJECTED", view.Items[1].Status)
	require.Equal(t, "carol", view.Items[1].VotedBy)
	require.Equal(t, "PENDING", view.Items[0].Status)
}

func TestResetEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)
	api.do(t, http.MethodPost, "/releases/2026-10-19/items/Helix/vote", `{"decision":"approve","voter":"bob"}`)

	rr := api.do(t, http.MethodPost, "/releases/2026-10-19/reset", `{"confirm":"yes"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, http.MethodPost, "/releases/2026-10-19/items/Helix/reset", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "PENDING", decode[itemView](t, rr).Status)

	api.do(t, http.MethodPost, "/releases/2026-10-19/items/Helix/vote", `{"decision":"approve","voter":"bob"}`)
	rr = api.do(t, http.MethodPost, "/releases/2026-10-19/reset", `{"confirm":"RESET","actor":"admin"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, decode[map[string]int](t, rr)["reset"])
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad date", http.MethodGet, "/releases/19-10-2026", "", http.StatusBadRequest},
		{"unknown release", http.MethodGet, "/releases/2026-12-01/status", "", http.StatusNotFound},
		{"unknown item", http.MethodPost, "/releases/2026-10-19/items/Nope/vote", `{"decision":"approve","voter":"a"}`, http.StatusNotFound},
		{"bad decision", http.MethodPost, "/releases/2026-10-19/items/Helix/vote", `{"decision":"maybe","voter":"a"}`, http.StatusBadRequest},
		{"missing voter", http.MethodPost, "/releases/2026-10-19/items/Helix/vote", `{"decision":"approve"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/releases/2026-10-19/items/Helix/vote", `{"decision":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/releases/2026-10-19/announce", `{"by":"a","force":true}`, http.StatusBadRequest},
		{"empty seed", http.MethodPost, "/releases/2026-10-19/seed", `{"items":[]}`, http.StatusBadRequest},
		{"missing announcer", http.MethodPost, "/releases/2026-10-19/announce", `{}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := api.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}
