// Package webhook receives Jira release events.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/relnotes/internal/approval"
	"github.com/odyssey-erp/relnotes/internal/platform/httpx"
	"github.com/odyssey-erp/relnotes/internal/shared"
)

const (
	// EventVersionReleased is the only Jira event that triggers a run.
	EventVersionReleased = "jira:version_released"
	// DeliveryHeader identifies a webhook delivery across retries.
	DeliveryHeader = "X-Atlassian-Webhook-Identifier"

	dedupeModule = "jira_webhook"
	maxBodyBytes = 1 << 20
)

const (
	StatusOK      = "ok"
	StatusIgnored = "ignored"
	StatusError   = "error"
)

// Trigger starts the pipeline for a release date.
type Trigger interface {
	TriggerRun(ctx context.Context, date time.Time) error
}

// Deduper claims delivery identifiers. CheckAndInsert fails with
// shared.ErrIdempotencyConflict when the key was already claimed.
type Deduper interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Metrics counts deliveries by handling status.
type Metrics interface {
	ObserveWebhook(status string)
}

// Payload is the subset of the Jira version event the receiver reads.
type Payload struct {
	WebhookEvent string `json:"webhookEvent"`
	Timestamp    int64  `json:"timestamp"`
	Version      struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Released    bool   `json:"released"`
		ReleaseDate string `json:"releaseDate"`
	} `json:"version"`
}

// Response is always returned with HTTP 200 so Jira does not retry.
type Response struct {
	Status      string `json:"status"`
	Event       string `json:"event,omitempty"`
	Version     string `json:"version,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Handler serves the Jira webhook endpoints.
type Handler struct {
	trigger Trigger
	events  EventLog
	dedupe  Deduper
	metrics Metrics
	logger  *slog.Logger
	loc     *time.Location
	clock   func() time.Time
}

// Config wires Handler dependencies. Deduper and Metrics are optional.
type Config struct {
	Trigger  Trigger
	Events   EventLog
	Deduper  Deduper
	Metrics  Metrics
	Logger   *slog.Logger
	Location *time.Location
	Clock    func() time.Time
}

// NewHandler constructs the webhook handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		trigger: cfg.Trigger,
		events:  cfg.Events,
		dedupe:  cfg.Deduper,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		loc:     cfg.Location,
		clock:   cfg.Clock,
	}
	if h.events == nil {
		h.events = NewMemoryEventLog(DefaultLogSize)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	return h
}

// Receive handles POST deliveries.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec := Record{Delivery: r.Header.Get(DeliveryHeader), ReceivedAt: h.clock()}
	resp := h.process(ctx, r, &rec)
	rec.Status, rec.Error = resp.Status, resp.Error
	if err := h.events.Append(ctx, rec); err != nil {
		h.logger.Warn("webhook log append", slog.Any("error", err))
	}
	if h.metrics != nil {
		h.metrics.ObserveWebhook(resp.Status)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) process(ctx context.Context, r *http.Request, rec *Record) Response {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return Response{Status: StatusError, Error: "read body: " + err.Error()}
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("webhook payload rejected", slog.Any("error", err))
		return Response{Status: StatusError, Error: "invalid JSON payload: " + err.Error()}
	}
	rec.Event = payload.WebhookEvent
	rec.Version = payload.Version.Name
	resp := Response{Event: payload.WebhookEvent, Version: payload.Version.Name}

	if payload.WebhookEvent != EventVersionReleased {
		resp.Status, resp.Message = StatusIgnored, "event not handled"
		return resp
	}

	date := h.releaseDate(payload.Version.ReleaseDate)
	rec.ReleaseDate = date.Format(approval.DateLayout)
	resp.ReleaseDate = rec.ReleaseDate

	claimed := false
	if h.dedupe != nil && rec.Delivery != "" {
		err := h.dedupe.CheckAndInsert(ctx, rec.Delivery, dedupeModule)
		switch {
		case errors.Is(err, shared.ErrIdempotencyConflict):
			resp.Status, resp.Message = StatusIgnored, "duplicate delivery"
			return resp
		case err != nil:
			h.logger.Warn("webhook dedupe", slog.String("delivery", rec.Delivery), slog.Any("error", err))
		default:
			claimed = true
		}
	}

	if h.trigger == nil {
		resp.Status, resp.Error = StatusError, "pipeline trigger not configured"
		return resp
	}
	if err := h.trigger.TriggerRun(ctx, date); err != nil {
		h.logger.Error("webhook trigger", slog.String("date", resp.ReleaseDate), slog.Any("error", err))
		if claimed {
			if derr := h.dedupe.Delete(ctx, rec.Delivery); derr != nil {
				h.logger.Warn("webhook dedupe release", slog.Any("error", derr))
			}
		}
		resp.Status, resp.Error = StatusError, err.Error()
		return resp
	}
	h.logger.Info("release pipeline triggered", slog.String("version", payload.Version.Name), slog.String("date", resp.ReleaseDate))
	resp.Status, resp.Message = StatusOK, "release pipeline triggered"
	return resp
}

// Recent handles GET: liveness plus the most recent deliveries.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	n := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	records, err := h.events.Recent(r.Context(), n)
	if err != nil {
		h.logger.Warn("webhook log read", slog.Any("error", err))
		records = nil
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":  StatusOK,
		"service": "jira-webhook",
		"events":  records,
	})
}

func (h *Handler) releaseDate(raw string) time.Time {
	if date, err := approval.ParseDate(raw); err == nil {
		return date
	}
	now := h.clock().In(h.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
