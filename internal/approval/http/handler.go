package approvalhttp

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/relnotes/internal/approval"
	"github.com/odyssey-erp/relnotes/internal/platform/httpx"
	"github.com/odyssey-erp/relnotes/internal/shared"
	"github.com/odyssey-erp/relnotes/internal/sheets"
)

type approvalService interface {
	Release(ctx context.Context, date string) (approval.Release, error)
	Status(ctx context.Context, date string) (approval.StatusReport, error)
	Seed(ctx context.Context, input approval.SeedInput) (approval.Release, int, error)
	Vote(ctx context.Context, input approval.VoteInput) (approval.LineItem, error)
	VoteAt(ctx context.Context, date string, position int, decision approval.Status, voter string) (approval.LineItem, error)
	Reset(ctx context.Context, date, name, actor string) (approval.LineItem, error)
	ResetAll(ctx context.Context, date, confirm, actor string) (int, error)
	Announce(ctx context.Context, date, by string) (approval.Message, error)
}

// SheetSync mirrors the ledger onto the review sheet after a mutation.
type SheetSync interface {
	Publish(ctx context.Context, rel approval.Release) error
}

var errorMappings = []httpx.Mapping{
	{Err: approval.ErrNotFound, Status: http.StatusNotFound, Title: "Release Not Found"},
	{Err: approval.ErrItemNotFound, Status: http.StatusNotFound, Title: "Item Not Found"},
	{Err: approval.ErrAlreadyDecided, Status: http.StatusConflict, Title: "Already Decided"},
	{Err: approval.ErrAlreadyAnnounced, Status: http.StatusConflict, Title: "Already Announced"},
	{Err: approval.ErrNoCarryoverTarget, Status: http.StatusConflict, Title: "No Open Release For Carryover"},
	{Err: approval.ErrNotReady, Status: http.StatusUnprocessableEntity, Title: "Not Ready"},
	{Err: approval.ErrNoApprovedItems, Status: http.StatusUnprocessableEntity, Title: "No Approved Items"},
	{Err: approval.ErrDeliveryFailed, Status: http.StatusBadGateway, Title: "Delivery Failed"},
	{Err: approval.ErrInvalidDecision, Status: http.StatusBadRequest, Title: "Invalid Decision"},
	{Err: approval.ErrVoterRequired, Status: http.StatusBadRequest, Title: "Voter Required"},
	{Err: approval.ErrInvalidDate, Status: http.StatusBadRequest, Title: "Invalid Date"},
	{Err: approval.ErrInvalidItem, Status: http.StatusBadRequest, Title: "Invalid Item"},
	{Err: approval.ErrDuplicateItem, Status: http.StatusBadRequest, Title: "Duplicate Item"},
	{Err: approval.ErrConfirmationRequired, Status: http.StatusBadRequest, Title: "Confirmation Required"},
	{Err: shared.ErrLockBusy, Status: http.StatusServiceUnavailable, Title: "Release Busy"},
}

// Handler exposes the release ledger over JSON.
type Handler struct {
	logger    *slog.Logger
	service   approvalService
	sheet     SheetSync
	validator *validator.Validate
}

// NewHandler constructs the handler. sheet may be nil.
func NewHandler(logger *slog.Logger, service approvalService, sheet SheetSync) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sheet:     sheet,
		validator: validator.New(),
	}
}

// MountRoutes registers release endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/releases/{date}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Get("/status", h.status)
		r.Post("/seed", h.seed)
		r.Post("/edits", h.edit)
		r.Post("/reset", h.resetAll)
		r.Post("/announce", h.announce)
		r.Post("/items/{name}/vote", h.vote)
		r.Post("/items/{name}/reset", h.resetItem)
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	rel, err := h.service.Release(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReleaseView(rel))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	report, err := h.service.Status(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) seed(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	var req seedRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	civil, _ := approval.ParseDate(date)
	rel, added, err := h.service.Seed(r.Context(), approval.SeedInput{Date: civil, Title: req.Title, TLDR: req.TLDR, Items: toSeeds(req.Items)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sync(r.Context(), rel)
	httpx.JSON(w, http.StatusOK, map[string]any{"added": added, "release": toReleaseView(rel)})
}

func (h *Handler) vote(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	decision, err := approval.ParseDecision(req.Decision)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.service.Vote(r.Context(), approval.VoteInput{Date: date, Name: itemName(r), Decision: decision, Voter: req.Voter})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.syncDate(r.Context(), date)
	httpx.JSON(w, http.StatusOK, toItemView(item))
}

// Edit applies a sheet edit event. Edits that are not votes are acknowledged without effect.
func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rel, err := h.service.Release(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	action, isVote := sheets.MapEdit(sheets.LayoutFor(rel), sheets.EditEvent{Row: req.Row, Column: req.Column, Value: req.Value})
	if !isVote {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	item, err := h.service.VoteAt(r.Context(), date, action.Position, action.Decision, req.Voter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.syncDate(r.Context(), date)
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "recorded", "item": toItemView(item)})
}

func (h *Handler) resetItem(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	var req resetRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.service.Reset(r.Context(), date, itemName(r), req.Actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.syncDate(r.Context(), date)
	httpx.JSON(w, http.StatusOK, toItemView(item))
}

func (h *Handler) resetAll(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	var req resetAllRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	changed, err := h.service.ResetAll(r.Context(), date, req.Confirm, req.Actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.syncDate(r.Context(), date)
	httpx.JSON(w, http.StatusOK, map[string]int{"reset": changed})
}

func (h *Handler) announce(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	var req announceRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	msg, err := h.service.Announce(r.Context(), date, req.By)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"announced": true,
		"message":   msg.Text,
		"posted_at": msg.PostedAt.Format(time.RFC3339),
	})
}

func (h *Handler) date(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "date")
	date, err := approval.ParseDate(raw)
	if err != nil {
		h.fail(w, r, err)
		return "", false
	}
	return date.Format(approval.DateLayout), true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("release request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	httpx.RespondError(w, err, errorMappings...)
}

func (h *Handler) sync(ctx context.Context, rel approval.Release) {
	if h.sheet == nil {
		return
	}
	if err := h.sheet.Publish(ctx, rel); err != nil {
		h.logger.Warn("sheet sync", slog.String("date", rel.Date), slog.Any("error", err))
	}
}

func (h *Handler) syncDate(ctx context.Context, date string) {
	if h.sheet == nil {
		return
	}
	rel, err := h.service.Release(ctx, date)
	if err != nil {
		h.logger.Warn("sheet sync", slog.String("date", date), slog.Any("error", err))
		return
	}
	h.sync(ctx, rel)
}

func itemName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}
