package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	approvalhttp "github.com/odyssey-erp/relnotes/internal/approval/http"
	"github.com/odyssey-erp/relnotes/internal/observability"
	"github.com/odyssey-erp/relnotes/internal/webhook"
	"github.com/odyssey-erp/relnotes/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	ApprovalHandler *approvalhttp.Handler
	WebhookHandler  *webhook.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.ApprovalHandler != nil {
		params.ApprovalHandler.MountRoutes(r)
	}
	if params.WebhookHandler != nil {
		r.Route("/webhooks/jira", func(r chi.Router) {
			r.Get("/", params.WebhookHandler.Recent)
			r.Post("/", params.WebhookHandler.Receive)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
