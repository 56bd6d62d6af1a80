package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/relnotes/internal/approval"
	approvalhttp "github.com/odyssey-erp/relnotes/internal/approval/http"
	"github.com/odyssey-erp/relnotes/internal/extract"
	"github.com/odyssey-erp/relnotes/internal/notify"
	"github.com/odyssey-erp/relnotes/internal/observability"
	"github.com/odyssey-erp/relnotes/internal/pipeline"
	"github.com/odyssey-erp/relnotes/internal/platform/cache"
	"github.com/odyssey-erp/relnotes/internal/platform/db"
	"github.com/odyssey-erp/relnotes/internal/sheets"
	"github.com/odyssey-erp/relnotes/internal/shared"
	"github.com/odyssey-erp/relnotes/internal/tracker"
	"github.com/odyssey-erp/relnotes/internal/webhook"
	"github.com/odyssey-erp/relnotes/jobs"
)

// Deps holds the components shared by the server, the worker and the CLI.
// Optional components stay nil when their configuration is absent.
type Deps struct {
	Config   *Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Recorder *shared.ApprovalRecorder
	Dedupe   *shared.IdempotencyStore
	Notifier approval.Notifier
	Sheet    *sheets.Publisher
	Jobs     *jobs.Client
	Service  *approval.Service
	Runner   *pipeline.Runner

	closers []func()
}

// BuildDeps connects to the configured backends and wires the approval
// service and pipeline. Redis is optional unless LOCK_BACKEND=redis.
func BuildDeps(ctx context.Context, cfg *Config, logger *slog.Logger) (*Deps, error) {
	d := &Deps{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	var repo approval.RepositoryPort = approval.NewMemoryRepository()
	var audit approval.AuditPort
	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		d.Pool = pool
		d.closers = append(d.closers, pool.Close)
		repo = approval.NewRepository(pool)
		d.Recorder = shared.NewApprovalRecorder(pool, logger)
		d.Dedupe = shared.NewIdempotencyStore(pool)
		audit = d.Recorder
	} else {
		logger.Warn("PG_DSN not set, releases are kept in memory")
	}

	client, err := cache.New(ctx, cfg.RedisAddr)
	switch {
	case err == nil:
		d.Redis = client
		d.closers = append(d.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
	case cfg.LockBackend == LockBackendRedis:
		d.Close()
		return nil, fmt.Errorf("redis lock backend: %w", err)
	default:
		logger.Warn("redis unavailable, running jobs inline", slog.Any("error", err))
	}

	var locker shared.Locker = shared.NewKeyedMutex()
	if cfg.LockBackend == LockBackendRedis {
		locker = shared.NewRedisLocker(d.Redis, cfg.LockTTL, cfg.LockWait)
	}

	// Announcements seal the release, so they only go through a notifier that confirms delivery.
	var announcer approval.Notifier
	if cfg.SlackWebhookURL != "" {
		d.Notifier = notify.NewSlackWebhook(cfg.SlackWebhookURL, cfg.SlackTimeout)
		announcer = d.Notifier
	} else {
		logger.Warn("SLACK_WEBHOOK_URL not set, notices are only logged and announcements are refused")
		d.Notifier = notify.NewLog(logger)
	}

	var events approval.EventSink = notify.NewVoteNotices(d.Notifier, cfg.SlackChannel)
	if d.Redis != nil {
		jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Jobs = jobClient
		d.closers = append(d.closers, func() { _ = jobClient.Close() })
		events = jobClient
	}

	d.Service = approval.NewService(approval.ServiceConfig{
		Repo:            repo,
		Locker:          locker,
		Notifier:        announcer,
		Events:          events,
		Audit:           audit,
		Metrics:         d.Metrics,
		Logger:          logger,
		AnnounceChannel: cfg.SlackChannel,
		Location:        cfg.Location(),
	})

	var extractor pipeline.Extractor
	switch {
	case cfg.JiraEnabled():
		extractor = tracker.NewExtractor(tracker.NewClient(tracker.Config{
			BaseURL: cfg.JiraBaseURL,
			Email:   cfg.JiraEmail,
			Token:   cfg.JiraToken,
			Project: cfg.JiraProject,
		}))
	case cfg.ReleaseNotesDir != "":
		extractor = extract.NewDirSource(cfg.ReleaseNotesDir)
	default:
		logger.Warn("no extraction source configured, pipeline runs will fail")
	}

	var publisher pipeline.Publisher
	if cfg.SheetsEnabled() {
		sheet, err := sheets.NewPublisher(ctx, cfg.GoogleSheetID, cfg.GoogleServiceAccountFile, cfg.Location())
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Sheet = sheet
		publisher = sheet
	}

	d.Runner = pipeline.NewRunner(pipeline.Config{
		Extractor: extractor,
		Seeder:    d.Service,
		Notifier:  d.Notifier,
		Publisher: publisher,
		Channel:   cfg.SlackChannel,
		Logger:    logger,
	})
	return d, nil
}

// SharedLedger reports whether releases live in PostgreSQL, where every
// process sees the same ledger.
func (d *Deps) SharedLedger() bool {
	return d.Pool != nil
}

// Trigger returns the queue client when a worker can seed the shared ledger,
// and the inline runner otherwise.
func (d *Deps) Trigger() webhook.Trigger {
	if d.Jobs != nil && d.SharedLedger() {
		return d.Jobs
	}
	return d.Runner
}

// SheetSync returns the review sheet publisher, or nil when sheets are disabled.
func (d *Deps) SheetSync() approvalhttp.SheetSync {
	if d.Sheet == nil {
		return nil
	}
	return d.Sheet
}

// EventLog returns the webhook event log, Redis backed when Redis is reachable.
func (d *Deps) EventLog() webhook.EventLog {
	if d.Redis == nil {
		return webhook.NewMemoryEventLog(d.Config.WebhookLogSize)
	}
	return webhook.NewRedisEventLog(d.Redis, "", d.Config.WebhookLogSize)
}

// Deduper returns the webhook delivery deduper, or nil without PostgreSQL.
func (d *Deps) Deduper() webhook.Deduper {
	if d.Dedupe == nil {
		return nil
	}
	return d.Dedupe
}

// History lists the recorded decisions for a release and its items.
func (d *Deps) History(ctx context.Context, rel approval.Release) ([]shared.ApprovalLog, error) {
	if d.Recorder == nil {
		return nil, errors.New("approval history requires PG_DSN")
	}
	logs, err := d.Recorder.List(ctx, "release", rel.ID)
	if err != nil {
		return nil, err
	}
	for _, item := range rel.Items {
		itemLogs, err := d.Recorder.List(ctx, "release", item.ID)
		if err != nil {
			return nil, err
		}
		logs = append(logs, itemLogs...)
	}
	slices.SortStableFunc(logs, func(a, b shared.ApprovalLog) int {
		return a.At.Compare(b.At)
	})
	return logs, nil
}

// Close releases connections in reverse order of acquisition.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
