package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/relnotes/internal/app"
	jobmetrics "github.com/odyssey-erp/relnotes/internal/jobs"
	"github.com/odyssey-erp/relnotes/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	deps, err := app.BuildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error("build dependencies", slog.Any("error", err))
		os.Exit(1)
	}
	defer deps.Close()
	if deps.Redis == nil {
		logger.Error("worker requires redis", slog.String("addr", cfg.RedisAddr))
		os.Exit(1)
	}
	if !deps.SharedLedger() {
		logger.Error("worker requires PG_DSN, an in-memory ledger is invisible to the server")
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	pipelineJob := jobs.NewPipelineJob(deps.Runner, cfg.Location(), logger, metrics)
	noticeJob := jobs.NewVoteNoticeJob(deps.Notifier, cfg.SlackChannel, logger, metrics)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskReleasePipeline, Handler: pipelineJob.Handle},
		{Type: jobs.TaskVoteNotice, Handler: noticeJob.Handle},
	}

	dailyTask, err := jobs.NewPipelineTask(time.Time{})
	if err != nil {
		logger.Error("build pipeline task", slog.Any("error", err))
		os.Exit(1)
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.ScheduleCron, Task: dailyTask},
	}

	if deps.Dedupe != nil {
		cleanupJob := jobs.NewCleanupJob(deps.Dedupe, logger, metrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle})
		cleanupTask, err := jobs.NewCleanupTask(cfg.IdempotencyTTL)
		if err != nil {
			logger.Error("build cleanup task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
		Location:  cfg.Location(),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("schedule", cfg.ScheduleCron), slog.String("timezone", cfg.SchedulerTimezone))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
