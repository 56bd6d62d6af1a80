package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/relnotes/cmd/relnotesctl/cli"
	"github.com/odyssey-erp/relnotes/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, load, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "relnotesctl:", err)
		os.Exit(1)
	}
}

func load(ctx context.Context) (*cli.Env, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg.LogLevel = "warn"
	logger := app.NewLogger(cfg)
	deps, err := app.BuildDeps(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	env := &cli.Env{
		Ledger:   deps.Service,
		Runner:   deps.Runner,
		Location: cfg.Location(),
	}
	if deps.Recorder != nil {
		env.History = deps
	}
	cleanup := deps.Close
	if deps.Redis != nil {
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			deps.Close()
			return nil, nil, err
		}
		env.Jobs = jobsCLI
		cleanup = func() {
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("jobs cli close", slog.Any("error", err))
			}
			deps.Close()
		}
	}
	return env, cleanup, nil
}
