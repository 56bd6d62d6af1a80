// Package pipeline seeds a release ledger from an extractor and notifies reviewers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

// ErrNoExtractor is returned by runs when no extraction source is configured.
var ErrNoExtractor = errors.New("pipeline: no extractor configured")

// Extractor yields seeds for a release date.
type Extractor interface {
	Extract(ctx context.Context, date time.Time) (approval.Extraction, error)
}

// Seeder populates the ledger.
type Seeder interface {
	Seed(ctx context.Context, input approval.SeedInput) (approval.Release, int, error)
}

// Publisher renders a release onto the review surface.
type Publisher interface {
	Publish(ctx context.Context, rel approval.Release) error
	URL() string
}

// Config wires Runner dependencies. Publisher is optional.
type Config struct {
	Extractor Extractor
	Seeder    Seeder
	Notifier  approval.Notifier
	Publisher Publisher
	Channel   string
	Logger    *slog.Logger
}

// Runner executes the extraction pipeline.
type Runner struct {
	extractor Extractor
	seeder    Seeder
	notifier  approval.Notifier
	publisher Publisher
	channel   string
	logger    *slog.Logger
	group     singleflight.Group
}

// Result summarises one pipeline run.
type Result struct {
	Date      string `json:"date"`
	Extracted int    `json:"extracted"`
	Added     int    `json:"added"`
	Items     int    `json:"items"`
	NoRelease bool   `json:"no_release"`
	Sealed    bool   `json:"sealed"`
}

// NewRunner constructs a pipeline runner.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		extractor: cfg.Extractor,
		seeder:    cfg.Seeder,
		notifier:  cfg.Notifier,
		publisher: cfg.Publisher,
		channel:   cfg.Channel,
		logger:    logger,
	}
}

// Run extracts and seeds the release for date. Concurrent runs for the same date share one execution.
func (r *Runner) Run(ctx context.Context, date time.Time) (Result, error) {
	key := date.Format(approval.DateLayout)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.run(context.WithoutCancel(ctx), date)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	}
}

// TriggerRun runs the pipeline inline, for deployments without a job queue.
func (r *Runner) TriggerRun(ctx context.Context, date time.Time) error {
	_, err := r.Run(ctx, date)
	return err
}

func (r *Runner) run(ctx context.Context, date time.Time) (Result, error) {
	result := Result{Date: date.Format(approval.DateLayout)}
	if r.extractor == nil || r.seeder == nil {
		return result, ErrNoExtractor
	}
	extraction, err := r.extractor.Extract(ctx, date)
	if err != nil {
		return result, fmt.Errorf("pipeline: extract %s: %w", result.Date, err)
	}
	result.Extracted = len(extraction.Items)
	if len(extraction.Items) == 0 {
		result.NoRelease = true
		r.logger.Info("no release planned", slog.String("date", result.Date))
		r.notify(ctx, approval.BuildNoReleaseNotice(date))
		return result, nil
	}

	rel, added, err := r.seeder.Seed(ctx, approval.SeedInput{Date: date, TLDR: extraction.TLDR, Items: extraction.Items})
	if errors.Is(err, approval.ErrAlreadyAnnounced) {
		result.Sealed = true
		result.Items = len(rel.Items)
		r.logger.Info("release already announced, skipping refresh", slog.String("date", result.Date))
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("pipeline: seed %s: %w", result.Date, err)
	}
	result.Added = added
	result.Items = len(rel.Items)
	if added == 0 {
		r.logger.Info("release unchanged", slog.String("date", result.Date), slog.Int("items", result.Items))
		return result, nil
	}

	reviewURL := ""
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, rel); err != nil {
			r.logger.Error("publish review sheet", slog.String("date", result.Date), slog.Any("error", err))
		} else {
			reviewURL = r.publisher.URL()
		}
	}
	r.notify(ctx, approval.BuildReviewNotice(rel, reviewURL))
	r.logger.Info("pipeline completed",
		slog.String("date", result.Date),
		slog.Int("extracted", result.Extracted),
		slog.Int("added", result.Added),
	)
	return result, nil
}

func (r *Runner) notify(ctx context.Context, message string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Send(ctx, message, r.channel); err != nil {
		r.logger.Warn("pipeline notification", slog.Any("error", err))
	}
}
