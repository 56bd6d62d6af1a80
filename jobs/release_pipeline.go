package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/relnotes/internal/approval"
	jobmetrics "github.com/odyssey-erp/relnotes/internal/jobs"
	"github.com/odyssey-erp/relnotes/internal/pipeline"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PipelineRunner executes the extract, seed and notify steps for one date.
type PipelineRunner interface {
	Run(ctx context.Context, date time.Time) (pipeline.Result, error)
}

// PipelineJob handles TaskReleasePipeline.
type PipelineJob struct {
	Runner   PipelineRunner
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Location *time.Location
	clock    func() time.Time
}

// NewPipelineJob constructs the job handler. loc decides what "today" means
// for payloads without a date.
func NewPipelineJob(runner PipelineRunner, loc *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *PipelineJob {
	if loc == nil {
		loc = time.UTC
	}
	return &PipelineJob{Runner: runner, Logger: logger, Metrics: metrics, Location: loc, clock: time.Now}
}

// Handle executes the release pipeline.
func (j *PipelineJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("release pipeline: runner not configured")
	}
	var payload PipelinePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	date, err := j.resolveDate(payload.Date)
	if err != nil {
		j.log().Warn("invalid pipeline date", slog.String("date", payload.Date))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReleasePipeline)
	result, err := j.Runner.Run(ctx, date)
	if err != nil {
		j.log().Error("release pipeline", slog.String("date", date.Format(approval.DateLayout)), slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("release pipeline finished",
		slog.String("date", result.Date),
		slog.Int("extracted", result.Extracted),
		slog.Int("added", result.Added),
		slog.Bool("no_release", result.NoRelease),
		slog.Bool("sealed", result.Sealed),
	)
	return tracker.End(nil)
}

func (j *PipelineJob) resolveDate(raw string) (time.Time, error) {
	if raw != "" {
		return approval.ParseDate(raw)
	}
	now := j.now().In(j.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (j *PipelineJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PipelineJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReleasePipeline))
	}
	return slog.Default().With(slog.String("job", TaskReleasePipeline))
}

func (j *PipelineJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *PipelineJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
