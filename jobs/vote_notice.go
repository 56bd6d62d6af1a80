package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/relnotes/internal/approval"
	jobmetrics "github.com/odyssey-erp/relnotes/internal/jobs"
)

// VoteNoticeJob posts one line per recorded vote.
type VoteNoticeJob struct {
	Notifier approval.Notifier
	Channel  string
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewVoteNoticeJob constructs the job handler.
func NewVoteNoticeJob(notifier approval.Notifier, channel string, logger *slog.Logger, metrics *jobmetrics.Metrics) *VoteNoticeJob {
	return &VoteNoticeJob{Notifier: notifier, Channel: channel, Logger: logger, Metrics: metrics}
}

// Handle delivers the notice. Delivery failures are retried by asynq.
func (j *VoteNoticeJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Notifier == nil {
		return errors.New("vote notice: notifier not configured")
	}
	var payload VoteNoticePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.Event.Name == "" {
		return asynq.SkipRetry
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskVoteNotice)
	if err := j.Notifier.Send(ctx, approval.BuildVoteNotice(payload.Event), j.Channel); err != nil {
		j.log().Warn("vote notice delivery", slog.String("item", payload.Event.Name), slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}

func (j *VoteNoticeJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskVoteNotice))
	}
	return slog.Default().With(slog.String("job", TaskVoteNotice))
}
