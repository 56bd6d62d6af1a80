package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReleasePipeline extracts, seeds and publishes a release.
	TaskReleasePipeline = "release:pipeline"
	// TaskVoteNotice posts the compact per-vote notice to the channel.
	TaskVoteNotice = "release:vote_notice"
	// TaskIdempotencyCleanup prunes old webhook delivery keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// PipelinePayload selects the release date to run. An empty date means today
// in the scheduler timezone.
type PipelinePayload struct {
	Date string `json:"date,omitempty"`
}

// VoteNoticePayload carries the vote to announce.
type VoteNoticePayload struct {
	Event approval.VoteEvent `json:"event"`
}

// CleanupPayload bounds the age of idempotency keys to keep.
type CleanupPayload struct {
	OlderThan string `json:"older_than"`
}

// NewPipelineTask builds a release pipeline task. A zero date defers the choice
// to the worker.
func NewPipelineTask(date time.Time) (*asynq.Task, error) {
	payload := PipelinePayload{}
	if !date.IsZero() {
		payload.Date = date.Format(approval.DateLayout)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReleasePipeline, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewVoteNoticeTask builds a vote notice task.
func NewVoteNoticeTask(evt approval.VoteEvent) (*asynq.Task, error) {
	if evt.Name == "" {
		return nil, errors.New("jobs: vote notice requires an item name")
	}
	body, err := json.Marshal(VoteNoticePayload{Event: evt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVoteNotice, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewCleanupTask builds an idempotency cleanup task.
func NewCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	if olderThan <= 0 {
		olderThan = 7 * 24 * time.Hour
	}
	body, err := json.Marshal(CleanupPayload{OlderThan: olderThan.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
