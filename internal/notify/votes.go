package notify

import (
	"context"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

// VoteNotices delivers vote notices inline instead of through the job queue.
type VoteNotices struct {
	notifier approval.Notifier
	channel  string
}

// NewVoteNotices wraps a notifier as an approval.EventSink.
func NewVoteNotices(notifier approval.Notifier, channel string) *VoteNotices {
	return &VoteNotices{notifier: notifier, channel: channel}
}

// PublishVote sends the compact notice for evt.
func (v *VoteNotices) PublishVote(ctx context.Context, evt approval.VoteEvent) error {
	return v.notifier.Send(ctx, approval.BuildVoteNotice(evt), v.channel)
}
