package approval

import (
	"fmt"
	"strings"
	"time"
)

// DividerWidth is the width of the rules separating message sections.
const DividerWidth = 42

var divider = strings.Repeat("-", DividerWidth)

// Message is an outbound channel message.
type Message struct {
	Text     string
	PostedAt time.Time
}

// Marker renders a status for channel messages.
func Marker(s Status) string {
	switch s {
	case StatusApproved:
		return "✅"
	case StatusRejected:
		return "❌"
	case StatusDeferred:
		return "➡️"
	default:
		return "⏳"
	}
}

// Label renders a status for the review sheet.
func Label(s Status) string {
	switch s {
	case StatusApproved:
		return "✅ Approved"
	case StatusRejected:
		return "❌ Rejected"
	case StatusDeferred:
		return "➡️ Tomorrow"
	default:
		return "⏳ Pending"
	}
}

// BuildAnnouncement composes the final announcement listing approved items only.
func BuildAnnouncement(r Release, postedAt time.Time) Message {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = FormatTitle(postedAt)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "RELEASE DEPLOYED: %s\n", title)
	b.WriteString(divider + "\n")
	if tldr := strings.TrimSpace(r.TLDR); tldr != "" {
		b.WriteString("TL;DR:\n")
		b.WriteString(tldr + "\n")
		b.WriteString(divider + "\n")
	}
	for _, item := range ApprovedItems(r) {
		fmt.Fprintf(&b, "%s %s: %s\n", Marker(item.Status), item.Name, item.Version)
	}
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "Posted at %s", postedAt.Format("2006-01-02 15:04 MST"))
	return Message{Text: b.String(), PostedAt: postedAt}
}

// BuildVoteNotice renders the compact per-vote message.
func BuildVoteNotice(evt VoteEvent) string {
	detail := strings.TrimSpace(evt.Summary)
	if detail == "" {
		detail = evt.Version
	}
	return fmt.Sprintf("%s %s: %s (by %s)", Marker(evt.Decision), evt.Name, detail, evt.Voter)
}

// BuildReviewNotice tells reviewers a release is waiting for votes.
func BuildReviewNotice(r Release, reviewURL string) string {
	var b strings.Builder
	b.WriteString("📋 Release Notes Ready for Review\n\n")
	fmt.Fprintf(&b, "Release: %s\n", r.Title)
	fmt.Fprintf(&b, "Line items to review: %d\n", len(r.Items))
	if reviewURL != "" {
		fmt.Fprintf(&b, "\nOpen %s to approve, reject or defer each item.", reviewURL)
	}
	return b.String()
}

// BuildNoReleaseNotice is sent when extraction finds nothing for the day.
func BuildNoReleaseNotice(date time.Time) string {
	return fmt.Sprintf("No release planned for today (%s).", FormatTitle(date))
}

// MarkAnnounced seals the release. It is a one-shot transition.
func (r *Release) MarkAnnounced(by string, now time.Time) error {
	if r.Announced {
		return ErrAlreadyAnnounced
	}
	stats := ComputeStats(*r)
	if stats.Pending > 0 {
		return fmt.Errorf("%w: %d pending", ErrNotReady, stats.Pending)
	}
	if stats.Approved == 0 {
		return ErrNoApprovedItems
	}
	at := now
	r.Announced = true
	r.AnnouncedAt = &at
	r.AnnouncedBy = strings.TrimSpace(by)
	return nil
}

// CheckAnnounceable runs the MarkAnnounced preconditions without mutating.
func CheckAnnounceable(r Release) error {
	probe := r.Clone()
	return probe.MarkAnnounced("", time.Time{})
}
