package approval

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildAnnouncementListsApprovedOnly(t *testing.T) {
	rel := seededRelease(t,
		Seed{Name: "DSP", Version: "61.0"},
		Seed{Name: "Audiences", Version: "12.1"},
		Seed{Name: "Helix", Version: "3.0"},
	)
	rel.Title = "19th October 2026"
	rel.TLDR = "Bidder latency fixes."
	_, err := rel.RecordVote("DSP", StatusApproved, "alice", testNow)
	require.NoError(t, err)
	_, err = rel.RecordVote("Audiences", StatusRejected, "bob", testNow)
	require.NoError(t, err)
	_, err = rel.RecordVote("Helix", StatusApproved, "carol", testNow)
	require.NoError(t, err)

	msg := BuildAnnouncement(rel, testNow)
	lines := strings.Split(msg.Text, "\n")
	rule := strings.Repeat("-", DividerWidth)

	require.Equal(t, []string{
		"RELEASE DEPLOYED: 19th October 2026",
		rule,
		"TL;DR:",
		"Bidder latency fixes.",
		rule,
		"✅ DSP: 61.0",
		"✅ Helix: 3.0",
		rule,
		"Posted at 2026-10-19 09:30 UTC",
	}, lines)
	require.NotContains(t, msg.Text, "Audiences")
	require.Equal(t, testNow, msg.PostedAt)
}

func TestBuildAnnouncementWithoutTLDR(t *testing.T) {
	rel := seededRelease(t, Seed{Name: "DSP", Version: "61.0"})
	rel.Title = ""
	_, err := rel.RecordVote("DSP", StatusApproved, "alice", testNow)
	require.NoError(t, err)

	text := BuildAnnouncement(rel, testNow).Text
	require.True(t, strings.HasPrefix(text, "RELEASE DEPLOYED: 19th October 2026\n"))
	require.NotContains(t, text, "TL;DR")
	require.Equal(t, 2, strings.Count(text, strings.Repeat("-", DividerWidth)))
}

func TestMarkAnnouncedPreconditions(t *testing.T) {
	rel := seededRelease(t, Seed{Name: "DSP", Version: "61.0"}, Seed{Name: "Helix", Version: "3.0"})

	require.True(t, errors.Is(rel.MarkAnnounced("alice", testNow), ErrNotReady))

	_, err := rel.RecordVote("DSP", StatusRejected, "alice", testNow)
	require.NoError(t, err)
	_, err = rel.RecordVote("Helix", StatusDeferred, "alice", testNow)
	require.NoError(t, err)
	require.True(t, errors.Is(rel.MarkAnnounced("alice", testNow), ErrNoApprovedItems))
	require.False(t, rel.Announced)
}

func TestMarkAnnouncedIsOneShot(t *testing.T) {
	rel := seededRelease(t, Seed{Name: "DSP", Version: "61.0"})
	_, err := rel.RecordVote("DSP", StatusApproved, "alice", testNow)
	require.NoError(t, err)

	require.NoError(t, CheckAnnounceable(rel))
	require.False(t, rel.Announced)

	require.NoError(t, rel.MarkAnnounced("alice", testNow))
	require.True(t, rel.Announced)
	require.Equal(t, "alice", rel.AnnouncedBy)

	err = rel.MarkAnnounced("bob", testNow.Add(time.Hour))
	require.True(t, errors.Is(err, ErrAlreadyAnnounced))
	require.Equal(t, testNow, *rel.AnnouncedAt)
	require.Equal(t, "alice", rel.AnnouncedBy)
}

func TestStatsAndReadiness(t *testing.T) {
	empty := seededRelease(t)
	require.Equal(t, Stats{}, ComputeStats(empty))
	require.False(t, IsReadyToAnnounce(empty))

	rel := seededRelease(t, Seed{Name: "DSP", Version: "61.0"}, Seed{Name: "Helix", Version: "3.0"})
	_, err := rel.RecordVote("DSP", StatusApproved, "alice", testNow)
	require.NoError(t, err)
	require.Equal(t, Stats{Approved: 1, Pending: 1, Total: 2}, ComputeStats(rel))
	require.False(t, IsReadyToAnnounce(rel))

	_, err = rel.RecordVote("Helix", StatusDeferred, "alice", testNow)
	require.NoError(t, err)
	require.Equal(t, Stats{Approved: 1, Deferred: 1, Total: 2}, ComputeStats(rel))
	require.True(t, IsReadyToAnnounce(rel))
}

func TestStatsIgnoreStructuralRows(t *testing.T) {
	rel := seededRelease(t, Seed{Name: "DSP", Version: "61.0"})
	_, err := rel.RecordVote("DSP", StatusApproved, "alice", testNow)
	require.NoError(t, err)
	// Rows read back from storage bypass AddSeeds.
	rel.Items = append(rel.Items,
		LineItem{Name: "━━━━━━━━━━", Status: StatusPending},
		LineItem{Name: "📅 Release 19th October 2026", Status: StatusPending},
	)

	require.Equal(t, Stats{Approved: 1, Total: 1}, ComputeStats(rel))
	require.True(t, IsReadyToAnnounce(rel))
	require.Len(t, ApprovedItems(rel), 1)
}

func TestNoticeText(t *testing.T) {
	evt := VoteEvent{Name: "DSP", Version: "61.0", Decision: StatusRejected, Voter: "bob"}
	require.Equal(t, "❌ DSP: 61.0 (by bob)", BuildVoteNotice(evt))
	evt.Summary = "Bidder latency fixes"
	evt.Decision = StatusDeferred
	require.Equal(t, "➡️ DSP: Bidder latency fixes (by bob)", BuildVoteNotice(evt))

	require.Equal(t, "No release planned for today (19th October 2026).", BuildNoReleaseNotice(testNow))

	rel := seededRelease(t, Seed{Name: "DSP", Version: "61.0"})
	notice := BuildReviewNotice(rel, "https://sheets.example/review")
	require.True(t, strings.HasPrefix(notice, "📋 Release Notes Ready for Review"))
	require.Contains(t, notice, "Line items to review: 1")
	require.Contains(t, notice, "https://sheets.example/review")

	require.Equal(t, "➡️ Tomorrow", Label(StatusDeferred))
	require.Equal(t, "⏳ Pending", Label(StatusPending))
}
