package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

var runDate = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

type stubExtractor struct {
	calls  atomic.Int32
	gate   chan struct{}
	result approval.Extraction
	err    error
}

func (s *stubExtractor) Extract(_ context.Context, _ time.Time) (approval.Extraction, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.result, s.err
}

type memorySeeder struct {
	mu  sync.Mutex
	rel *approval.Release
	err error
}

func (m *memorySeeder) Seed(_ context.Context, input approval.SeedInput) (approval.Release, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return approval.Release{}, 0, m.err
	}
	if m.rel == nil {
		rel := approval.NewRelease(input.Date, input.Title, time.Now())
		m.rel = &rel
	}
	if m.rel.Announced {
		return *m.rel, 0, approval.ErrAlreadyAnnounced
	}
	added := m.rel.AddSeeds(input.Items)
	return m.rel.Clone(), added, nil
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (c *captureNotifier) Send(_ context.Context, message, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	return nil
}

type stubPublisher struct {
	published int
	err       error
}

func (s *stubPublisher) Publish(_ context.Context, _ approval.Release) error {
	s.published++
	return s.err
}

func (s *stubPublisher) URL() string { return "https://docs.google.com/spreadsheets/d/sheet" }

func newRunner(ex Extractor, seeder Seeder, n approval.Notifier, pub Publisher) *Runner {
	return NewRunner(Config{
		Extractor: ex,
		Seeder:    seeder,
		Notifier:  n,
		Publisher: pub,
		Channel:   "#releases",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRunSeedsAndSendsReviewNotice(t *testing.T) {
	ex := &stubExtractor{result: approval.Extraction{TLDR: "DSP: faster", Items: []approval.Seed{
		{Name: "DSP", Version: "61.0", Summary: "faster"},
		{Name: "Helix", Version: "3.0"},
	}}}
	seeder := &memorySeeder{}
	notifier := &captureNotifier{}
	pub := &stubPublisher{}

	res, err := newRunner(ex, seeder, notifier, pub).Run(context.Background(), runDate)
	require.NoError(t, err)
	require.Equal(t, Result{Date: "2026-10-19", Extracted: 2, Added: 2, Items: 2}, res)
	require.Equal(t, 1, pub.published)
	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[0], "Release Notes Ready for Review")
	require.Contains(t, notifier.messages[0], "https://docs.google.com/spreadsheets/d/sheet")
}

func TestRunWithoutItemsSendsNoReleaseNotice(t *testing.T) {
	notifier := &captureNotifier{}
	res, err := newRunner(&stubExtractor{}, &memorySeeder{}, notifier, nil).Run(context.Background(), runDate)
	require.NoError(t, err)
	require.True(t, res.NoRelease)
	require.Equal(t, []string{"No release planned for today (19th October 2026)."}, notifier.messages)
}

func TestRunRefreshAddsOnlyNewItems(t *testing.T) {
	seeder := &memorySeeder{}
	notifier := &captureNotifier{}
	ex := &stubExtractor{result: approval.Extraction{Items: []approval.Seed{{Name: "DSP", Version: "61.0"}}}}
	runner := newRunner(ex, seeder, notifier, nil)

	_, err := runner.Run(context.Background(), runDate)
	require.NoError(t, err)
	res, err := runner.Run(context.Background(), runDate)
	require.NoError(t, err)
	require.Equal(t, 0, res.Added)
	require.Len(t, notifier.messages, 1)

	ex.result.Items = append(ex.result.Items, approval.Seed{Name: "Helix", Version: "3.0"})
	res, err = runner.Run(context.Background(), runDate)
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)
	require.Equal(t, 2, res.Items)
	require.Len(t, notifier.messages, 2)
}

func TestRunSkipsAnnouncedRelease(t *testing.T) {
	rel := approval.NewRelease(runDate, "", time.Now())
	rel.Announced = true
	seeder := &memorySeeder{rel: &rel}
	ex := &stubExtractor{result: approval.Extraction{Items: []approval.Seed{{Name: "DSP", Version: "61.0"}}}}

	res, err := newRunner(ex, seeder, &captureNotifier{}, nil).Run(context.Background(), runDate)
	require.NoError(t, err)
	require.True(t, res.Sealed)
}

func TestRunPropagatesExtractionErrors(t *testing.T) {
	ex := &stubExtractor{err: errors.New("jira down")}
	_, err := newRunner(ex, &memorySeeder{}, &captureNotifier{}, nil).Run(context.Background(), runDate)
	require.ErrorContains(t, err, "jira down")
}

func TestRunPublishFailureStillNotifies(t *testing.T) {
	ex := &stubExtractor{result: approval.Extraction{Items: []approval.Seed{{Name: "DSP", Version: "61.0"}}}}
	notifier := &captureNotifier{}
	pub := &stubPublisher{err: errors.New("quota")}
	_, err := newRunner(ex, &memorySeeder{}, notifier, pub).Run(context.Background(), runDate)
	require.NoError(t, err)
	require.Len(t, notifier.messages, 1)
	require.NotContains(t, notifier.messages[0], "spreadsheets")
}

func TestConcurrentRunsForSameDateShareExecution(t *testing.T) {
	ex := &stubExtractor{gate: make(chan struct{}), result: approval.Extraction{Items: []approval.Seed{{Name: "DSP", Version: "61.0"}}}}
	runner := newRunner(ex, &memorySeeder{}, &captureNotifier{}, nil)

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := runner.Run(context.Background(), runDate)
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	require.Eventually(t, func() bool { return ex.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(ex.gate)
	wg.Wait()

	require.Equal(t, int32(1), ex.calls.Load())
	for _, res := range results {
		require.Equal(t, 1, res.Added)
	}
}

func TestRunHonoursCallerCancellation(t *testing.T) {
	ex := &stubExtractor{gate: make(chan struct{})}
	runner := newRunner(ex, &memorySeeder{}, &captureNotifier{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := runner.Run(ctx, runDate)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	close(ex.gate)
}

func TestTriggerRunWithoutExtractor(t *testing.T) {
	runner := NewRunner(Config{Seeder: &memorySeeder{}, Notifier: &captureNotifier{}})
	require.ErrorIs(t, runner.TriggerRun(context.Background(), runDate), ErrNoExtractor)

	ex := &stubExtractor{result: approval.Extraction{Items: []approval.Seed{{Name: "DSP", Version: "61.0"}}}}
	require.NoError(t, newRunner(ex, &memorySeeder{}, &captureNotifier{}, nil).TriggerRun(context.Background(), runDate))
}
