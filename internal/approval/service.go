package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/relnotes/internal/shared"
)

// ResetConfirmation must be echoed back before a bulk reset runs.
const ResetConfirmation = "RESET"

const maxCarryoverHops = 5

// RepositoryPort persists releases.
type RepositoryPort interface {
	Get(ctx context.Context, date string) (Release, error)
	// Save writes every given release in one transaction.
	Save(ctx context.Context, releases ...Release) error
}

// Notifier delivers a message to a channel.
type Notifier interface {
	Send(ctx context.Context, message, channel string) error
}

// EventSink receives vote events for asynchronous delivery.
type EventSink interface {
	PublishVote(ctx context.Context, evt VoteEvent) error
}

// AuditPort records vote history.
type AuditPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// MetricsPort observes ledger activity.
type MetricsPort interface {
	ObserveVote(decision string)
	ObserveAnnouncement(result string)
}

// ServiceConfig wires Service dependencies.
type ServiceConfig struct {
	Repo            RepositoryPort
	Locker          shared.Locker
	Notifier        Notifier
	Events          EventSink
	Audit           AuditPort
	Metrics         MetricsPort
	Logger          *slog.Logger
	AnnounceChannel string
	Location        *time.Location
	Clock           func() time.Time
}

// Service orchestrates ledger mutations under a per-release lock.
type Service struct {
	repo     RepositoryPort
	locker   shared.Locker
	notifier Notifier
	events   EventSink
	audit    AuditPort
	metrics  MetricsPort
	logger   *slog.Logger
	channel  string
	loc      *time.Location
	clock    func() time.Time
}

// NewService constructs the approval service.
func NewService(cfg ServiceConfig) *Service {
	svc := &Service{
		repo:     cfg.Repo,
		locker:   cfg.Locker,
		notifier: cfg.Notifier,
		events:   cfg.Events,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		channel:  cfg.AnnounceChannel,
		loc:      cfg.Location,
		clock:    cfg.Clock,
	}
	if svc.locker == nil {
		svc.locker = shared.NewKeyedMutex()
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	return svc
}

// StatusReport is the read-only status surface.
type StatusReport struct {
	Date  string `json:"date"`
	Title string `json:"title"`
	Stats
	Announced bool `json:"announced"`
	Ready     bool `json:"ready_to_announce"`
}

// SeedInput describes a ledger population request.
type SeedInput struct {
	Date  time.Time
	Title string
	TLDR  string
	Items []Seed
}

// VoteInput describes a reviewer decision.
type VoteInput struct {
	Date     string
	Name     string
	Decision Status
	Voter    string
}

// Release loads the ledger for date.
func (s *Service) Release(ctx context.Context, date string) (Release, error) {
	return s.repo.Get(ctx, date)
}

// Status returns aggregate counters and the readiness flag.
func (s *Service) Status(ctx context.Context, date string) (StatusReport, error) {
	rel, err := s.repo.Get(ctx, date)
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		Date:      rel.Date,
		Title:     rel.Title,
		Stats:     ComputeStats(rel),
		Announced: rel.Announced,
		Ready:     IsReadyToAnnounce(rel) && !rel.Announced,
	}, nil
}

// Seed creates the release for a date or appends newly extracted items to it.
func (s *Service) Seed(ctx context.Context, input SeedInput) (Release, int, error) {
	key := input.Date.Format(DateLayout)
	unlock, err := s.locker.Lock(ctx, shared.ReleaseLockKey(key))
	if err != nil {
		return Release{}, 0, err
	}
	defer unlock()

	rel, err := s.loadOrCreate(ctx, input.Date, input.Title)
	if err != nil {
		return Release{}, 0, err
	}
	if rel.Announced {
		return rel, 0, ErrAlreadyAnnounced
	}
	next := rel.Clone()
	added := next.AddSeeds(input.Items)
	if tldr := strings.TrimSpace(input.TLDR); tldr != "" {
		next.TLDR = tldr
	}
	if title := strings.TrimSpace(input.Title); title != "" {
		next.Title = title
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return Release{}, 0, fmt.Errorf("approval: save seeded release: %w", err)
	}
	s.logger.Info("release seeded", slog.String("date", next.Date), slog.Int("added", added), slog.Int("items", len(next.Items)))
	return next, added, nil
}

// Vote records a decision and queues a carryover for rejected or deferred items.
func (s *Service) Vote(ctx context.Context, input VoteInput) (LineItem, error) {
	date, err := ParseDate(input.Date)
	if err != nil {
		return LineItem{}, err
	}
	unlock, err := s.locker.Lock(ctx, shared.ReleaseLockKey(input.Date))
	if err != nil {
		return LineItem{}, err
	}
	defer unlock()

	rel, err := s.repo.Get(ctx, input.Date)
	if err != nil {
		return LineItem{}, err
	}
	now := s.clock()
	next := rel.Clone()
	item, err := next.RecordVote(input.Name, input.Decision, input.Voter, now)
	if err != nil {
		return item, err
	}

	toSave := []Release{next}
	if NeedsCarryover(item.Status) {
		// Announced follow-up releases are sealed, so the carryover moves on to the next open day.
		followDate := date
		placed := false
		for attempt := 0; attempt < maxCarryoverHops && !placed; attempt++ {
			followDate = NextBusinessDay(followDate)
			unlockFollow, err := s.locker.Lock(ctx, shared.ReleaseLockKey(followDate.Format(DateLayout)))
			if err != nil {
				return LineItem{}, err
			}
			defer unlockFollow()
			follow, err := s.loadOrCreate(ctx, followDate, "")
			if err != nil {
				return LineItem{}, err
			}
			if follow.Announced {
				continue
			}
			follow = follow.Clone()
			if follow.AddCarryover(NewCarryover(item)) {
				toSave = append(toSave, follow)
			}
			placed = true
		}
		if !placed {
			s.logger.Error("carryover has no open release",
				slog.String("date", input.Date),
				slog.String("item", item.Name),
				slog.String("last_tried", followDate.Format(DateLayout)),
			)
			return LineItem{}, fmt.Errorf("%w: %s after %s", ErrNoCarryoverTarget, item.Name, input.Date)
		}
	}
	if err := s.repo.Save(ctx, toSave...); err != nil {
		return LineItem{}, fmt.Errorf("approval: save vote: %w", err)
	}

	evt := VoteEvent{
		ReleaseDate: next.Date,
		Name:        item.Name,
		Version:     item.Version,
		Summary:     item.Summary,
		Decision:    item.Status,
		Voter:       item.VotedBy,
		At:          now,
	}
	s.afterVote(ctx, next, item, evt)
	return item, nil
}

// VoteAt records a decision for the item at a ledger position.
func (s *Service) VoteAt(ctx context.Context, date string, position int, decision Status, voter string) (LineItem, error) {
	rel, err := s.repo.Get(ctx, date)
	if err != nil {
		return LineItem{}, err
	}
	if position < 0 || position >= len(rel.Items) {
		return LineItem{}, fmt.Errorf("%w: position %d", ErrItemNotFound, position)
	}
	return s.Vote(ctx, VoteInput{Date: date, Name: rel.Items[position].Name, Decision: decision, Voter: voter})
}

// Reset returns one item to pending.
func (s *Service) Reset(ctx context.Context, date, name, actor string) (LineItem, error) {
	unlock, err := s.locker.Lock(ctx, shared.ReleaseLockKey(date))
	if err != nil {
		return LineItem{}, err
	}
	defer unlock()

	rel, err := s.repo.Get(ctx, date)
	if err != nil {
		return LineItem{}, err
	}
	next := rel.Clone()
	item, err := next.Reset(name)
	if err != nil {
		return LineItem{}, err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return LineItem{}, fmt.Errorf("approval: save reset: %w", err)
	}
	s.record(ctx, shared.ApprovalLog{RefID: item.ID, Actor: actor, Action: shared.ApprovalReset, Note: item.Name})
	return item, nil
}

// ResetAll returns every item to pending. The confirmation token must match ResetConfirmation.
func (s *Service) ResetAll(ctx context.Context, date, confirm, actor string) (int, error) {
	if confirm != ResetConfirmation {
		return 0, ErrConfirmationRequired
	}
	unlock, err := s.locker.Lock(ctx, shared.ReleaseLockKey(date))
	if err != nil {
		return 0, err
	}
	defer unlock()

	rel, err := s.repo.Get(ctx, date)
	if err != nil {
		return 0, err
	}
	next := rel.Clone()
	changed, err := next.ResetAll()
	if err != nil {
		return 0, err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return 0, fmt.Errorf("approval: save bulk reset: %w", err)
	}
	s.logger.Warn("release reset", slog.String("date", date), slog.String("actor", actor), slog.Int("changed", changed))
	s.record(ctx, shared.ApprovalLog{RefID: next.ID, Actor: actor, Action: shared.ApprovalReset, Note: fmt.Sprintf("bulk reset of %d items", changed)})
	return changed, nil
}

// Announce delivers the announcement and seals the release only after delivery succeeds.
func (s *Service) Announce(ctx context.Context, date, by string) (Message, error) {
	unlock, err := s.locker.Lock(ctx, shared.ReleaseLockKey(date))
	if err != nil {
		return Message{}, err
	}
	defer unlock()

	rel, err := s.repo.Get(ctx, date)
	if err != nil {
		return Message{}, err
	}
	if err := CheckAnnounceable(rel); err != nil {
		s.observeAnnouncement(resultFor(err))
		return Message{}, err
	}

	now := s.clock()
	msg := BuildAnnouncement(rel, now.In(s.loc))
	if s.notifier == nil {
		s.observeAnnouncement("delivery_failed")
		return Message{}, fmt.Errorf("%w: notifier not configured", ErrDeliveryFailed)
	}
	if err := s.notifier.Send(ctx, msg.Text, s.channel); err != nil {
		s.observeAnnouncement("delivery_failed")
		s.logger.Error("announcement delivery", slog.String("date", date), slog.Any("error", err))
		if errors.Is(err, ErrDeliveryFailed) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	next := rel.Clone()
	if err := next.MarkAnnounced(by, now); err != nil {
		return Message{}, err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		s.logger.Error("announcement delivered but release not sealed", slog.String("date", date), slog.Any("error", err))
		return msg, fmt.Errorf("approval: save announcement: %w", err)
	}
	s.observeAnnouncement("announced")
	s.record(ctx, shared.ApprovalLog{RefID: next.ID, Actor: by, Action: shared.ApprovalAnnounce, Note: next.Title})
	s.logger.Info("release announced", slog.String("date", date), slog.String("by", by))
	return msg, nil
}

func (s *Service) loadOrCreate(ctx context.Context, date time.Time, title string) (Release, error) {
	rel, err := s.repo.Get(ctx, date.Format(DateLayout))
	if err == nil {
		return rel, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Release{}, err
	}
	return NewRelease(date, title, s.clock()), nil
}

func (s *Service) afterVote(ctx context.Context, rel Release, item LineItem, evt VoteEvent) {
	if s.metrics != nil {
		s.metrics.ObserveVote(strings.ToLower(string(item.Status)))
	}
	s.record(ctx, shared.ApprovalLog{RefID: item.ID, Actor: item.VotedBy, Action: actionFor(item.Status), Note: item.Name, At: evt.At})
	if s.events != nil {
		if err := s.events.PublishVote(ctx, evt); err != nil {
			s.logger.Warn("publish vote event", slog.String("item", item.Name), slog.Any("error", err))
		}
	}
	stats := ComputeStats(rel)
	s.logger.Info("vote recorded",
		slog.String("date", rel.Date),
		slog.String("item", item.Name),
		slog.String("decision", string(item.Status)),
		slog.String("voter", item.VotedBy),
		slog.Int("pending", stats.Pending),
		slog.Bool("ready", IsReadyToAnnounce(rel)),
	)
}

func (s *Service) record(ctx context.Context, log shared.ApprovalLog) {
	if s.audit == nil {
		return
	}
	log.Module = "release"
	if log.Actor == "" {
		log.Actor = "system"
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record approval history", slog.Any("error", err))
	}
}

func (s *Service) observeAnnouncement(result string) {
	if s.metrics != nil {
		s.metrics.ObserveAnnouncement(result)
	}
}

func actionFor(status Status) shared.ApprovalAction {
	switch status {
	case StatusApproved:
		return shared.ApprovalApprove
	case StatusRejected:
		return shared.ApprovalReject
	default:
		return shared.ApprovalDefer
	}
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyAnnounced):
		return "already_announced"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrNoApprovedItems):
		return "no_approved_items"
	}
	return "error"
}
