package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordVote moves a pending item to the given decision.
// The release is left untouched when any precondition fails.
func (r *Release) RecordVote(name string, decision Status, voter string, now time.Time) (LineItem, error) {
	if !decision.Decided() {
		return LineItem{}, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
	voter = strings.TrimSpace(voter)
	if voter == "" {
		return LineItem{}, ErrVoterRequired
	}
	item, ok := r.Item(name)
	if !ok {
		return LineItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	if item.Status != StatusPending {
		return *item, fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, item.Name, strings.ToLower(string(item.Status)))
	}
	at := now
	item.Status = decision
	item.VotedBy = voter
	item.VotedAt = &at
	return *item, nil
}

// Reset returns a single item to pending.
func (r *Release) Reset(name string) (LineItem, error) {
	if r.Announced {
		return LineItem{}, ErrAlreadyAnnounced
	}
	item, ok := r.Item(name)
	if !ok {
		return LineItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	clearVote(item)
	return *item, nil
}

// ResetAll forces every item back to pending and returns how many changed.
func (r *Release) ResetAll() (int, error) {
	if r.Announced {
		return 0, ErrAlreadyAnnounced
	}
	changed := 0
	for idx := range r.Items {
		if r.Items[idx].Status != StatusPending {
			changed++
		}
		clearVote(&r.Items[idx])
	}
	return changed, nil
}

// AddSeeds appends well-formed seeds whose names are not yet present.
func (r *Release) AddSeeds(seeds []Seed) int {
	added := 0
	for _, seed := range seeds {
		if !seed.WellFormed() {
			continue
		}
		if _, exists := r.Item(seed.Name); exists {
			continue
		}
		r.Items = append(r.Items, LineItem{
			ID:       uuid.New(),
			Position: len(r.Items),
			Name:     strings.TrimSpace(seed.Name),
			Version:  strings.TrimSpace(seed.Version),
			Summary:  strings.TrimSpace(seed.Summary),
			Status:   StatusPending,
		})
		added++
	}
	return added
}

// AddCarryover appends a carryover item unless the name is already queued.
func (r *Release) AddCarryover(item LineItem) bool {
	if _, exists := r.Item(item.Name); exists {
		return false
	}
	item.Position = len(r.Items)
	r.Items = append(r.Items, item)
	return true
}

// NewCarryover copies a rejected or deferred item into a fresh pending item.
func NewCarryover(item LineItem) LineItem {
	from := item.ID
	return LineItem{
		ID:          uuid.New(),
		Name:        item.Name,
		Version:     item.Version,
		Summary:     item.Summary,
		Status:      StatusPending,
		CarriedFrom: &from,
	}
}

// NeedsCarryover reports whether a decision re-queues the item.
func NeedsCarryover(decision Status) bool {
	return decision == StatusRejected || decision == StatusDeferred
}

func clearVote(item *LineItem) {
	item.Status = StatusPending
	item.VotedBy = ""
	item.VotedAt = nil
}
