package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the civil date format used to key releases.
const DateLayout = "2006-01-02"

// Status is the review state of a single line item.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusDeferred Status = "DEFERRED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDeferred:
		return true
	}
	return false
}

// Decided reports whether s is a terminal decision.
func (s Status) Decided() bool {
	return s.Valid() && s != StatusPending
}

// ParseDecision accepts the decision names used by the API and CLI.
func ParseDecision(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return StatusApproved, nil
	case "reject", "rejected":
		return StatusRejected, nil
	case "defer", "deferred", "tomorrow":
		return StatusDeferred, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDecision, raw)
}

// LineItem is one deployable unit within a release.
type LineItem struct {
	ID          uuid.UUID
	Position    int
	Name        string
	Version     string
	Summary     string
	Status      Status
	VotedBy     string
	VotedAt     *time.Time
	CarriedFrom *uuid.UUID
}

// Validate checks the vote metadata invariant.
func (i LineItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%w: item name required", ErrInvalidItem)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidItem, i.Status)
	}
	voted := i.VotedBy != "" && i.VotedAt != nil
	unvoted := i.VotedBy == "" && i.VotedAt == nil
	if i.Status == StatusPending && !unvoted {
		return fmt.Errorf("%w: pending item %q carries vote metadata", ErrInvalidItem, i.Name)
	}
	if i.Status != StatusPending && !voted {
		return fmt.Errorf("%w: decided item %q missing vote metadata", ErrInvalidItem, i.Name)
	}
	return nil
}

// Release is the ordered ledger of line items sharing one release date.
type Release struct {
	ID          uuid.UUID
	Date        string
	Title       string
	TLDR        string
	Items       []LineItem
	Announced   bool
	AnnouncedAt *time.Time
	AnnouncedBy string
	CreatedAt   time.Time
}

// NewRelease builds an empty release for the given civil date.
func NewRelease(date time.Time, title string, now time.Time) Release {
	if strings.TrimSpace(title) == "" {
		title = FormatTitle(date)
	}
	return Release{
		ID:        uuid.New(),
		Date:      date.Format(DateLayout),
		Title:     title,
		CreatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (r Release) Clone() Release {
	out := r
	out.Items = make([]LineItem, len(r.Items))
	for idx, item := range r.Items {
		if item.VotedAt != nil {
			at := *item.VotedAt
			item.VotedAt = &at
		}
		if item.CarriedFrom != nil {
			from := *item.CarriedFrom
			item.CarriedFrom = &from
		}
		out.Items[idx] = item
	}
	if r.AnnouncedAt != nil {
		at := *r.AnnouncedAt
		out.AnnouncedAt = &at
	}
	return out
}

// Item returns the item with the given name.
func (r *Release) Item(name string) (*LineItem, bool) {
	key := normalizeName(name)
	for idx := range r.Items {
		if normalizeName(r.Items[idx].Name) == key {
			return &r.Items[idx], true
		}
	}
	return nil, false
}

// Seed is an extracted line item before it enters a ledger.
type Seed struct {
	Name    string
	Version string
	Summary string
}

// WellFormed reports whether the seed can become a line item.
func (s Seed) WellFormed() bool {
	return strings.TrimSpace(s.Name) != "" && strings.TrimSpace(s.Version) != "" && !IsStructuralName(s.Name)
}

// Extraction is the output of any extractor.
type Extraction struct {
	ReleaseDate string
	TLDR        string
	Items       []Seed
}

// Stats aggregates item counts by status.
type Stats struct {
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Deferred int `json:"deferred"`
	Pending  int `json:"pending"`
	Total    int `json:"total"`
}

// VoteEvent describes a recorded decision.
type VoteEvent struct {
	ReleaseDate string    `json:"release_date"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Summary     string    `json:"summary"`
	Decision    Status    `json:"decision"`
	Voter       string    `json:"voter"`
	At          time.Time `json:"at"`
}

// IsStructuralName reports whether a row label is a separator or header rather than an item.
func IsStructuralName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return true
	}
	for _, prefix := range []string{"━", "---", "📅", "PL Name"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// FormatTitle renders a date as "19th October 2026".
func FormatTitle(date time.Time) string {
	return fmt.Sprintf("%d%s %s", date.Day(), daySuffix(date.Day()), date.Format("January 2006"))
}

// NextBusinessDay returns the next weekday after date.
func NextBusinessDay(date time.Time) time.Time {
	next := date.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ParseDate parses a civil release date.
func ParseDate(raw string) (time.Time, error) {
	date, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: release date %q", ErrInvalidDate, raw)
	}
	return date, nil
}

func daySuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
