package approval

import "errors"

var (
	// ErrAlreadyDecided rejects a second vote on an item.
	ErrAlreadyDecided = errors.New("approval: item already decided")
	// ErrAlreadyAnnounced rejects a duplicate announcement.
	ErrAlreadyAnnounced = errors.New("approval: release already announced")
	// ErrNotReady indicates pending items remain.
	ErrNotReady = errors.New("approval: release has pending items")
	// ErrNoApprovedItems indicates every item was rejected or deferred.
	ErrNoApprovedItems = errors.New("approval: release has no approved items")
	// ErrDeliveryFailed indicates the notifier did not confirm delivery.
	ErrDeliveryFailed = errors.New("approval: announcement delivery failed")
	// ErrNoCarryoverTarget indicates every follow-up release within reach is already announced.
	ErrNoCarryoverTarget = errors.New("approval: no open release for carryover")

	ErrNotFound             = errors.New("approval: release not found")
	ErrItemNotFound         = errors.New("approval: item not found")
	ErrInvalidDecision      = errors.New("approval: invalid decision")
	ErrVoterRequired        = errors.New("approval: voter required")
	ErrInvalidItem          = errors.New("approval: invalid item")
	ErrInvalidDate          = errors.New("approval: invalid date")
	ErrDuplicateItem        = errors.New("approval: duplicate item")
	ErrConfirmationRequired = errors.New("approval: reset requires confirmation")
)
