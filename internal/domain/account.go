package domain

import "time"

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusFull     AccountStatus = "full"
	AccountStatusExpired  AccountStatus = "expired"
	AccountStatusError    AccountStatus = "error"
	AccountStatusInactive AccountStatus = "inactive"
)

// Account is a shared account sold by the slot. It carries MaxUsers slots
// which cycle between occupied and free until the account expires.
type Account struct {
	ID         string
	VariantID  string
	MaxUsers   int
	ExpiryDate time.Time
	Status     AccountStatus
	CreatedAt  time.Time
}

// AccountSlot is one seat on a shared account, identified by
// (AccountID, SlotIndex). A free slot has no occupant.
type AccountSlot struct {
	AccountID      string
	SlotIndex      int
	OccupantUserID string
	OccupiedSince  *time.Time
	ReleasedAt     *time.Time
}

// Occupied reports whether the slot currently has an occupant.
func (s AccountSlot) Occupied() bool {
	return s.OccupantUserID != ""
}

const (
	SlotActionAssigned = "assigned"
	SlotActionReleased = "released"
)

// SlotHistory is one append-only record of a slot assignment or release.
type SlotHistory struct {
	ID         string
	AccountID  string
	SlotIndex  int
	UserID     string
	Action     string
	OccurredAt time.Time
}
