package domain

import "time"

type UnitKind string

const (
	UnitKindKey         UnitKind = "key"
	UnitKindAccountSlot UnitKind = "account_slot"
)

// Variant is a sellable product variant. Its unit kind decides whether
// stock is backed by one-shot keys or by slots on shared accounts.
type Variant struct {
	ID             string
	Name           string
	UnitKind       UnitKind
	MinRenewalDays int
	CreatedAt      time.Time
}

// MinRenewal is the smallest duration an expiry extension must add.
func (v Variant) MinRenewal() time.Duration {
	return time.Duration(v.MinRenewalDays) * 24 * time.Hour
}
