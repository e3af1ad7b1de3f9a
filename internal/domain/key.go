package domain

import "time"

type KeyStatus string

const (
	KeyStatusAvailable KeyStatus = "available"
	KeyStatusReserved  KeyStatus = "reserved"
	KeyStatusSold      KeyStatus = "sold"
	KeyStatusError     KeyStatus = "error"
	KeyStatusRecalled  KeyStatus = "recalled"
	KeyStatusExpired   KeyStatus = "expired"
)

type KeyKind string

const (
	KeyKindIndividual KeyKind = "individual"
	KeyKindPool       KeyKind = "pool"
)

// Key is a one-shot product key. Once sold it stays bound to its order
// for the rest of its lifetime.
type Key struct {
	ID              string
	VariantID       string
	SupplierID      string
	KeyString       string
	Kind            KeyKind
	Status          KeyStatus
	ExpiryDate      *time.Time
	AssignedOrderID string
	ImportedAt      time.Time
}
