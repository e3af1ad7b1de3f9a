package domain

import "time"

// Audit actions emitted by the engine. The sink owns delivery and any
// tamper-evidence (hash chaining); the engine only describes what happened.
const (
	AuditReservationHeld     = "reservation.held"
	AuditReservationCommit   = "reservation.committed"
	AuditReservationReleased = "reservation.released"
	AuditReservationExpired  = "reservation.expired"
	AuditKeySold             = "key.sold"
	AuditKeyRecalled         = "key.recalled"
	AuditKeyError            = "key.error"
	AuditKeyExpired          = "key.expired"
	AuditKeyImported         = "key.imported"
	AuditSlotAssigned        = "slot.assigned"
	AuditSlotReleased        = "slot.released"
	AuditAccountCreated      = "account.created"
	AuditAccountExtended     = "account.extended"
	AuditAccountExpired      = "account.expired"
)

// AuditEvent is one append-only record of a state change.
type AuditEvent struct {
	ID         string
	Action     string
	EntityID   string
	OccurredAt time.Time
	Detail     map[string]string
}
