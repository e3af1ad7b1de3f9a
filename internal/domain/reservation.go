package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// Reservation is a time-boxed, quantity-based claim on a variant's capacity.
// It is not bound to specific units until committed.
type Reservation struct {
	ID        string
	OrderID   string
	VariantID string
	Quantity  int
	Status    ReservationStatus
	HeldUntil time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the reservation can no longer change state.
func (r Reservation) Terminal() bool {
	return r.Status != ReservationStatusHeld
}
