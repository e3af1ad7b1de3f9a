package domain

import "errors"

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrStockRace           = errors.New("lost stock race")
	ErrSlotRace            = errors.New("lost slot race")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationConflict = errors.New("reservation conflict")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInvalidExpiry       = errors.New("invalid expiry")
	ErrAccountFull         = errors.New("account full")
	ErrAccountNotFound     = errors.New("account not found")
	ErrKeyNotFound         = errors.New("key not found")
	ErrVariantNotFound     = errors.New("variant not found")
	ErrDuplicateKeyString  = errors.New("duplicate key string")
	ErrUserAlreadyAssigned = errors.New("user already assigned")
	ErrOccupantNotFound    = errors.New("occupant not found")
	ErrUserIDRequired      = errors.New("user id required")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidUnitKind     = errors.New("invalid unit kind")
	ErrVariantNameRequired = errors.New("variant name required")
	ErrInvalidMaxUsers     = errors.New("invalid max users")
	ErrKeyStringsRequired  = errors.New("key strings required")
)
