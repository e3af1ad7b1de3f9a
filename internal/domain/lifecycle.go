package domain

// Closed transition tables for every status field the engine mutates.
// Repositories enforce the same rules in SQL via conditional updates; the
// tables here are the single place the rules are written down, so services
// can refuse an illegal transition before touching the store.

var keyTransitions = map[KeyStatus][]KeyStatus{
	KeyStatusAvailable: {KeyStatusReserved, KeyStatusSold, KeyStatusRecalled, KeyStatusError, KeyStatusExpired},
	KeyStatusReserved:  {KeyStatusAvailable, KeyStatusSold, KeyStatusRecalled, KeyStatusError},
	// sold, recalled, error and expired are terminal.
}

var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountStatusActive:  {AccountStatusFull, AccountStatusExpired, AccountStatusError, AccountStatusInactive},
	AccountStatusFull:    {AccountStatusActive, AccountStatusExpired, AccountStatusError, AccountStatusInactive},
	AccountStatusExpired: {AccountStatusActive, AccountStatusError},
	// error and inactive are terminal for this engine.
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusHeld: {ReservationStatusCommitted, ReservationStatusReleased, ReservationStatusExpired},
}

// CanKeyTransition reports whether a key may move between the two statuses.
func CanKeyTransition(from, to KeyStatus) bool {
	return containsStatus(keyTransitions[from], to)
}

// CanAccountTransition reports whether an account may move between the two statuses.
func CanAccountTransition(from, to AccountStatus) bool {
	return containsStatus(accountTransitions[from], to)
}

// CanReservationTransition reports whether a reservation may move between the two statuses.
func CanReservationTransition(from, to ReservationStatus) bool {
	return containsStatus(reservationTransitions[from], to)
}

func containsStatus[S comparable](allowed []S, to S) bool {
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// SideEffect describes follow-up work a transition requires. Effects are
// returned as data so callers execute them inside their own transaction and
// tests can assert on them directly.
type SideEffect string

const (
	EffectAccountBecameFull   SideEffect = "account_became_full"
	EffectAccountBecameActive SideEffect = "account_became_active"
	EffectReleaseAllSlots     SideEffect = "release_all_slots"
)

type AccountEvent string

const (
	AccountEventOccupy AccountEvent = "occupy"
	AccountEventVacate AccountEvent = "vacate"
	AccountEventExpire AccountEvent = "expire"
	AccountEventExtend AccountEvent = "extend"
)

// ApplyAccountEvent computes the account status after an occupancy or
// lifecycle event. occupiedAfter is the slot count once the event's own
// slot mutation has been applied.
func ApplyAccountEvent(status AccountStatus, ev AccountEvent, occupiedAfter, maxUsers int) (AccountStatus, []SideEffect, error) {
	switch ev {
	case AccountEventOccupy:
		if status != AccountStatusActive {
			return status, nil, ErrInvalidTransition
		}
		if occupiedAfter > maxUsers {
			return status, nil, ErrAccountFull
		}
		if occupiedAfter == maxUsers {
			return AccountStatusFull, []SideEffect{EffectAccountBecameFull}, nil
		}
		return AccountStatusActive, nil, nil
	case AccountEventVacate:
		if status != AccountStatusActive && status != AccountStatusFull {
			return status, nil, ErrInvalidTransition
		}
		if status == AccountStatusFull {
			return AccountStatusActive, []SideEffect{EffectAccountBecameActive}, nil
		}
		return status, nil, nil
	case AccountEventExpire:
		if !CanAccountTransition(status, AccountStatusExpired) {
			return status, nil, ErrInvalidTransition
		}
		return AccountStatusExpired, []SideEffect{EffectReleaseAllSlots}, nil
	case AccountEventExtend:
		if status == AccountStatusExpired {
			return AccountStatusActive, []SideEffect{EffectAccountBecameActive}, nil
		}
		if status != AccountStatusActive && status != AccountStatusFull {
			return status, nil, ErrInvalidTransition
		}
		return status, nil, nil
	default:
		return status, nil, ErrInvalidTransition
	}
}
