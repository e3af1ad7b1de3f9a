package app

import (
	"context"
	"time"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/audit"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/clock"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/metrics"
)

type InventoryRepository interface {
	GetKey(ctx context.Context, keyID string) (domain.Key, error)
	// SellAvailableKeys atomically selects up to quantity available keys
	// (FIFO by import time), flips them to sold and stamps the order id.
	// Returning fewer rows than requested means a concurrent allocator or
	// admin action won; the caller decides whether that is a race.
	SellAvailableKeys(ctx context.Context, variantID, orderID string, quantity int) ([]domain.Key, error)
	// TerminateKey applies an administrative terminal status. The update is
	// conditional on the key still being in a non-terminal status.
	TerminateKey(ctx context.Context, keyID string, from, to domain.KeyStatus) (bool, error)
}

type AccountRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetAccountForUpdate(ctx context.Context, accountID string) (domain.Account, error)
	GetVariant(ctx context.Context, variantID string) (domain.Variant, error)
	FindUserSlot(ctx context.Context, accountID, userID string) (*domain.AccountSlot, error)
	// OccupySlot claims the lowest free slot on the given account,
	// conditional on the slot still being free.
	OccupySlot(ctx context.Context, accountID, userID string, now time.Time) (domain.AccountSlot, bool, error)
	// OccupyPackedSlot claims one free slot on whichever live account for
	// the variant has the fewest free slots left.
	OccupyPackedSlot(ctx context.Context, variantID, userID string, now time.Time) (domain.AccountSlot, bool, error)
	ReleaseUserSlot(ctx context.Context, accountID, userID string, now time.Time) (domain.AccountSlot, bool, error)
	CountOccupied(ctx context.Context, accountID string) (int, error)
	UpdateAccountStatus(ctx context.Context, accountID string, from, to domain.AccountStatus) (bool, error)
	UpdateAccountExpiry(ctx context.Context, accountID string, expiry time.Time) error
	AppendSlotHistory(ctx context.Context, record domain.SlotHistory) error
}

// Allocator is the only component that mutates unit status. Every transition
// goes through a conditional update keyed on the current status or occupant,
// so losing a race surfaces as ErrStockRace/ErrSlotRace instead of a
// double allocation.
type Allocator struct {
	inv      InventoryRepository
	accounts AccountRepository
	clock    clock.Clock
	audit    audit.Sink
}

func NewAllocator(inv InventoryRepository, accounts AccountRepository, clk clock.Clock, sink audit.Sink) *Allocator {
	return &Allocator{
		inv:      inv,
		accounts: accounts,
		clock:    clk,
		audit:    sink,
	}
}

// BindKeys sells quantity keys of the variant to the order. Runs inside the
// caller's transaction; a short grab aborts it so nothing is half-sold.
func (a *Allocator) BindKeys(ctx context.Context, orderID, variantID string, quantity int) ([]domain.Key, error) {
	keys, err := a.inv.SellAvailableKeys(ctx, variantID, orderID, quantity)
	if err != nil {
		return nil, err
	}
	if len(keys) < quantity {
		metrics.AllocationRaces.WithLabelValues("key").Inc()
		return nil, domain.ErrStockRace
	}

	now := a.clock.Now()
	metrics.KeysSold.Add(float64(len(keys)))
	for _, key := range keys {
		a.audit.Emit(domain.AuditEvent{
			ID:         newID(),
			Action:     domain.AuditKeySold,
			EntityID:   key.ID,
			OccurredAt: now,
			Detail: map[string]string{
				"order_id":   orderID,
				"variant_id": variantID,
			},
		})
	}
	return keys, nil
}

// BindSlots assigns the customer to quantity free slots across the
// variant's accounts, packing partially-occupied accounts first.
func (a *Allocator) BindSlots(ctx context.Context, variantID, userID string, quantity int) ([]domain.AccountSlot, error) {
	now := a.clock.Now()
	slots := make([]domain.AccountSlot, 0, quantity)

	for i := 0; i < quantity; i++ {
		slot, ok, err := a.accounts.OccupyPackedSlot(ctx, variantID, userID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			metrics.AllocationRaces.WithLabelValues("slot").Inc()
			return nil, domain.ErrSlotRace
		}
		if err := a.afterOccupy(ctx, slot, userID, now); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}

	metrics.SlotsAssigned.Add(float64(len(slots)))
	return slots, nil
}

// AssignCustomerToAccount puts the customer on a specific account, used by
// admin/support flows outside checkout.
func (a *Allocator) AssignCustomerToAccount(ctx context.Context, accountID, userID string) (domain.AccountSlot, error) {
	if accountID == "" {
		return domain.AccountSlot{}, domain.ErrInvalidID
	}
	if userID == "" {
		return domain.AccountSlot{}, domain.ErrUserIDRequired
	}

	now := a.clock.Now()
	var result domain.AccountSlot

	err := a.accounts.WithTx(ctx, func(txCtx context.Context) error {
		acc, err := a.accounts.GetAccountForUpdate(txCtx, accountID)
		if err != nil {
			return err
		}
		switch acc.Status {
		case domain.AccountStatusActive:
		case domain.AccountStatusFull:
			return domain.ErrAccountFull
		default:
			return domain.ErrInvalidTransition
		}

		if existing, err := a.accounts.FindUserSlot(txCtx, accountID, userID); err != nil {
			return err
		} else if existing != nil {
			return domain.ErrUserAlreadyAssigned
		}

		slot, ok, err := a.accounts.OccupySlot(txCtx, accountID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			// Status said active but no slot was free: a concurrent
			// assignment got there first.
			return domain.ErrSlotRace
		}
		if err := a.afterOccupy(txCtx, slot, userID, now); err != nil {
			return err
		}
		result = slot
		return nil
	})
	if err != nil {
		return domain.AccountSlot{}, err
	}

	metrics.SlotsAssigned.Inc()
	return result, nil
}

// afterOccupy appends history, emits audit, and flips the account to full
// when the occupancy side effect says so. Runs inside the caller's tx.
func (a *Allocator) afterOccupy(ctx context.Context, slot domain.AccountSlot, userID string, now time.Time) error {
	acc, err := a.accounts.GetAccountForUpdate(ctx, slot.AccountID)
	if err != nil {
		return err
	}
	occupied, err := a.accounts.CountOccupied(ctx, slot.AccountID)
	if err != nil {
		return err
	}
	newStatus, effects, err := domain.ApplyAccountEvent(acc.Status, domain.AccountEventOccupy, occupied, acc.MaxUsers)
	if err != nil {
		return err
	}
	for _, effect := range effects {
		if effect == domain.EffectAccountBecameFull {
			if _, err := a.accounts.UpdateAccountStatus(ctx, slot.AccountID, acc.Status, newStatus); err != nil {
				return err
			}
		}
	}

	if err := a.accounts.AppendSlotHistory(ctx, domain.SlotHistory{
		ID:         newID(),
		AccountID:  slot.AccountID,
		SlotIndex:  slot.SlotIndex,
		UserID:     userID,
		Action:     domain.SlotActionAssigned,
		OccurredAt: now,
	}); err != nil {
		return err
	}

	a.audit.Emit(domain.AuditEvent{
		ID:         newID(),
		Action:     domain.AuditSlotAssigned,
		EntityID:   slot.AccountID,
		OccurredAt: now,
		Detail: map[string]string{
			"user_id": userID,
		},
	})
	return nil
}

// RemoveCustomerFromAccount releases the customer's slot and demotes a full
// account back to active.
func (a *Allocator) RemoveCustomerFromAccount(ctx context.Context, accountID, userID string) error {
	if accountID == "" {
		return domain.ErrInvalidID
	}
	if userID == "" {
		return domain.ErrUserIDRequired
	}

	now := a.clock.Now()

	return a.accounts.WithTx(ctx, func(txCtx context.Context) error {
		acc, err := a.accounts.GetAccountForUpdate(txCtx, accountID)
		if err != nil {
			return err
		}

		slot, ok, err := a.accounts.ReleaseUserSlot(txCtx, accountID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOccupantNotFound
		}

		occupied, err := a.accounts.CountOccupied(txCtx, accountID)
		if err != nil {
			return err
		}
		newStatus, effects, err := domain.ApplyAccountEvent(acc.Status, domain.AccountEventVacate, occupied, acc.MaxUsers)
		if err != nil {
			return err
		}
		for _, effect := range effects {
			if effect == domain.EffectAccountBecameActive {
				if _, err := a.accounts.UpdateAccountStatus(txCtx, accountID, acc.Status, newStatus); err != nil {
					return err
				}
			}
		}

		if err := a.accounts.AppendSlotHistory(txCtx, domain.SlotHistory{
			ID:         newID(),
			AccountID:  accountID,
			SlotIndex:  slot.SlotIndex,
			UserID:     userID,
			Action:     domain.SlotActionReleased,
			OccurredAt: now,
		}); err != nil {
			return err
		}

		a.audit.Emit(domain.AuditEvent{
			ID:         newID(),
			Action:     domain.AuditSlotReleased,
			EntityID:   accountID,
			OccurredAt: now,
			Detail: map[string]string{
				"user_id": userID,
			},
		})
		return nil
	})
}

// RecallKey takes a key out of circulation permanently.
func (a *Allocator) RecallKey(ctx context.Context, keyID, reason string) error {
	return a.terminateKey(ctx, keyID, reason, domain.KeyStatusRecalled, domain.AuditKeyRecalled)
}

// MarkKeyError flags a key as defective permanently.
func (a *Allocator) MarkKeyError(ctx context.Context, keyID, reason string) error {
	return a.terminateKey(ctx, keyID, reason, domain.KeyStatusError, domain.AuditKeyError)
}

func (a *Allocator) terminateKey(ctx context.Context, keyID, reason string, to domain.KeyStatus, action string) error {
	if keyID == "" {
		return domain.ErrInvalidID
	}

	key, err := a.inv.GetKey(ctx, keyID)
	if err != nil {
		return err
	}
	if !domain.CanKeyTransition(key.Status, to) {
		return domain.ErrInvalidTransition
	}

	ok, err := a.inv.TerminateKey(ctx, keyID, key.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		// The key moved between read and update; the precondition no
		// longer holds.
		return domain.ErrInvalidTransition
	}

	a.audit.Emit(domain.AuditEvent{
		ID:         newID(),
		Action:     action,
		EntityID:   keyID,
		OccurredAt: a.clock.Now(),
		Detail: map[string]string{
			"reason": reason,
		},
	})
	return nil
}

// ExtendAccountExpiry pushes an account's expiry out. The new date must be
// strictly later than the current expiry plus the variant's minimum renewal;
// extending an expired account reactivates it.
func (a *Allocator) ExtendAccountExpiry(ctx context.Context, accountID string, newExpiry time.Time) error {
	if accountID == "" {
		return domain.ErrInvalidID
	}

	now := a.clock.Now()

	err := a.accounts.WithTx(ctx, func(txCtx context.Context) error {
		acc, err := a.accounts.GetAccountForUpdate(txCtx, accountID)
		if err != nil {
			return err
		}
		variant, err := a.accounts.GetVariant(txCtx, acc.VariantID)
		if err != nil {
			return err
		}

		if !newExpiry.After(acc.ExpiryDate.Add(variant.MinRenewal())) {
			return domain.ErrInvalidExpiry
		}

		newStatus, _, err := domain.ApplyAccountEvent(acc.Status, domain.AccountEventExtend, 0, acc.MaxUsers)
		if err != nil {
			return err
		}
		if err := a.accounts.UpdateAccountExpiry(txCtx, accountID, newExpiry); err != nil {
			return err
		}
		if newStatus != acc.Status {
			if _, err := a.accounts.UpdateAccountStatus(txCtx, accountID, acc.Status, newStatus); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.audit.Emit(domain.AuditEvent{
		ID:         newID(),
		Action:     domain.AuditAccountExtended,
		EntityID:   accountID,
		OccurredAt: now,
		Detail: map[string]string{
			"new_expiry": newExpiry.UTC().Format(time.RFC3339),
		},
	})
	return nil
}
