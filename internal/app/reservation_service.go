package app

import (
	"context"
	"time"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/audit"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/clock"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/metrics"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetVariantForUpdate(ctx context.Context, variantID string) (domain.Variant, error)
	GetVariant(ctx context.Context, variantID string) (domain.Variant, error)
	FindReservationByOrder(ctx context.Context, orderID, variantID string) (*domain.Reservation, error)
	GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error)
	CountAvailable(ctx context.Context, variant domain.Variant, now time.Time) (int, error)
	SumHeld(ctx context.Context, variantID string, now time.Time) (int, error)
	CreateReservation(ctx context.Context, res domain.Reservation) error
	MarkCommitted(ctx context.Context, reservationID string, now time.Time) (bool, error)
	MarkReleased(ctx context.Context, reservationID string, now time.Time) (bool, error)
}

// UnitBinder converts a committed reservation into concrete unit bindings.
// Implemented by the Allocator; called inside the commit transaction.
type UnitBinder interface {
	BindKeys(ctx context.Context, orderID, variantID string, quantity int) ([]domain.Key, error)
	BindSlots(ctx context.Context, variantID, userID string, quantity int) ([]domain.AccountSlot, error)
}

// ReservationService owns the hold/commit/release ledger. Holds claim
// quantity only; the expensive "which exact unit" decision is deferred to
// commit time so abandoned carts never pin a specific key.
type ReservationService struct {
	repo       ReservationRepository
	binder     UnitBinder
	clock      clock.Clock
	audit      audit.Sink
	defaultTTL time.Duration
}

const defaultHoldTTL = 15 * time.Minute

func NewReservationService(repo ReservationRepository, binder UnitBinder, clk clock.Clock, sink audit.Sink, opts ...ReservationServiceOption) *ReservationService {
	svc := &ReservationService{
		repo:       repo,
		binder:     binder,
		clock:      clk,
		audit:      sink,
		defaultTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationServiceOption func(*ReservationService)

// WithDefaultHoldTTL overrides the TTL used when a caller passes none.
func WithDefaultHoldTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.defaultTTL = d
		}
	}
}

type ReserveStockInput struct {
	OrderID   string
	VariantID string
	Quantity  int
	TTL       time.Duration
}

// ReserveStock places a time-boxed hold on variant capacity. The check is
// advisory; commit re-validates against concrete units. Re-reserving the
// same order line returns the existing hold unchanged.
func (s *ReservationService) ReserveStock(ctx context.Context, in ReserveStockInput) (domain.Reservation, error) {
	if in.OrderID == "" || in.VariantID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}
	if in.Quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.clock.Now()
	var result domain.Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if existing, err := s.repo.FindReservationByOrder(txCtx, in.OrderID, in.VariantID); err != nil {
			return err
		} else if existing != nil {
			if existing.Quantity != in.Quantity || existing.Terminal() {
				return domain.ErrReservationConflict
			}
			result = *existing
			return nil
		}

		// Locking the variant row serializes capacity checks per variant.
		variant, err := s.repo.GetVariantForUpdate(txCtx, in.VariantID)
		if err != nil {
			return err
		}

		available, err := s.repo.CountAvailable(txCtx, variant, now)
		if err != nil {
			return err
		}
		held, err := s.repo.SumHeld(txCtx, in.VariantID, now)
		if err != nil {
			return err
		}
		if in.Quantity > available-held {
			return domain.ErrInsufficientStock
		}

		res := domain.Reservation{
			ID:        newID(),
			OrderID:   in.OrderID,
			VariantID: in.VariantID,
			Quantity:  in.Quantity,
			Status:    domain.ReservationStatusHeld,
			HeldUntil: now.Add(ttl),
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := s.repo.CreateReservation(txCtx, res); err != nil {
			// A concurrent request for the same order line won the insert;
			// re-read so retries stay idempotent.
			if err == domain.ErrReservationConflict {
				existing, err := s.repo.FindReservationByOrder(txCtx, in.OrderID, in.VariantID)
				if err != nil {
					return err
				}
				if existing != nil {
					if existing.Quantity != in.Quantity || existing.Terminal() {
						return domain.ErrReservationConflict
					}
					result = *existing
					return nil
				}
			}
			return err
		}

		result = res
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	metrics.ReservationsHeld.Inc()
	s.audit.Emit(domain.AuditEvent{
		ID:         newID(),
		Action:     domain.AuditReservationHeld,
		EntityID:   result.ID,
		OccurredAt: now,
		Detail: map[string]string{
			"order_id":   result.OrderID,
			"variant_id": result.VariantID,
		},
	})
	return result, nil
}

type CommitReservationInput struct {
	ReservationID string
	// UserID is required for slot-backed variants; the committed quantity of
	// slots is assigned to this customer.
	UserID string
}

type CommitResult struct {
	Reservation domain.Reservation
	Keys        []domain.Key
	Slots       []domain.AccountSlot
}

// CommitReservation converts a held reservation into concrete unit
// bindings. The status flip and the unit grabs share one transaction, so a
// lost race aborts everything and leaves the hold intact with its remaining
// TTL.
func (s *ReservationService) CommitReservation(ctx context.Context, in CommitReservationInput) (CommitResult, error) {
	if in.ReservationID == "" {
		return CommitResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result CommitResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservation(txCtx, in.ReservationID)
		if err != nil {
			return err
		}

		flipped, err := s.repo.MarkCommitted(txCtx, in.ReservationID, now)
		if err != nil {
			return err
		}
		if !flipped {
			// The conditional update tells held-and-live from everything
			// else; distinguish why it refused.
			switch {
			case res.Status == domain.ReservationStatusExpired:
				return domain.ErrReservationExpired
			case res.Status == domain.ReservationStatusHeld && !res.HeldUntil.After(now):
				return domain.ErrReservationExpired
			default:
				return domain.ErrInvalidTransition
			}
		}
		res.Status = domain.ReservationStatusCommitted
		res.UpdatedAt = now

		variant, err := s.repo.GetVariant(txCtx, res.VariantID)
		if err != nil {
			return err
		}

		switch variant.UnitKind {
		case domain.UnitKindKey:
			keys, err := s.binder.BindKeys(txCtx, res.OrderID, res.VariantID, res.Quantity)
			if err != nil {
				return err
			}
			result = CommitResult{Reservation: res, Keys: keys}
		case domain.UnitKindAccountSlot:
			if in.UserID == "" {
				return domain.ErrUserIDRequired
			}
			slots, err := s.binder.BindSlots(txCtx, res.VariantID, in.UserID, res.Quantity)
			if err != nil {
				return err
			}
			result = CommitResult{Reservation: res, Slots: slots}
		default:
			return domain.ErrInvalidUnitKind
		}
		return nil
	})
	if err != nil {
		return CommitResult{}, err
	}

	metrics.ReservationsCommitted.Inc()
	s.audit.Emit(domain.AuditEvent{
		ID:         newID(),
		Action:     domain.AuditReservationCommit,
		EntityID:   result.Reservation.ID,
		OccurredAt: now,
		Detail: map[string]string{
			"order_id":   result.Reservation.OrderID,
			"variant_id": result.Reservation.VariantID,
		},
	})
	return result, nil
}

// ReleaseReservation cancels a hold. Releasing an already-terminal
// reservation is a no-op; only an unknown id is an error.
func (s *ReservationService) ReleaseReservation(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return domain.ErrInvalidID
	}

	now := s.clock.Now()
	released, err := s.repo.MarkReleased(ctx, reservationID, now)
	if err != nil {
		return err
	}
	if !released {
		if _, err := s.repo.GetReservation(ctx, reservationID); err != nil {
			return err
		}
		return nil
	}

	metrics.ReservationsReleased.Inc()
	s.audit.Emit(domain.AuditEvent{
		ID:         newID(),
		Action:     domain.AuditReservationReleased,
		EntityID:   reservationID,
		OccurredAt: now,
	})
	return nil
}
