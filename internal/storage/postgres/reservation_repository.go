package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
)

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ReservationRepository) GetVariantForUpdate(ctx context.Context, variantID string) (domain.Variant, error) {
	const query = `
SELECT id, name, unit_kind, min_renewal_days, created_at
FROM variants
WHERE id = $1
FOR UPDATE`
	return r.scanVariant(r.queryRow(ctx, query, variantID))
}

func (r *ReservationRepository) GetVariant(ctx context.Context, variantID string) (domain.Variant, error) {
	const query = `
SELECT id, name, unit_kind, min_renewal_days, created_at
FROM variants
WHERE id = $1`
	return r.scanVariant(r.queryRow(ctx, query, variantID))
}

func (r *ReservationRepository) scanVariant(row pgx.Row) (domain.Variant, error) {
	var v domain.Variant
	err := row.Scan(&v.ID, &v.Name, &v.UnitKind, &v.MinRenewalDays, &v.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Variant{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Variant{}, domain.ErrVariantNotFound
		}
		return domain.Variant{}, fmt.Errorf("get variant: %w", err)
	}
	return v, nil
}

func (r *ReservationRepository) FindReservationByOrder(ctx context.Context, orderID, variantID string) (*domain.Reservation, error) {
	const query = `
SELECT id, order_id, variant_id, quantity, status, held_until, created_at, updated_at
FROM reservations
WHERE order_id = $1 AND variant_id = $2`

	var res domain.Reservation
	err := r.queryRow(ctx, query, orderID, variantID).
		Scan(&res.ID, &res.OrderID, &res.VariantID, &res.Quantity, &res.Status, &res.HeldUntil, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find reservation by order: %w", err)
	}
	return &res, nil
}

func (r *ReservationRepository) GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	const query = `
SELECT id, order_id, variant_id, quantity, status, held_until, created_at, updated_at
FROM reservations
WHERE id = $1`

	var res domain.Reservation
	err := r.queryRow(ctx, query, reservationID).
		Scan(&res.ID, &res.OrderID, &res.VariantID, &res.Quantity, &res.Status, &res.HeldUntil, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// CountAvailable returns sellable units for the variant: available keys for
// key-backed variants, free slots on live accounts for slot-backed ones.
func (r *ReservationRepository) CountAvailable(ctx context.Context, variant domain.Variant, now time.Time) (int, error) {
	switch variant.UnitKind {
	case domain.UnitKindKey:
		const query = `
SELECT COUNT(*)
FROM product_keys
WHERE variant_id = $1 AND status = 'available'`
		var n int
		if err := r.queryRow(ctx, query, variant.ID).Scan(&n); err != nil {
			return 0, fmt.Errorf("count available keys: %w", err)
		}
		return n, nil
	case domain.UnitKindAccountSlot:
		const query = `
SELECT COUNT(*)
FROM account_slots s
JOIN accounts a ON a.id = s.account_id
WHERE a.variant_id = $1
  AND a.status IN ('active', 'full')
  AND a.expiry_date > $2
  AND s.occupant_user_id IS NULL`
		var n int
		if err := r.queryRow(ctx, query, variant.ID, now).Scan(&n); err != nil {
			return 0, fmt.Errorf("count free slots: %w", err)
		}
		return n, nil
	default:
		return 0, domain.ErrInvalidUnitKind
	}
}

func (r *ReservationRepository) SumHeld(ctx context.Context, variantID string, now time.Time) (int, error) {
	const query = `
SELECT COALESCE(SUM(quantity), 0)
FROM reservations
WHERE variant_id = $1 AND status = 'held' AND held_until > $2`

	var total int
	if err := r.queryRow(ctx, query, variantID, now).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("sum held: %w", err)
	}
	return total, nil
}

func (r *ReservationRepository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, order_id, variant_id, quantity, status, held_until, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		res.ID,
		res.OrderID,
		res.VariantID,
		res.Quantity,
		res.Status,
		res.HeldUntil,
		res.CreatedAt,
		res.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReservationConflict
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrVariantNotFound
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// MarkCommitted flips held -> committed only while the hold is still live.
// Rows affected tells the caller whether it won against the sweeper.
func (r *ReservationRepository) MarkCommitted(ctx context.Context, reservationID string, now time.Time) (bool, error) {
	const stmt = `
UPDATE reservations
SET status = 'committed', updated_at = $2
WHERE id = $1 AND status = 'held' AND held_until > $2`

	tag, err := r.exec(ctx, stmt, reservationID, now)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("mark committed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReservationRepository) MarkReleased(ctx context.Context, reservationID string, now time.Time) (bool, error) {
	const stmt = `
UPDATE reservations
SET status = 'released', updated_at = $2
WHERE id = $1 AND status = 'held'`

	tag, err := r.exec(ctx, stmt, reservationID, now)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("mark released: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
