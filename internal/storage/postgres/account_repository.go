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

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *AccountRepository) GetAccountForUpdate(ctx context.Context, accountID string) (domain.Account, error) {
	const query = `
SELECT id, variant_id, max_users, expiry_date, status, created_at
FROM accounts
WHERE id = $1
FOR UPDATE`

	var a domain.Account
	err := r.queryRow(ctx, query, accountID).
		Scan(&a.ID, &a.VariantID, &a.MaxUsers, &a.ExpiryDate, &a.Status, &a.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Account{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetVariant(ctx context.Context, variantID string) (domain.Variant, error) {
	const query = `
SELECT id, name, unit_kind, min_renewal_days, created_at
FROM variants
WHERE id = $1`

	var v domain.Variant
	err := r.queryRow(ctx, query, variantID).
		Scan(&v.ID, &v.Name, &v.UnitKind, &v.MinRenewalDays, &v.CreatedAt)
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

func (r *AccountRepository) FindUserSlot(ctx context.Context, accountID, userID string) (*domain.AccountSlot, error) {
	const query = `
SELECT account_id, slot_index, occupant_user_id, occupied_since, released_at
FROM account_slots
WHERE account_id = $1 AND occupant_user_id = $2`

	slot, err := scanSlot(r.queryRow(ctx, query, accountID, userID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find user slot: %w", err)
	}
	return &slot, nil
}

// OccupySlot claims the lowest free slot on the account. SKIP LOCKED keeps
// two concurrent assignments off the same row.
func (r *AccountRepository) OccupySlot(ctx context.Context, accountID, userID string, now time.Time) (domain.AccountSlot, bool, error) {
	const stmt = `
UPDATE account_slots s
SET occupant_user_id = $2, occupied_since = $3, released_at = NULL
WHERE (s.account_id, s.slot_index) IN (
	SELECT account_id, slot_index
	FROM account_slots
	WHERE account_id = $1 AND occupant_user_id IS NULL
	ORDER BY slot_index
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING s.account_id, s.slot_index, s.occupant_user_id, s.occupied_since, s.released_at`

	slot, err := scanSlot(r.queryRow(ctx, stmt, accountID, userID, now))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.AccountSlot{}, false, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.AccountSlot{}, false, nil
		}
		return domain.AccountSlot{}, false, fmt.Errorf("occupy slot: %w", err)
	}
	return slot, true, nil
}

// OccupyPackedSlot claims one free slot for the variant, preferring the
// live account with the fewest free slots so partially-empty accounts are
// drained before fresh ones are opened.
func (r *AccountRepository) OccupyPackedSlot(ctx context.Context, variantID, userID string, now time.Time) (domain.AccountSlot, bool, error) {
	const stmt = `
UPDATE account_slots s
SET occupant_user_id = $2, occupied_since = $3, released_at = NULL
WHERE (s.account_id, s.slot_index) IN (
	SELECT s2.account_id, s2.slot_index
	FROM account_slots s2
	JOIN accounts a ON a.id = s2.account_id
	WHERE a.variant_id = $1
	  AND a.status = 'active'
	  AND a.expiry_date > $3
	  AND s2.occupant_user_id IS NULL
	ORDER BY (
		SELECT COUNT(*)
		FROM account_slots f
		WHERE f.account_id = s2.account_id AND f.occupant_user_id IS NULL
	), s2.account_id, s2.slot_index
	LIMIT 1
	FOR UPDATE OF s2 SKIP LOCKED
)
RETURNING s.account_id, s.slot_index, s.occupant_user_id, s.occupied_since, s.released_at`

	slot, err := scanSlot(r.queryRow(ctx, stmt, variantID, userID, now))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.AccountSlot{}, false, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.AccountSlot{}, false, nil
		}
		return domain.AccountSlot{}, false, fmt.Errorf("occupy packed slot: %w", err)
	}
	return slot, true, nil
}

// ReleaseUserSlot frees the slot occupied by the user. Conditional on the
// occupant, so a concurrent release cannot double-free.
func (r *AccountRepository) ReleaseUserSlot(ctx context.Context, accountID, userID string, now time.Time) (domain.AccountSlot, bool, error) {
	const stmt = `
UPDATE account_slots
SET occupant_user_id = NULL, occupied_since = NULL, released_at = $3
WHERE account_id = $1 AND occupant_user_id = $2
RETURNING account_id, slot_index, occupant_user_id, occupied_since, released_at`

	slot, err := scanSlot(r.queryRow(ctx, stmt, accountID, userID, now))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.AccountSlot{}, false, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.AccountSlot{}, false, nil
		}
		return domain.AccountSlot{}, false, fmt.Errorf("release user slot: %w", err)
	}
	return slot, true, nil
}

func (r *AccountRepository) CountOccupied(ctx context.Context, accountID string) (int, error) {
	const query = `
SELECT COUNT(*)
FROM account_slots
WHERE account_id = $1 AND occupant_user_id IS NOT NULL`

	var n int
	if err := r.queryRow(ctx, query, accountID).Scan(&n); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count occupied: %w", err)
	}
	return n, nil
}

func (r *AccountRepository) UpdateAccountStatus(ctx context.Context, accountID string, from, to domain.AccountStatus) (bool, error) {
	const stmt = `
UPDATE accounts
SET status = $3
WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, accountID, from, to)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("update account status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AccountRepository) UpdateAccountExpiry(ctx context.Context, accountID string, expiry time.Time) error {
	const stmt = `UPDATE accounts SET expiry_date = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, accountID, expiry)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update account expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) AppendSlotHistory(ctx context.Context, record domain.SlotHistory) error {
	const stmt = `
INSERT INTO slot_history (id, account_id, slot_index, user_id, action, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt,
		record.ID,
		record.AccountID,
		record.SlotIndex,
		record.UserID,
		record.Action,
		record.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append slot history: %w", err)
	}
	return nil
}

func scanSlot(row pgx.Row) (domain.AccountSlot, error) {
	var s domain.AccountSlot
	var occupant *string
	err := row.Scan(&s.AccountID, &s.SlotIndex, &occupant, &s.OccupiedSince, &s.ReleasedAt)
	if err != nil {
		return domain.AccountSlot{}, err
	}
	if occupant != nil {
		s.OccupantUserID = *occupant
	}
	return s, nil
}

func (r *AccountRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *AccountRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
