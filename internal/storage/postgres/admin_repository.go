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

type AdminRepository struct {
	pool *pgxpool.Pool
	inv  *InventoryRepository
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{
		pool: pool,
		inv:  NewInventoryRepository(pool),
	}
}

func (r *AdminRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *AdminRepository) CreateVariant(ctx context.Context, variant domain.Variant) error {
	const stmt = `
INSERT INTO variants (id, name, unit_kind, min_renewal_days, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt,
		variant.ID,
		variant.Name,
		variant.UnitKind,
		variant.MinRenewalDays,
		variant.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create variant: %w", err)
	}
	return nil
}

func (r *AdminRepository) GetVariant(ctx context.Context, variantID string) (domain.Variant, error) {
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

func (r *AdminRepository) InsertKey(ctx context.Context, key domain.Key) error {
	const stmt = `
INSERT INTO product_keys (id, variant_id, supplier_id, key_string, kind, status, expiry_date, imported_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		key.ID,
		key.VariantID,
		key.SupplierID,
		key.KeyString,
		key.Kind,
		key.Status,
		key.ExpiryDate,
		key.ImportedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateKeyString
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrVariantNotFound
		}
		return fmt.Errorf("insert key: %w", err)
	}
	return nil
}

func (r *AdminRepository) CreateAccount(ctx context.Context, account domain.Account) error {
	const stmt = `
INSERT INTO accounts (id, variant_id, max_users, expiry_date, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt,
		account.ID,
		account.VariantID,
		account.MaxUsers,
		account.ExpiryDate,
		account.Status,
		account.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrVariantNotFound
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// CreateSlots provisions slot rows 1..count for a fresh account.
func (r *AdminRepository) CreateSlots(ctx context.Context, accountID string, count int) error {
	const stmt = `
INSERT INTO account_slots (account_id, slot_index)
SELECT $1, generate_series(1, $2)`

	_, err := r.exec(ctx, stmt, accountID, count)
	if err != nil {
		return fmt.Errorf("create slots: %w", err)
	}
	return nil
}

func (r *AdminRepository) CountAvailableKeys(ctx context.Context, variantID string) (int, error) {
	const query = `
SELECT COUNT(*)
FROM product_keys
WHERE variant_id = $1 AND status = 'available'`

	var n int
	if err := r.queryRow(ctx, query, variantID).Scan(&n); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count available keys: %w", err)
	}
	return n, nil
}

func (r *AdminRepository) CountFreeSlots(ctx context.Context, variantID string, now time.Time) (int, error) {
	const query = `
SELECT COUNT(*)
FROM account_slots s
JOIN accounts a ON a.id = s.account_id
WHERE a.variant_id = $1
  AND a.status IN ('active', 'full')
  AND a.expiry_date > $2
  AND s.occupant_user_id IS NULL`

	var n int
	if err := r.queryRow(ctx, query, variantID, now).Scan(&n); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count free slots: %w", err)
	}
	return n, nil
}

func (r *AdminRepository) ListAvailableKeys(ctx context.Context, variantID string, limit int) ([]domain.Key, error) {
	return r.inv.ListAvailableKeys(ctx, variantID, limit)
}

func (r *AdminRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *AdminRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
