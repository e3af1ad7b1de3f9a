package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
)

type InventoryRepository struct {
	pool *pgxpool.Pool
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

const keyColumns = `id, variant_id, supplier_id, key_string, kind, status, expiry_date, assigned_order_id, imported_at`

func (r *InventoryRepository) GetKey(ctx context.Context, keyID string) (domain.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM product_keys WHERE id = $1`

	key, err := scanKey(r.queryRow(ctx, query, keyID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Key{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Key{}, domain.ErrKeyNotFound
		}
		return domain.Key{}, fmt.Errorf("get key: %w", err)
	}
	return key, nil
}

// SellAvailableKeys selects and sells up to quantity keys in one statement.
// The subquery locks candidate rows with SKIP LOCKED, so two concurrent
// allocators can never pick the same key; a shorted result is reported by
// row count, not by error.
func (r *InventoryRepository) SellAvailableKeys(ctx context.Context, variantID, orderID string, quantity int) ([]domain.Key, error) {
	query := `
UPDATE product_keys
SET status = 'sold', assigned_order_id = $2
WHERE id IN (
	SELECT id
	FROM product_keys
	WHERE variant_id = $1 AND status = 'available'
	ORDER BY imported_at, id
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + keyColumns

	rows, err := r.query(ctx, query, variantID, orderID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("sell available keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sold key: %w", err)
		}
		keys = append(keys, key)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate sold keys: %w", rows.Err())
	}
	return keys, nil
}

// ListAvailableKeys returns the FIFO candidate set without mutating it.
func (r *InventoryRepository) ListAvailableKeys(ctx context.Context, variantID string, limit int) ([]domain.Key, error) {
	query := `
SELECT ` + keyColumns + `
FROM product_keys
WHERE variant_id = $1 AND status = 'available'
ORDER BY imported_at, id
LIMIT $2`

	rows, err := r.query(ctx, query, variantID, limit)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list available keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate keys: %w", rows.Err())
	}
	return keys, nil
}

// TerminateKey applies an administrative terminal status, conditional on
// the key still being in the status the caller observed.
func (r *InventoryRepository) TerminateKey(ctx context.Context, keyID string, from, to domain.KeyStatus) (bool, error) {
	const stmt = `
UPDATE product_keys
SET status = $3
WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, keyID, from, to)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("terminate key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanKey(row pgx.Row) (domain.Key, error) {
	var k domain.Key
	var orderID *string
	err := row.Scan(&k.ID, &k.VariantID, &k.SupplierID, &k.KeyString, &k.Kind, &k.Status, &k.ExpiryDate, &orderID, &k.ImportedAt)
	if err != nil {
		return domain.Key{}, err
	}
	if orderID != nil {
		k.AssignedOrderID = *orderID
	}
	return k, nil
}

func (r *InventoryRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *InventoryRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *InventoryRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
