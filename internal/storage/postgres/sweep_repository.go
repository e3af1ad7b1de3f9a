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

// SweepRepository backs the reclaim sweeper. Every expiry is a single
// conditional UPDATE ... RETURNING, so running several sweeper instances
// concurrently just splits the rows between them.
type SweepRepository struct {
	pool *pgxpool.Pool
}

func NewSweepRepository(pool *pgxpool.Pool) *SweepRepository {
	return &SweepRepository{pool: pool}
}

func (r *SweepRepository) ExpireHeldReservations(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	const stmt = `
UPDATE reservations
SET status = 'expired', updated_at = $1
WHERE status = 'held' AND held_until <= $1
RETURNING id, order_id, variant_id, quantity, status, held_until, created_at, updated_at`

	rows, err := r.query(ctx, stmt, now)
	if err != nil {
		return nil, fmt.Errorf("expire held reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.VariantID, &res.Quantity, &res.Status, &res.HeldUntil, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan expired reservation: %w", err)
		}
		out = append(out, res)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate expired reservations: %w", rows.Err())
	}
	return out, nil
}

func (r *SweepRepository) ExpireDueKeys(ctx context.Context, now time.Time) ([]domain.Key, error) {
	stmt := `
UPDATE product_keys
SET status = 'expired'
WHERE status = 'available' AND expiry_date IS NOT NULL AND expiry_date <= $1
RETURNING ` + keyColumns

	rows, err := r.query(ctx, stmt, now)
	if err != nil {
		return nil, fmt.Errorf("expire due keys: %w", err)
	}
	defer rows.Close()

	var out []domain.Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired key: %w", err)
		}
		out = append(out, key)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate expired keys: %w", rows.Err())
	}
	return out, nil
}

// ExpireDueAccounts expires overdue accounts and force-releases every
// occupied slot on them, in one transaction.
func (r *SweepRepository) ExpireDueAccounts(ctx context.Context, now time.Time) ([]domain.Account, error) {
	var out []domain.Account

	err := withTx(ctx, r.pool, func(txCtx context.Context) error {
		const expireStmt = `
UPDATE accounts
SET status = 'expired'
WHERE status IN ('active', 'full') AND expiry_date <= $1
RETURNING id, variant_id, max_users, expiry_date, status, created_at`

		rows, err := r.query(txCtx, expireStmt, now)
		if err != nil {
			return fmt.Errorf("expire due accounts: %w", err)
		}

		ids := make([]string, 0)
		for rows.Next() {
			var a domain.Account
			if err := rows.Scan(&a.ID, &a.VariantID, &a.MaxUsers, &a.ExpiryDate, &a.Status, &a.CreatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan expired account: %w", err)
			}
			out = append(out, a)
			ids = append(ids, a.ID)
		}
		rows.Close()
		if rows.Err() != nil {
			return fmt.Errorf("iterate expired accounts: %w", rows.Err())
		}
		if len(ids) == 0 {
			return nil
		}

		const releaseStmt = `
UPDATE account_slots
SET occupant_user_id = NULL, occupied_since = NULL, released_at = $2
WHERE account_id = ANY($1) AND occupant_user_id IS NOT NULL`

		if _, err := r.exec(txCtx, releaseStmt, ids, now); err != nil {
			return fmt.Errorf("release slots of expired accounts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SweepRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *SweepRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
