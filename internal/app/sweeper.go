package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/audit"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/clock"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/metrics"
)

type SweepStore interface {
	// ExpireHeldReservations flips every overdue held reservation to
	// expired and returns the rows it changed. The flip is one conditional
	// update, so concurrent sweepers and racing commits cannot both win.
	ExpireHeldReservations(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	// ExpireDueKeys retires available keys whose expiry date has passed.
	ExpireDueKeys(ctx context.Context, now time.Time) ([]domain.Key, error)
	// ExpireDueAccounts expires overdue accounts and force-releases their
	// occupied slots, returning the accounts it changed.
	ExpireDueAccounts(ctx context.Context, now time.Time) ([]domain.Account, error)
}

// Sweeper passively reclaims capacity: expired holds, overdue keys and
// overdue accounts. Safe to run with zero or many instances.
type Sweeper struct {
	store    SweepStore
	clock    clock.Clock
	logger   *zap.Logger
	audit    audit.Sink
	interval time.Duration
}

const defaultSweepInterval = 30 * time.Second

func NewSweeper(store SweepStore, clk clock.Clock, logger *zap.Logger, sink audit.Sink, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		clock:    clk,
		logger:   logger,
		audit:    sink,
		interval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the tick interval.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep performs one reclaim pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock.Now()
	metrics.SweepRuns.Inc()

	reservations, err := s.store.ExpireHeldReservations(ctx, now)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		s.audit.Emit(domain.AuditEvent{
			ID:         newID(),
			Action:     domain.AuditReservationExpired,
			EntityID:   res.ID,
			OccurredAt: now,
			Detail: map[string]string{
				"order_id":   res.OrderID,
				"variant_id": res.VariantID,
			},
		})
	}
	if len(reservations) > 0 {
		metrics.ReservationsExpired.Add(float64(len(reservations)))
	}

	keys, err := s.store.ExpireDueKeys(ctx, now)
	if err != nil {
		return err
	}
	for _, key := range keys {
		s.audit.Emit(domain.AuditEvent{
			ID:         newID(),
			Action:     domain.AuditKeyExpired,
			EntityID:   key.ID,
			OccurredAt: now,
		})
	}

	accounts, err := s.store.ExpireDueAccounts(ctx, now)
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		s.audit.Emit(domain.AuditEvent{
			ID:         newID(),
			Action:     domain.AuditAccountExpired,
			EntityID:   acc.ID,
			OccurredAt: now,
		})
	}

	if len(reservations) > 0 || len(keys) > 0 || len(accounts) > 0 {
		s.logger.Info("sweep reclaimed capacity",
			zap.Int("reservations", len(reservations)),
			zap.Int("keys", len(keys)),
			zap.Int("accounts", len(accounts)),
		)
	}
	return nil
}
