package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/audit"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/clock"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeReservationRepo struct {
	variants     map[string]domain.Variant
	reservations map[string]*domain.Reservation
	available    int
}

func newFakeReservationRepo(variants ...domain.Variant) *fakeReservationRepo {
	repo := &fakeReservationRepo{
		variants:     make(map[string]domain.Variant),
		reservations: make(map[string]*domain.Reservation),
	}
	for _, v := range variants {
		repo.variants[v.ID] = v
	}
	return repo
}

func (f *fakeReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeReservationRepo) GetVariantForUpdate(ctx context.Context, variantID string) (domain.Variant, error) {
	return f.GetVariant(ctx, variantID)
}

func (f *fakeReservationRepo) GetVariant(_ context.Context, variantID string) (domain.Variant, error) {
	v, ok := f.variants[variantID]
	if !ok {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	return v, nil
}

func (f *fakeReservationRepo) FindReservationByOrder(_ context.Context, orderID, variantID string) (*domain.Reservation, error) {
	for _, res := range f.reservations {
		if res.OrderID == orderID && res.VariantID == variantID {
			cp := *res
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeReservationRepo) GetReservation(_ context.Context, reservationID string) (domain.Reservation, error) {
	res, ok := f.reservations[reservationID]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return *res, nil
}

func (f *fakeReservationRepo) CountAvailable(context.Context, domain.Variant, time.Time) (int, error) {
	return f.available, nil
}

func (f *fakeReservationRepo) SumHeld(_ context.Context, variantID string, now time.Time) (int, error) {
	total := 0
	for _, res := range f.reservations {
		if res.VariantID == variantID && res.Status == domain.ReservationStatusHeld && res.HeldUntil.After(now) {
			total += res.Quantity
		}
	}
	return total, nil
}

func (f *fakeReservationRepo) CreateReservation(_ context.Context, res domain.Reservation) error {
	for _, existing := range f.reservations {
		if existing.OrderID == res.OrderID && existing.VariantID == res.VariantID {
			return domain.ErrReservationConflict
		}
	}
	cp := res
	f.reservations[res.ID] = &cp
	return nil
}

func (f *fakeReservationRepo) MarkCommitted(_ context.Context, reservationID string, now time.Time) (bool, error) {
	res, ok := f.reservations[reservationID]
	if !ok {
		return false, nil
	}
	if res.Status != domain.ReservationStatusHeld || !res.HeldUntil.After(now) {
		return false, nil
	}
	res.Status = domain.ReservationStatusCommitted
	res.UpdatedAt = now
	return true, nil
}

func (f *fakeReservationRepo) MarkReleased(_ context.Context, reservationID string, now time.Time) (bool, error) {
	res, ok := f.reservations[reservationID]
	if !ok {
		return false, nil
	}
	if res.Status != domain.ReservationStatusHeld {
		return false, nil
	}
	res.Status = domain.ReservationStatusReleased
	res.UpdatedAt = now
	return true, nil
}

type fakeBinder struct {
	keys      []domain.Key
	slots     []domain.AccountSlot
	err       error
	keyCalls  int
	slotCalls int
	lastUser  string
}

func (f *fakeBinder) BindKeys(_ context.Context, orderID, variantID string, quantity int) ([]domain.Key, error) {
	f.keyCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.keys, nil
}

func (f *fakeBinder) BindSlots(_ context.Context, variantID, userID string, quantity int) ([]domain.AccountSlot, error) {
	f.slotCalls++
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.slots, nil
}

func keyVariant() domain.Variant {
	return domain.Variant{ID: "var-key", Name: "Game X Standard", UnitKind: domain.UnitKindKey}
}

func slotVariant() domain.Variant {
	return domain.Variant{ID: "var-slot", Name: "Streaming Family", UnitKind: domain.UnitKindAccountSlot}
}

func TestReserveStock(t *testing.T) {
	t.Run("places a hold with the default TTL", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		sink := &audit.MemorySink{}
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), sink)

		res, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: "var-key", Quantity: 2,
		})
		require.NoError(t, err)

		assert.Equal(t, domain.ReservationStatusHeld, res.Status)
		assert.Equal(t, 2, res.Quantity)
		assert.Equal(t, testStart.Add(15*time.Minute), res.HeldUntil)

		events := sink.Events()
		require.Len(t, events, 1)
		assert.Equal(t, domain.AuditReservationHeld, events[0].Action)
		assert.Equal(t, res.ID, events[0].EntityID)
	})

	t.Run("honors an explicit TTL", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), audit.NopSink{})

		res, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: "var-key", Quantity: 1, TTL: time.Minute,
		})
		require.NoError(t, err)
		assert.Equal(t, testStart.Add(time.Minute), res.HeldUntil)
	})

	t.Run("rejects quantity above remaining capacity", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 3
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), audit.NopSink{})

		_, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-a", VariantID: "var-key", Quantity: 2,
		})
		require.NoError(t, err)

		_, err = svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-b", VariantID: "var-key", Quantity: 2,
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	})

	t.Run("expired holds stop counting against capacity", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 3
		clk := clock.NewManual(testStart)
		svc := NewReservationService(repo, &fakeBinder{}, clk, audit.NopSink{})

		_, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-a", VariantID: "var-key", Quantity: 3, TTL: time.Minute,
		})
		require.NoError(t, err)

		clk.Advance(2 * time.Minute)

		_, err = svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-b", VariantID: "var-key", Quantity: 3,
		})
		assert.NoError(t, err)
	})

	t.Run("re-reserving the same order line is idempotent", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), audit.NopSink{})

		first, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: "var-key", Quantity: 2,
		})
		require.NoError(t, err)

		second, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: "var-key", Quantity: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, repo.reservations, 1)
	})

	t.Run("quantity mismatch on the same order line conflicts", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), audit.NopSink{})

		_, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: "var-key", Quantity: 2,
		})
		require.NoError(t, err)

		_, err = svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: "var-key", Quantity: 3,
		})
		assert.ErrorIs(t, err, domain.ErrReservationConflict)
	})

	t.Run("validates input", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), audit.NopSink{})

		_, err := svc.ReserveStock(context.Background(), ReserveStockInput{VariantID: "var-key", Quantity: 1})
		assert.ErrorIs(t, err, domain.ErrInvalidID)

		_, err = svc.ReserveStock(context.Background(), ReserveStockInput{OrderID: "o", VariantID: "var-key", Quantity: 0})
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})

	t.Run("unknown variant", func(t *testing.T) {
		repo := newFakeReservationRepo()
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), audit.NopSink{})

		_, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: "nope", Quantity: 1,
		})
		assert.ErrorIs(t, err, domain.ErrVariantNotFound)
	})
}

func TestCommitReservation(t *testing.T) {
	reserve := func(t *testing.T, svc *ReservationService, variantID string, qty int, ttl time.Duration) domain.Reservation {
		t.Helper()
		res, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: variantID, Quantity: qty, TTL: ttl,
		})
		require.NoError(t, err)
		return res
	}

	t.Run("binds keys for a key variant", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		binder := &fakeBinder{keys: []domain.Key{{ID: "k1"}, {ID: "k2"}}}
		sink := &audit.MemorySink{}
		svc := NewReservationService(repo, binder, clock.NewFixed(testStart), sink)

		res := reserve(t, svc, "var-key", 2, 0)

		result, err := svc.CommitReservation(context.Background(), CommitReservationInput{ReservationID: res.ID})
		require.NoError(t, err)

		assert.Equal(t, domain.ReservationStatusCommitted, result.Reservation.Status)
		assert.Len(t, result.Keys, 2)
		assert.Equal(t, 1, binder.keyCalls)
		assert.Equal(t, 0, binder.slotCalls)
		assert.Equal(t, domain.ReservationStatusCommitted, repo.reservations[res.ID].Status)
	})

	t.Run("binds slots for a slot variant", func(t *testing.T) {
		repo := newFakeReservationRepo(slotVariant())
		repo.available = 5
		binder := &fakeBinder{slots: []domain.AccountSlot{{AccountID: "acc-1", SlotIndex: 1}}}
		svc := NewReservationService(repo, binder, clock.NewFixed(testStart), audit.NopSink{})

		res := reserve(t, svc, "var-slot", 1, 0)

		result, err := svc.CommitReservation(context.Background(), CommitReservationInput{
			ReservationID: res.ID, UserID: "user-9",
		})
		require.NoError(t, err)
		assert.Len(t, result.Slots, 1)
		assert.Equal(t, "user-9", binder.lastUser)
	})

	t.Run("slot variant requires a user id", func(t *testing.T) {
		repo := newFakeReservationRepo(slotVariant())
		repo.available = 5
		binder := &fakeBinder{}
		svc := NewReservationService(repo, binder, clock.NewFixed(testStart), audit.NopSink{})

		res := reserve(t, svc, "var-slot", 1, 0)

		_, err := svc.CommitReservation(context.Background(), CommitReservationInput{ReservationID: res.ID})
		assert.ErrorIs(t, err, domain.ErrUserIDRequired)
		assert.Equal(t, 0, binder.slotCalls)
	})

	t.Run("refuses a hold whose deadline has passed", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		clk := clock.NewManual(testStart)
		svc := NewReservationService(repo, &fakeBinder{}, clk, audit.NopSink{})

		res := reserve(t, svc, "var-key", 1, time.Minute)
		clk.Advance(2 * time.Minute)

		_, err := svc.CommitReservation(context.Background(), CommitReservationInput{ReservationID: res.ID})
		assert.ErrorIs(t, err, domain.ErrReservationExpired)
		assert.Equal(t, domain.ReservationStatusHeld, repo.reservations[res.ID].Status)
	})

	t.Run("refuses an already-committed reservation", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		binder := &fakeBinder{keys: []domain.Key{{ID: "k1"}}}
		svc := NewReservationService(repo, binder, clock.NewFixed(testStart), audit.NopSink{})

		res := reserve(t, svc, "var-key", 1, 0)
		_, err := svc.CommitReservation(context.Background(), CommitReservationInput{ReservationID: res.ID})
		require.NoError(t, err)

		_, err = svc.CommitReservation(context.Background(), CommitReservationInput{ReservationID: res.ID})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("lost stock race surfaces and aborts the commit", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		binder := &fakeBinder{err: domain.ErrStockRace}
		svc := NewReservationService(repo, binder, clock.NewFixed(testStart), audit.NopSink{})

		res := reserve(t, svc, "var-key", 1, 0)

		_, err := svc.CommitReservation(context.Background(), CommitReservationInput{ReservationID: res.ID})
		assert.ErrorIs(t, err, domain.ErrStockRace)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), audit.NopSink{})

		_, err := svc.CommitReservation(context.Background(), CommitReservationInput{ReservationID: "missing"})
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})
}

func TestReleaseReservation(t *testing.T) {
	t.Run("releases a held reservation", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		sink := &audit.MemorySink{}
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), sink)

		res, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: "var-key", Quantity: 1,
		})
		require.NoError(t, err)

		require.NoError(t, svc.ReleaseReservation(context.Background(), res.ID))
		assert.Equal(t, domain.ReservationStatusReleased, repo.reservations[res.ID].Status)

		events := sink.Events()
		require.Len(t, events, 2)
		assert.Equal(t, domain.AuditReservationReleased, events[1].Action)
	})

	t.Run("releasing twice is a no-op", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		repo.available = 5
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), audit.NopSink{})

		res, err := svc.ReserveStock(context.Background(), ReserveStockInput{
			OrderID: "order-1", VariantID: "var-key", Quantity: 1,
		})
		require.NoError(t, err)

		require.NoError(t, svc.ReleaseReservation(context.Background(), res.ID))
		require.NoError(t, svc.ReleaseReservation(context.Background(), res.ID))
		assert.Equal(t, domain.ReservationStatusReleased, repo.reservations[res.ID].Status)
	})

	t.Run("unknown reservation is an error", func(t *testing.T) {
		repo := newFakeReservationRepo(keyVariant())
		svc := NewReservationService(repo, &fakeBinder{}, clock.NewFixed(testStart), audit.NopSink{})

		err := svc.ReleaseReservation(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})
}
