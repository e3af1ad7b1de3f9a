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

type fakeAdminRepo struct {
	variants      map[string]domain.Variant
	keys          []domain.Key
	accounts      []domain.Account
	slotCounts    map[string]int
	availableKeys int
	freeSlots     int
}

func newFakeAdminRepo(variants ...domain.Variant) *fakeAdminRepo {
	repo := &fakeAdminRepo{
		variants:   make(map[string]domain.Variant),
		slotCounts: make(map[string]int),
	}
	for _, v := range variants {
		repo.variants[v.ID] = v
	}
	return repo
}

func (f *fakeAdminRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeAdminRepo) CreateVariant(_ context.Context, variant domain.Variant) error {
	f.variants[variant.ID] = variant
	return nil
}

func (f *fakeAdminRepo) GetVariant(_ context.Context, variantID string) (domain.Variant, error) {
	v, ok := f.variants[variantID]
	if !ok {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	return v, nil
}

func (f *fakeAdminRepo) InsertKey(_ context.Context, key domain.Key) error {
	for _, existing := range f.keys {
		if existing.KeyString == key.KeyString {
			return domain.ErrDuplicateKeyString
		}
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeAdminRepo) CreateAccount(_ context.Context, account domain.Account) error {
	f.accounts = append(f.accounts, account)
	return nil
}

func (f *fakeAdminRepo) CreateSlots(_ context.Context, accountID string, count int) error {
	f.slotCounts[accountID] = count
	return nil
}

func (f *fakeAdminRepo) CountAvailableKeys(context.Context, string) (int, error) {
	return f.availableKeys, nil
}

func (f *fakeAdminRepo) CountFreeSlots(context.Context, string, time.Time) (int, error) {
	return f.freeSlots, nil
}

func (f *fakeAdminRepo) ListAvailableKeys(_ context.Context, variantID string, limit int) ([]domain.Key, error) {
	var out []domain.Key
	for _, key := range f.keys {
		if len(out) == limit {
			break
		}
		if key.VariantID == variantID && key.Status == domain.KeyStatusAvailable {
			out = append(out, key)
		}
	}
	return out, nil
}

func newTestAdminService(repo *fakeAdminRepo, sink audit.Sink) *AdminService {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return NewAdminService(repo, clock.NewFixed(testStart), sink)
}

func TestCreateVariant(t *testing.T) {
	t.Run("creates a key variant", func(t *testing.T) {
		repo := newFakeAdminRepo()
		svc := newTestAdminService(repo, nil)

		variant, err := svc.CreateVariant(context.Background(), CreateVariantInput{
			Name: "Game X Standard", UnitKind: domain.UnitKindKey,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, variant.ID)
		assert.Equal(t, testStart, variant.CreatedAt)
		assert.Contains(t, repo.variants, variant.ID)
	})

	t.Run("validation", func(t *testing.T) {
		svc := newTestAdminService(newFakeAdminRepo(), nil)

		_, err := svc.CreateVariant(context.Background(), CreateVariantInput{UnitKind: domain.UnitKindKey})
		assert.ErrorIs(t, err, domain.ErrVariantNameRequired)

		_, err = svc.CreateVariant(context.Background(), CreateVariantInput{Name: "x", UnitKind: "bogus"})
		assert.ErrorIs(t, err, domain.ErrInvalidUnitKind)

		_, err = svc.CreateVariant(context.Background(), CreateVariantInput{
			Name: "x", UnitKind: domain.UnitKindKey, MinRenewalDays: -1,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidExpiry)
	})
}

func TestImportKeys(t *testing.T) {
	variant := domain.Variant{ID: "var-key", Name: "Game X", UnitKind: domain.UnitKindKey}

	t.Run("imports a batch", func(t *testing.T) {
		repo := newFakeAdminRepo(variant)
		sink := &audit.MemorySink{}
		svc := newTestAdminService(repo, sink)

		result, err := svc.ImportKeys(context.Background(), ImportKeysInput{
			VariantID:  "var-key",
			SupplierID: "sup-1",
			KeyStrings: []string{"AAAA-1111", "BBBB-2222"},
		})
		require.NoError(t, err)
		assert.Len(t, result.Imported, 2)
		assert.Empty(t, result.Duplicates)

		for _, key := range result.Imported {
			assert.Equal(t, domain.KeyStatusAvailable, key.Status)
			assert.Equal(t, domain.KeyKindPool, key.Kind)
			assert.Equal(t, "sup-1", key.SupplierID)
		}

		events := sink.Events()
		require.Len(t, events, 1)
		assert.Equal(t, domain.AuditKeyImported, events[0].Action)
	})

	t.Run("duplicates are reported, not fatal", func(t *testing.T) {
		repo := newFakeAdminRepo(variant)
		svc := newTestAdminService(repo, nil)

		_, err := svc.ImportKeys(context.Background(), ImportKeysInput{
			VariantID: "var-key", KeyStrings: []string{"AAAA-1111"},
		})
		require.NoError(t, err)

		result, err := svc.ImportKeys(context.Background(), ImportKeysInput{
			VariantID: "var-key", KeyStrings: []string{"AAAA-1111", "CCCC-3333"},
		})
		require.NoError(t, err)
		assert.Len(t, result.Imported, 1)
		assert.Equal(t, []string{"AAAA-1111"}, result.Duplicates)
	})

	t.Run("refuses a slot variant", func(t *testing.T) {
		repo := newFakeAdminRepo(domain.Variant{ID: "var-slot", UnitKind: domain.UnitKindAccountSlot})
		svc := newTestAdminService(repo, nil)

		_, err := svc.ImportKeys(context.Background(), ImportKeysInput{
			VariantID: "var-slot", KeyStrings: []string{"AAAA-1111"},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidUnitKind)
	})

	t.Run("validation", func(t *testing.T) {
		svc := newTestAdminService(newFakeAdminRepo(variant), nil)

		_, err := svc.ImportKeys(context.Background(), ImportKeysInput{KeyStrings: []string{"x"}})
		assert.ErrorIs(t, err, domain.ErrInvalidID)

		_, err = svc.ImportKeys(context.Background(), ImportKeysInput{VariantID: "var-key"})
		assert.ErrorIs(t, err, domain.ErrKeyStringsRequired)
	})
}

func TestCreateAccount(t *testing.T) {
	variant := domain.Variant{ID: "var-slot", Name: "Streaming Family", UnitKind: domain.UnitKindAccountSlot}
	expiry := testStart.Add(30 * 24 * time.Hour)

	t.Run("creates the account and its slots", func(t *testing.T) {
		repo := newFakeAdminRepo(variant)
		svc := newTestAdminService(repo, nil)

		account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
			VariantID: "var-slot", MaxUsers: 4, ExpiryDate: expiry,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.AccountStatusActive, account.Status)
		assert.Equal(t, 4, repo.slotCounts[account.ID])
	})

	t.Run("refuses a key variant", func(t *testing.T) {
		repo := newFakeAdminRepo(domain.Variant{ID: "var-key", UnitKind: domain.UnitKindKey})
		svc := newTestAdminService(repo, nil)

		_, err := svc.CreateAccount(context.Background(), CreateAccountInput{
			VariantID: "var-key", MaxUsers: 2, ExpiryDate: expiry,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidUnitKind)
	})

	t.Run("validation", func(t *testing.T) {
		svc := newTestAdminService(newFakeAdminRepo(variant), nil)

		_, err := svc.CreateAccount(context.Background(), CreateAccountInput{MaxUsers: 2, ExpiryDate: expiry})
		assert.ErrorIs(t, err, domain.ErrInvalidID)

		_, err = svc.CreateAccount(context.Background(), CreateAccountInput{VariantID: "var-slot", ExpiryDate: expiry})
		assert.ErrorIs(t, err, domain.ErrInvalidMaxUsers)

		_, err = svc.CreateAccount(context.Background(), CreateAccountInput{
			VariantID: "var-slot", MaxUsers: 2, ExpiryDate: testStart.Add(-time.Hour),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidExpiry)
	})
}

func TestStock(t *testing.T) {
	t.Run("reports available keys for a key variant", func(t *testing.T) {
		repo := newFakeAdminRepo(domain.Variant{ID: "var-key", UnitKind: domain.UnitKindKey})
		repo.availableKeys = 7
		svc := newTestAdminService(repo, nil)

		stock, err := svc.Stock(context.Background(), "var-key")
		require.NoError(t, err)
		assert.Equal(t, VariantStock{AvailableKeys: 7}, stock)
	})

	t.Run("reports free slots for a slot variant", func(t *testing.T) {
		repo := newFakeAdminRepo(domain.Variant{ID: "var-slot", UnitKind: domain.UnitKindAccountSlot})
		repo.freeSlots = 3
		svc := newTestAdminService(repo, nil)

		stock, err := svc.Stock(context.Background(), "var-slot")
		require.NoError(t, err)
		assert.Equal(t, VariantStock{FreeSlots: 3}, stock)
	})

	t.Run("unknown variant", func(t *testing.T) {
		svc := newTestAdminService(newFakeAdminRepo(), nil)

		_, err := svc.Stock(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrVariantNotFound)
	})
}
