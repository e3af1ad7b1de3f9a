package app

import (
	"context"
	"time"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/audit"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/clock"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
)

type AdminRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateVariant(ctx context.Context, variant domain.Variant) error
	GetVariant(ctx context.Context, variantID string) (domain.Variant, error)
	InsertKey(ctx context.Context, key domain.Key) error
	CreateAccount(ctx context.Context, account domain.Account) error
	CreateSlots(ctx context.Context, accountID string, count int) error
	CountAvailableKeys(ctx context.Context, variantID string) (int, error)
	CountFreeSlots(ctx context.Context, variantID string, now time.Time) (int, error)
	ListAvailableKeys(ctx context.Context, variantID string, limit int) ([]domain.Key, error)
}

// AdminService provisions the inventory the allocator sells: variants, key
// batches and shared accounts with their slots.
type AdminService struct {
	repo  AdminRepository
	clock clock.Clock
	audit audit.Sink
}

func NewAdminService(repo AdminRepository, clk clock.Clock, sink audit.Sink) *AdminService {
	return &AdminService{
		repo:  repo,
		clock: clk,
		audit: sink,
	}
}

type CreateVariantInput struct {
	Name           string
	UnitKind       domain.UnitKind
	MinRenewalDays int
}

func (s *AdminService) CreateVariant(ctx context.Context, in CreateVariantInput) (domain.Variant, error) {
	if in.Name == "" {
		return domain.Variant{}, domain.ErrVariantNameRequired
	}
	if in.UnitKind != domain.UnitKindKey && in.UnitKind != domain.UnitKindAccountSlot {
		return domain.Variant{}, domain.ErrInvalidUnitKind
	}
	if in.MinRenewalDays < 0 {
		return domain.Variant{}, domain.ErrInvalidExpiry
	}

	variant := domain.Variant{
		ID:             newID(),
		Name:           in.Name,
		UnitKind:       in.UnitKind,
		MinRenewalDays: in.MinRenewalDays,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.CreateVariant(ctx, variant); err != nil {
		return domain.Variant{}, err
	}
	return variant, nil
}

type ImportKeysInput struct {
	VariantID  string
	SupplierID string
	Kind       domain.KeyKind
	ExpiryDate *time.Time
	KeyStrings []string
}

type ImportKeysResult struct {
	Imported   []domain.Key
	Duplicates []string
}

// ImportKeys inserts a batch of keys. Duplicate key strings are reported
// per row instead of aborting the batch, so a partially-overlapping
// supplier file still loads its new stock.
func (s *AdminService) ImportKeys(ctx context.Context, in ImportKeysInput) (ImportKeysResult, error) {
	if in.VariantID == "" {
		return ImportKeysResult{}, domain.ErrInvalidID
	}
	if len(in.KeyStrings) == 0 {
		return ImportKeysResult{}, domain.ErrKeyStringsRequired
	}
	kind := in.Kind
	if kind == "" {
		kind = domain.KeyKindPool
	}

	variant, err := s.repo.GetVariant(ctx, in.VariantID)
	if err != nil {
		return ImportKeysResult{}, err
	}
	if variant.UnitKind != domain.UnitKindKey {
		return ImportKeysResult{}, domain.ErrInvalidUnitKind
	}

	now := s.clock.Now()
	var result ImportKeysResult

	for _, keyString := range in.KeyStrings {
		if keyString == "" {
			continue
		}
		key := domain.Key{
			ID:         newID(),
			VariantID:  in.VariantID,
			SupplierID: in.SupplierID,
			KeyString:  keyString,
			Kind:       kind,
			Status:     domain.KeyStatusAvailable,
			ExpiryDate: in.ExpiryDate,
			ImportedAt: now,
		}
		if err := s.repo.InsertKey(ctx, key); err != nil {
			if err == domain.ErrDuplicateKeyString {
				result.Duplicates = append(result.Duplicates, keyString)
				continue
			}
			return ImportKeysResult{}, err
		}
		result.Imported = append(result.Imported, key)
	}

	s.audit.Emit(domain.AuditEvent{
		ID:         newID(),
		Action:     domain.AuditKeyImported,
		EntityID:   in.VariantID,
		OccurredAt: now,
		Detail: map[string]string{
			"supplier_id": in.SupplierID,
		},
	})
	return result, nil
}

type CreateAccountInput struct {
	VariantID  string
	MaxUsers   int
	ExpiryDate time.Time
}

// CreateAccount provisions a shared account and its MaxUsers slots in one
// transaction.
func (s *AdminService) CreateAccount(ctx context.Context, in CreateAccountInput) (domain.Account, error) {
	if in.VariantID == "" {
		return domain.Account{}, domain.ErrInvalidID
	}
	if in.MaxUsers <= 0 {
		return domain.Account{}, domain.ErrInvalidMaxUsers
	}

	now := s.clock.Now()
	if !in.ExpiryDate.After(now) {
		return domain.Account{}, domain.ErrInvalidExpiry
	}

	account := domain.Account{
		ID:         newID(),
		VariantID:  in.VariantID,
		MaxUsers:   in.MaxUsers,
		ExpiryDate: in.ExpiryDate,
		Status:     domain.AccountStatusActive,
		CreatedAt:  now,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		variant, err := s.repo.GetVariant(txCtx, in.VariantID)
		if err != nil {
			return err
		}
		if variant.UnitKind != domain.UnitKindAccountSlot {
			return domain.ErrInvalidUnitKind
		}
		if err := s.repo.CreateAccount(txCtx, account); err != nil {
			return err
		}
		return s.repo.CreateSlots(txCtx, account.ID, in.MaxUsers)
	})
	if err != nil {
		return domain.Account{}, err
	}

	s.audit.Emit(domain.AuditEvent{
		ID:         newID(),
		Action:     domain.AuditAccountCreated,
		EntityID:   account.ID,
		OccurredAt: now,
		Detail: map[string]string{
			"variant_id": in.VariantID,
		},
	})
	return account, nil
}

type VariantStock struct {
	AvailableKeys int
	FreeSlots     int
}

// Stock reports sellable capacity for ops dashboards.
func (s *AdminService) Stock(ctx context.Context, variantID string) (VariantStock, error) {
	if variantID == "" {
		return VariantStock{}, domain.ErrInvalidID
	}
	variant, err := s.repo.GetVariant(ctx, variantID)
	if err != nil {
		return VariantStock{}, err
	}

	switch variant.UnitKind {
	case domain.UnitKindKey:
		n, err := s.repo.CountAvailableKeys(ctx, variantID)
		if err != nil {
			return VariantStock{}, err
		}
		return VariantStock{AvailableKeys: n}, nil
	case domain.UnitKindAccountSlot:
		n, err := s.repo.CountFreeSlots(ctx, variantID, s.clock.Now())
		if err != nil {
			return VariantStock{}, err
		}
		return VariantStock{FreeSlots: n}, nil
	default:
		return VariantStock{}, domain.ErrInvalidUnitKind
	}
}
