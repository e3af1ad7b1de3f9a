package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/app"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
)

// Provisioner covers admin provisioning of variants, keys and accounts.
type Provisioner interface {
	CreateVariant(ctx context.Context, in app.CreateVariantInput) (domain.Variant, error)
	ImportKeys(ctx context.Context, in app.ImportKeysInput) (app.ImportKeysResult, error)
	CreateAccount(ctx context.Context, in app.CreateAccountInput) (domain.Account, error)
	Stock(ctx context.Context, variantID string) (app.VariantStock, error)
}

// KeyAdmin covers administrative terminal transitions on keys.
type KeyAdmin interface {
	RecallKey(ctx context.Context, keyID, reason string) error
	MarkKeyError(ctx context.Context, keyID, reason string) error
}

// AccountAdmin extends account expiries.
type AccountAdmin interface {
	ExtendAccountExpiry(ctx context.Context, accountID string, newExpiry time.Time) error
}

// HandleAdminVariants routes POST /admin/variants and
// GET /admin/variants/{id}/stock.
func HandleAdminVariants(svc Provisioner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case len(parts) == 2 && r.Method == http.MethodPost:
			var req createVariantRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			variant, err := svc.CreateVariant(r.Context(), app.CreateVariantInput{
				Name:           req.Name,
				UnitKind:       domain.UnitKind(req.UnitKind),
				MinRenewalDays: req.MinRenewalDays,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(variantResponse{
				ID:             variant.ID,
				Name:           variant.Name,
				UnitKind:       string(variant.UnitKind),
				MinRenewalDays: variant.MinRenewalDays,
			})
		case len(parts) == 4 && parts[3] == "stock" && r.Method == http.MethodGet:
			stock, err := svc.Stock(r.Context(), parts[2])
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(stockResponse{
				AvailableKeys: stock.AvailableKeys,
				FreeSlots:     stock.FreeSlots,
			})
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleAdminKeys routes POST /admin/keys (import) and
// POST /admin/keys/{id}/recall | /error.
func HandleAdminKeys(prov Provisioner, admin KeyAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case len(parts) == 2:
			var req importKeysRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			result, err := prov.ImportKeys(r.Context(), app.ImportKeysInput{
				VariantID:  req.VariantID,
				SupplierID: req.SupplierID,
				Kind:       domain.KeyKind(req.Kind),
				ExpiryDate: req.ExpiryDate,
				KeyStrings: req.Keys,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(importKeysResponse{
				Imported:   len(result.Imported),
				Duplicates: result.Duplicates,
			})
		case len(parts) == 4:
			keyID := parts[2]
			var req reasonRequest
			if r.Body != nil && r.ContentLength != 0 {
				dec := json.NewDecoder(r.Body)
				dec.DisallowUnknownFields()
				if err := dec.Decode(&req); err != nil {
					writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
					return
				}
			}
			var err error
			switch parts[3] {
			case "recall":
				err = admin.RecallKey(r.Context(), keyID, req.Reason)
			case "error":
				err = admin.MarkKeyError(r.Context(), keyID, req.Reason)
			default:
				writeError(w, http.StatusNotFound, codeNotFound, "not found")
				return
			}
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

// HandleAdminAccounts routes POST /admin/accounts (create) and
// POST /admin/accounts/{id}/extend.
func HandleAdminAccounts(prov Provisioner, admin AccountAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case len(parts) == 2:
			var req createAccountRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			account, err := prov.CreateAccount(r.Context(), app.CreateAccountInput{
				VariantID:  req.VariantID,
				MaxUsers:   req.MaxUsers,
				ExpiryDate: req.ExpiryDate,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(accountResponse{
				ID:         account.ID,
				VariantID:  account.VariantID,
				MaxUsers:   account.MaxUsers,
				ExpiryDate: account.ExpiryDate,
				Status:     string(account.Status),
			})
		case len(parts) == 4 && parts[3] == "extend":
			var req extendRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			if err := admin.ExtendAccountExpiry(r.Context(), parts[2], req.NewExpiry); err != nil {
				writeDomainError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

type createVariantRequest struct {
	Name           string `json:"name"`
	UnitKind       string `json:"unit_kind"`
	MinRenewalDays int    `json:"min_renewal_days"`
}

type variantResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	UnitKind       string `json:"unit_kind"`
	MinRenewalDays int    `json:"min_renewal_days"`
}

type stockResponse struct {
	AvailableKeys int `json:"available_keys"`
	FreeSlots     int `json:"free_slots"`
}

type importKeysRequest struct {
	VariantID  string     `json:"variant_id"`
	SupplierID string     `json:"supplier_id"`
	Kind       string     `json:"kind"`
	ExpiryDate *time.Time `json:"expiry_date"`
	Keys       []string   `json:"keys"`
}

type importKeysResponse struct {
	Imported   int      `json:"imported"`
	Duplicates []string `json:"duplicates,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type createAccountRequest struct {
	VariantID  string    `json:"variant_id"`
	MaxUsers   int       `json:"max_users"`
	ExpiryDate time.Time `json:"expiry_date"`
}

type accountResponse struct {
	ID         string    `json:"id"`
	VariantID  string    `json:"variant_id"`
	MaxUsers   int       `json:"max_users"`
	ExpiryDate time.Time `json:"expiry_date"`
	Status     string    `json:"status"`
}

type extendRequest struct {
	NewExpiry time.Time `json:"new_expiry"`
}
