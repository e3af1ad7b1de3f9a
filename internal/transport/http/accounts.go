package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
)

// SlotAssigner is the minimal interface for customer slot management.
type SlotAssigner interface {
	AssignCustomerToAccount(ctx context.Context, accountID, userID string) (domain.AccountSlot, error)
	RemoveCustomerFromAccount(ctx context.Context, accountID, userID string) error
}

// HandleAccountSlots routes POST /accounts/{id}/assign and
// POST /accounts/{id}/release.
func HandleAccountSlots(svc SlotAssigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		accountID, action, ok := parseAccountPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req slotRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		switch action {
		case "assign":
			slot, err := svc.AssignCustomerToAccount(r.Context(), accountID, req.UserID)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			var since time.Time
			if slot.OccupiedSince != nil {
				since = *slot.OccupiedSince
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(slotResponse{
				AccountID:     slot.AccountID,
				SlotIndex:     slot.SlotIndex,
				UserID:        slot.OccupantUserID,
				OccupiedSince: since,
			})
		case "release":
			if err := svc.RemoveCustomerFromAccount(r.Context(), accountID, req.UserID); err != nil {
				writeDomainError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseAccountPath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "accounts" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type slotRequest struct {
	UserID string `json:"user_id"`
}

type slotResponse struct {
	AccountID     string    `json:"account_id"`
	SlotIndex     int       `json:"slot_index"`
	UserID        string    `json:"user_id"`
	OccupiedSince time.Time `json:"occupied_since"`
}
