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

// StockReserver is the minimal interface needed to place a hold.
type StockReserver interface {
	ReserveStock(ctx context.Context, in app.ReserveStockInput) (domain.Reservation, error)
}

// ReservationCloser commits or releases an existing hold.
type ReservationCloser interface {
	CommitReservation(ctx context.Context, in app.CommitReservationInput) (app.CommitResult, error)
	ReleaseReservation(ctx context.Context, reservationID string) error
}

// HandleReserveStock returns an HTTP handler for POST /reservations.
func HandleReserveStock(svc StockReserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req reserveStockRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		var ttl time.Duration
		if req.TTLSeconds > 0 {
			ttl = time.Duration(req.TTLSeconds) * time.Second
		}

		res, err := svc.ReserveStock(r.Context(), app.ReserveStockInput{
			OrderID:   req.OrderID,
			VariantID: req.VariantID,
			Quantity:  req.Quantity,
			TTL:       ttl,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(reservationResponse{
			ID:        res.ID,
			OrderID:   res.OrderID,
			VariantID: res.VariantID,
			Quantity:  res.Quantity,
			Status:    string(res.Status),
			HeldUntil: res.HeldUntil,
		})
	}
}

// HandleReservationAction routes POST /reservations/{id}/commit and
// POST /reservations/{id}/release.
func HandleReservationAction(svc ReservationCloser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		reservationID, action, ok := parseReservationPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch action {
		case "commit":
			var req commitRequest
			if r.Body != nil && r.ContentLength != 0 {
				dec := json.NewDecoder(r.Body)
				dec.DisallowUnknownFields()
				if err := dec.Decode(&req); err != nil {
					writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
					return
				}
			}

			result, err := svc.CommitReservation(r.Context(), app.CommitReservationInput{
				ReservationID: reservationID,
				UserID:        req.UserID,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}

			resp := commitResponse{
				ReservationID: result.Reservation.ID,
				OrderID:       result.Reservation.OrderID,
				Status:        string(result.Reservation.Status),
			}
			for _, key := range result.Keys {
				resp.Keys = append(resp.Keys, boundKey{
					ID:        key.ID,
					KeyString: key.KeyString,
				})
			}
			for _, slot := range result.Slots {
				resp.Slots = append(resp.Slots, boundSlot{
					AccountID: slot.AccountID,
					SlotIndex: slot.SlotIndex,
				})
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(resp)
		case "release":
			if err := svc.ReleaseReservation(r.Context(), reservationID); err != nil {
				writeDomainError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseReservationPath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "reservations" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type reserveStockRequest struct {
	OrderID    string `json:"order_id"`
	VariantID  string `json:"variant_id"`
	Quantity   int    `json:"quantity"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type reservationResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	VariantID string    `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	HeldUntil time.Time `json:"held_until"`
}

type commitRequest struct {
	UserID string `json:"user_id"`
}

type boundKey struct {
	ID        string `json:"id"`
	KeyString string `json:"key_string"`
}

type boundSlot struct {
	AccountID string `json:"account_id"`
	SlotIndex int    `json:"slot_index"`
}

type commitResponse struct {
	ReservationID string      `json:"reservation_id"`
	OrderID       string      `json:"order_id"`
	Status        string      `json:"status"`
	Keys          []boundKey  `json:"keys,omitempty"`
	Slots         []boundSlot `json:"slots,omitempty"`
}
