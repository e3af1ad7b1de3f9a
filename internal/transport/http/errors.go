package http

import (
	"encoding/json"
	"net/http"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidID           = "invalid_id"
	codeInvalidQuantity     = "invalid_quantity"
	codeInsufficientStock   = "insufficient_stock"
	codeStockRace           = "stock_race"
	codeSlotRace            = "slot_race"
	codeReservationExpired  = "reservation_expired"
	codeReservationNotFound = "reservation_not_found"
	codeReservationConflict = "reservation_conflict"
	codeInvalidTransition   = "invalid_transition"
	codeInvalidExpiry       = "invalid_expiry"
	codeAccountFull         = "account_full"
	codeAccountNotFound     = "account_not_found"
	codeKeyNotFound         = "key_not_found"
	codeVariantNotFound     = "variant_not_found"
	codeUserAlreadyAssigned = "user_already_assigned"
	codeOccupantNotFound    = "occupant_not_found"
	codeUserIDRequired      = "user_id_required"
	codeInvalidUnitKind     = "invalid_unit_kind"
	codeVariantNameRequired = "variant_name_required"
	codeInvalidMaxUsers     = "invalid_max_users"
	codeKeyStringsRequired  = "key_strings_required"
	codeForbidden           = "forbidden"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps the engine's sentinel errors to HTTP status codes.
// Races, expiries and capacity refusals are conflicts the caller can retry
// or react to; validation failures are bad requests; anything unknown is 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case domain.ErrInvalidQuantity:
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case domain.ErrUserIDRequired:
		writeError(w, http.StatusBadRequest, codeUserIDRequired, err.Error())
	case domain.ErrInvalidUnitKind:
		writeError(w, http.StatusBadRequest, codeInvalidUnitKind, err.Error())
	case domain.ErrVariantNameRequired:
		writeError(w, http.StatusBadRequest, codeVariantNameRequired, err.Error())
	case domain.ErrInvalidMaxUsers:
		writeError(w, http.StatusBadRequest, codeInvalidMaxUsers, err.Error())
	case domain.ErrKeyStringsRequired:
		writeError(w, http.StatusBadRequest, codeKeyStringsRequired, err.Error())
	case domain.ErrInvalidExpiry:
		writeError(w, http.StatusBadRequest, codeInvalidExpiry, err.Error())
	case domain.ErrInvalidTransition:
		writeError(w, http.StatusConflict, codeInvalidTransition, err.Error())
	case domain.ErrInsufficientStock:
		writeError(w, http.StatusConflict, codeInsufficientStock, err.Error())
	case domain.ErrStockRace:
		writeError(w, http.StatusConflict, codeStockRace, err.Error())
	case domain.ErrSlotRace:
		writeError(w, http.StatusConflict, codeSlotRace, err.Error())
	case domain.ErrReservationExpired:
		writeError(w, http.StatusConflict, codeReservationExpired, err.Error())
	case domain.ErrReservationConflict:
		writeError(w, http.StatusConflict, codeReservationConflict, err.Error())
	case domain.ErrAccountFull:
		writeError(w, http.StatusConflict, codeAccountFull, err.Error())
	case domain.ErrUserAlreadyAssigned:
		writeError(w, http.StatusConflict, codeUserAlreadyAssigned, err.Error())
	case domain.ErrReservationNotFound:
		writeError(w, http.StatusNotFound, codeReservationNotFound, err.Error())
	case domain.ErrAccountNotFound:
		writeError(w, http.StatusNotFound, codeAccountNotFound, err.Error())
	case domain.ErrKeyNotFound:
		writeError(w, http.StatusNotFound, codeKeyNotFound, err.Error())
	case domain.ErrVariantNotFound:
		writeError(w, http.StatusNotFound, codeVariantNotFound, err.Error())
	case domain.ErrOccupantNotFound:
		writeError(w, http.StatusNotFound, codeOccupantNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
