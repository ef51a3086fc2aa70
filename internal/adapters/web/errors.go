package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"pos-ledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// ledgerErrors maps ledger sentinels to HTTP status and error code. Order matters only
// for readability; a LedgerError wraps exactly one sentinel.
var ledgerErrors = []struct {
	kind   error
	status int
	code   string
}{
	{core.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
	{core.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST"},
	{core.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{core.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
	{core.ErrInsufficientCredits, http.StatusConflict, "INSUFFICIENT_CREDITS"},
	{core.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{core.ErrTenantMismatch, http.StatusForbidden, "TENANT_MISMATCH"},
}

func statusFor(err error) (int, string) {
	for _, e := range ledgerErrors {
		if errors.Is(err, e.kind) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// writeLedgerError writes err with the status of its ledger kind. Unknown errors are
// logged and reported as 500 without leaking their text.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", requestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, r, "internal server error", code, status)
		return
	}
	writeError(w, r, err.Error(), code, status)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeCreated writes a JSON response with status 201.
func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}
