package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"pos-ledger/internal/core"
)

// apiOpenDay handles POST /api/cash/openings.
// Body: { day_key?, initial_cash, tasks_done? }
func (h *Handler) apiOpenDay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DayKey      string          `json:"day_key" validate:"omitempty,datetime=2006-01-02"`
		InitialCash decimal.Decimal `json:"initial_cash" validate:"gte=0"`
		TasksDone   []string        `json:"tasks_done"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.DayKey == "" {
		body.DayKey = h.svc.Calendar.Today()
	}
	actor := actorFromContext(r.Context())
	opening, err := h.svc.Cash.OpenDay(r.Context(), actor, core.OpenDayInput{
		DayKey:      body.DayKey,
		InitialCash: body.InitialCash,
		TasksDone:   body.TasksDone,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, opening)
}

// apiGetOpening handles GET /api/cash/openings/{day} for the calling user.
func (h *Handler) apiGetOpening(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	opening, err := h.svc.Cash.GetOpening(r.Context(), actor.OrgID, chi.URLParam(r, "day"), actor.UserID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, opening)
}

// apiCloseOpening handles POST /api/cash/openings/{day}/close.
// Body: { counted_cash }
func (h *Handler) apiCloseOpening(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CountedCash decimal.Decimal `json:"counted_cash" validate:"gte=0"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	actor := actorFromContext(r.Context())
	opening, err := h.svc.Cash.CloseOpeningForUser(r.Context(), actor, chi.URLParam(r, "day"), body.CountedCash)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, opening)
}

// apiRecordCashMovement handles POST /api/cash/movements.
// Body: { type: in|out, amount, reason?, order_id? }
func (h *Handler) apiRecordCashMovement(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type    string          `json:"type" validate:"required,oneof=in out"`
		Amount  decimal.Decimal `json:"amount" validate:"gt=0"`
		Reason  string          `json:"reason" validate:"max=500"`
		OrderID string          `json:"order_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	actor := actorFromContext(r.Context())
	movement, err := h.svc.Cash.RecordCashMovement(r.Context(), actor, core.CashMovementInput{
		Type:    core.CashMovementType(body.Type),
		Amount:  body.Amount,
		Reason:  body.Reason,
		OrderID: body.OrderID,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeCreated(w, movement)
}

// apiExpectedCash handles GET /api/cash/expected?day=YYYY-MM-DD.
func (h *Handler) apiExpectedCash(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	snapshot, err := h.svc.Cash.ExpectedCash(r.Context(), actor.OrgID, h.dayParam(r, "day"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, snapshot)
}
