package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"pos-ledger/internal/core"
)

type purchaseLineBody struct {
	IngredientID string          `json:"ingredient_id" validate:"required"`
	Qty          decimal.Decimal `json:"qty" validate:"gt=0"`
	UnitCost     decimal.Decimal `json:"unit_cost" validate:"gte=0"` // zero keeps the draft or item cost
}

func toPurchaseLines(in []purchaseLineBody) []core.PurchaseLineInput {
	out := make([]core.PurchaseLineInput, len(in))
	for i, l := range in {
		out[i] = core.PurchaseLineInput{IngredientID: l.IngredientID, Qty: l.Qty, UnitCost: l.UnitCost}
	}
	return out
}

// apiListPurchases handles GET /api/purchases?from=&to=.
func (h *Handler) apiListPurchases(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	from, to := h.rangeParams(r)
	purchases, err := h.svc.Purchases.ListPurchases(r.Context(), actor.OrgID, from, to)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, purchases)
}

// apiSuggestReplenishment handles GET /api/purchases/suggestions.
func (h *Handler) apiSuggestReplenishment(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	suggestions, err := h.svc.Purchases.SuggestReplenishment(r.Context(), actor.OrgID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, suggestions)
}

// apiUpsertDraft handles POST /api/purchases/draft.
// Body: { lines: [{ingredient_id, qty, unit_cost?}] }
func (h *Handler) apiUpsertDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lines []purchaseLineBody `json:"lines" validate:"required,min=1,dive"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	actor := actorFromContext(r.Context())
	purchase, err := h.svc.Purchases.UpsertDraftForToday(r.Context(), actor, toPurchaseLines(body.Lines))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, purchase)
}

// apiReplenishToday handles POST /api/purchases/replenish. Nothing to order yields 204.
func (h *Handler) apiReplenishToday(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	purchase, err := h.svc.Purchases.ReplenishToday(r.Context(), actor)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if purchase == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, purchase)
}

// apiGetPurchase handles GET /api/purchases/{id}.
func (h *Handler) apiGetPurchase(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	purchase, err := h.svc.Purchases.GetPurchase(r.Context(), actor.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, purchase)
}

// apiMarkOrdered handles POST /api/purchases/{id}/ordered.
func (h *Handler) apiMarkOrdered(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	purchase, err := h.svc.Purchases.MarkOrdered(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, purchase)
}

// apiCancelPurchase handles POST /api/purchases/{id}/cancel.
func (h *Handler) apiCancelPurchase(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	purchase, err := h.svc.Purchases.CancelPurchase(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, purchase)
}

// apiReceivePurchase handles POST /api/purchases/{id}/receive.
// Body (optional): { lines: [{ingredient_id, qty, unit_cost?}] } replaces the stored lines.
func (h *Handler) apiReceivePurchase(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lines []purchaseLineBody `json:"lines" validate:"dive"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	actor := actorFromContext(r.Context())
	purchase, err := h.svc.Purchases.ReceivePurchase(r.Context(), actor, chi.URLParam(r, "id"), toPurchaseLines(body.Lines))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, purchase)
}
