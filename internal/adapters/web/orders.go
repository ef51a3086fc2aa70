package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"pos-ledger/internal/core"
)

// apiCreateOrder handles POST /api/orders.
// Body: { pay_method, customer_id?, lines: [{product_id | ingredient_id, variant?, qty, unit_price?}] }
func (h *Handler) apiCreateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PayMethod  string `json:"pay_method" validate:"required,oneof=cash card qr other"`
		CustomerID string `json:"customer_id"`
		Lines      []struct {
			ProductID    string           `json:"product_id" validate:"required_without=IngredientID,excluded_with=IngredientID"`
			IngredientID string           `json:"ingredient_id"`
			Variant      string           `json:"variant"`
			Qty          decimal.Decimal  `json:"qty" validate:"gt=0"`
			UnitPrice    *decimal.Decimal `json:"unit_price"`
		} `json:"lines" validate:"required,min=1,dive"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	in := core.CreateOrderInput{
		PayMethod:  core.PayMethod(body.PayMethod),
		CustomerID: body.CustomerID,
		Lines:      make([]core.OrderLineInput, len(body.Lines)),
	}
	for i, l := range body.Lines {
		in.Lines[i] = core.OrderLineInput{
			ProductID:    l.ProductID,
			IngredientID: l.IngredientID,
			Variant:      l.Variant,
			Qty:          l.Qty,
			UnitPrice:    l.UnitPrice,
		}
	}

	actor := actorFromContext(r.Context())
	order, err := h.svc.Orders.CreateOrder(r.Context(), actor, in)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeCreated(w, order)
}

// apiGetOrder handles GET /api/orders/{id}.
func (h *Handler) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	order, err := h.svc.Orders.GetOrder(r.Context(), actor.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// apiDeliverOrder handles POST /api/orders/{id}/deliver.
func (h *Handler) apiDeliverOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	order, err := h.svc.Orders.MarkDelivered(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// apiCancelOrder handles POST /api/orders/{id}/cancel.
func (h *Handler) apiCancelOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	order, err := h.svc.Orders.CancelOrder(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// apiDeleteOrder handles DELETE /api/orders/{id}.
func (h *Handler) apiDeleteOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if err := h.svc.Orders.DeleteOrder(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiAccrueOrder handles POST /api/orders/{id}/loyalty. It runs the accrual inline;
// an order that already earned stamps returns applied=false.
func (h *Handler) apiAccrueOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	result, err := h.svc.Loyalty.AccrueOnDelivery(r.Context(), actor.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}
