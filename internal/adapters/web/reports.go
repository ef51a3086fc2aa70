package web

import (
	"net/http"

	"pos-ledger/internal/core"
)

// apiReportMovements handles GET /api/reports/movements?from=&to=.
func (h *Handler) apiReportMovements(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	from, to := h.rangeParams(r)
	movements, err := h.svc.Reports.ListMovements(r.Context(), actor.OrgID, from, to)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, movements)
}

// apiReportOrders handles GET /api/reports/orders?from=&to=.
func (h *Handler) apiReportOrders(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	from, to := h.rangeParams(r)
	orders, err := h.svc.Reports.ListOrders(r.Context(), actor.OrgID, from, to)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, orders)
}

// apiReportPurchases handles GET /api/reports/purchases?from=&to=.
func (h *Handler) apiReportPurchases(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	from, to := h.rangeParams(r)
	purchases, err := h.svc.Reports.ListPurchases(r.Context(), actor.OrgID, from, to)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, purchases)
}

// apiSalesSummary handles GET /api/reports/sales?day=.
func (h *Handler) apiSalesSummary(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	summary, err := h.svc.Reports.SalesSummary(r.Context(), actor.OrgID, h.dayParam(r, "day"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

// apiReconcile handles GET /api/reports/reconcile. An empty list means every item's
// stock equals the sum of its movements.
func (h *Handler) apiReconcile(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	discrepancies, err := h.svc.Reports.ReconcileStock(r.Context(), actor.OrgID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if discrepancies == nil {
		discrepancies = []core.StockDiscrepancy{}
	}
	writeJSON(w, discrepancies)
}
