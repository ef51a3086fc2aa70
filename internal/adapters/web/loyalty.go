package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pos-ledger/internal/core"
)

// apiCreateCustomer handles POST /api/customers.
func (h *Handler) apiCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name" validate:"required,max=200"`
		Phone string `json:"phone" validate:"max=40"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	actor := actorFromContext(r.Context())
	customer, err := h.svc.Loyalty.CreateCustomer(r.Context(), actor, core.CreateCustomerInput{Name: body.Name, Phone: body.Phone})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeCreated(w, customer)
}

type customerView struct {
	*core.Customer
	StampsProgress int `json:"stamps_progress"`
	FreeCredits    int `json:"free_credits"`
}

// apiGetCustomer handles GET /api/customers/{id}.
func (h *Handler) apiGetCustomer(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	customer, err := h.svc.Loyalty.GetCustomer(r.Context(), actor.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, customerView{
		Customer:       customer,
		StampsProgress: customer.StampsProgress(),
		FreeCredits:    customer.FreeCredits(),
	})
}

// apiListLoyaltyEvents handles GET /api/customers/{id}/events.
func (h *Handler) apiListLoyaltyEvents(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	events, err := h.svc.Loyalty.ListEvents(r.Context(), actor.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, events)
}

// apiRedeemCredit handles POST /api/customers/{id}/redeem.
func (h *Handler) apiRedeemCredit(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	customer, err := h.svc.Loyalty.RedeemOneCredit(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, customerView{
		Customer:       customer,
		StampsProgress: customer.StampsProgress(),
		FreeCredits:    customer.FreeCredits(),
	})
}
