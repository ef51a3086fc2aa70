package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pos-ledger/internal/app"
	"pos-ledger/internal/logger"
	"pos-ledger/internal/validator"
)

// Handler holds the ledger services and the chi router.
type Handler struct {
	svc *app.Services
	log *logger.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc *app.Services, log *logger.Logger, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc, log: log.With("http")}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(h.log))
	r.Use(Recoverer(h.log))
	r.Use(CORS(allowedOrigins))

	r.Route("/api", func(r chi.Router) {
		// ── Health (public) ───────────────────────────────────────────────────
		r.Get("/health", h.health)

		// ── Tenant API (identity headers required) ────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(Identity)
			r.Use(RequestBodyLimit(1 << 20)) // 1 MB

			// Inventory
			r.Get("/items", h.apiListItems)
			r.Post("/items", h.apiCreateItem)
			r.Get("/items/{id}", h.apiGetItem)
			r.Get("/items/{id}/movements", h.apiListItemMovements)
			r.Post("/items/{id}/add", h.apiAddStock)
			r.Post("/items/{id}/remove", h.apiRemoveStock)
			r.Post("/items/{id}/adjust", h.apiAdjustStock)
			r.Post("/inventory/consume", h.apiConsumeBOM)

			// Catalog
			r.Get("/products", h.apiListProducts)
			r.Post("/products", h.apiCreateProduct)
			r.Get("/products/{id}", h.apiGetProduct)

			// Orders
			r.Post("/orders", h.apiCreateOrder)
			r.Get("/orders/{id}", h.apiGetOrder)
			r.Delete("/orders/{id}", h.apiDeleteOrder)
			r.Post("/orders/{id}/deliver", h.apiDeliverOrder)
			r.Post("/orders/{id}/cancel", h.apiCancelOrder)
			r.Post("/orders/{id}/loyalty", h.apiAccrueOrder)

			// Cash
			r.Post("/cash/openings", h.apiOpenDay)
			r.Get("/cash/openings/{day}", h.apiGetOpening)
			r.Post("/cash/openings/{day}/close", h.apiCloseOpening)
			r.Post("/cash/movements", h.apiRecordCashMovement)
			r.Get("/cash/expected", h.apiExpectedCash)

			// Loyalty
			r.Post("/customers", h.apiCreateCustomer)
			r.Get("/customers/{id}", h.apiGetCustomer)
			r.Get("/customers/{id}/events", h.apiListLoyaltyEvents)
			r.Post("/customers/{id}/redeem", h.apiRedeemCredit)

			// Purchases
			r.Get("/purchases", h.apiListPurchases)
			r.Get("/purchases/suggestions", h.apiSuggestReplenishment)
			r.Post("/purchases/draft", h.apiUpsertDraft)
			r.Post("/purchases/replenish", h.apiReplenishToday)
			r.Get("/purchases/{id}", h.apiGetPurchase)
			r.Post("/purchases/{id}/ordered", h.apiMarkOrdered)
			r.Post("/purchases/{id}/cancel", h.apiCancelPurchase)
			r.Post("/purchases/{id}/receive", h.apiReceivePurchase)

			// Reports (read-only)
			r.Get("/reports/movements", h.apiReportMovements)
			r.Get("/reports/orders", h.apiReportOrders)
			r.Get("/reports/purchases", h.apiReportPurchases)
			r.Get("/reports/sales", h.apiSalesSummary)
			r.Get("/reports/reconcile", h.apiReconcile)
		})
	})

	return r
}

// health returns service status and the business day the server is on.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
		Today  string `json:"today"`
		Zone   string `json:"zone"`
	}
	writeJSON(w, response{Status: "ok", Today: h.svc.Calendar.Today(), Zone: h.svc.Calendar.Zone()})
}

// decodeJSON decodes the request body into v and validates it. It returns false and
// writes the error response on failure: 413 when the body exceeds the size limit set
// by RequestBodyLimit, 400 for everything else.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, false)
}

// decodeStrictJSON is decodeJSON that also rejects fields the body type does not declare.
func decodeStrictJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, strict bool) bool {
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	if errs := validator.ValidateStruct(v); errs != nil {
		writeError(w, r, validator.Summary(errs), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// dayParam reads a YYYY-MM-DD query parameter, defaulting to today.
func (h *Handler) dayParam(r *http.Request, name string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	return h.svc.Calendar.Today()
}

// rangeParams reads from/to, each defaulting to today.
func (h *Handler) rangeParams(r *http.Request) (string, string) {
	return h.dayParam(r, "from"), h.dayParam(r, "to")
}

func intParam(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
