package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"pos-ledger/internal/core"
)

// movementBody is a staff stock correction. Sale, cancel and receipt rows are written
// by the order and purchase ledgers only, so no correlation fields are accepted here.
type movementBody struct {
	Qty  decimal.Decimal `json:"qty" validate:"gt=0"`
	Note string          `json:"note" validate:"max=500"`
}

func (b movementBody) meta() core.MovementMeta {
	return core.MovementMeta{Reason: core.ReasonManual, Note: b.Note}
}

// apiListItems handles GET /api/items.
func (h *Handler) apiListItems(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	items, err := h.svc.Inventory.ListItems(r.Context(), actor.OrgID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, items)
}

// apiCreateItem handles POST /api/items.
func (h *Handler) apiCreateItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string           `json:"name" validate:"required,max=200"`
		Unit         string           `json:"unit" validate:"required,oneof=mass volume count"`
		Category     string           `json:"category" validate:"max=100"`
		InitialStock decimal.Decimal  `json:"initial_stock" validate:"gte=0"`
		MinStock     decimal.Decimal  `json:"min_stock" validate:"gte=0"`
		TargetStock  *decimal.Decimal `json:"target_stock"`
		CostPerUnit  decimal.Decimal  `json:"cost_per_unit" validate:"gte=0"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	actor := actorFromContext(r.Context())
	item, err := h.svc.Inventory.CreateItem(r.Context(), actor, core.CreateItemInput{
		Name:         body.Name,
		Unit:         core.Unit(body.Unit),
		Category:     body.Category,
		InitialStock: body.InitialStock,
		MinStock:     body.MinStock,
		TargetStock:  body.TargetStock,
		CostPerUnit:  body.CostPerUnit,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeCreated(w, item)
}

// apiGetItem handles GET /api/items/{id}.
func (h *Handler) apiGetItem(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	item, err := h.svc.Inventory.GetItem(r.Context(), actor.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, item)
}

// apiListItemMovements handles GET /api/items/{id}/movements?limit=N.
func (h *Handler) apiListItemMovements(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	movements, err := h.svc.Inventory.ListMovements(r.Context(), actor.OrgID, chi.URLParam(r, "id"), intParam(r, "limit", 100))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, movements)
}

// apiAddStock handles POST /api/items/{id}/add.
func (h *Handler) apiAddStock(w http.ResponseWriter, r *http.Request) {
	var body movementBody
	if !decodeStrictJSON(w, r, &body) {
		return
	}
	actor := actorFromContext(r.Context())
	item, err := h.svc.Inventory.AddStock(r.Context(), actor, chi.URLParam(r, "id"), body.Qty, body.meta())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, item)
}

// apiRemoveStock handles POST /api/items/{id}/remove.
func (h *Handler) apiRemoveStock(w http.ResponseWriter, r *http.Request) {
	var body movementBody
	if !decodeStrictJSON(w, r, &body) {
		return
	}
	actor := actorFromContext(r.Context())
	item, err := h.svc.Inventory.RemoveStock(r.Context(), actor, chi.URLParam(r, "id"), body.Qty, body.meta())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, item)
}

// apiAdjustStock handles POST /api/items/{id}/adjust.
// Body: { target, note? }
func (h *Handler) apiAdjustStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target decimal.Decimal `json:"target" validate:"gte=0"`
		Note   string          `json:"note" validate:"max=500"`
	}
	if !decodeStrictJSON(w, r, &body) {
		return
	}
	actor := actorFromContext(r.Context())
	item, err := h.svc.Inventory.AdjustStockTo(r.Context(), actor, chi.URLParam(r, "id"), body.Target,
		core.MovementMeta{Reason: core.ReasonManual, Note: body.Note})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, item)
}

// apiConsumeBOM handles POST /api/inventory/consume.
// Body: { lines: [{ingredient_id, qty}], note? }
func (h *Handler) apiConsumeBOM(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lines []struct {
			IngredientID string          `json:"ingredient_id" validate:"required"`
			Qty          decimal.Decimal `json:"qty" validate:"gt=0"`
		} `json:"lines" validate:"required,min=1,dive"`
		Note string `json:"note" validate:"max=500"`
	}
	if !decodeStrictJSON(w, r, &body) {
		return
	}

	lines := make([]core.BOMLine, len(body.Lines))
	for i, l := range body.Lines {
		lines[i] = core.BOMLine{IngredientID: l.IngredientID, Qty: l.Qty}
	}
	meta := core.MovementMeta{Reason: core.ReasonManual, Note: body.Note}

	actor := actorFromContext(r.Context())
	result, err := h.svc.Inventory.ConsumeBOM(r.Context(), actor, lines, meta)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiListProducts handles GET /api/products.
func (h *Handler) apiListProducts(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	products, err := h.svc.Catalog.ListProducts(r.Context(), actor.OrgID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, products)
}

// apiCreateProduct handles POST /api/products.
// Body: { name, category?, price, recipe: [{ingredient_id, qty}], variants?: {name: recipe} }
func (h *Handler) apiCreateProduct(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string                 `json:"name" validate:"required,max=200"`
		Category string                 `json:"category" validate:"max=100"`
		Price    decimal.Decimal        `json:"price" validate:"gte=0"`
		Recipe   core.Recipe            `json:"recipe"`
		Variants map[string]core.Recipe `json:"variants"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	actor := actorFromContext(r.Context())
	product, err := h.svc.Catalog.CreateProduct(r.Context(), actor, core.CreateProductInput{
		Name:     body.Name,
		Category: body.Category,
		Price:    body.Price,
		Recipe:   body.Recipe,
		Variants: body.Variants,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeCreated(w, product)
}

// apiGetProduct handles GET /api/products/{id}.
func (h *Handler) apiGetProduct(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	product, err := h.svc.Catalog.GetProduct(r.Context(), actor.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, product)
}
