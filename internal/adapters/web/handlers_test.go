package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/app"
	"pos-ledger/internal/core"
	"pos-ledger/internal/logger"
)

// Stubs embed the service interfaces; calling a method a test did not override panics,
// which Recoverer turns into a 500.

type stubOrders struct {
	core.OrderService
	gotActor core.Actor
	gotInput core.CreateOrderInput
	err      error
}

func (s *stubOrders) CreateOrder(_ context.Context, actor core.Actor, in core.CreateOrderInput) (*core.Order, error) {
	s.gotActor, s.gotInput = actor, in
	if s.err != nil {
		return nil, s.err
	}
	return &core.Order{ID: "o-1", OrgID: actor.OrgID, Status: core.OrderPending, PayMethod: in.PayMethod}, nil
}

func (s *stubOrders) MarkDelivered(_ context.Context, _ core.Actor, _ string) (*core.Order, error) {
	return nil, s.err
}

func (s *stubOrders) DeleteOrder(_ context.Context, _ core.Actor, _ string) error {
	return s.err
}

type stubPurchases struct {
	core.PurchaseService
	replenished *core.PurchaseOrder
}

func (s *stubPurchases) ReplenishToday(_ context.Context, _ core.Actor) (*core.PurchaseOrder, error) {
	return s.replenished, nil
}

type stubInventory struct {
	core.InventoryService
	err      error
	calls    int
	gotMeta  core.MovementMeta
	gotLines []core.BOMLine
}

func (s *stubInventory) AddStock(_ context.Context, actor core.Actor, id string, qty decimal.Decimal, meta core.MovementMeta) (*core.InventoryItem, error) {
	s.calls++
	s.gotMeta = meta
	return &core.InventoryItem{ID: id, OrgID: actor.OrgID, Stock: qty}, s.err
}

func (s *stubInventory) ConsumeBOM(_ context.Context, _ core.Actor, lines []core.BOMLine, meta core.MovementMeta) (*core.ConsumeResult, error) {
	s.calls++
	s.gotMeta, s.gotLines = meta, lines
	return &core.ConsumeResult{Lines: lines}, s.err
}

func (s *stubInventory) ListItems(_ context.Context, orgID string) ([]core.InventoryItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []core.InventoryItem{{ID: "i-1", OrgID: orgID, Name: "Milk", Unit: core.UnitVolume, Stock: decimal.NewFromInt(3)}}, nil
}

func newTestHandler(t *testing.T, svc *app.Services) http.Handler {
	t.Helper()
	cal, err := core.NewCalendar("UTC")
	require.NoError(t, err)
	svc.Calendar = cal
	return NewHandler(svc, logger.Nop(), "")
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Org-ID", "org-a")
	req.Header.Set("X-User-ID", "u-1")
	req.Header.Set("X-Role", "worker")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth_IsPublic(t *testing.T) {
	h := newTestHandler(t, &app.Services{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"zone":"UTC"`)
}

func TestIdentity_MissingHeadersRejected(t *testing.T) {
	h := newTestHandler(t, &app.Services{Inventory: &stubInventory{}})
	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("X-Org-ID", "org-a")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)
}

func TestListItems_ScopedToCallerOrg(t *testing.T) {
	h := newTestHandler(t, &app.Services{Inventory: &stubInventory{}})
	rec := do(t, h, http.MethodGet, "/api/items", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var items []core.InventoryItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, "org-a", items[0].OrgID)
	assert.True(t, items[0].Stock.Equal(decimal.NewFromInt(3)))
}

func TestCreateOrder_PassesActorAndLines(t *testing.T) {
	orders := &stubOrders{}
	h := newTestHandler(t, &app.Services{Orders: orders})
	rec := do(t, h, http.MethodPost, "/api/orders",
		`{"pay_method":"cash","customer_id":"c-1","lines":[{"product_id":"p-1","variant":"oat","qty":2,"unit_price":"15.50"}]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, core.Actor{OrgID: "org-a", UserID: "u-1", Role: core.RoleWorker}, orders.gotActor)
	require.Len(t, orders.gotInput.Lines, 1)
	line := orders.gotInput.Lines[0]
	assert.Equal(t, "p-1", line.ProductID)
	assert.Equal(t, "oat", line.Variant)
	assert.Equal(t, "2", line.Qty.String())
	require.NotNil(t, line.UnitPrice)
	assert.Equal(t, "15.5", line.UnitPrice.String())
	assert.Equal(t, core.PayCash, orders.gotInput.PayMethod)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown pay method", `{"pay_method":"iou","lines":[{"product_id":"p-1","qty":1}]}`},
		{"no lines", `{"pay_method":"cash","lines":[]}`},
		{"zero qty", `{"pay_method":"cash","lines":[{"product_id":"p-1","qty":0}]}`},
		{"neither product nor ingredient", `{"pay_method":"cash","lines":[{"qty":1}]}`},
		{"both product and ingredient", `{"pay_method":"cash","lines":[{"product_id":"p-1","ingredient_id":"i-1","qty":1}]}`},
		{"malformed json", `{"pay_method":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &stubOrders{}
			h := newTestHandler(t, &app.Services{Orders: orders})
			rec := do(t, h, http.MethodPost, "/api/orders", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).Code)
			assert.Empty(t, orders.gotActor.OrgID, "service must not be called")
		})
	}
}

func TestLedgerErrors_MapToStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("deliver: %w", core.ErrInvalidTransition), http.StatusConflict, "INVALID_TRANSITION"},
		{fmt.Errorf("deliver: %w", core.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("deliver: %w", core.ErrTenantMismatch), http.StatusForbidden, "TENANT_MISMATCH"},
		{fmt.Errorf("deliver: %w", core.ErrInsufficientStock), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{fmt.Errorf("deliver: %w", core.ErrInvalidQuantity), http.StatusBadRequest, "INVALID_QUANTITY"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := newTestHandler(t, &app.Services{Orders: &stubOrders{err: tt.err}})
			rec := do(t, h, http.MethodPost, "/api/orders/o-1/deliver", "")

			require.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestUnknownError_IsHidden(t *testing.T) {
	h := newTestHandler(t, &app.Services{Inventory: &stubInventory{err: errors.New("pq: connection refused to 10.0.0.5")}})
	rec := do(t, h, http.MethodGet, "/api/items", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	assert.NotContains(t, resp.Error, "10.0.0.5")
}

func TestDeleteOrder_NoContent(t *testing.T) {
	h := newTestHandler(t, &app.Services{Orders: &stubOrders{}})
	rec := do(t, h, http.MethodDelete, "/api/orders/o-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReplenishToday_NothingToOrder(t *testing.T) {
	h := newTestHandler(t, &app.Services{Purchases: &stubPurchases{}})
	rec := do(t, h, http.MethodPost, "/api/purchases/replenish", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	h = newTestHandler(t, &app.Services{Purchases: &stubPurchases{replenished: &core.PurchaseOrder{ID: "po-1", Status: core.PurchaseDraft}}})
	rec = do(t, h, http.MethodPost, "/api/purchases/replenish", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"po-1"`)
}

func TestRequestBodyLimit(t *testing.T) {
	orders := &stubOrders{}
	h := newTestHandler(t, &app.Services{Orders: orders})
	big := `{"pay_method":"cash","customer_id":"` + strings.Repeat("x", 2<<20) + `"}`
	rec := do(t, h, http.MethodPost, "/api/orders", big)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "REQUEST_TOO_LARGE", decodeError(t, rec).Code)
}

func TestRecoverer_PanicBecomes500(t *testing.T) {
	// stubOrders does not implement GetOrder, so the embedded nil interface panics.
	h := newTestHandler(t, &app.Services{Orders: &stubOrders{}})
	rec := do(t, h, http.MethodGet, "/api/orders/o-1", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}

func TestRequestID_EchoesSafeIDs(t *testing.T) {
	h := newTestHandler(t, &app.Services{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "<script>")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", rec.Header().Get("X-Request-ID"))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestManualMovements_RejectCorrelationFields(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"consume tagged with an order", "/api/inventory/consume",
			`{"lines":[{"ingredient_id":"milk","qty":"200"}],"reason":"sale","order_id":"o-pending"}`},
		{"consume with only an order id", "/api/inventory/consume",
			`{"lines":[{"ingredient_id":"milk","qty":"200"}],"order_id":"o-pending"}`},
		{"add posing as a receipt", "/api/items/milk/add",
			`{"qty":"5","meta_reason":"purchase","purchase_id":"po-x"}`},
		{"add posing as a cancel revert", "/api/items/milk/add",
			`{"qty":"5","reason":"cancel","order_id":"o-x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &stubInventory{}
			h := newTestHandler(t, &app.Services{Inventory: inv})
			rec := do(t, h, http.MethodPost, tt.path, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).Code)
			assert.Zero(t, inv.calls)
		})
	}
}

func TestManualMovements_AreTaggedManual(t *testing.T) {
	inv := &stubInventory{}
	h := newTestHandler(t, &app.Services{Inventory: inv})

	rec := do(t, h, http.MethodPost, "/api/inventory/consume", `{"lines":[{"ingredient_id":"milk","qty":"200"}],"note":"tasting"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.MovementMeta{Reason: core.ReasonManual, Note: "tasting"}, inv.gotMeta)
	require.Len(t, inv.gotLines, 1)
	assert.Equal(t, "200", inv.gotLines[0].Qty.String())

	rec = do(t, h, http.MethodPost, "/api/items/milk/add", `{"qty":"5"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.MovementMeta{Reason: core.ReasonManual}, inv.gotMeta)
}

func TestCORS_OnlyConfiguredOrigins(t *testing.T) {
	h := NewHandler(&app.Services{Calendar: mustCalendar(t)}, logger.Nop(), " https://pos.example , ,https://admin.example")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://admin.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://admin.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, []string{"https://pos.example", "https://admin.example"}, parseOrigins(" https://pos.example , ,https://admin.example"))
	assert.Nil(t, parseOrigins(""))
}

func mustCalendar(t *testing.T) *core.Calendar {
	t.Helper()
	cal, err := core.NewCalendar("UTC")
	require.NoError(t, err)
	return cal
}
