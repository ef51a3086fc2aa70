package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/core"
)

func (l *ledger) latte(t *testing.T, milkID, coffeeID string) *core.Product {
	t.Helper()
	p, err := l.catalog.CreateProduct(context.Background(), owner, core.CreateProductInput{
		Name:     "Latte",
		Category: "beverage",
		Price:    d("45"),
		Recipe: core.Recipe{
			{IngredientID: milkID, Qty: d("200")},
			{IngredientID: coffeeID, Qty: d("18")},
		},
	})
	require.NoError(t, err)
	return p
}

func TestOrder_CreateThenCancelRestoresStock(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "1000", "0.02")
	coffee := l.item(t, owner, "Coffee", core.UnitMass, "500", "0.5")
	latte := l.latte(t, milk.ID, coffee.ID)

	order, err := l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
		PayMethod: core.PayCash,
		Lines:     []core.OrderLineInput{{ProductID: latte.ID, Qty: d("1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, core.OrderPending, order.Status)
	assert.Equal(t, "45", order.Total.String())
	assert.Equal(t, "13", order.COGS.String()) // 200*0.02 + 18*0.5
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "beverage", order.Lines[0].Category)

	assert.Equal(t, "800", l.stockOf(t, milk.ID).String())
	moves, err := l.inventory.ListMovements(ctx, testOrg, milk.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, core.MovementConsume, moves[0].Type)
	assert.Equal(t, "200", moves[0].Qty.String())
	assert.Equal(t, order.ID, *moves[0].OrderID)

	canceled, err := l.orders.CancelOrder(ctx, worker, order.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderCanceled, canceled.Status)
	assert.NotNil(t, canceled.CanceledAt)
	assert.Nil(t, canceled.DeliveredAt)

	assert.Equal(t, "1000", l.stockOf(t, milk.ID).String())
	assert.Equal(t, "500", l.stockOf(t, coffee.ID).String())
	moves, err = l.inventory.ListMovements(ctx, testOrg, milk.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, core.MovementRevert, moves[0].Type)
	assert.Equal(t, core.ReasonCancel, *moves[0].Reason)
	assert.Equal(t, "200", moves[0].Qty.String())

	// A second cancel is a no-op: no extra revert.
	before := l.countMovements(t, milk.ID)
	_, err = l.orders.CancelOrder(ctx, worker, order.ID)
	require.NoError(t, err)
	assert.Equal(t, before, l.countMovements(t, milk.ID))
	assert.Equal(t, "1000", l.stockOf(t, milk.ID).String())

	requireReconciled(t, l)
}

func TestOrder_CreateFailsAtomicallyOnShortStock(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "300", "0.02")
	coffee := l.item(t, owner, "Coffee", core.UnitMass, "500", "0.5")
	latte := l.latte(t, milk.ID, coffee.ID)

	_, err := l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
		PayMethod: core.PayCard,
		Lines:     []core.OrderLineInput{{ProductID: latte.ID, Qty: d("2")}},
	})
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	var n int
	require.NoError(t, l.pool.QueryRow(ctx, "SELECT count(*) FROM orders").Scan(&n))
	assert.Zero(t, n)
	assert.Equal(t, "300", l.stockOf(t, milk.ID).String())
	assert.Equal(t, "500", l.stockOf(t, coffee.ID).String())
}

func TestOrder_DirectItemSaleAndVariants(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "1000", "0.02")
	oat := l.item(t, owner, "Oat milk", core.UnitVolume, "1000", "0.05")
	coffee := l.item(t, owner, "Coffee", core.UnitMass, "500", "0.5")
	water := l.item(t, owner, "Water bottle", core.UnitCount, "10", "4")

	p, err := l.catalog.CreateProduct(ctx, owner, core.CreateProductInput{
		Name:     "Latte",
		Category: "beverage",
		Price:    d("45"),
		Recipe:   core.Recipe{{IngredientID: milk.ID, Qty: d("200")}, {IngredientID: coffee.ID, Qty: d("18")}},
		Variants: map[string]core.Recipe{
			"oat": {{IngredientID: oat.ID, Qty: d("200")}, {IngredientID: coffee.ID, Qty: d("18")}},
		},
	})
	require.NoError(t, err)

	price := d("12")
	order, err := l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
		PayMethod: core.PayQR,
		Lines: []core.OrderLineInput{
			{ProductID: p.ID, Variant: "oat", Qty: d("1")},
			{IngredientID: water.ID, Qty: d("2"), UnitPrice: &price},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "69", order.Total.String())
	assert.Equal(t, "1000", l.stockOf(t, milk.ID).String())
	assert.Equal(t, "800", l.stockOf(t, oat.ID).String())
	assert.Equal(t, "8", l.stockOf(t, water.ID).String())

	// Direct item sales need an explicit price.
	_, err = l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
		PayMethod: core.PayQR,
		Lines:     []core.OrderLineInput{{IngredientID: water.ID, Qty: d("1")}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestOrder_DeliveredIsTerminal(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "1000", "0.02")
	coffee := l.item(t, owner, "Coffee", core.UnitMass, "500", "0.5")
	latte := l.latte(t, milk.ID, coffee.ID)

	order, err := l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
		PayMethod: core.PayCash,
		Lines:     []core.OrderLineInput{{ProductID: latte.ID, Qty: d("1")}},
	})
	require.NoError(t, err)

	delivered, err := l.orders.MarkDelivered(ctx, worker, order.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	again, err := l.orders.MarkDelivered(ctx, worker, order.ID)
	require.NoError(t, err)
	assert.Equal(t, delivered.DeliveredAt.UTC(), again.DeliveredAt.UTC())

	_, err = l.orders.CancelOrder(ctx, worker, order.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	err = l.orders.DeleteOrder(ctx, owner, order.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.Equal(t, "800", l.stockOf(t, milk.ID).String())

	// Anonymous order: nothing queued for loyalty.
	var n int
	require.NoError(t, l.pool.QueryRow(ctx, "SELECT count(*) FROM loyalty_outbox").Scan(&n))
	assert.Zero(t, n)
}

func TestOrder_DeletePendingRevertsStock(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "1000", "0.02")
	coffee := l.item(t, owner, "Coffee", core.UnitMass, "500", "0.5")
	latte := l.latte(t, milk.ID, coffee.ID)

	order, err := l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
		PayMethod: core.PayCash,
		Lines:     []core.OrderLineInput{{ProductID: latte.ID, Qty: d("2")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "600", l.stockOf(t, milk.ID).String())

	require.NoError(t, l.orders.DeleteOrder(ctx, owner, order.ID))
	assert.Equal(t, "1000", l.stockOf(t, milk.ID).String())

	_, err = l.orders.GetOrder(ctx, testOrg, order.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	moves, err := l.inventory.ListMovements(ctx, testOrg, milk.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, core.ReasonDelete, *moves[0].Reason)
	requireReconciled(t, l)
}

func TestOrder_TenantMismatch(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "1000", "0.02")
	coffee := l.item(t, owner, "Coffee", core.UnitMass, "500", "0.5")
	latte := l.latte(t, milk.ID, coffee.ID)

	_, err := l.orders.CreateOrder(ctx, outsider, core.CreateOrderInput{
		PayMethod: core.PayCash,
		Lines:     []core.OrderLineInput{{ProductID: latte.ID, Qty: d("1")}},
	})
	assert.ErrorIs(t, err, core.ErrTenantMismatch)

	order, err := l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
		PayMethod: core.PayCash,
		Lines:     []core.OrderLineInput{{ProductID: latte.ID, Qty: d("1")}},
	})
	require.NoError(t, err)
	_, err = l.orders.MarkDelivered(ctx, outsider, order.ID)
	assert.ErrorIs(t, err, core.ErrTenantMismatch)
	_, err = l.orders.CancelOrder(ctx, outsider, order.ID)
	assert.ErrorIs(t, err, core.ErrTenantMismatch)
}

func TestOrder_SellsItemByFractionalWeight(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	beans := l.item(t, owner, "Coffee beans", core.UnitMass, "2", "200")
	price := d("380")

	order, err := l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
		PayMethod: core.PayCard,
		Lines:     []core.OrderLineInput{{IngredientID: beans.ID, Qty: d("0.25"), UnitPrice: &price}},
	})
	require.NoError(t, err)
	assert.Equal(t, "95", order.Total.String())
	assert.Equal(t, "50", order.COGS.String())
	assert.Equal(t, "1.75", l.stockOf(t, beans.ID).String())

	_, err = l.orders.CancelOrder(ctx, worker, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", l.stockOf(t, beans.ID).String())
}

func TestOrder_CancelRevertsOnlyItsOwnConsumption(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "1000", "0.02")
	coffee := l.item(t, owner, "Coffee", core.UnitMass, "500", "0.5")
	latte := l.latte(t, milk.ID, coffee.ID)

	order, err := l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
		PayMethod: core.PayCash,
		Lines:     []core.OrderLineInput{{ProductID: latte.ID, Qty: d("1")}},
	})
	require.NoError(t, err)

	// A manual consume cannot borrow the order's correlation.
	_, err = l.inventory.ConsumeBOM(ctx, worker, []core.BOMLine{{IngredientID: milk.ID, Qty: d("100")}},
		core.MovementMeta{Reason: core.ReasonSale, OrderID: order.ID})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = l.inventory.AddStock(ctx, worker, milk.ID, d("5"),
		core.MovementMeta{Reason: core.ReasonCancel, OrderID: order.ID})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = l.inventory.ConsumeBOM(ctx, worker, []core.BOMLine{{IngredientID: milk.ID, Qty: d("100")}}, core.MovementMeta{})
	require.NoError(t, err)
	assert.Equal(t, "700", l.stockOf(t, milk.ID).String())

	_, err = l.orders.CancelOrder(ctx, worker, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "900", l.stockOf(t, milk.ID).String())
}
