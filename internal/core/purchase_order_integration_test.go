package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/core"
)

func TestPurchase_DraftMergesByIngredient(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "0", "0.02")
	coffee := l.item(t, owner, "Coffee", core.UnitMass, "0", "0.5")

	first, err := l.purchases.UpsertDraftForToday(ctx, owner, []core.PurchaseLineInput{
		{IngredientID: milk.ID, Qty: d("1000")},
	})
	require.NoError(t, err)
	assert.Equal(t, core.PurchaseDraft, first.Status)
	assert.Equal(t, l.cal.Today(), first.DateKey)
	assert.Equal(t, "20", first.Total.String())

	second, err := l.purchases.UpsertDraftForToday(ctx, worker, []core.PurchaseLineInput{
		{IngredientID: milk.ID, Qty: d("500"), UnitCost: d("0.03")},
		{IngredientID: coffee.ID, Qty: d("100")},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.Lines, 2)
	assert.Equal(t, "1500", second.Lines[0].Qty.String())
	assert.Equal(t, "0.03", second.Lines[0].UnitCost.String())
	assert.Equal(t, "45", second.Lines[0].TotalCost.String())
	assert.Equal(t, "Coffee", second.Lines[1].IngredientName)
	assert.Equal(t, "95", second.Total.String())

	_, err = l.purchases.UpsertDraftForToday(ctx, outsider, []core.PurchaseLineInput{{IngredientID: milk.ID, Qty: d("1")}})
	assert.ErrorIs(t, err, core.ErrTenantMismatch)
	_, err = l.purchases.UpsertDraftForToday(ctx, owner, []core.PurchaseLineInput{{IngredientID: milk.ID, Qty: d("0")}})
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)
}

func TestPurchase_ReplenishTodayIsIdempotent(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "0", "0.02")
	_, err := l.pool.Exec(ctx, "UPDATE inventory_items SET min_stock = 500 WHERE id = $1", milk.ID)
	require.NoError(t, err)

	suggestions, err := l.purchases.SuggestReplenishment(ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "1000", suggestions[0].Missing.String())

	first, err := l.purchases.ReplenishToday(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Len(t, first.Lines, 1)
	assert.Equal(t, "1000", first.Lines[0].Qty.String())

	second, err := l.purchases.ReplenishToday(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "1000", second.Lines[0].Qty.String())
}

func TestPurchase_ReplenishTodayWithNothingMissing(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	l.item(t, owner, "Milk", core.UnitVolume, "10", "0.02")

	po, err := l.purchases.ReplenishToday(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, po)

	var n int
	require.NoError(t, l.pool.QueryRow(ctx, "SELECT count(*) FROM purchase_orders").Scan(&n))
	assert.Zero(t, n)
}

func TestPurchase_LifecycleAndReceipt(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "100", "0.02")

	po, err := l.purchases.UpsertDraftForToday(ctx, owner, []core.PurchaseLineInput{
		{IngredientID: milk.ID, Qty: d("900"), UnitCost: d("0.025")},
	})
	require.NoError(t, err)

	ordered, err := l.purchases.MarkOrdered(ctx, owner, po.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PurchaseOrdered, ordered.Status)
	again, err := l.purchases.MarkOrdered(ctx, owner, po.ID)
	require.NoError(t, err)
	assert.Equal(t, ordered.OrderedAt.UTC(), again.OrderedAt.UTC())

	received, err := l.purchases.ReceivePurchase(ctx, owner, po.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, core.PurchaseReceived, received.Status)
	assert.Equal(t, "1000", l.stockOf(t, milk.ID).String())

	it, err := l.inventory.GetItem(ctx, testOrg, milk.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.025", it.CostPerUnit.String())

	moves, err := l.inventory.ListMovements(ctx, testOrg, milk.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, core.MovementRevert, moves[0].Type)
	assert.Nil(t, moves[0].Reason)
	assert.Equal(t, core.MetaReasonPurchase, *moves[0].MetaReason)
	assert.Equal(t, po.ID, *moves[0].PurchaseID)

	// Receiving twice books stock once.
	_, err = l.purchases.ReceivePurchase(ctx, owner, po.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "1000", l.stockOf(t, milk.ID).String())

	_, err = l.purchases.CancelPurchase(ctx, owner, po.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	_, err = l.purchases.MarkOrdered(ctx, owner, po.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	requireReconciled(t, l)
}

func TestPurchase_ReceiveWithOverrideLines(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "0", "0.02")
	coffee := l.item(t, owner, "Coffee", core.UnitMass, "0", "0.5")

	po, err := l.purchases.UpsertDraftForToday(ctx, owner, []core.PurchaseLineInput{
		{IngredientID: milk.ID, Qty: d("1000")},
		{IngredientID: coffee.ID, Qty: d("200")},
	})
	require.NoError(t, err)

	// Supplier only delivered milk, and less of it.
	received, err := l.purchases.ReceivePurchase(ctx, owner, po.ID, []core.PurchaseLineInput{
		{IngredientID: milk.ID, Qty: d("800"), UnitCost: d("0.02")},
	})
	require.NoError(t, err)
	require.Len(t, received.Lines, 1)
	assert.Equal(t, "16", received.Total.String())
	assert.Equal(t, "800", l.stockOf(t, milk.ID).String())
	assert.True(t, l.stockOf(t, coffee.ID).IsZero())
}

func TestPurchase_CancelIsIdempotent(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	milk := l.item(t, owner, "Milk", core.UnitVolume, "0", "0.02")

	po, err := l.purchases.UpsertDraftForToday(ctx, owner, []core.PurchaseLineInput{{IngredientID: milk.ID, Qty: d("10")}})
	require.NoError(t, err)

	canceled, err := l.purchases.CancelPurchase(ctx, owner, po.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PurchaseCanceled, canceled.Status)
	_, err = l.purchases.CancelPurchase(ctx, owner, po.ID)
	require.NoError(t, err)

	_, err = l.purchases.ReceivePurchase(ctx, owner, po.ID, nil)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	// With the old draft canceled, today's next upsert opens a fresh one.
	fresh, err := l.purchases.UpsertDraftForToday(ctx, owner, []core.PurchaseLineInput{{IngredientID: milk.ID, Qty: d("5")}})
	require.NoError(t, err)
	assert.NotEqual(t, po.ID, fresh.ID)
}
