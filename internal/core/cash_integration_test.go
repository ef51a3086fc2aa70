package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/core"
)

func TestCash_ExpectedCashForDay(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	today := l.cal.Today()
	bottle := l.item(t, owner, "Bottle", core.UnitCount, "100", "1")

	sell := func(price string, pm core.PayMethod) *core.Order {
		p := d(price)
		o, err := l.orders.CreateOrder(ctx, worker, core.CreateOrderInput{
			PayMethod: pm,
			Lines:     []core.OrderLineInput{{IngredientID: bottle.ID, Qty: d("1"), UnitPrice: &p}},
		})
		require.NoError(t, err)
		return o
	}

	_, err := l.cash.OpenDay(ctx, owner, core.OpenDayInput{InitialCash: d("50000"), TasksDone: []string{"count drawer"}})
	require.NoError(t, err)

	delivered := sell("20000", core.PayCash)
	_, err = l.orders.MarkDelivered(ctx, worker, delivered.ID)
	require.NoError(t, err)

	canceled := sell("5000", core.PayCash)
	_, err = l.orders.CancelOrder(ctx, worker, canceled.ID)
	require.NoError(t, err)

	// Neither pending cash nor delivered card sales touch the drawer.
	sell("999", core.PayCash)
	card := sell("3000", core.PayCard)
	_, err = l.orders.MarkDelivered(ctx, worker, card.ID)
	require.NoError(t, err)

	_, err = l.cash.RecordCashMovement(ctx, owner, core.CashMovementInput{Type: core.CashIn, Amount: d("10000"), Reason: "change fund"})
	require.NoError(t, err)

	snap, err := l.cash.ExpectedCash(ctx, testOrg, today)
	require.NoError(t, err)
	assert.Equal(t, "50000", snap.OpeningCash.String())
	assert.Equal(t, "20000", snap.DeliveredCash.String())
	assert.Equal(t, "5000", snap.CanceledCash.String())
	assert.Equal(t, "10000", snap.CashIn.String())
	assert.Equal(t, "75000", snap.ExpectedCash.String())
}

func TestCash_OpeningIsUniquePerUserAndDay(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	first, err := l.cash.OpenDay(ctx, owner, core.OpenDayInput{InitialCash: d("500")})
	require.NoError(t, err)
	again, err := l.cash.OpenDay(ctx, owner, core.OpenDayInput{InitialCash: d("900")})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "500", again.InitialCash.String())

	// A second user opens independently; the day's opening cash is the earliest.
	_, err = l.cash.OpenDay(ctx, worker, core.OpenDayInput{InitialCash: d("300")})
	require.NoError(t, err)
	snap, err := l.cash.ExpectedCash(ctx, testOrg, l.cal.Today())
	require.NoError(t, err)
	assert.Equal(t, "500", snap.OpeningCash.String())
}

func TestCash_CloseOpeningFreezesSnapshot(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	today := l.cal.Today()

	_, err := l.cash.CloseOpeningForUser(ctx, worker, today, d("0"))
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = l.cash.OpenDay(ctx, worker, core.OpenDayInput{InitialCash: d("1000")})
	require.NoError(t, err)
	_, err = l.cash.RecordCashMovement(ctx, worker, core.CashMovementInput{Type: core.CashOut, Amount: d("200"), Reason: "ice"})
	require.NoError(t, err)

	closed, err := l.cash.CloseOpeningForUser(ctx, worker, today, d("790"))
	require.NoError(t, err)
	assert.Equal(t, core.OpeningClosed, closed.Status)
	assert.Equal(t, "800", closed.ExpectedCash.String())
	assert.Equal(t, "790", closed.CountedCash.String())
	assert.Equal(t, "-10", closed.CashDiff.String())

	// Later activity does not rewrite a closed opening.
	_, err = l.cash.RecordCashMovement(ctx, worker, core.CashMovementInput{Type: core.CashIn, Amount: d("50")})
	require.NoError(t, err)
	again, err := l.cash.CloseOpeningForUser(ctx, worker, today, d("1"))
	require.NoError(t, err)
	assert.Equal(t, "790", again.CountedCash.String())
	assert.Equal(t, "-10", again.CashDiff.String())
}

func TestCash_RejectsBadInput(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.cash.RecordCashMovement(ctx, worker, core.CashMovementInput{Type: core.CashIn, Amount: d("0")})
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)
	_, err = l.cash.RecordCashMovement(ctx, worker, core.CashMovementInput{Type: "sideways", Amount: d("1")})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = l.cash.ExpectedCash(ctx, testOrg, "yesterday")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = l.cash.OpenDay(ctx, worker, core.OpenDayInput{InitialCash: d("-1")})
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)
}
