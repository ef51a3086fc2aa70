package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCustomerDerivedBalances(t *testing.T) {
	tests := []struct {
		stamps   int
		progress int
		credits  int
	}{
		{0, 0, 0},
		{8, 8, 0},
		{10, 0, 1},
		{11, 1, 1},
		{29, 9, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.stamps), func(t *testing.T) {
			c := Customer{TotalStamps: tt.stamps}
			assert.Equal(t, tt.progress, c.StampsProgress())
			assert.Equal(t, tt.credits, c.FreeCredits())
		})
	}
}

func TestCountBeverageUnits(t *testing.T) {
	bev := categorySet([]string{"Beverage", " coffee "})
	lines := []OrderLine{
		{Category: "beverage", Qty: dec("2")},
		{Category: "COFFEE", Qty: dec("1")},
		{Category: "pastry", Qty: dec("4")},
		{Category: "", Qty: dec("1")},
	}
	assert.Equal(t, 3, countBeverageUnits(lines, bev))
	assert.Equal(t, 0, countBeverageUnits(lines[2:], bev))
	assert.Equal(t, 0, countBeverageUnits(lines, categorySet(nil)))
}

func TestOutboxBackoff(t *testing.T) {
	assert.Equal(t, time.Second, outboxBackoff(0))
	assert.Equal(t, 2*time.Second, outboxBackoff(1))
	assert.Equal(t, 256*time.Second, outboxBackoff(8))
	assert.Equal(t, outboxMaxBackoff, outboxBackoff(10))
	assert.Equal(t, outboxMaxBackoff, outboxBackoff(64))
	assert.Equal(t, time.Second, outboxBackoff(-3))
}

func TestIsPermanentAccrualError(t *testing.T) {
	assert.True(t, isPermanentAccrualError(notFound("accrue_on_delivery", "order", "o-1")))
	assert.True(t, isPermanentAccrualError(tenantMismatch("accrue_on_delivery", "order", "o-1")))
	assert.True(t, isPermanentAccrualError(invalidTransition("accrue_on_delivery", "order", "o-1", "pending", "accrue loyalty")))
	assert.False(t, isPermanentAccrualError(errors.New("connection reset")))
}
