package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func latte() Product {
	return Product{
		ID:   "p-latte",
		Name: "Latte",
		Recipe: Recipe{
			{IngredientID: "milk", Qty: dec("200")},
			{IngredientID: "coffee", Qty: dec("18")},
			{IngredientID: "sugar", Qty: dec("0")},
		},
		Variants: map[string]Recipe{
			"oat": {
				{IngredientID: "oat-milk", Qty: dec("200")},
				{IngredientID: "coffee", Qty: dec("18")},
			},
		},
	}
}

func TestResolveBOM(t *testing.T) {
	tests := []struct {
		name    string
		variant string
		qty     decimal.Decimal
		want    []BOMLine
	}{
		{
			name: "base recipe scaled, zero lines dropped",
			qty:  dec("2"),
			want: []BOMLine{{IngredientID: "milk", Qty: dec("400")}, {IngredientID: "coffee", Qty: dec("36")}},
		},
		{
			name:    "variant replaces base",
			variant: "oat",
			qty:     dec("1"),
			want:    []BOMLine{{IngredientID: "oat-milk", Qty: dec("200")}, {IngredientID: "coffee", Qty: dec("18")}},
		},
		{
			name:    "unknown variant falls back to base",
			variant: "soy",
			qty:     dec("1"),
			want:    []BOMLine{{IngredientID: "milk", Qty: dec("200")}, {IngredientID: "coffee", Qty: dec("18")}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveBOM(latte(), tt.variant, tt.qty)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].IngredientID, got[i].IngredientID)
				assert.True(t, tt.want[i].Qty.Equal(got[i].Qty), "line %d: want %s got %s", i, tt.want[i].Qty, got[i].Qty)
			}
		})
	}
}

func TestResolveBOM_Rejects(t *testing.T) {
	_, err := ResolveBOM(latte(), "", decimal.Zero)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	p := latte()
	p.Recipe = append(p.Recipe, BOMLine{IngredientID: "ice", Qty: dec("-1")})
	_, err = ResolveBOM(p, "", dec("1"))
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	p = latte()
	p.Recipe = Recipe{{Qty: dec("1")}}
	_, err = ResolveBOM(p, "", dec("1"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestValidateRecipe_ChecksVariants(t *testing.T) {
	p := latte()
	require.NoError(t, ValidateRecipe(p))

	p.Variants["bad"] = Recipe{{IngredientID: "milk", Qty: dec("-5")}}
	assert.True(t, errors.Is(ValidateRecipe(p), ErrInvalidQuantity))
}

func TestAggregateBOM(t *testing.T) {
	got, err := AggregateBOM([]BOMLine{
		{IngredientID: "milk", Qty: dec("200")},
		{IngredientID: "coffee", Qty: dec("18")},
		{IngredientID: "milk", Qty: dec("50.5")},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "milk", got[0].IngredientID)
	assert.Equal(t, "250.5", got[0].Qty.String())
	assert.Equal(t, "coffee", got[1].IngredientID)

	_, err = AggregateBOM([]BOMLine{{IngredientID: "milk", Qty: dec("0")}})
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
}

func TestRecipeIngredientIDs(t *testing.T) {
	ids := recipeIngredientIDs(latte())
	assert.ElementsMatch(t, []string{"milk", "coffee", "sugar", "oat-milk"}, ids)
}

func TestDirectBOM(t *testing.T) {
	got := DirectBOM("water-bottle", dec("0.5"))
	require.Len(t, got, 1)
	assert.Equal(t, "0.5", got[0].Qty.String())
}
