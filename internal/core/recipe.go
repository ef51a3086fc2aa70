package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BOMLine is one ingredient requirement. Recipes are stored as JSON arrays of these.
type BOMLine struct {
	IngredientID string          `json:"ingredient_id"`
	Qty          decimal.Decimal `json:"qty"`
}

// Recipe is the per-unit bill of materials of a product.
type Recipe []BOMLine

// Product is a sellable item. Variants map a variant name to a recipe that
// replaces the base recipe entirely.
type Product struct {
	ID        string            `json:"id"`
	OrgID     string            `json:"org_id"`
	Name      string            `json:"name"`
	Category  string            `json:"category"`
	Price     decimal.Decimal   `json:"price"`
	Recipe    Recipe            `json:"recipe"`
	Variants  map[string]Recipe `json:"variants,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// RecipeFor picks the variant recipe when one exists under that name, else the base.
func (p Product) RecipeFor(variant string) Recipe {
	if variant != "" {
		if r, ok := p.Variants[variant]; ok {
			return r
		}
	}
	return p.Recipe
}

// ResolveBOM expands qty units of a product (and optional variant) into ingredient lines.
// Zero-quantity recipe lines are dropped; negative ones are rejected.
func ResolveBOM(p Product, variant string, units decimal.Decimal) ([]BOMLine, error) {
	if !units.IsPositive() {
		return nil, invalidQuantity("resolve_bom", "product", p.ID, units, "positive")
	}
	recipe := p.RecipeFor(variant)
	out := make([]BOMLine, 0, len(recipe))
	for _, l := range recipe {
		if err := validateRecipeLine(p, l); err != nil {
			return nil, err
		}
		if l.Qty.IsZero() {
			continue
		}
		out = append(out, BOMLine{IngredientID: l.IngredientID, Qty: l.Qty.Mul(units)})
	}
	return out, nil
}

func validateRecipeLine(p Product, l BOMLine) error {
	if l.IngredientID == "" {
		return invalidInput("resolve_bom", fmt.Sprintf("product %q has a recipe line without ingredient", p.Name))
	}
	if l.Qty.IsNegative() {
		return &LedgerError{
			Kind: ErrInvalidQuantity, Op: "resolve_bom", Entity: "product", ID: p.ID, Name: p.Name,
			Detail: fmt.Sprintf("ingredient %s has negative quantity %s", l.IngredientID, l.Qty),
		}
	}
	return nil
}

// ValidateRecipe checks base and variant recipes at the catalog boundary.
func ValidateRecipe(p Product) error {
	for _, l := range p.Recipe {
		if err := validateRecipeLine(p, l); err != nil {
			return err
		}
	}
	for _, r := range p.Variants {
		for _, l := range r {
			if err := validateRecipeLine(p, l); err != nil {
				return err
			}
		}
	}
	return nil
}

// DirectBOM is the BOM of an inventory item sold as-is: the item itself, qty units.
func DirectBOM(ingredientID string, qty decimal.Decimal) []BOMLine {
	return []BOMLine{{IngredientID: ingredientID, Qty: qty}}
}

// AggregateBOM merges lines for the same ingredient, keeping first-appearance order.
func AggregateBOM(lines []BOMLine) ([]BOMLine, error) {
	idx := make(map[string]int, len(lines))
	out := make([]BOMLine, 0, len(lines))
	for _, l := range lines {
		if !l.Qty.IsPositive() {
			return nil, invalidQuantity("consume_bom", "ingredient", l.IngredientID, l.Qty, "positive")
		}
		if i, ok := idx[l.IngredientID]; ok {
			out[i].Qty = out[i].Qty.Add(l.Qty)
			continue
		}
		idx[l.IngredientID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

// recipeIngredientIDs lists every ingredient referenced by base and variant recipes.
func recipeIngredientIDs(p Product) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(r Recipe) {
		for _, l := range r {
			if !seen[l.IngredientID] {
				seen[l.IngredientID] = true
				ids = append(ids, l.IngredientID)
			}
		}
	}
	add(p.Recipe)
	for _, r := range p.Variants {
		add(r)
	}
	return ids
}
