package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseDraft    PurchaseStatus = "draft"
	PurchaseOrdered  PurchaseStatus = "ordered"
	PurchaseReceived PurchaseStatus = "received"
	PurchaseCanceled PurchaseStatus = "canceled"
)

// PurchaseOrder is a supplier document. At most one draft exists per org and day.
type PurchaseOrder struct {
	ID         string          `json:"id"`
	OrgID      string          `json:"org_id"`
	Status     PurchaseStatus  `json:"status"`
	DateKey    string          `json:"date_key"`
	Supplier   string          `json:"supplier"`
	Total      decimal.Decimal `json:"total"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	OrderedAt  *time.Time      `json:"ordered_at,omitempty"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`
	CanceledAt *time.Time      `json:"canceled_at,omitempty"`
	Lines      []PurchaseLine  `json:"lines"`
}

type PurchaseLine struct {
	LineNumber     int             `json:"line_number"`
	IngredientID   string          `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name,omitempty"`
	Qty            decimal.Decimal `json:"qty"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	TotalCost      decimal.Decimal `json:"total_cost"`
}

// PurchaseLineInput is a requested quantity. A zero UnitCost falls back to the
// draft's existing cost, then to the item's current cost.
type PurchaseLineInput struct {
	IngredientID string          `json:"ingredient_id"`
	Qty          decimal.Decimal `json:"qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

// ReplenishmentSuggestion is how much of an item to buy to get back to par.
type ReplenishmentSuggestion struct {
	IngredientID  string          `json:"ingredient_id"`
	Name          string          `json:"name"`
	Unit          Unit            `json:"unit"`
	Stock         decimal.Decimal `json:"stock"`
	Par           decimal.Decimal `json:"par"`
	Missing       decimal.Decimal `json:"missing"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	SuggestedCost decimal.Decimal `json:"suggested_cost"`
}

// SuggestReplenishment returns every item below par, most expensive gap first.
func SuggestReplenishment(items []InventoryItem) []ReplenishmentSuggestion {
	var out []ReplenishmentSuggestion
	for _, it := range items {
		par := it.ParLevel()
		missing := par.Sub(it.Stock)
		if !missing.IsPositive() {
			continue
		}
		out = append(out, ReplenishmentSuggestion{
			IngredientID:  it.ID,
			Name:          it.Name,
			Unit:          it.Unit,
			Stock:         it.Stock,
			Par:           par,
			Missing:       missing,
			UnitCost:      it.CostPerUnit,
			SuggestedCost: missing.Mul(it.CostPerUnit),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].SuggestedCost.Cmp(out[j].SuggestedCost); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// netOfDraft subtracts what today's draft already asks for from each suggestion,
// so re-running the daily trigger adds nothing new.
func netOfDraft(suggestions []ReplenishmentSuggestion, draft []PurchaseLine) []PurchaseLineInput {
	already := make(map[string]decimal.Decimal, len(draft))
	for _, l := range draft {
		already[l.IngredientID] = already[l.IngredientID].Add(l.Qty)
	}
	var out []PurchaseLineInput
	for _, sg := range suggestions {
		need := sg.Missing.Sub(already[sg.IngredientID])
		if !need.IsPositive() {
			continue
		}
		out = append(out, PurchaseLineInput{IngredientID: sg.IngredientID, Qty: need, UnitCost: sg.UnitCost})
	}
	return out
}

// mergeDraftLines folds incoming into existing by ingredient. Quantities add up;
// line and document totals are recomputed. Existing line numbers are kept.
func mergeDraftLines(existing []PurchaseLine, incoming []PurchaseLineInput, items map[string]*InventoryItem) []PurchaseLine {
	merged := make([]PurchaseLine, len(existing))
	copy(merged, existing)

	idx := make(map[string]int, len(merged))
	next := 0
	for i, l := range merged {
		idx[l.IngredientID] = i
		if l.LineNumber > next {
			next = l.LineNumber
		}
	}

	for _, in := range incoming {
		i, ok := idx[in.IngredientID]
		if !ok {
			next++
			merged = append(merged, PurchaseLine{LineNumber: next, IngredientID: in.IngredientID})
			i = len(merged) - 1
			idx[in.IngredientID] = i
		}
		l := &merged[i]
		l.Qty = l.Qty.Add(in.Qty)
		switch {
		case in.UnitCost.IsPositive():
			l.UnitCost = in.UnitCost
		case l.UnitCost.IsPositive():
		default:
			if it := items[in.IngredientID]; it != nil {
				l.UnitCost = it.CostPerUnit
			}
		}
		if it := items[in.IngredientID]; it != nil {
			l.IngredientName = it.Name
		}
	}

	for i := range merged {
		merged[i].TotalCost = merged[i].Qty.Mul(merged[i].UnitCost)
	}
	return merged
}

func purchaseTotal(lines []PurchaseLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalCost)
	}
	return total
}

func markOrderedTransition(s PurchaseStatus) transition {
	switch s {
	case PurchaseDraft:
		return transitionApply
	case PurchaseOrdered:
		return transitionNoop
	default:
		return transitionForbidden
	}
}

func cancelPurchaseTransition(s PurchaseStatus) transition {
	switch s {
	case PurchaseDraft, PurchaseOrdered:
		return transitionApply
	case PurchaseCanceled:
		return transitionNoop
	default:
		return transitionForbidden
	}
}

func receiveTransition(s PurchaseStatus) transition {
	switch s {
	case PurchaseDraft, PurchaseOrdered:
		return transitionApply
	case PurchaseReceived:
		return transitionNoop
	default:
		return transitionForbidden
	}
}
