package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus progresses through the state machine:
//
//	pending → delivered
//	pending → canceled
//
// Both delivered and canceled are terminal.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderDelivered OrderStatus = "delivered"
	OrderCanceled  OrderStatus = "canceled"
)

type PayMethod string

const (
	PayCash  PayMethod = "cash"
	PayCard  PayMethod = "card"
	PayQR    PayMethod = "qr"
	PayOther PayMethod = "other"
)

func (p PayMethod) Valid() bool {
	switch p {
	case PayCash, PayCard, PayQR, PayOther:
		return true
	}
	return false
}

// Order is a sale. Stock was consumed when it was created; COGS is frozen at that moment.
type Order struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	Status      OrderStatus     `json:"status"`
	PayMethod   PayMethod       `json:"pay_method"`
	Total       decimal.Decimal `json:"total"`
	COGS        decimal.Decimal `json:"cogs"`
	CustomerID  *string         `json:"customer_id,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
	CanceledAt  *time.Time      `json:"canceled_at,omitempty"`
	Lines       []OrderLine     `json:"lines"`
}

// OrderLine sells either a product (through its recipe) or an inventory item directly.
// Name, Category and BOM are snapshots taken at creation.
type OrderLine struct {
	LineNumber   int             `json:"line_number"`
	ProductID    *string         `json:"product_id,omitempty"`
	IngredientID *string         `json:"ingredient_id,omitempty"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Variant      string          `json:"variant,omitempty"`
	Qty          decimal.Decimal `json:"qty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
	BOM          []BOMLine       `json:"bom"`
}

// OrderLineInput names exactly one of ProductID or IngredientID. Product lines sell whole
// units; direct inventory lines may sell fractions (0.5 kg). UnitPrice overrides the
// product price and is required for direct inventory sales.
type OrderLineInput struct {
	ProductID    string
	IngredientID string
	Variant      string
	Qty          decimal.Decimal
	UnitPrice    *decimal.Decimal
}

type CreateOrderInput struct {
	Lines      []OrderLineInput
	PayMethod  PayMethod
	CustomerID string
}

func deliverTransition(s OrderStatus) transition {
	switch s {
	case OrderPending:
		return transitionApply
	case OrderDelivered:
		return transitionNoop
	}
	return transitionForbidden
}

func cancelTransition(s OrderStatus) transition {
	switch s {
	case OrderPending:
		return transitionApply
	case OrderCanceled:
		return transitionNoop
	}
	return transitionForbidden
}

// deleteTransition allows removing any order that never reached delivery.
func deleteTransition(s OrderStatus) transition {
	if s == OrderDelivered {
		return transitionForbidden
	}
	return transitionApply
}

func orderTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return total
}
