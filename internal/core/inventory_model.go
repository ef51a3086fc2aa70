package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Unit string

const (
	UnitMass   Unit = "mass"
	UnitVolume Unit = "volume"
	UnitCount  Unit = "count"
)

func (u Unit) Valid() bool {
	return u == UnitMass || u == UnitVolume || u == UnitCount
}

// InventoryItem is an ingredient or resale good. Stock only changes through the
// inventory ledger and never goes below zero.
type InventoryItem struct {
	ID          string           `json:"id"`
	OrgID       string           `json:"org_id"`
	Name        string           `json:"name"`
	Unit        Unit             `json:"unit"`
	Category    string           `json:"category"`
	Stock       decimal.Decimal  `json:"stock"`
	MinStock    decimal.Decimal  `json:"min_stock"`
	TargetStock *decimal.Decimal `json:"target_stock,omitempty"`
	CostPerUnit decimal.Decimal  `json:"cost_per_unit"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

var two = decimal.NewFromInt(2)

// ParLevel is targetStock when set, otherwise twice minStock.
func (i InventoryItem) ParLevel() decimal.Decimal {
	if i.TargetStock != nil {
		return *i.TargetStock
	}
	return i.MinStock.Mul(two)
}

// MovementType encodes direction; quantities on movements are always positive.
type MovementType string

const (
	MovementIn      MovementType = "in"
	MovementOut     MovementType = "out"
	MovementAdjust  MovementType = "adjust"
	MovementConsume MovementType = "consume"
	MovementRevert  MovementType = "revert"
)

type MovementReason string

const (
	ReasonManual   MovementReason = "manual"
	ReasonSale     MovementReason = "sale"
	ReasonCancel   MovementReason = "cancel"
	ReasonDelete   MovementReason = "delete"
	ReasonPurchase MovementReason = "purchase"
)

// Meta reasons refine a movement beyond its reason column.
const (
	MetaReasonPurchase = "purchase" // revert rows written by purchase receipt
	MetaReasonAdjust   = "adjust"   // in/out rows written by AdjustStockTo
	MetaReasonIncrease = "increase" // direction of an imported adjust row
	MetaReasonDecrease = "decrease"
)

// StockMovement is one kardex row. Immutable once written.
type StockMovement struct {
	ID           int64            `json:"id"`
	OrgID        string           `json:"org_id"`
	Type         MovementType     `json:"type"`
	IngredientID string           `json:"ingredient_id"`
	Qty          decimal.Decimal  `json:"qty"`
	Reason       *MovementReason  `json:"reason,omitempty"`
	MetaReason   *string          `json:"meta_reason,omitempty"`
	OrderID      *string          `json:"order_id,omitempty"`
	PurchaseID   *string          `json:"purchase_id,omitempty"`
	UserID       string           `json:"user_id"`
	Note         string           `json:"note,omitempty"`
	UnitCost     *decimal.Decimal `json:"unit_cost,omitempty"`
	At           time.Time        `json:"at"`
	DateKey      string           `json:"date_key"`
}

// Signed returns the movement's contribution to stock.
func (m StockMovement) Signed() decimal.Decimal {
	return signedQty(m.Type, derefString(m.MetaReason), m.Qty)
}

func signedQty(t MovementType, metaReason string, qty decimal.Decimal) decimal.Decimal {
	switch t {
	case MovementIn, MovementRevert:
		return qty
	case MovementOut, MovementConsume:
		return qty.Neg()
	case MovementAdjust:
		if metaReason == MetaReasonDecrease {
			return qty.Neg()
		}
		return qty
	}
	return decimal.Zero
}

// MovementMeta is the caller-supplied context recorded on a movement.
type MovementMeta struct {
	Reason     MovementReason `json:"reason,omitempty"`
	MetaReason string         `json:"meta_reason,omitempty"`
	OrderID    string         `json:"order_id,omitempty"`
	PurchaseID string         `json:"purchase_id,omitempty"`
	Note       string         `json:"note,omitempty"`
}

type CreateItemInput struct {
	Name         string
	Unit         Unit
	Category     string
	InitialStock decimal.Decimal
	MinStock     decimal.Decimal
	TargetStock  *decimal.Decimal
	CostPerUnit  decimal.Decimal
}

// ConsumeResult reports what ConsumeBOMTx took out of stock.
type ConsumeResult struct {
	Lines []BOMLine
	Cost  decimal.Decimal // Σ costPerUnit × qty at consumption time
}

// manualMeta vets metadata for a staff-initiated movement. Order and purchase
// correlation is written only by those ledgers, so a manual row cannot pose as a
// sale, a cancel revert or a receipt.
func manualMeta(op string, meta MovementMeta) (MovementMeta, error) {
	if meta.Reason != "" && meta.Reason != ReasonManual {
		return meta, invalidInput(op, fmt.Sprintf("reason %q is reserved for order and purchase movements", meta.Reason))
	}
	if meta.MetaReason != "" || meta.OrderID != "" || meta.PurchaseID != "" {
		return meta, invalidInput(op, "manual movements cannot carry order or purchase correlation")
	}
	meta.Reason = ReasonManual
	return meta, nil
}
