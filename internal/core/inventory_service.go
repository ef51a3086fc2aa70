package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// InventoryService owns item stock and the append-only kardex.
// Every stock change and its movement row are written in the same transaction.
type InventoryService interface {
	// Master data and reads.
	CreateItem(ctx context.Context, actor Actor, in CreateItemInput) (*InventoryItem, error)
	GetItem(ctx context.Context, orgID, id string) (*InventoryItem, error)
	ListItems(ctx context.Context, orgID string) ([]InventoryItem, error)
	// ListMovements returns the newest movements of one item first. limit<=0 means 100.
	ListMovements(ctx context.Context, orgID, ingredientID string, limit int) ([]StockMovement, error)

	// Standalone operations (manage their own transactions).
	AddStock(ctx context.Context, actor Actor, ingredientID string, qty decimal.Decimal, meta MovementMeta) (*InventoryItem, error)
	RemoveStock(ctx context.Context, actor Actor, ingredientID string, qty decimal.Decimal, meta MovementMeta) (*InventoryItem, error)
	// AdjustStockTo sets stock to target with one in/out movement for the delta.
	AdjustStockTo(ctx context.Context, actor Actor, ingredientID string, target decimal.Decimal, meta MovementMeta) (*InventoryItem, error)
	// ConsumeBOM is all-or-nothing: every line is validated before any is written.
	ConsumeBOM(ctx context.Context, actor Actor, lines []BOMLine, meta MovementMeta) (*ConsumeResult, error)

	// TX-scoped operations: work within a caller-provided transaction.
	// Used by OrderService and PurchaseService to keep stock atomic with document state.

	ConsumeBOMTx(ctx context.Context, tx pgx.Tx, actor Actor, lines []BOMLine, meta MovementMeta) (*ConsumeResult, error)
	// RevertOrderTx writes one revert movement per consume movement of the order.
	RevertOrderTx(ctx context.Context, tx pgx.Tx, actor Actor, orderID string, reason MovementReason) ([]BOMLine, error)
	// ReceiveLinesTx books purchase receipt: stock up, latest cost, revert movement tagged purchase.
	ReceiveLinesTx(ctx context.Context, tx pgx.Tx, actor Actor, purchaseID string, lines []PurchaseLine) error
}

type inventoryService struct {
	pool *pgxpool.Pool
	cal  *Calendar
}

func NewInventoryService(pool *pgxpool.Pool, cal *Calendar) InventoryService {
	return &inventoryService{pool: pool, cal: cal}
}

const itemColumns = `id, org_id, name, unit, category, stock, min_stock, target_stock, cost_per_unit, created_at, updated_at`

func scanItem(row pgx.Row) (InventoryItem, error) {
	var it InventoryItem
	err := row.Scan(&it.ID, &it.OrgID, &it.Name, &it.Unit, &it.Category, &it.Stock, &it.MinStock,
		&it.TargetStock, &it.CostPerUnit, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// ── Master data ──────────────────────────────────────────────────────────────

func (s *inventoryService) CreateItem(ctx context.Context, actor Actor, in CreateItemInput) (*InventoryItem, error) {
	if in.Name == "" {
		return nil, invalidInput("create_item", "name is required")
	}
	if !in.Unit.Valid() {
		return nil, invalidInput("create_item", fmt.Sprintf("unit %q must be mass, volume or count", in.Unit))
	}
	if in.InitialStock.IsNegative() {
		return nil, invalidQuantity("create_item", "ingredient", in.Name, in.InitialStock, "non-negative")
	}
	if in.MinStock.IsNegative() || in.CostPerUnit.IsNegative() || (in.TargetStock != nil && in.TargetStock.IsNegative()) {
		return nil, invalidInput("create_item", "min stock, target stock and cost must be non-negative")
	}

	id := uuid.NewString()
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO inventory_items (id, org_id, name, unit, category, stock, min_stock, target_stock, cost_per_unit)
			VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)
		`, id, actor.OrgID, in.Name, in.Unit, in.Category, in.MinStock, in.TargetStock, in.CostPerUnit)
		if err != nil {
			if isUniqueViolation(err) {
				return invalidInput("create_item", fmt.Sprintf("item %q already exists", in.Name))
			}
			return fmt.Errorf("failed to create item: %w", err)
		}
		// Opening stock goes through the kardex so stock always equals the movement sum.
		if in.InitialStock.IsPositive() {
			if err := s.applyTx(ctx, tx, actor, id, MovementIn, in.InitialStock, MovementMeta{Reason: ReasonManual, Note: "initial stock"}, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetItem(ctx, actor.OrgID, id)
}

func (s *inventoryService) GetItem(ctx context.Context, orgID, id string) (*InventoryItem, error) {
	return getItemQ(ctx, s.pool, "get_item", orgID, id)
}

func getItemQ(ctx context.Context, q pgxQuerier, op, orgID, id string) (*InventoryItem, error) {
	it, err := scanItem(q.QueryRow(ctx, "SELECT "+itemColumns+" FROM inventory_items WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, "ingredient", id)
		}
		return nil, fmt.Errorf("failed to fetch item %s: %w", id, err)
	}
	if it.OrgID != orgID {
		return nil, tenantMismatch(op, "ingredient", id)
	}
	return &it, nil
}

func (s *inventoryService) ListItems(ctx context.Context, orgID string) ([]InventoryItem, error) {
	return listItemsQ(ctx, s.pool, orgID)
}

func listItemsQ(ctx context.Context, q pgxRowQuerier, orgID string) ([]InventoryItem, error) {
	rows, err := q.Query(ctx, "SELECT "+itemColumns+" FROM inventory_items WHERE org_id = $1 ORDER BY name", orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const movementColumns = `id, org_id, type, ingredient_id, qty, reason, meta_reason, order_id, purchase_id, user_id, note, unit_cost, at, date_key`

func scanMovement(row pgx.Row) (StockMovement, error) {
	var m StockMovement
	err := row.Scan(&m.ID, &m.OrgID, &m.Type, &m.IngredientID, &m.Qty, &m.Reason, &m.MetaReason,
		&m.OrderID, &m.PurchaseID, &m.UserID, &m.Note, &m.UnitCost, &m.At, &m.DateKey)
	return m, err
}

func (s *inventoryService) ListMovements(ctx context.Context, orgID, ingredientID string, limit int) ([]StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	if _, err := s.GetItem(ctx, orgID, ingredientID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+movementColumns+`
		FROM stock_movements
		WHERE org_id = $1 AND ingredient_id = $2
		ORDER BY at DESC, id DESC
		LIMIT $3
	`, orgID, ingredientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()
	return collectMovements(rows)
}

func collectMovements(rows pgx.Rows) ([]StockMovement, error) {
	var out []StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (s *inventoryService) AddStock(ctx context.Context, actor Actor, ingredientID string, qty decimal.Decimal, meta MovementMeta) (*InventoryItem, error) {
	if !qty.IsPositive() {
		return nil, invalidQuantity("add_stock", "ingredient", ingredientID, qty, "positive")
	}
	meta, err := manualMeta("add_stock", meta)
	if err != nil {
		return nil, err
	}
	var out InventoryItem
	err = runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		it, err := lockItemTx(ctx, tx, "add_stock", actor.OrgID, ingredientID)
		if err != nil {
			return err
		}
		if err := s.applyTx(ctx, tx, actor, it.ID, MovementIn, qty, meta, nil); err != nil {
			return err
		}
		it.Stock = it.Stock.Add(qty)
		out = *it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *inventoryService) RemoveStock(ctx context.Context, actor Actor, ingredientID string, qty decimal.Decimal, meta MovementMeta) (*InventoryItem, error) {
	if !qty.IsPositive() {
		return nil, invalidQuantity("remove_stock", "ingredient", ingredientID, qty, "positive")
	}
	meta, err := manualMeta("remove_stock", meta)
	if err != nil {
		return nil, err
	}
	var out InventoryItem
	err = runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		it, err := lockItemTx(ctx, tx, "remove_stock", actor.OrgID, ingredientID)
		if err != nil {
			return err
		}
		if it.Stock.LessThan(qty) {
			return insufficientStock("remove_stock", *it, qty)
		}
		if err := s.applyTx(ctx, tx, actor, it.ID, MovementOut, qty, meta, nil); err != nil {
			return err
		}
		it.Stock = it.Stock.Sub(qty)
		out = *it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *inventoryService) AdjustStockTo(ctx context.Context, actor Actor, ingredientID string, target decimal.Decimal, meta MovementMeta) (*InventoryItem, error) {
	if target.IsNegative() {
		return nil, invalidQuantity("adjust_stock", "ingredient", ingredientID, target, "non-negative")
	}
	meta, err := manualMeta("adjust_stock", meta)
	if err != nil {
		return nil, err
	}
	meta.MetaReason = MetaReasonAdjust
	var out InventoryItem
	err = runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		it, err := lockItemTx(ctx, tx, "adjust_stock", actor.OrgID, ingredientID)
		if err != nil {
			return err
		}
		typ, qty, ok := adjustmentFor(it.Stock, target)
		if ok {
			if err := s.applyTx(ctx, tx, actor, it.ID, typ, qty, meta, nil); err != nil {
				return err
			}
			it.Stock = target
		}
		out = *it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// adjustmentFor returns the single movement that takes current to target.
// ok is false when no movement is needed.
func adjustmentFor(current, target decimal.Decimal) (MovementType, decimal.Decimal, bool) {
	diff := target.Sub(current)
	switch diff.Sign() {
	case 1:
		return MovementIn, diff, true
	case -1:
		return MovementOut, diff.Neg(), true
	}
	return "", decimal.Zero, false
}

func (s *inventoryService) ConsumeBOM(ctx context.Context, actor Actor, lines []BOMLine, meta MovementMeta) (*ConsumeResult, error) {
	meta, err := manualMeta("consume_bom", meta)
	if err != nil {
		return nil, err
	}
	var out *ConsumeResult
	err = runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		res, err := s.ConsumeBOMTx(ctx, tx, actor, lines, meta)
		out = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ── TX-scoped operations ─────────────────────────────────────────────────────

func (s *inventoryService) ConsumeBOMTx(ctx context.Context, tx pgx.Tx, actor Actor, lines []BOMLine, meta MovementMeta) (*ConsumeResult, error) {
	agg, err := AggregateBOM(lines)
	if err != nil {
		return nil, err
	}
	res := &ConsumeResult{Lines: agg, Cost: decimal.Zero}
	if len(agg) == 0 {
		return res, nil
	}
	if meta.Reason == "" {
		meta.Reason = ReasonSale
	}

	ids := make([]string, len(agg))
	for i, l := range agg {
		ids[i] = l.IngredientID
	}
	items, err := lockItemsTx(ctx, tx, "consume_bom", actor.OrgID, ids)
	if err != nil {
		return nil, err
	}

	// Validate every line before the first write.
	if err := checkAvailability(agg, items); err != nil {
		return nil, err
	}

	for _, l := range agg {
		it := items[l.IngredientID]
		if err := s.applyTx(ctx, tx, actor, it.ID, MovementConsume, l.Qty, meta, &it.CostPerUnit); err != nil {
			return nil, err
		}
		res.Cost = res.Cost.Add(it.CostPerUnit.Mul(l.Qty))
	}
	return res, nil
}

// checkAvailability reports the first line, in line order, whose item cannot cover it.
func checkAvailability(lines []BOMLine, items map[string]*InventoryItem) error {
	for _, l := range lines {
		it := items[l.IngredientID]
		if it.Stock.LessThan(l.Qty) {
			return insufficientStock("consume_bom", *it, l.Qty)
		}
	}
	return nil
}

func (s *inventoryService) RevertOrderTx(ctx context.Context, tx pgx.Tx, actor Actor, orderID string, reason MovementReason) ([]BOMLine, error) {
	rows, err := tx.Query(ctx, `
		SELECT ingredient_id, qty
		FROM stock_movements
		WHERE org_id = $1 AND order_id = $2 AND type = 'consume' AND reason = 'sale'
		ORDER BY id
	`, actor.OrgID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption of order %s: %w", orderID, err)
	}
	var consumed []BOMLine
	for rows.Next() {
		var l BOMLine
		if err := rows.Scan(&l.IngredientID, &l.Qty); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan consumption: %w", err)
		}
		consumed = append(consumed, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read consumption of order %s: %w", orderID, err)
	}
	if len(consumed) == 0 {
		return nil, nil
	}

	ids := make([]string, len(consumed))
	for i, l := range consumed {
		ids[i] = l.IngredientID
	}
	if _, err := lockItemsTx(ctx, tx, "revert_order", actor.OrgID, ids); err != nil {
		return nil, err
	}

	meta := MovementMeta{Reason: reason, OrderID: orderID}
	for _, l := range consumed {
		if err := s.applyTx(ctx, tx, actor, l.IngredientID, MovementRevert, l.Qty, meta, nil); err != nil {
			return nil, err
		}
	}
	return consumed, nil
}

func (s *inventoryService) ReceiveLinesTx(ctx context.Context, tx pgx.Tx, actor Actor, purchaseID string, lines []PurchaseLine) error {
	if len(lines) == 0 {
		return nil
	}
	ids := make([]string, len(lines))
	for i, l := range lines {
		if !l.Qty.IsPositive() {
			return invalidQuantity("receive_purchase", "ingredient", l.IngredientID, l.Qty, "positive")
		}
		ids[i] = l.IngredientID
	}
	if _, err := lockItemsTx(ctx, tx, "receive_purchase", actor.OrgID, ids); err != nil {
		return err
	}

	meta := MovementMeta{MetaReason: MetaReasonPurchase, PurchaseID: purchaseID}
	for _, l := range lines {
		cost := l.UnitCost
		if err := s.applyTx(ctx, tx, actor, l.IngredientID, MovementRevert, l.Qty, meta, &cost); err != nil {
			return err
		}
		if l.UnitCost.IsPositive() {
			if _, err := tx.Exec(ctx,
				"UPDATE inventory_items SET cost_per_unit = $2, updated_at = now() WHERE id = $1",
				l.IngredientID, l.UnitCost,
			); err != nil {
				return fmt.Errorf("failed to update cost of %s: %w", l.IngredientID, err)
			}
		}
	}
	return nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// applyTx moves stock by qty in the direction of typ and appends the kardex row.
// Callers must hold the item's row lock and have validated availability.
func (s *inventoryService) applyTx(ctx context.Context, tx pgx.Tx, actor Actor, ingredientID string,
	typ MovementType, qty decimal.Decimal, meta MovementMeta, unitCost *decimal.Decimal) error {

	delta := signedQty(typ, meta.MetaReason, qty)
	if _, err := tx.Exec(ctx,
		"UPDATE inventory_items SET stock = stock + $2, updated_at = now() WHERE id = $1",
		ingredientID, delta,
	); err != nil {
		return fmt.Errorf("failed to update stock of %s: %w", ingredientID, err)
	}

	var reason *string
	if meta.Reason != "" {
		r := string(meta.Reason)
		reason = &r
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_movements
			(org_id, type, ingredient_id, qty, reason, meta_reason, order_id, purchase_id, user_id, note, unit_cost, date_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, to_char(now() AT TIME ZONE $12, 'YYYY-MM-DD'))
	`, actor.OrgID, typ, ingredientID, qty, reason, nullIfEmpty(meta.MetaReason),
		nullIfEmpty(meta.OrderID), nullIfEmpty(meta.PurchaseID), actor.UserID, meta.Note, unitCost, s.cal.Zone())
	if err != nil {
		return fmt.Errorf("failed to insert %s movement for %s: %w", typ, ingredientID, err)
	}
	return nil
}

func lockItemTx(ctx context.Context, tx pgx.Tx, op, orgID, id string) (*InventoryItem, error) {
	it, err := scanItem(tx.QueryRow(ctx, "SELECT "+itemColumns+" FROM inventory_items WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, "ingredient", id)
		}
		return nil, fmt.Errorf("failed to lock item %s: %w", id, err)
	}
	if it.OrgID != orgID {
		return nil, tenantMismatch(op, "ingredient", id)
	}
	return &it, nil
}

// lockItemsTx row-locks every id in ascending id order, so concurrent multi-item
// writers cannot deadlock, then checks presence and tenancy in the caller's order.
func lockItemsTx(ctx context.Context, tx pgx.Tx, op, orgID string, ids []string) (map[string]*InventoryItem, error) {
	sorted := uniqueSorted(ids)
	rows, err := tx.Query(ctx,
		"SELECT "+itemColumns+" FROM inventory_items WHERE id = ANY($1) ORDER BY id FOR UPDATE",
		sorted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock items: %w", err)
	}
	items := make(map[string]*InventoryItem, len(sorted))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items[it.ID] = &it
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock items: %w", err)
	}

	for _, id := range ids {
		it, ok := items[id]
		if !ok {
			return nil, notFound(op, "ingredient", id)
		}
		if it.OrgID != orgID {
			return nil, tenantMismatch(op, "ingredient", id)
		}
	}
	return items, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
