package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// StockDiscrepancy is an item whose stock no longer equals the sum of its kardex.
// Diff = Stock − MovementSum; any non-zero value needs manual review.
type StockDiscrepancy struct {
	IngredientID string          `json:"ingredient_id"`
	Name         string          `json:"name"`
	Stock        decimal.Decimal `json:"stock"`
	MovementSum  decimal.Decimal `json:"movement_sum"`
	Diff         decimal.Decimal `json:"diff"`
}

type PayMethodTotal struct {
	PayMethod PayMethod       `json:"pay_method"`
	Orders    int             `json:"orders"`
	Total     decimal.Decimal `json:"total"`
	COGS      decimal.Decimal `json:"cogs"`
}

// SalesSummary covers orders delivered during one business day.
type SalesSummary struct {
	DayKey      string           `json:"day_key"`
	Orders      int              `json:"orders"`
	Total       decimal.Decimal  `json:"total"`
	COGS        decimal.Decimal  `json:"cogs"`
	Margin      decimal.Decimal  `json:"margin"`
	Canceled    int              `json:"canceled"`
	ByPayMethod []PayMethodTotal `json:"by_pay_method"`
}

// ── Service ───────────────────────────────────────────────────────────────────

// ReportingService is read-only. Nothing here writes to the store.
type ReportingService interface {
	ListMovements(ctx context.Context, orgID, fromKey, toKey string) ([]StockMovement, error)
	ListOrders(ctx context.Context, orgID, fromKey, toKey string) ([]Order, error)
	ListPurchases(ctx context.Context, orgID, fromKey, toKey string) ([]PurchaseOrder, error)
	SalesSummary(ctx context.Context, orgID, dayKey string) (*SalesSummary, error)
	ReconcileStock(ctx context.Context, orgID string) ([]StockDiscrepancy, error)
}

type reportingService struct {
	pool *pgxpool.Pool
	cal  *Calendar
}

func NewReportingService(pool *pgxpool.Pool, cal *Calendar) ReportingService {
	return &reportingService{pool: pool, cal: cal}
}

func (s *reportingService) ListMovements(ctx context.Context, orgID, fromKey, toKey string) ([]StockMovement, error) {
	start, end, err := s.cal.RangeBounds(fromKey, toKey)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+movementColumns+`
		FROM stock_movements
		WHERE org_id = $1 AND at >= $2 AND at < $3
		ORDER BY at, id
	`, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()
	return collectMovements(rows)
}

// ListOrders returns orders created in the range, lines included.
func (s *reportingService) ListOrders(ctx context.Context, orgID, fromKey, toKey string) ([]Order, error) {
	start, end, err := s.cal.RangeBounds(fromKey, toKey)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+orderColumns+`
		FROM orders
		WHERE org_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at, id
	`, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].Lines, err = fetchOrderLinesQ(ctx, s.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *reportingService) ListPurchases(ctx context.Context, orgID, fromKey, toKey string) ([]PurchaseOrder, error) {
	if _, _, err := s.cal.RangeBounds(fromKey, toKey); err != nil {
		return nil, err
	}
	return listPurchasesQ(ctx, s.pool, orgID, fromKey, toKey)
}

func (s *reportingService) SalesSummary(ctx context.Context, orgID, dayKey string) (*SalesSummary, error) {
	start, end, err := s.cal.DayBounds(dayKey)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT pay_method, COUNT(*), COALESCE(SUM(total), 0), COALESCE(SUM(cogs), 0)
		FROM orders
		WHERE org_id = $1 AND status = 'delivered' AND delivered_at >= $2 AND delivered_at < $3
		GROUP BY pay_method
		ORDER BY pay_method
	`, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize sales for %s: %w", dayKey, err)
	}
	defer rows.Close()

	sum := &SalesSummary{DayKey: dayKey, Total: decimal.Zero, COGS: decimal.Zero, ByPayMethod: []PayMethodTotal{}}
	for rows.Next() {
		var pm PayMethodTotal
		if err := rows.Scan(&pm.PayMethod, &pm.Orders, &pm.Total, &pm.COGS); err != nil {
			return nil, fmt.Errorf("failed to scan sales row: %w", err)
		}
		sum.ByPayMethod = append(sum.ByPayMethod, pm)
		sum.Orders += pm.Orders
		sum.Total = sum.Total.Add(pm.Total)
		sum.COGS = sum.COGS.Add(pm.COGS)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sum.Margin = sum.Total.Sub(sum.COGS)

	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE org_id = $1 AND status = 'canceled' AND canceled_at >= $2 AND canceled_at < $3
	`, orgID, start, end).Scan(&sum.Canceled); err != nil {
		return nil, fmt.Errorf("failed to count canceled orders for %s: %w", dayKey, err)
	}
	return sum, nil
}

// ReconcileStock compares every item's stock with its signed kardex sum.
// The CASE mirrors signedQty.
func (s *reportingService) ReconcileStock(ctx context.Context, orgID string) ([]StockDiscrepancy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.name, i.stock,
		       COALESCE(SUM(CASE
		           WHEN m.type IN ('in', 'revert') THEN m.qty
		           WHEN m.type IN ('out', 'consume') THEN -m.qty
		           WHEN m.type = 'adjust' AND m.meta_reason = 'decrease' THEN -m.qty
		           WHEN m.type = 'adjust' THEN m.qty
		           ELSE 0
		       END), 0)
		FROM inventory_items i
		LEFT JOIN stock_movements m ON m.ingredient_id = i.id AND m.org_id = i.org_id
		WHERE i.org_id = $1
		GROUP BY i.id, i.name, i.stock
		ORDER BY i.name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile stock: %w", err)
	}
	defer rows.Close()

	var out []StockDiscrepancy
	for rows.Next() {
		var d StockDiscrepancy
		if err := rows.Scan(&d.IngredientID, &d.Name, &d.Stock, &d.MovementSum); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation row: %w", err)
		}
		d.Diff = d.Stock.Sub(d.MovementSum)
		if !d.Diff.IsZero() {
			out = append(out, d)
		}
	}
	return out, rows.Err()
}
