package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// OrderService manages the sale lifecycle and keeps stock consumption atomic with it.
type OrderService interface {
	// CreateOrder resolves recipes, consumes stock and writes a pending order in one transaction.
	CreateOrder(ctx context.Context, actor Actor, in CreateOrderInput) (*Order, error)
	// MarkDelivered transitions pending → delivered. Repeating it is a no-op.
	// Loyalty accrual is queued in the same transaction and runs after commit.
	MarkDelivered(ctx context.Context, actor Actor, orderID string) (*Order, error)
	// CancelOrder transitions pending → canceled and reverts consumed stock. Repeating it is a no-op.
	CancelOrder(ctx context.Context, actor Actor, orderID string) (*Order, error)
	// DeleteOrder removes a non-delivered order, reverting stock if it was still pending.
	DeleteOrder(ctx context.Context, actor Actor, orderID string) error

	GetOrder(ctx context.Context, orgID, orderID string) (*Order, error)
}

// LoyaltyNotifier is told about committed deliveries. Notify must not block the caller.
type LoyaltyNotifier interface {
	Notify(orgID, orderID string)
}

type orderService struct {
	pool     *pgxpool.Pool
	inv      InventoryService
	notifier LoyaltyNotifier
}

// NewOrderService wires the order ledger. notifier may be nil; queued accruals are then
// picked up by the next outbox poll.
func NewOrderService(pool *pgxpool.Pool, inv InventoryService, notifier LoyaltyNotifier) OrderService {
	return &orderService{pool: pool, inv: inv, notifier: notifier}
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (s *orderService) CreateOrder(ctx context.Context, actor Actor, in CreateOrderInput) (*Order, error) {
	if err := validateOrderInput(in); err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		if in.CustomerID != "" {
			if _, err := getCustomerQ(ctx, tx, "create_order", actor.OrgID, in.CustomerID, false); err != nil {
				return err
			}
		}

		lines, bom, err := resolveOrderLinesTx(ctx, tx, actor.OrgID, in.Lines)
		if err != nil {
			return err
		}

		consumed, err := s.inv.ConsumeBOMTx(ctx, tx, actor, bom, MovementMeta{Reason: ReasonSale, OrderID: orderID})
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO orders (id, org_id, status, pay_method, total, cogs, customer_id, created_by)
			VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7)
		`, orderID, actor.OrgID, in.PayMethod, orderTotal(lines), consumed.Cost, nullIfEmpty(in.CustomerID), actor.UserID)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for _, l := range lines {
			_, err := tx.Exec(ctx, `
				INSERT INTO order_lines
					(order_id, line_number, product_id, ingredient_id, name, category, variant, qty, unit_price, line_total, bom)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`, orderID, l.LineNumber, l.ProductID, l.IngredientID, l.Name, l.Category, l.Variant,
				l.Qty, l.UnitPrice, l.LineTotal, l.BOM)
			if err != nil {
				return fmt.Errorf("failed to insert order line %d: %w", l.LineNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetOrder(ctx, actor.OrgID, orderID)
}

func validateOrderInput(in CreateOrderInput) error {
	if len(in.Lines) == 0 {
		return invalidInput("create_order", "order must have at least one line")
	}
	if !in.PayMethod.Valid() {
		return invalidInput("create_order", fmt.Sprintf("pay method %q must be cash, card, qr or other", in.PayMethod))
	}
	for i, l := range in.Lines {
		n := strconv.Itoa(i + 1)
		if (l.ProductID == "") == (l.IngredientID == "") {
			return invalidInput("create_order", "line "+n+" must name exactly one of product or ingredient")
		}
		if !l.Qty.IsPositive() {
			return invalidQuantity("create_order", "line", n, l.Qty, "positive")
		}
		if l.ProductID != "" && !l.Qty.IsInteger() {
			return invalidQuantity("create_order", "line", n, l.Qty, "a whole number of units")
		}
		if l.UnitPrice != nil && l.UnitPrice.IsNegative() {
			return invalidQuantity("create_order", "line", n, *l.UnitPrice, "non-negative")
		}
		if l.IngredientID != "" && l.UnitPrice == nil {
			return invalidInput("create_order", "line "+n+" sells an inventory item directly and needs a unit price")
		}
	}
	return nil
}

// resolveOrderLinesTx snapshots every line and returns the combined, unaggregated BOM.
func resolveOrderLinesTx(ctx context.Context, tx pgx.Tx, orgID string, inputs []OrderLineInput) ([]OrderLine, []BOMLine, error) {
	lines := make([]OrderLine, 0, len(inputs))
	var bom []BOMLine
	for i, in := range inputs {
		l := OrderLine{LineNumber: i + 1, Variant: in.Variant, Qty: in.Qty}
		var price decimal.Decimal

		if in.ProductID != "" {
			p, err := getProductQ(ctx, tx, "create_order", orgID, in.ProductID)
			if err != nil {
				return nil, nil, err
			}
			lineBOM, err := ResolveBOM(*p, in.Variant, in.Qty)
			if err != nil {
				return nil, nil, err
			}
			l.ProductID = &p.ID
			l.Name, l.Category, l.BOM = p.Name, p.Category, lineBOM
			price = p.Price
		} else {
			it, err := getItemQ(ctx, tx, "create_order", orgID, in.IngredientID)
			if err != nil {
				return nil, nil, err
			}
			l.IngredientID = &it.ID
			l.Name, l.Category, l.BOM = it.Name, it.Category, DirectBOM(it.ID, in.Qty)
		}

		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		l.UnitPrice = price
		l.LineTotal = price.Mul(in.Qty).Round(2)
		if l.BOM == nil {
			l.BOM = []BOMLine{}
		}
		lines = append(lines, l)
		bom = append(bom, l.BOM...)
	}
	return lines, bom, nil
}

func (s *orderService) MarkDelivered(ctx context.Context, actor Actor, orderID string) (*Order, error) {
	var enqueued bool
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		enqueued = false
		head, err := lockOrderTx(ctx, tx, "mark_delivered", actor.OrgID, orderID)
		if err != nil {
			return err
		}
		switch deliverTransition(head.Status) {
		case transitionNoop:
			return nil
		case transitionForbidden:
			return invalidTransition("mark_delivered", "order", orderID, string(head.Status), "deliver")
		}

		if _, err := tx.Exec(ctx,
			"UPDATE orders SET status = 'delivered', delivered_at = now() WHERE id = $1",
			orderID,
		); err != nil {
			return fmt.Errorf("failed to deliver order %s: %w", orderID, err)
		}

		// Anonymous sales earn nothing, so they never enter the outbox.
		if head.CustomerID != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO loyalty_outbox (org_id, order_id)
				VALUES ($1, $2)
				ON CONFLICT (org_id, order_id) DO NOTHING
			`, actor.OrgID, orderID); err != nil {
				return fmt.Errorf("failed to queue loyalty accrual for order %s: %w", orderID, err)
			}
			enqueued = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if enqueued && s.notifier != nil {
		s.notifier.Notify(actor.OrgID, orderID)
	}
	return s.GetOrder(ctx, actor.OrgID, orderID)
}

func (s *orderService) CancelOrder(ctx context.Context, actor Actor, orderID string) (*Order, error) {
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		head, err := lockOrderTx(ctx, tx, "cancel_order", actor.OrgID, orderID)
		if err != nil {
			return err
		}
		switch cancelTransition(head.Status) {
		case transitionNoop:
			return nil
		case transitionForbidden:
			return invalidTransition("cancel_order", "order", orderID, string(head.Status), "cancel")
		}

		if _, err := s.inv.RevertOrderTx(ctx, tx, actor, orderID, ReasonCancel); err != nil {
			return fmt.Errorf("failed to revert stock for order %s: %w", orderID, err)
		}

		if _, err := tx.Exec(ctx,
			"UPDATE orders SET status = 'canceled', canceled_at = now() WHERE id = $1",
			orderID,
		); err != nil {
			return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, actor.OrgID, orderID)
}

func (s *orderService) DeleteOrder(ctx context.Context, actor Actor, orderID string) error {
	return runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		head, err := lockOrderTx(ctx, tx, "delete_order", actor.OrgID, orderID)
		if err != nil {
			return err
		}
		if deleteTransition(head.Status) == transitionForbidden {
			return invalidTransition("delete_order", "order", orderID, string(head.Status), "delete")
		}

		// A canceled order already gave its stock back.
		if head.Status == OrderPending {
			if _, err := s.inv.RevertOrderTx(ctx, tx, actor, orderID, ReasonDelete); err != nil {
				return fmt.Errorf("failed to revert stock for order %s: %w", orderID, err)
			}
		}

		if _, err := tx.Exec(ctx, "DELETE FROM orders WHERE id = $1", orderID); err != nil {
			return fmt.Errorf("failed to delete order %s: %w", orderID, err)
		}
		return nil
	})
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *orderService) GetOrder(ctx context.Context, orgID, orderID string) (*Order, error) {
	return getOrderQ(ctx, s.pool, "get_order", orgID, orderID)
}

type orderHead struct {
	OrgID      string
	Status     OrderStatus
	CustomerID *string
}

func lockOrderTx(ctx context.Context, tx pgx.Tx, op, orgID, orderID string) (*orderHead, error) {
	var h orderHead
	err := tx.QueryRow(ctx,
		"SELECT org_id, status, customer_id FROM orders WHERE id = $1 FOR UPDATE",
		orderID,
	).Scan(&h.OrgID, &h.Status, &h.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, "order", orderID)
		}
		return nil, fmt.Errorf("failed to lock order %s: %w", orderID, err)
	}
	if h.OrgID != orgID {
		return nil, tenantMismatch(op, "order", orderID)
	}
	return &h, nil
}

const orderColumns = `id, org_id, status, pay_method, total, cogs, customer_id, created_by, created_at, delivered_at, canceled_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrgID, &o.Status, &o.PayMethod, &o.Total, &o.COGS, &o.CustomerID,
		&o.CreatedBy, &o.CreatedAt, &o.DeliveredAt, &o.CanceledAt)
	return o, err
}

func getOrderQ(ctx context.Context, q pgxRowQuerier, op, orgID, orderID string) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, "order", orderID)
		}
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}
	if o.OrgID != orgID {
		return nil, tenantMismatch(op, "order", orderID)
	}
	o.Lines, err = fetchOrderLinesQ(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func fetchOrderLinesQ(ctx context.Context, q pgxRowQuerier, orderID string) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT line_number, product_id, ingredient_id, name, category, variant, qty, unit_price, line_total, bom
		FROM order_lines
		WHERE order_id = $1
		ORDER BY line_number
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.LineNumber, &l.ProductID, &l.IngredientID, &l.Name, &l.Category, &l.Variant,
			&l.Qty, &l.UnitPrice, &l.LineTotal, &l.BOM); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
