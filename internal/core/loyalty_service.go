package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LoyaltyService owns customer stamp balances and their append-only event log.
type LoyaltyService interface {
	CreateCustomer(ctx context.Context, actor Actor, in CreateCustomerInput) (*Customer, error)
	GetCustomer(ctx context.Context, orgID, id string) (*Customer, error)
	ListEvents(ctx context.Context, orgID, customerID string) ([]LoyaltyEvent, error)

	// AccrueOnDelivery grants one stamp per beverage unit of a delivered order.
	// It runs at most once per order; later calls return Applied=false.
	AccrueOnDelivery(ctx context.Context, orgID, orderID string) (*AccrualResult, error)
	AccrueOnDeliveryTx(ctx context.Context, tx pgx.Tx, orgID, orderID string) (*AccrualResult, error)

	RedeemOneCredit(ctx context.Context, actor Actor, customerID string) (*Customer, error)
}

type loyaltyService struct {
	pool      *pgxpool.Pool
	beverages map[string]bool
}

func NewLoyaltyService(pool *pgxpool.Pool, beverageCategories []string) LoyaltyService {
	return &loyaltyService{pool: pool, beverages: categorySet(beverageCategories)}
}

const customerColumns = `id, org_id, name, phone, total_stamps, created_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Phone, &c.TotalStamps, &c.CreatedAt)
	return c, err
}

func (s *loyaltyService) CreateCustomer(ctx context.Context, actor Actor, in CreateCustomerInput) (*Customer, error) {
	if in.Name == "" {
		return nil, invalidInput("create_customer", "name is required")
	}
	c, err := scanCustomer(s.pool.QueryRow(ctx, `
		INSERT INTO customers (id, org_id, name, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING `+customerColumns,
		uuid.NewString(), actor.OrgID, in.Name, in.Phone))
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return &c, nil
}

func (s *loyaltyService) GetCustomer(ctx context.Context, orgID, id string) (*Customer, error) {
	return getCustomerQ(ctx, s.pool, "get_customer", orgID, id, false)
}

func getCustomerQ(ctx context.Context, q pgxQuerier, op, orgID, id string, forUpdate bool) (*Customer, error) {
	sql := "SELECT " + customerColumns + " FROM customers WHERE id = $1"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	c, err := scanCustomer(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, "customer", id)
		}
		return nil, fmt.Errorf("failed to fetch customer %s: %w", id, err)
	}
	if c.OrgID != orgID {
		return nil, tenantMismatch(op, "customer", id)
	}
	return &c, nil
}

func (s *loyaltyService) ListEvents(ctx context.Context, orgID, customerID string) ([]LoyaltyEvent, error) {
	if _, err := getCustomerQ(ctx, s.pool, "list_loyalty_events", orgID, customerID, false); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, customer_id, type, delta, order_id, user_id, at
		FROM loyalty_events
		WHERE org_id = $1 AND customer_id = $2
		ORDER BY at, id
	`, orgID, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query loyalty events: %w", err)
	}
	defer rows.Close()

	var events []LoyaltyEvent
	for rows.Next() {
		var e LoyaltyEvent
		if err := rows.Scan(&e.ID, &e.OrgID, &e.CustomerID, &e.Type, &e.Delta, &e.OrderID, &e.UserID, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan loyalty event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *loyaltyService) AccrueOnDelivery(ctx context.Context, orgID, orderID string) (*AccrualResult, error) {
	var res *AccrualResult
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		res, err = s.AccrueOnDeliveryTx(ctx, tx, orgID, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *loyaltyService) AccrueOnDeliveryTx(ctx context.Context, tx pgx.Tx, orgID, orderID string) (*AccrualResult, error) {
	const op = "accrue_on_delivery"
	res := &AccrualResult{OrderID: orderID}

	head, err := lockOrderTx(ctx, tx, op, orgID, orderID)
	if err != nil {
		return nil, err
	}
	if head.Status != OrderDelivered {
		return nil, invalidTransition(op, "order", orderID, string(head.Status), "accrue loyalty")
	}
	if head.CustomerID == nil {
		return res, nil
	}
	res.CustomerID = *head.CustomerID

	lines, err := fetchOrderLinesQ(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	units := countBeverageUnits(lines, s.beverages)
	if units == 0 {
		return res, nil
	}

	// The accrual row is the per-order guard: a second claim inserts nothing.
	tag, err := tx.Exec(ctx, `
		INSERT INTO loyalty_accruals (org_id, order_id, customer_id, stamps)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, order_id) DO NOTHING
	`, orgID, orderID, res.CustomerID, units)
	if err != nil {
		return nil, fmt.Errorf("failed to claim accrual for order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return res, nil
	}

	c, err := scanCustomer(tx.QueryRow(ctx, `
		UPDATE customers SET total_stamps = total_stamps + $2
		WHERE id = $1
		RETURNING `+customerColumns,
		res.CustomerID, units))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, "customer", res.CustomerID)
		}
		return nil, fmt.Errorf("failed to add stamps to customer %s: %w", res.CustomerID, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO loyalty_events (org_id, customer_id, type, delta, order_id)
		VALUES ($1, $2, 'earn', $3, $4)
	`, orgID, res.CustomerID, units, orderID); err != nil {
		return nil, fmt.Errorf("failed to record earn event: %w", err)
	}

	res.Stamps = units
	res.Applied = true
	res.Customer = &c
	return res, nil
}

func (s *loyaltyService) RedeemOneCredit(ctx context.Context, actor Actor, customerID string) (*Customer, error) {
	const op = "redeem_credit"
	var out Customer
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		c, err := getCustomerQ(ctx, tx, op, actor.OrgID, customerID, true)
		if err != nil {
			return err
		}
		if c.FreeCredits() < 1 {
			return &LedgerError{
				Kind: ErrInsufficientCredits, Op: op, Entity: "customer", ID: c.ID, Name: c.Name,
				Detail: fmt.Sprintf("has %d stamps, needs %d", c.TotalStamps, StampsPerCredit),
			}
		}

		out, err = scanCustomer(tx.QueryRow(ctx, `
			UPDATE customers SET total_stamps = total_stamps - $2
			WHERE id = $1
			RETURNING `+customerColumns,
			customerID, StampsPerCredit))
		if err != nil {
			return fmt.Errorf("failed to redeem credit for customer %s: %w", customerID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO loyalty_events (org_id, customer_id, type, delta, user_id)
			VALUES ($1, $2, 'redeem', $3, $4)
		`, actor.OrgID, customerID, -StampsPerCredit, nullIfEmpty(actor.UserID)); err != nil {
			return fmt.Errorf("failed to record redeem event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
