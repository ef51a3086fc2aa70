package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CashService reconciles the physical drawer against orders and manual cash movements.
// It only reads orders; it never mutates them.
type CashService interface {
	// OpenDay records the caller's opening float. A second call for the same day returns
	// the existing opening unchanged.
	OpenDay(ctx context.Context, actor Actor, in OpenDayInput) (*Opening, error)
	GetOpening(ctx context.Context, orgID, dayKey, userID string) (*Opening, error)
	RecordCashMovement(ctx context.Context, actor Actor, in CashMovementInput) (*CashMovement, error)
	ExpectedCash(ctx context.Context, orgID, dayKey string) (*CashSnapshot, error)
	// CloseOpeningForUser freezes expected, counted and diff on the caller's opening.
	// Closing an already closed opening returns the first close unchanged.
	CloseOpeningForUser(ctx context.Context, actor Actor, dayKey string, counted decimal.Decimal) (*Opening, error)
}

type cashService struct {
	pool *pgxpool.Pool
	cal  *Calendar
}

func NewCashService(pool *pgxpool.Pool, cal *Calendar) CashService {
	return &cashService{pool: pool, cal: cal}
}

const openingColumns = `id, org_id, day_key, user_id, initial_cash, tasks_done, status, opened_at, closed_at, expected_cash, counted_cash, cash_diff`

func scanOpening(row pgx.Row) (Opening, error) {
	var o Opening
	err := row.Scan(&o.ID, &o.OrgID, &o.DayKey, &o.UserID, &o.InitialCash, &o.TasksDone, &o.Status,
		&o.OpenedAt, &o.ClosedAt, &o.ExpectedCash, &o.CountedCash, &o.CashDiff)
	return o, err
}

func (s *cashService) OpenDay(ctx context.Context, actor Actor, in OpenDayInput) (*Opening, error) {
	if in.InitialCash.IsNegative() {
		return nil, invalidQuantity("open_day", "opening", actor.UserID, in.InitialCash, "non-negative")
	}
	dayKey := in.DayKey
	if dayKey == "" {
		dayKey = s.cal.Today()
	}
	if _, _, err := s.cal.DayBounds(dayKey); err != nil {
		return nil, err
	}
	tasks := in.TasksDone
	if tasks == nil {
		tasks = []string{}
	}

	var out Opening
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		o, err := scanOpening(tx.QueryRow(ctx, `
			INSERT INTO openings (org_id, day_key, user_id, initial_cash, tasks_done)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (org_id, day_key, user_id) DO NOTHING
			RETURNING `+openingColumns,
			actor.OrgID, dayKey, actor.UserID, in.InitialCash, tasks))
		if err == nil {
			out = o
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to open day %s: %w", dayKey, err)
		}
		existing, err := getOpeningQ(ctx, tx, "open_day", actor.OrgID, dayKey, actor.UserID, false)
		if err != nil {
			return err
		}
		out = *existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *cashService) GetOpening(ctx context.Context, orgID, dayKey, userID string) (*Opening, error) {
	return getOpeningQ(ctx, s.pool, "get_opening", orgID, dayKey, userID, false)
}

func getOpeningQ(ctx context.Context, q pgxQuerier, op, orgID, dayKey, userID string, forUpdate bool) (*Opening, error) {
	sql := "SELECT " + openingColumns + " FROM openings WHERE org_id = $1 AND day_key = $2 AND user_id = $3"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	o, err := scanOpening(q.QueryRow(ctx, sql, orgID, dayKey, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, "opening", dayKey+"/"+userID)
		}
		return nil, fmt.Errorf("failed to fetch opening %s/%s: %w", dayKey, userID, err)
	}
	return &o, nil
}

func (s *cashService) RecordCashMovement(ctx context.Context, actor Actor, in CashMovementInput) (*CashMovement, error) {
	if in.Type != CashIn && in.Type != CashOut {
		return nil, invalidInput("record_cash_movement", fmt.Sprintf("type %q must be in or out", in.Type))
	}
	if !in.Amount.IsPositive() {
		return nil, invalidQuantity("record_cash_movement", "cash movement", string(in.Type), in.Amount, "positive")
	}

	var m CashMovement
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		if in.OrderID != "" {
			var orgID string
			err := tx.QueryRow(ctx, "SELECT org_id FROM orders WHERE id = $1", in.OrderID).Scan(&orgID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return notFound("record_cash_movement", "order", in.OrderID)
				}
				return fmt.Errorf("failed to resolve order %s: %w", in.OrderID, err)
			}
			if orgID != actor.OrgID {
				return tenantMismatch("record_cash_movement", "order", in.OrderID)
			}
		}
		return tx.QueryRow(ctx, `
			INSERT INTO cash_movements (org_id, type, amount, reason, order_id, user_id, date_key)
			VALUES ($1, $2, $3, $4, $5, $6, to_char(now() AT TIME ZONE $7, 'YYYY-MM-DD'))
			RETURNING id, org_id, type, amount, reason, order_id, user_id, at, date_key
		`, actor.OrgID, in.Type, in.Amount, in.Reason, nullIfEmpty(in.OrderID), actor.UserID, s.cal.Zone()).Scan(
			&m.ID, &m.OrgID, &m.Type, &m.Amount, &m.Reason, &m.OrderID, &m.UserID, &m.At, &m.DateKey,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record cash movement: %w", err)
	}
	return &m, nil
}

func (s *cashService) ExpectedCash(ctx context.Context, orgID, dayKey string) (*CashSnapshot, error) {
	return s.expectedCashQ(ctx, s.pool, orgID, dayKey)
}

// expectedCashQ sums the day's inputs. Orders are bucketed by the moment they were
// delivered or canceled, never by creation time.
func (s *cashService) expectedCashQ(ctx context.Context, q pgxQuerier, orgID, dayKey string) (*CashSnapshot, error) {
	start, end, err := s.cal.DayBounds(dayKey)
	if err != nil {
		return nil, err
	}

	var in CashInputs
	err = q.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT initial_cash FROM openings
			          WHERE org_id = $1 AND day_key = $2
			          ORDER BY opened_at, id LIMIT 1), 0),
			COALESCE((SELECT SUM(total) FROM orders
			          WHERE org_id = $1 AND pay_method = 'cash' AND status = 'delivered'
			            AND delivered_at >= $3 AND delivered_at < $4), 0),
			COALESCE((SELECT SUM(total) FROM orders
			          WHERE org_id = $1 AND pay_method = 'cash' AND status = 'canceled'
			            AND canceled_at >= $3 AND canceled_at < $4), 0),
			COALESCE((SELECT SUM(amount) FROM cash_movements
			          WHERE org_id = $1 AND type = 'in' AND at >= $3 AND at < $4), 0),
			COALESCE((SELECT SUM(amount) FROM cash_movements
			          WHERE org_id = $1 AND type = 'out' AND at >= $3 AND at < $4), 0)
	`, orgID, dayKey, start, end).Scan(&in.OpeningCash, &in.DeliveredCash, &in.CanceledCash, &in.CashIn, &in.CashOut)
	if err != nil {
		return nil, fmt.Errorf("failed to compute expected cash for %s: %w", dayKey, err)
	}

	return &CashSnapshot{
		OrgID:        orgID,
		DayKey:       dayKey,
		CashInputs:   in,
		ExpectedCash: ComputeExpectedCash(in),
	}, nil
}

func (s *cashService) CloseOpeningForUser(ctx context.Context, actor Actor, dayKey string, counted decimal.Decimal) (*Opening, error) {
	if counted.IsNegative() {
		return nil, invalidQuantity("close_opening", "opening", dayKey+"/"+actor.UserID, counted, "non-negative")
	}
	if dayKey == "" {
		dayKey = s.cal.Today()
	}

	var out Opening
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		o, err := getOpeningQ(ctx, tx, "close_opening", actor.OrgID, dayKey, actor.UserID, true)
		if err != nil {
			return err
		}
		if o.Status == OpeningClosed {
			out = *o
			return nil
		}

		snap, err := s.expectedCashQ(ctx, tx, actor.OrgID, dayKey)
		if err != nil {
			return err
		}
		diff := counted.Sub(snap.ExpectedCash)

		closed, err := scanOpening(tx.QueryRow(ctx, `
			UPDATE openings
			SET status = 'closed', closed_at = now(), expected_cash = $2, counted_cash = $3, cash_diff = $4
			WHERE id = $1
			RETURNING `+openingColumns,
			o.ID, snap.ExpectedCash, counted, diff))
		if err != nil {
			return fmt.Errorf("failed to close opening %s/%s: %w", dayKey, actor.UserID, err)
		}
		out = closed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
