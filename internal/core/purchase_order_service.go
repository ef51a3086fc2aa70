package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PurchaseService manages supplier purchase documents. Receiving one is the only
// path by which purchases reach the kardex.
type PurchaseService interface {
	SuggestReplenishment(ctx context.Context, orgID string) ([]ReplenishmentSuggestion, error)
	// UpsertDraftForToday creates today's draft or merges lines into it.
	UpsertDraftForToday(ctx context.Context, actor Actor, lines []PurchaseLineInput) (*PurchaseOrder, error)
	// ReplenishToday is the scheduled trigger: suggestions net of today's draft are merged in.
	// It returns nil when nothing is missing and no draft exists.
	ReplenishToday(ctx context.Context, actor Actor) (*PurchaseOrder, error)
	MarkOrdered(ctx context.Context, actor Actor, id string) (*PurchaseOrder, error)
	CancelPurchase(ctx context.Context, actor Actor, id string) (*PurchaseOrder, error)
	// ReceivePurchase books the purchase into stock. Non-empty override replaces the stored lines.
	ReceivePurchase(ctx context.Context, actor Actor, id string, override []PurchaseLineInput) (*PurchaseOrder, error)
	GetPurchase(ctx context.Context, orgID, id string) (*PurchaseOrder, error)
	ListPurchases(ctx context.Context, orgID, fromKey, toKey string) ([]PurchaseOrder, error)
}

type purchaseService struct {
	pool *pgxpool.Pool
	cal  *Calendar
	inv  InventoryService
}

func NewPurchaseService(pool *pgxpool.Pool, cal *Calendar, inv InventoryService) PurchaseService {
	return &purchaseService{pool: pool, cal: cal, inv: inv}
}

const purchaseColumns = `id, org_id, status, date_key, supplier, total, created_by, created_at, ordered_at, received_at, canceled_at`

func scanPurchase(row pgx.Row) (PurchaseOrder, error) {
	var p PurchaseOrder
	err := row.Scan(&p.ID, &p.OrgID, &p.Status, &p.DateKey, &p.Supplier, &p.Total, &p.CreatedBy,
		&p.CreatedAt, &p.OrderedAt, &p.ReceivedAt, &p.CanceledAt)
	return p, err
}

func (s *purchaseService) SuggestReplenishment(ctx context.Context, orgID string) ([]ReplenishmentSuggestion, error) {
	items, err := listItemsQ(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	return SuggestReplenishment(items), nil
}

func validatePurchaseLines(op string, lines []PurchaseLineInput) error {
	for _, l := range lines {
		if l.IngredientID == "" {
			return invalidInput(op, "ingredient_id is required on every line")
		}
		if !l.Qty.IsPositive() {
			return invalidQuantity(op, "ingredient", l.IngredientID, l.Qty, "positive")
		}
		if l.UnitCost.IsNegative() {
			return invalidQuantity(op, "ingredient", l.IngredientID, l.UnitCost, "non-negative")
		}
	}
	return nil
}

func (s *purchaseService) UpsertDraftForToday(ctx context.Context, actor Actor, lines []PurchaseLineInput) (*PurchaseOrder, error) {
	const op = "upsert_draft"
	if len(lines) == 0 {
		return nil, invalidInput(op, "at least one line is required")
	}
	if err := validatePurchaseLines(op, lines); err != nil {
		return nil, err
	}

	var id string
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		draftID, _, err := s.lockTodayDraftTx(ctx, tx, actor)
		if err != nil {
			return err
		}
		id = draftID
		return s.mergeIntoDraftTx(ctx, tx, op, actor.OrgID, draftID, func([]PurchaseLine, []InventoryItem) []PurchaseLineInput {
			return lines
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, actor.OrgID, id)
}

func (s *purchaseService) ReplenishToday(ctx context.Context, actor Actor) (*PurchaseOrder, error) {
	const op = "replenish_today"
	var id string
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		draftID, created, err := s.lockTodayDraftTx(ctx, tx, actor)
		if err != nil {
			return err
		}
		id = draftID

		added := 0
		err = s.mergeIntoDraftTx(ctx, tx, op, actor.OrgID, draftID, func(existing []PurchaseLine, items []InventoryItem) []PurchaseLineInput {
			incoming := netOfDraft(SuggestReplenishment(items), existing)
			added = len(incoming)
			return incoming
		})
		if err != nil {
			return err
		}
		// Nothing to buy: do not leave behind an empty draft this call created.
		if added == 0 && created {
			if _, err := tx.Exec(ctx, "DELETE FROM purchase_orders WHERE id = $1", draftID); err != nil {
				return fmt.Errorf("failed to discard empty draft %s: %w", draftID, err)
			}
			id = ""
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	return s.GetPurchase(ctx, actor.OrgID, id)
}

// lockTodayDraftTx returns today's draft id, creating the draft when missing, with the
// row locked. The partial unique index makes concurrent creators converge on one row.
func (s *purchaseService) lockTodayDraftTx(ctx context.Context, tx pgx.Tx, actor Actor) (string, bool, error) {
	var dateKey string
	if err := tx.QueryRow(ctx, "SELECT to_char(now() AT TIME ZONE $1, 'YYYY-MM-DD')", s.cal.Zone()).Scan(&dateKey); err != nil {
		return "", false, fmt.Errorf("failed to resolve today's date key: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO purchase_orders (id, org_id, status, date_key, created_by)
		VALUES ($1, $2, 'draft', $3, $4)
		ON CONFLICT (org_id, date_key) WHERE status = 'draft' DO NOTHING
	`, uuid.NewString(), actor.OrgID, dateKey, actor.UserID)
	if err != nil {
		return "", false, fmt.Errorf("failed to create draft for %s: %w", dateKey, err)
	}

	var id string
	err = tx.QueryRow(ctx, `
		SELECT id FROM purchase_orders
		WHERE org_id = $1 AND date_key = $2 AND status = 'draft'
		FOR UPDATE
	`, actor.OrgID, dateKey).Scan(&id)
	if err != nil {
		return "", false, fmt.Errorf("failed to lock draft for %s: %w", dateKey, err)
	}
	return id, tag.RowsAffected() == 1, nil
}

// mergeIntoDraftTx merges the lines produced by incoming into a locked draft and
// rewrites the document total.
func (s *purchaseService) mergeIntoDraftTx(ctx context.Context, tx pgx.Tx, op, orgID, draftID string,
	incoming func(existing []PurchaseLine, items []InventoryItem) []PurchaseLineInput) error {

	existing, err := fetchPurchaseLinesQ(ctx, tx, draftID)
	if err != nil {
		return err
	}
	items, err := listItemsQ(ctx, tx, orgID)
	if err != nil {
		return err
	}
	byID := make(map[string]*InventoryItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}

	lines := incoming(existing, items)
	if len(lines) == 0 {
		return nil
	}
	for _, l := range lines {
		if byID[l.IngredientID] == nil {
			// Distinguishes a missing item from one owned by another org.
			if _, err := getItemQ(ctx, tx, op, orgID, l.IngredientID); err != nil {
				return err
			}
		}
	}

	merged := mergeDraftLines(existing, lines, byID)
	for _, l := range merged {
		if _, err := tx.Exec(ctx, `
			INSERT INTO purchase_order_lines (purchase_id, line_number, ingredient_id, qty, unit_cost, total_cost)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (purchase_id, ingredient_id)
			DO UPDATE SET qty = EXCLUDED.qty, unit_cost = EXCLUDED.unit_cost, total_cost = EXCLUDED.total_cost
		`, draftID, l.LineNumber, l.IngredientID, l.Qty, l.UnitCost, l.TotalCost); err != nil {
			return fmt.Errorf("failed to write draft line for %s: %w", l.IngredientID, err)
		}
	}
	if _, err := tx.Exec(ctx, "UPDATE purchase_orders SET total = $2 WHERE id = $1", draftID, purchaseTotal(merged)); err != nil {
		return fmt.Errorf("failed to update draft total: %w", err)
	}
	return nil
}

func (s *purchaseService) MarkOrdered(ctx context.Context, actor Actor, id string) (*PurchaseOrder, error) {
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockPurchaseTx(ctx, tx, "mark_ordered", actor.OrgID, id)
		if err != nil {
			return err
		}
		switch markOrderedTransition(status) {
		case transitionNoop:
			return nil
		case transitionForbidden:
			return invalidTransition("mark_ordered", "purchase", id, string(status), "mark ordered")
		}
		if _, err := tx.Exec(ctx,
			"UPDATE purchase_orders SET status = 'ordered', ordered_at = now() WHERE id = $1", id,
		); err != nil {
			return fmt.Errorf("failed to mark purchase %s ordered: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, actor.OrgID, id)
}

func (s *purchaseService) CancelPurchase(ctx context.Context, actor Actor, id string) (*PurchaseOrder, error) {
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockPurchaseTx(ctx, tx, "cancel_purchase", actor.OrgID, id)
		if err != nil {
			return err
		}
		switch cancelPurchaseTransition(status) {
		case transitionNoop:
			return nil
		case transitionForbidden:
			return invalidTransition("cancel_purchase", "purchase", id, string(status), "cancel")
		}
		if _, err := tx.Exec(ctx,
			"UPDATE purchase_orders SET status = 'canceled', canceled_at = now() WHERE id = $1", id,
		); err != nil {
			return fmt.Errorf("failed to cancel purchase %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, actor.OrgID, id)
}

func (s *purchaseService) ReceivePurchase(ctx context.Context, actor Actor, id string, override []PurchaseLineInput) (*PurchaseOrder, error) {
	const op = "receive_purchase"
	if err := validatePurchaseLines(op, override); err != nil {
		return nil, err
	}

	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockPurchaseTx(ctx, tx, op, actor.OrgID, id)
		if err != nil {
			return err
		}
		switch receiveTransition(status) {
		case transitionNoop:
			return nil
		case transitionForbidden:
			return invalidTransition(op, "purchase", id, string(status), "receive")
		}

		if len(override) > 0 {
			if _, err := tx.Exec(ctx, "DELETE FROM purchase_order_lines WHERE purchase_id = $1", id); err != nil {
				return fmt.Errorf("failed to clear lines of purchase %s: %w", id, err)
			}
			if err := s.mergeIntoDraftTx(ctx, tx, op, actor.OrgID, id, func([]PurchaseLine, []InventoryItem) []PurchaseLineInput {
				return override
			}); err != nil {
				return err
			}
		}

		lines, err := fetchPurchaseLinesQ(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.inv.ReceiveLinesTx(ctx, tx, actor, id, lines); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE purchase_orders SET status = 'received', received_at = now(), total = $2
			WHERE id = $1
		`, id, purchaseTotal(lines)); err != nil {
			return fmt.Errorf("failed to mark purchase %s received: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, actor.OrgID, id)
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *purchaseService) GetPurchase(ctx context.Context, orgID, id string) (*PurchaseOrder, error) {
	return getPurchaseQ(ctx, s.pool, "get_purchase", orgID, id)
}

func (s *purchaseService) ListPurchases(ctx context.Context, orgID, fromKey, toKey string) ([]PurchaseOrder, error) {
	return listPurchasesQ(ctx, s.pool, orgID, fromKey, toKey)
}

func lockPurchaseTx(ctx context.Context, tx pgx.Tx, op, orgID, id string) (PurchaseStatus, error) {
	var owner string
	var status PurchaseStatus
	err := tx.QueryRow(ctx, "SELECT org_id, status FROM purchase_orders WHERE id = $1 FOR UPDATE", id).Scan(&owner, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notFound(op, "purchase", id)
		}
		return "", fmt.Errorf("failed to lock purchase %s: %w", id, err)
	}
	if owner != orgID {
		return "", tenantMismatch(op, "purchase", id)
	}
	return status, nil
}

func getPurchaseQ(ctx context.Context, q pgxRowQuerier, op, orgID, id string) (*PurchaseOrder, error) {
	p, err := scanPurchase(q.QueryRow(ctx, "SELECT "+purchaseColumns+" FROM purchase_orders WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, "purchase", id)
		}
		return nil, fmt.Errorf("failed to fetch purchase %s: %w", id, err)
	}
	if p.OrgID != orgID {
		return nil, tenantMismatch(op, "purchase", id)
	}
	p.Lines, err = fetchPurchaseLinesQ(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func listPurchasesQ(ctx context.Context, q pgxRowQuerier, orgID, fromKey, toKey string) ([]PurchaseOrder, error) {
	rows, err := q.Query(ctx, `
		SELECT `+purchaseColumns+` FROM purchase_orders
		WHERE org_id = $1 AND date_key >= $2 AND date_key <= $3
		ORDER BY date_key, created_at, id
	`, orgID, fromKey, toKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var out []PurchaseOrder
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func fetchPurchaseLinesQ(ctx context.Context, q pgxRowQuerier, purchaseID string) ([]PurchaseLine, error) {
	rows, err := q.Query(ctx, `
		SELECT l.line_number, l.ingredient_id, i.name, l.qty, l.unit_cost, l.total_cost
		FROM purchase_order_lines l
		JOIN inventory_items i ON i.id = l.ingredient_id
		WHERE l.purchase_id = $1
		ORDER BY l.line_number
	`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines of purchase %s: %w", purchaseID, err)
	}
	defer rows.Close()

	lines := []PurchaseLine{}
	for rows.Next() {
		var l PurchaseLine
		if err := rows.Scan(&l.LineNumber, &l.IngredientID, &l.IngredientName, &l.Qty, &l.UnitCost, &l.TotalCost); err != nil {
			return nil, fmt.Errorf("failed to scan purchase line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
