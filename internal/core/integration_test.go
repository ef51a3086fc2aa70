package core_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/core"
	"pos-ledger/internal/db"
	"pos-ledger/internal/logger"
)

const (
	testOrg   = "org-test"
	otherOrg  = "org-other"
	testZone  = "America/Mexico_City"
	schemaSQL = "../../migrations/001_init.sql"
)

var (
	owner    = core.Actor{OrgID: testOrg, UserID: "user-owner", Role: core.RoleOwner}
	worker   = core.Actor{OrgID: testOrg, UserID: "user-worker", Role: core.RoleWorker}
	outsider = core.Actor{OrgID: otherOrg, UserID: "user-x", Role: core.RoleOwner}
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database; the tables are truncated on every run.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.NewPoolFromURL(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	schema, err := os.ReadFile(schemaSQL)
	if err != nil {
		t.Fatalf("Failed to read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE loyalty_outbox, loyalty_accruals, loyalty_events, openings, cash_movements,
			order_lines, orders, purchase_order_lines, purchase_orders, stock_movements,
			products, customers, inventory_items CASCADE;
	`)
	if err != nil {
		t.Fatalf("Failed to clean test database: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// ledger bundles the services the integration tests drive.
type ledger struct {
	pool       *pgxpool.Pool
	cal        *core.Calendar
	inventory  core.InventoryService
	catalog    core.CatalogService
	orders     core.OrderService
	cash       core.CashService
	loyalty    core.LoyaltyService
	purchases  core.PurchaseService
	reports    core.ReportingService
	dispatcher *core.LoyaltyDispatcher
}

// newLedger wires services without an immediate notifier, so tests decide when the
// outbox is drained.
func newLedger(t *testing.T) *ledger {
	pool := setupTestDB(t)
	cal, err := core.NewCalendar(testZone)
	require.NoError(t, err)

	inv := core.NewInventoryService(pool, cal)
	loyalty := core.NewLoyaltyService(pool, []string{"beverage"})
	return &ledger{
		pool:       pool,
		cal:        cal,
		inventory:  inv,
		catalog:    core.NewCatalogService(pool),
		orders:     core.NewOrderService(pool, inv, nil),
		cash:       core.NewCashService(pool, cal),
		loyalty:    loyalty,
		purchases:  core.NewPurchaseService(pool, cal, inv),
		reports:    core.NewReportingService(pool, cal),
		dispatcher: core.NewLoyaltyDispatcher(pool, loyalty, nil, logger.Nop(), core.DispatcherConfig{
			BatchSize:   10,
			MaxAttempts: 3,
		}),
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (l *ledger) item(t *testing.T, actor core.Actor, name string, unit core.Unit, stock, cost string) *core.InventoryItem {
	t.Helper()
	it, err := l.inventory.CreateItem(context.Background(), actor, core.CreateItemInput{
		Name:         name,
		Unit:         unit,
		InitialStock: d(stock),
		CostPerUnit:  d(cost),
	})
	require.NoError(t, err)
	return it
}

func (l *ledger) stockOf(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	it, err := l.inventory.GetItem(context.Background(), testOrg, id)
	require.NoError(t, err)
	return it.Stock
}

func (l *ledger) countMovements(t *testing.T, ingredientID string) int {
	t.Helper()
	var n int
	err := l.pool.QueryRow(context.Background(),
		"SELECT count(*) FROM stock_movements WHERE ingredient_id = $1", ingredientID).Scan(&n)
	require.NoError(t, err)
	return n
}

func requireReconciled(t *testing.T, l *ledger) {
	t.Helper()
	diffs, err := l.reports.ReconcileStock(context.Background(), testOrg)
	require.NoError(t, err)
	require.Empty(t, diffs)
}
