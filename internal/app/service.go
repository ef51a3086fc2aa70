package app

import (
	"github.com/bsm/redislock"
	"github.com/jackc/pgx/v5/pgxpool"

	"pos-ledger/internal/config"
	"pos-ledger/internal/core"
	"pos-ledger/internal/logger"
)

// Services is what every adapter (HTTP, CLI, cmd binaries) calls. Adapters hold no
// business logic; they translate input, call one of these, and render the result.
type Services struct {
	Calendar   *core.Calendar
	Inventory  core.InventoryService
	Catalog    core.CatalogService
	Orders     core.OrderService
	Cash       core.CashService
	Loyalty    core.LoyaltyService
	Purchases  core.PurchaseService
	Reports    core.ReportingService
	Dispatcher *core.LoyaltyDispatcher
}

// New wires the ledger services over one pool. locker may be nil.
func New(pool *pgxpool.Pool, cfg *config.Config, locker *redislock.Client, log *logger.Logger) (*Services, error) {
	cal, err := core.NewCalendar(cfg.Ledger.Timezone)
	if err != nil {
		return nil, err
	}

	inv := core.NewInventoryService(pool, cal)
	loyalty := core.NewLoyaltyService(pool, cfg.Ledger.BeverageCategories)
	dispatcher := core.NewLoyaltyDispatcher(pool, loyalty, locker, log, core.DispatcherConfig{
		Interval:    cfg.Outbox.Interval,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})

	return &Services{
		Calendar:   cal,
		Inventory:  inv,
		Catalog:    core.NewCatalogService(pool),
		Orders:     core.NewOrderService(pool, inv, dispatcher),
		Cash:       core.NewCashService(pool, cal),
		Loyalty:    loyalty,
		Purchases:  core.NewPurchaseService(pool, cal, inv),
		Reports:    core.NewReportingService(pool, cal),
		Dispatcher: dispatcher,
	}, nil
}
