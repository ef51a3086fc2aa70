// seed loads a small café catalog into OPERATOR_ORG_ID so a fresh database can take
// orders. Items and products that already exist by name are left untouched.
//
// Usage: go run ./cmd/seed
package main

import (
	"context"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"pos-ledger/internal/app"
	"pos-ledger/internal/config"
	"pos-ledger/internal/core"
	"pos-ledger/internal/db"
	"pos-ledger/internal/logger"
)

type seedItem struct {
	name     string
	unit     core.Unit
	category string
	stock    string
	min      string
	cost     string
}

var seedItems = []seedItem{
	{"Coffee beans", core.UnitMass, "coffee", "5000", "1000", "0.35"},
	{"Whole milk", core.UnitVolume, "dairy", "8000", "2000", "0.025"},
	{"Oat milk", core.UnitVolume, "dairy", "4000", "1000", "0.045"},
	{"Cup 12oz", core.UnitCount, "packaging", "300", "100", "1.20"},
	{"Croissant", core.UnitCount, "bakery", "24", "6", "9.00"},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Fatal().Err(err).Msg("config")
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel}).With("seed")
	if cfg.Operator.OrgID == "" {
		log.Fatal().Msg("OPERATOR_ORG_ID is required")
	}
	actor := core.Actor{OrgID: cfg.Operator.OrgID, UserID: cfg.Operator.UserID, Role: core.RoleOwner}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()

	svc, err := app.New(pool, cfg, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("services")
	}

	items, err := seedInventory(ctx, svc, actor)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed inventory")
	}
	log.Info().Int("items", len(items)).Msg("inventory ready")

	if err := seedCatalog(ctx, svc, actor, items); err != nil {
		log.Fatal().Err(err).Msg("failed to seed products")
	}
	if err := seedCustomer(ctx, pool, svc, actor); err != nil {
		log.Fatal().Err(err).Msg("failed to seed customer")
	}
	log.Info().Str("org_id", actor.OrgID).Msg("seed data loaded")
}

// seedInventory returns item ids by name, creating the missing ones.
func seedInventory(ctx context.Context, svc *app.Services, actor core.Actor) (map[string]string, error) {
	existing, err := svc.Inventory.ListItems(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(seedItems))
	for _, it := range existing {
		ids[it.Name] = it.ID
	}

	for _, s := range seedItems {
		if _, ok := ids[s.name]; ok {
			continue
		}
		item, err := svc.Inventory.CreateItem(ctx, actor, core.CreateItemInput{
			Name:         s.name,
			Unit:         s.unit,
			Category:     s.category,
			InitialStock: decimal.RequireFromString(s.stock),
			MinStock:     decimal.RequireFromString(s.min),
			CostPerUnit:  decimal.RequireFromString(s.cost),
		})
		if err != nil {
			return nil, err
		}
		ids[s.name] = item.ID
	}
	return ids, nil
}

func seedCatalog(ctx context.Context, svc *app.Services, actor core.Actor, ids map[string]string) error {
	existing, err := svc.Catalog.ListProducts(ctx, actor.OrgID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[p.Name] = true
	}

	line := func(name, qty string) core.BOMLine {
		return core.BOMLine{IngredientID: ids[name], Qty: decimal.RequireFromString(qty)}
	}
	products := []core.CreateProductInput{
		{
			Name:     "Latte",
			Category: "beverage",
			Price:    decimal.NewFromInt(55),
			Recipe:   core.Recipe{line("Coffee beans", "18"), line("Whole milk", "220"), line("Cup 12oz", "1")},
			Variants: map[string]core.Recipe{
				"oat": {line("Coffee beans", "18"), line("Oat milk", "220"), line("Cup 12oz", "1")},
			},
		},
		{
			Name:     "Espresso",
			Category: "beverage",
			Price:    decimal.NewFromInt(35),
			Recipe:   core.Recipe{line("Coffee beans", "18"), line("Cup 12oz", "1")},
		},
	}
	for _, p := range products {
		if have[p.Name] {
			continue
		}
		if _, err := svc.Catalog.CreateProduct(ctx, actor, p); err != nil {
			return err
		}
	}
	return nil
}

// seedCustomer adds a walk-in loyalty customer the first time the seed runs.
func seedCustomer(ctx context.Context, pool *pgxpool.Pool, svc *app.Services, actor core.Actor) error {
	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM customers WHERE org_id = $1", actor.OrgID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := svc.Loyalty.CreateCustomer(ctx, actor, core.CreateCustomerInput{Name: "Walk-in regular", Phone: "555-0100"})
	return err
}
