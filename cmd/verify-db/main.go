// verify-db checks every tenant's stock against its movement log and reports loyalty
// outbox rows that gave up. It exits 1 when anything is out of balance.
//
// Usage: go run ./cmd/verify-db
package main

import (
	"context"
	"os"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"pos-ledger/internal/app"
	"pos-ledger/internal/config"
	"pos-ledger/internal/db"
	"pos-ledger/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Fatal().Err(err).Msg("config")
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel}).With("verify-db")

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

	orgs, err := listOrgs(ctx, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list tenants")
	}

	failed := false
	for _, org := range orgs {
		diffs, err := svc.Reports.ReconcileStock(ctx, org)
		if err != nil {
			log.Fatal().Err(err).Str("org_id", org).Msg("reconcile failed")
		}
		for _, d := range diffs {
			failed = true
			log.Error().
				Str("org_id", org).
				Str("ingredient_id", d.IngredientID).
				Str("name", d.Name).
				Str("stock", d.Stock.String()).
				Str("movement_sum", d.MovementSum.String()).
				Msg("[STOCK] out of balance")
		}
		if len(diffs) == 0 {
			log.Info().Str("org_id", org).Msg("[STOCK] ok")
		}
	}

	var dead int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM loyalty_outbox WHERE status = 'dead'").Scan(&dead); err != nil {
		log.Fatal().Err(err).Msg("failed to count dead outbox rows")
	}
	if dead > 0 {
		failed = true
		log.Error().Int("rows", dead).Msg("[OUTBOX] dead loyalty accruals need attention")
	}

	if failed {
		os.Exit(1)
	}
	log.Info().Int("tenants", len(orgs)).Msg("[DONE] ledger verified")
}

func listOrgs(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, "SELECT DISTINCT org_id FROM inventory_items ORDER BY org_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}
