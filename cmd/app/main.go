package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"pos-ledger/internal/adapters/cli"
	"pos-ledger/internal/app"
	"pos-ledger/internal/config"
	"pos-ledger/internal/core"
	"pos-ledger/internal/db"
	"pos-ledger/internal/logger"
)

// app runs one ledger command as the configured operator, e.g. from cron:
//
//	OPERATOR_ORG_ID=org-1 app replenish
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Fatal().Err(err).Msg("config")
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	if cfg.Operator.OrgID == "" {
		log.Fatal().Msg("OPERATOR_ORG_ID is required")
	}
	actor := core.Actor{
		OrgID:  cfg.Operator.OrgID,
		UserID: cfg.Operator.UserID,
		Role:   core.Role(cfg.Operator.Role),
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()

	rdb, locker, err := db.NewRedisLocker(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	svc, err := app.New(pool, cfg, locker, log)
	if err != nil {
		log.Fatal().Err(err).Msg("services")
	}

	err = cli.Run(ctx, svc, actor, os.Args[1:], os.Stdout)
	svc.Dispatcher.Wait()
	if err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
