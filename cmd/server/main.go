package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	webAdapter "pos-ledger/internal/adapters/web"
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
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	} else {
		log.Warn().Msg("REDIS_ADDR not set; loyalty outbox runs without a cross-instance lease")
	}

	svc, err := app.New(pool, cfg, locker, log)
	if err != nil {
		log.Fatal().Err(err).Msg("services")
	}

	go svc.Dispatcher.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           webAdapter.NewHandler(svc, log, cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("zone", svc.Calendar.Zone()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	// Let in-flight loyalty notifications finish before the pool closes.
	svc.Dispatcher.Wait()
}
