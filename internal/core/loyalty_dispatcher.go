package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pos-ledger/internal/logger"
)

const (
	outboxLeaseKey   = "lock:loyalty-outbox"
	outboxMaxBackoff = 10 * time.Minute
)

type DispatcherConfig struct {
	Interval      time.Duration
	BatchSize     int
	MaxAttempts   int
	NotifyTimeout time.Duration
}

// LoyaltyDispatcher drains loyalty_outbox. Delivery commits first; stamps are granted
// here afterwards, so a loyalty failure never touches the order.
type LoyaltyDispatcher struct {
	pool    *pgxpool.Pool
	loyalty LoyaltyService
	locker  *redislock.Client // optional
	log     *logger.Logger
	cfg     DispatcherConfig
	wg      sync.WaitGroup
}

func NewLoyaltyDispatcher(pool *pgxpool.Pool, loyalty LoyaltyService, locker *redislock.Client, log *logger.Logger, cfg DispatcherConfig) *LoyaltyDispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &LoyaltyDispatcher{
		pool:    pool,
		loyalty: loyalty,
		locker:  locker,
		log:     log.With("loyalty-dispatcher"),
		cfg:     cfg,
	}
}

// Notify makes an immediate attempt for one order without blocking the caller.
// Whatever it cannot finish is left pending for Run.
func (d *LoyaltyDispatcher) Notify(orgID, orderID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.NotifyTimeout)
		defer cancel()
		if _, err := d.process(ctx, `
			SELECT id, org_id, order_id, attempts FROM loyalty_outbox
			WHERE org_id = $1 AND order_id = $2 AND status = 'pending'
			FOR UPDATE SKIP LOCKED
		`, orgID, orderID); err != nil {
			d.log.Warn().Err(err).Str("org_id", orgID).Str("order_id", orderID).Msg("immediate loyalty accrual failed")
		}
	}()
}

// Wait blocks until in-flight Notify goroutines finish. Call it once nothing can
// deliver orders anymore, after the HTTP server has shut down.
func (d *LoyaltyDispatcher) Wait() {
	d.wg.Wait()
}

// Run polls the outbox until ctx is canceled. It does not wait for Notify goroutines.
func (d *LoyaltyDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	d.log.Info().Dur("interval", d.cfg.Interval).Msg("loyalty dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("loyalty dispatcher stopped")
			return
		case <-ticker.C:
			n, err := d.RunOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error().Err(err).Msg("loyalty outbox pass failed")
				continue
			}
			if n > 0 {
				d.log.Debug().Int("processed", n).Msg("loyalty outbox pass")
			}
		}
	}
}

// RunOnce processes up to BatchSize due rows and returns how many it handled.
// When another worker holds the lease it returns 0 without touching the outbox.
func (d *LoyaltyDispatcher) RunOnce(ctx context.Context) (int, error) {
	if d.locker != nil {
		lease, err := d.locker.Obtain(ctx, outboxLeaseKey, d.cfg.Interval+d.cfg.NotifyTimeout, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return 0, nil
		}
		if err != nil {
			d.log.Warn().Err(err).Msg("error obtaining outbox lease; proceeding with row locks only")
		} else {
			defer func() {
				if err := lease.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
					d.log.Warn().Err(err).Msg("failed to release outbox lease")
				}
			}()
		}
	}

	processed := 0
	for processed < d.cfg.BatchSize {
		ok, err := d.process(ctx, `
			SELECT id, org_id, order_id, attempts FROM loyalty_outbox
			WHERE status = 'pending' AND next_attempt_at <= now()
			ORDER BY next_attempt_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`)
		if err != nil {
			return processed, err
		}
		if !ok {
			break
		}
		processed++
	}
	return processed, nil
}

type outboxRow struct {
	ID       int64
	OrgID    string
	OrderID  string
	Attempts int
}

// process claims at most one row with claimSQL and settles it. It reports whether a row
// was claimed. Accrual runs inside a savepoint so a failure can still be recorded.
func (d *LoyaltyDispatcher) process(ctx context.Context, claimSQL string, args ...any) (bool, error) {
	claimed := false
	err := runInTx(ctx, d.pool, func(tx pgx.Tx) error {
		claimed = false
		var row outboxRow
		err := tx.QueryRow(ctx, claimSQL, args...).Scan(&row.ID, &row.OrgID, &row.OrderID, &row.Attempts)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to claim outbox row: %w", err)
		}
		claimed = true

		sp, err := tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to open savepoint: %w", err)
		}
		res, accrueErr := d.loyalty.AccrueOnDeliveryTx(ctx, sp, row.OrgID, row.OrderID)
		if accrueErr == nil {
			accrueErr = sp.Commit(ctx)
		}
		if accrueErr != nil {
			_ = sp.Rollback(ctx)
			return d.recordFailure(ctx, tx, row, accrueErr)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE loyalty_outbox
			SET status = 'done', attempts = attempts + 1, processed_at = now(), last_error = NULL
			WHERE id = $1
		`, row.ID); err != nil {
			return fmt.Errorf("failed to settle outbox row %d: %w", row.ID, err)
		}
		if res.Applied {
			d.log.Info().
				Str("org_id", row.OrgID).
				Str("order_id", row.OrderID).
				Str("customer_id", res.CustomerID).
				Int("stamps", res.Stamps).
				Msg("loyalty stamps accrued")
		}
		return nil
	})
	return claimed, err
}

func (d *LoyaltyDispatcher) recordFailure(ctx context.Context, tx pgx.Tx, row outboxRow, cause error) error {
	attempts := row.Attempts + 1
	dead := attempts >= d.cfg.MaxAttempts || isPermanentAccrualError(cause)

	status := "pending"
	if dead {
		status = "dead"
	}
	backoff := outboxBackoff(attempts)
	if _, err := tx.Exec(ctx, `
		UPDATE loyalty_outbox
		SET status = $2, attempts = $3, last_error = $4,
		    next_attempt_at = now() + make_interval(secs => $5)
		WHERE id = $1
	`, row.ID, status, attempts, cause.Error(), backoff.Seconds()); err != nil {
		return fmt.Errorf("failed to record outbox failure for row %d: %w", row.ID, err)
	}

	ev := d.log.Warn()
	if dead {
		ev = d.log.Error()
	}
	ev.Err(cause).
		Str("org_id", row.OrgID).
		Str("order_id", row.OrderID).
		Int("attempts", attempts).
		Bool("dead", dead).
		Msg("loyalty accrual failed")
	return nil
}

// outboxBackoff is 2^attempts seconds, capped.
func outboxBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 10 {
		return outboxMaxBackoff
	}
	d := time.Duration(1<<attempts) * time.Second
	if d > outboxMaxBackoff {
		return outboxMaxBackoff
	}
	return d
}

// isPermanentAccrualError reports failures that no retry can fix.
func isPermanentAccrualError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTenantMismatch) ||
		errors.Is(err, ErrInvalidTransition)
}
