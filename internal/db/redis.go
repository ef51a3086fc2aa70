package db

import (
	"context"
	"fmt"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"pos-ledger/internal/config"
)

// NewRedisLocker connects to Redis and returns the client and a lock client on top of it.
// Both are nil when Redis is not configured; callers then rely on row locks alone.
func NewRedisLocker(ctx context.Context, cfg config.RedisConfig) (*redis.Client, *redislock.Client, error) {
	if !cfg.Enabled() {
		return nil, nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("unable to ping redis at %s: %w", cfg.Addr, err)
	}
	return rdb, redislock.New(rdb), nil
}
