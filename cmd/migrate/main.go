// migrate applies migrations/NNN_*.sql in order, once each, recording a checksum per
// file. A file whose content changed after it was applied stops the run.
//
// Usage: migrate [dir]   (default: migrations)
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"pos-ledger/internal/config"
	"pos-ledger/internal/db"
	"pos-ledger/internal/logger"
)

const migratorLockKey = 7462839

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Fatal().Err(err).Msg("config")
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel}).With("migrate")

	dir := "migrations"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("[CONNECT] failed")
	}
	defer pool.Close()
	log.Info().Msg("[CONNECT] success")

	conn, err := acquireLock(ctx, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("[LOCK] failed")
	}
	defer conn.Release()
	log.Info().Msg("[LOCK] success")

	if err := setupSchemaMigrations(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("[ERROR] failed to create schema_migrations table")
	}

	migrations, err := discoverMigrations(dir)
	if err != nil {
		log.Fatal().Err(err).Msg("[DISCOVER] failed")
	}

	for _, filename := range migrations {
		applied, err := applyMigration(ctx, pool, dir, filename)
		if err != nil {
			log.Fatal().Err(err).Str("file", filename).Msg("[ERROR] migration failed")
		}
		if applied {
			log.Info().Str("file", filename).Msg("[APPLY]")
		} else {
			log.Info().Str("file", filename).Msg("[SKIP]")
		}
	}

	log.Info().Int("files", len(migrations)).Msg("[DONE] All migrations processed.")
}

// acquireLock holds a session advisory lock on a dedicated connection so two
// migrators never run at once. Releasing the connection drops the lock.
func acquireLock(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migratorLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to query advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, errors.New("another migrator is currently running")
	}
	return conn, nil
}

func setupSchemaMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	return err
}

// discoverMigrations lists the .sql files in dir sorted by name. Two files with the
// same version prefix are an error.
func discoverMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var filenames []string
	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		filename := entry.Name()
		version, err := extractVersion(filename)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate version %s: %s and %s", version, prev, filename)
		}
		seen[version] = filename

		filenames = append(filenames, filename)
	}

	sort.Strings(filenames)
	return filenames, nil
}

func extractVersion(filename string) (string, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid migration filename %s, expected NNN_description.sql", filename)
	}
	return parts[0], nil
}

func checksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// applyMigration runs one file in its own transaction. It reports false when the
// file was already applied with the same checksum.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, dir, filename string) (bool, error) {
	version, err := extractVersion(filename)
	if err != nil {
		return false, err
	}
	sqlBytes, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return false, fmt.Errorf("failed to read migration file: %w", err)
	}
	sum := checksum(sqlBytes)

	var existing string
	err = pool.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", version).Scan(&existing)
	switch {
	case err == nil:
		if existing != sum {
			return false, fmt.Errorf("checksum mismatch: recorded %s, file has %s", existing, sum)
		}
		return false, nil
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return false, fmt.Errorf("failed to query schema_migrations: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return false, fmt.Errorf("failed to execute migration: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)",
		version, filename, sum); err != nil {
		return false, fmt.Errorf("failed to insert migration record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}
