package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dezexus/subvision/internal/config"
)

// DB wraps the pool backing source records and annotation snapshots.
type DB struct {
	Pool *pgxpool.Pool
}

// editorTables is the schema this service reads and writes. Health fails
// when any of them is missing, so a half-migrated database surfaces at the
// health endpoint instead of at the first snapshot save.
var editorTables = []string{"sources", "snapshots"}

// New connects the snapshot store. The pool stays small; one editor session
// touches the database only on open, close, and source management.
func New(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		cfg.MaxConns, cfg.MinConns,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	db := &DB{Pool: pool}
	if err := db.Health(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health verifies connectivity and that the editor schema is present.
func (db *DB) Health(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var present int
	err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_name = ANY($1)`,
		editorTables,
	).Scan(&present)
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	if present < len(editorTables) {
		return fmt.Errorf("editor schema incomplete: %d of %d tables present", present, len(editorTables))
	}
	return nil
}
