package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/logging"
)

// Pool sizing for the learned-join store. Resolve runs are short-lived CLI
// sessions, so the pool stays small and idle connections are released quickly.
const (
	defaultMaxConns = 10
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
	pingTimeout     = 5 * time.Second
)

// DB is the PostgreSQL handle behind learned-join persistence.
type DB struct {
	*pgxpool.Pool
}

// Connect opens a pgx pool against the learned-join store and verifies it with
// a bounded ping. A maxConns of zero or less falls back to the default pool
// size. The connection string is sanitized before it reaches the log.
func Connect(ctx context.Context, connString string, maxConns int32, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	poolConfig.MaxConns = maxConns
	poolConfig.MaxConnLifetime = connMaxLifetime
	poolConfig.MaxConnIdleTime = connMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping learned-join store: %w", err)
	}

	logger.Debug("Connected to learned-join store",
		zap.String("dsn", logging.SanitizeConnectionString(connString)),
		zap.Int32("max_connections", maxConns))
	return &DB{Pool: pool}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
