// Package database builds the PostgreSQL connection pool used by the
// postgres transaction store.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config holds database connection details.
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
	Retry    RetryConfig
}

// New connects a pool and pings it, retrying while the server is unreachable.
// The returned func closes the pool.
func New(ctx context.Context, logger *zap.Logger, cfg Config) (*pgxpool.Pool, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse postgres dsn %s: %w", maskDSN(cfg.DSN), err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = 30 * time.Minute

	attempt := 0
	pool, err := WithRetry(ctx, cfg.Retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		attempt++
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			logger.Warn("postgres_ping_failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres %s: %w", maskDSN(cfg.DSN), err)
	}
	logger.Info("postgres_connection_pool_established", zap.String("dsn", maskDSN(cfg.DSN)), zap.Int("attempts", attempt))

	closer := func() {
		pool.Close()
		logger.Info("postgres_connection_pool_closed")
	}
	return pool, closer, nil
}

// maskDSN hides credentials in URL-style DSNs.
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return dsn
	}
	return scheme + "://*****:*****@" + rest[at+1:]
}
