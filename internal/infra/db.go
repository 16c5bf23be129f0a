package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Artifact metadata queries are short single-row writes and one indexed
// list per user, so the pool stays small and recycles idle connections.
const (
	artifactPoolMinConns    = 1
	artifactPoolMaxLifetime = time.Hour
	artifactPoolMaxIdle     = 15 * time.Minute
	artifactPoolHealthCheck = time.Minute
	dbConnectTimeout        = 10 * time.Second
)

// artifactPoolConfig parses DATABASE_URL and sizes the pool from
// DB_MAX_CONNS.
func artifactPoolConfig(cfg *Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("infra: parse DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.MinConns = min(artifactPoolMinConns, poolCfg.MaxConns)
	poolCfg.MaxConnLifetime = artifactPoolMaxLifetime
	poolCfg.MaxConnIdleTime = artifactPoolMaxIdle
	poolCfg.HealthCheckPeriod = artifactPoolHealthCheck
	return poolCfg, nil
}

// NewDBPool connects the Postgres metadata store and verifies it answers.
func NewDBPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	poolCfg, err := artifactPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("infra: open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("infra: ping postgres: %w", err)
	}
	return pool, nil
}
