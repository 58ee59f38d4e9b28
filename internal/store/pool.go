// Package store is the Persistence Writer (spec §4.1): the sole path
// that mutates the time-series store, safe for concurrent use from many
// ingestion fibers, built on pgx/pgxpool against a Timescale cluster.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alphafox02/WarDragonAnalytics/internal/logger"
)

// NewPool dials the configured Postgres/TimescaleDB cluster and returns a
// pgx pool for reads and writes.
func NewPool(ctx context.Context, dsn string, log logger.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("store: init pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if log != nil {
		log.Info().Str("host", poolConfig.ConnConfig.Host).
			Int32("max_conns", poolConfig.MaxConns).
			Msg("connected to time-series store")
	}

	return pool, nil
}
