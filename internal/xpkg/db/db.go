package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/xpkg/config"
	"courier-dispatch/internal/xpkg/errs"
)

// Start opens a pgx pool against the configured database and verifies it
// with a ping before handing it out.
func Start(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", errs.ErrDBConn, err)
	}

	return pool, nil
}
