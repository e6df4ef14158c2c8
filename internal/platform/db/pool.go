package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	return newPool(ctx, cfg, maxConns, minConns)
}

// NewTenantPool opens a pool whose connections all resolve unqualified
// table names in the tenant's schema. Unlike WithTenant it is safe to share
// between goroutines.
func NewTenantPool(ctx context.Context, databaseURL string, maxConns, minConns int32, tenantID string) (*pgxpool.Pool, error) {
	if !ValidTenantID(tenantID) {
		return nil, fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = SchemaName(tenantID) + ", public"
	return newPool(ctx, cfg, maxConns, minConns)
}

func newPool(ctx context.Context, cfg *pgxpool.Config, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
