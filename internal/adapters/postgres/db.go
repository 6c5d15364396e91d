package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the shared pgx pool used by the note repository, migrations and health checks.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens a pool and verifies it with a ping. maxConns <= 0 keeps the pgx
// default. Connections are recycled after 30 minutes so failovers get picked up.
func New(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// PostGISVersion reports the installed extension version. It fails before
// migrations have run.
func (db *DB) PostGISVersion(ctx context.Context) (string, error) {
	var v string
	if err := db.Pool.QueryRow(ctx, `SELECT postgis_lib_version()`).Scan(&v); err != nil {
		return "", fmt.Errorf("postgis: %w", err)
	}
	return v, nil
}

// Exec runs a statement or script outside a transaction.
func (db *DB) Exec(ctx context.Context, sql string) error {
	_, err := db.Pool.Exec(ctx, sql)
	return err
}

// Stat feeds the pool gauges.
func (db *DB) Stat() *pgxpool.Stat {
	return db.Pool.Stat()
}

func (db *DB) Close() {
	db.Pool.Close()
}
