// Package postgres persists alert sessions and the audit trail in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
}

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates the pool, verifies the connection and applies the schema.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.RunMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// RunMigrations creates the required database tables.
func (db *DB) RunMigrations(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS alert_sessions (
			alert_id    VARCHAR(36) PRIMARY KEY,
			state       VARCHAR(32) NOT NULL,
			fingerprint VARCHAR(64) NOT NULL DEFAULT '',
			host_name   TEXT NOT NULL DEFAULT '',
			transport   VARCHAR(16) NOT NULL DEFAULT '',
			chat_id     TEXT NOT NULL DEFAULT '',
			message_id  TEXT NOT NULL DEFAULT '',
			last_actor  TEXT NOT NULL DEFAULT '',
			data        JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alert_sessions_state ON alert_sessions(state, updated_at);
		CREATE INDEX IF NOT EXISTS idx_alert_sessions_created ON alert_sessions(created_at);

		CREATE TABLE IF NOT EXISTS audit_logs (
			id          VARCHAR(36) PRIMARY KEY,
			event_type  VARCHAR(64) NOT NULL,
			alert_id    VARCHAR(36) NOT NULL DEFAULT '',
			action      VARCHAR(32) NOT NULL DEFAULT '',
			actor       TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_logs_alert ON audit_logs(alert_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at);
	`
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
