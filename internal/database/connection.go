package database

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/yoked/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

const healthCheckTimeout = 2 * time.Second

// DB owns the pgx pool shared by every repository and carries transactions
// on the context (see InTx).
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDB wraps an existing pool. Used by tests that own the pool lifecycle.
func NewDB(pool *pgxpool.Pool, logger *slog.Logger) *DB {
	return &DB{Pool: pool, logger: logger}
}

// Connect opens the pool described by cfg and waits for the first ping. It
// gives up after cfg.ConnectTimeout or when ctx ends, whichever is first.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	pc, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool for %s/%s: %w", cfg.Host, cfg.Name, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres at %s:%d not reachable: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("connected to postgres",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("max_conns", int(pc.MaxConns)),
		slog.Int("min_conns", int(pc.MinConns)),
		slog.Duration("statement_timeout", cfg.StatementTimeout),
	)
	return NewDB(pool, logger), nil
}

// PoolConfig turns cfg into pgxpool settings. Every connection reports
// cfg.ApplicationName, runs in UTC and, when set, carries the statement
// timeout as a session default.
func PoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg.MaxConns < 1 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be at least 1 (got %d)", cfg.MaxConns)
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (got %d, max %d)", cfg.MinConns, cfg.MaxConns)
	}

	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid database settings: %w", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	params := pc.ConnConfig.RuntimeParams
	params["timezone"] = "UTC"
	if cfg.ApplicationName != "" {
		params["application_name"] = cfg.ApplicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return pc, nil
}

// Close drains the pool, logging how busy it was over its lifetime.
func (db *DB) Close() {
	stat := db.Pool.Stat()
	db.logger.Info("closing postgres pool",
		slog.Int64("acquires", stat.AcquireCount()),
		slog.Int64("empty_acquires", stat.EmptyAcquireCount()),
		slog.Int64("canceled_acquires", stat.CanceledAcquireCount()),
		slog.Duration("acquire_wait", stat.AcquireDuration()),
	)
	db.Pool.Close()
}

// HealthCheck pings postgres, bounded by a short timeout so /health never
// hangs on a stuck pool.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}
