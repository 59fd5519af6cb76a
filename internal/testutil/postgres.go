//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BradenHooton/yoked/internal/database"
	"github.com/BradenHooton/yoked/internal/models"
	pkgauth "github.com/BradenHooton/yoked/pkg/auth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB manages a PostgreSQL testcontainer with the schema migrated.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	DB        *database.DB
}

// SetupTestDatabase starts PostgreSQL in a container and applies the
// embedded migrations.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("yoked"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	err = database.Migrate(ctx, sqlDB, "up")
	_ = sqlDB.Close()
	if err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &TestDB{
		Container: container,
		Pool:      pool,
		DB:        database.NewDB(pool, logger),
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation and resets the tier
// catalog version.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"payments",
		"user_subscriptions",
		"user_settings",
		"processed_webhook_events",
		"sessions",
		"subscription_tiers",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	if _, err := db.Pool.Exec(ctx, `UPDATE tier_catalog_state SET version = 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to reset catalog version: %w", err)
	}
	return nil
}

// SeedUser inserts a verified regular user with a hashed password.
func SeedUser(ctx context.Context, db *TestDB, username, password string) (*models.User, error) {
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	var user models.User
	query := `
		INSERT INTO users (id, username, email, password_hash, is_active, is_verified, user_type,
			setup_step, subscription_plan, accepted_terms, accepted_privacy_policy,
			accepted_terms_at, accepted_privacy_policy_at)
		VALUES ($1, $2, $3, $4, TRUE, TRUE, 'regular', 'completed', 'Free', TRUE, TRUE, $5, $5)
		RETURNING id, username, email, password_hash
	`
	err = db.Pool.QueryRow(ctx, query, uuid.New().String(), username, username+"@example.com", hash, now).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &user, nil
}

// SeedTier inserts an active monthly tier.
func SeedTier(ctx context.Context, db *TestDB, name string, price int64) (*models.SubscriptionTier, error) {
	tier := &models.SubscriptionTier{ID: uuid.New().String(), Name: name, Price: price}
	query := `
		INSERT INTO subscription_tiers (id, name, price, currency, recurring_interval)
		VALUES ($1, $2, $3, 'usd', 'monthly')
	`
	if _, err := db.Pool.Exec(ctx, query, tier.ID, name, price); err != nil {
		return nil, fmt.Errorf("failed to insert tier: %w", err)
	}
	return tier, nil
}
