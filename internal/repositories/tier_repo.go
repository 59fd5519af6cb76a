package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/yoked/internal/database"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type TierRepository struct {
	db *database.DB
}

func NewTierRepository(db *database.DB) *TierRepository {
	return &TierRepository{db: db}
}

const tierColumns = `
	id, name, description, price, currency, recurring_interval, features, capabilities, usage_limits,
	is_active, is_hidden, is_trial_available, trial_period_days, billing_cycle, cancellation_policy,
	version, created_at, updated_at`

func scanTierRow(scanner rowScanner) (*models.SubscriptionTier, error) {
	var t models.SubscriptionTier

	err := scanner.Scan(
		&t.ID, &t.Name, &t.Description, &t.Price, &t.Currency, &t.RecurringInterval,
		&t.Features, &t.Capabilities, &t.Limits,
		&t.IsActive, &t.IsHidden, &t.IsTrialAvailable, &t.TrialPeriodDays, &t.BillingCycle, &t.CancellationPolicy,
		&t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if t.Features == nil {
		t.Features = []string{}
	}
	return &t, nil
}

func scanTierRows(rows pgx.Rows) ([]*models.SubscriptionTier, error) {
	defer rows.Close()

	tiers := make([]*models.SubscriptionTier, 0)
	for rows.Next() {
		t, err := scanTierRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tiers, nil
}

// List returns tiers ordered by price. Inactive and hidden tiers are only
// included when includeInactive is set.
func (r *TierRepository) List(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, error) {
	query := `SELECT` + tierColumns + `
		FROM subscription_tiers
		WHERE $1 OR (is_active AND NOT is_hidden)
		ORDER BY price ASC, name ASC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	return scanTierRows(rows)
}

func (r *TierRepository) GetByID(ctx context.Context, id string) (*models.SubscriptionTier, error) {
	query := `SELECT` + tierColumns + ` FROM subscription_tiers WHERE id = $1`
	return scanTierRow(r.db.Querier(ctx).QueryRow(ctx, query, id))
}

func (r *TierRepository) Create(ctx context.Context, t *models.SubscriptionTier) (*models.SubscriptionTier, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	query := `
		INSERT INTO subscription_tiers (
			id, name, description, price, currency, recurring_interval, features, capabilities, usage_limits,
			is_active, is_hidden, is_trial_available, trial_period_days, billing_cycle, cancellation_policy, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)
		RETURNING` + tierColumns

	return scanTierRow(r.db.Querier(ctx).QueryRow(ctx, query,
		t.ID, t.Name, t.Description, t.Price, t.Currency, t.RecurringInterval, t.Features, t.Capabilities, t.Limits,
		t.IsActive, t.IsHidden, t.IsTrialAvailable, t.TrialPeriodDays, t.BillingCycle, t.CancellationPolicy,
	))
}

// Update overwrites a tier and bumps its version. A non-nil expectedVersion
// makes the write conditional.
func (r *TierRepository) Update(ctx context.Context, t *models.SubscriptionTier, expectedVersion *int) (*models.SubscriptionTier, error) {
	query := `
		UPDATE subscription_tiers SET
			name = $2, description = $3, price = $4, currency = $5, recurring_interval = $6,
			features = $7, capabilities = $8, usage_limits = $9, is_active = $10, is_hidden = $11,
			is_trial_available = $12, trial_period_days = $13, billing_cycle = $14, cancellation_policy = $15,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND ($16::int IS NULL OR version = $16)
		RETURNING` + tierColumns

	updated, err := scanTierRow(r.db.Querier(ctx).QueryRow(ctx, query,
		t.ID, t.Name, t.Description, t.Price, t.Currency, t.RecurringInterval,
		t.Features, t.Capabilities, t.Limits, t.IsActive, t.IsHidden,
		t.IsTrialAvailable, t.TrialPeriodDays, t.BillingCycle, t.CancellationPolicy,
		expectedVersion,
	))
	if errors.Is(err, models.ErrNotFound) && expectedVersion != nil {
		if _, getErr := r.GetByID(ctx, t.ID); getErr == nil {
			return nil, models.ErrVersionMismatch
		}
	}
	return updated, err
}

func (r *TierRepository) Deactivate(ctx context.Context, id string) (*models.SubscriptionTier, error) {
	query := `
		UPDATE subscription_tiers SET is_active = FALSE, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING` + tierColumns
	return scanTierRow(r.db.Querier(ctx).QueryRow(ctx, query, id))
}

func (r *TierRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM subscription_tiers WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountReferences counts users on the tier's plan name plus subscription
// rows pointing at the tier.
func (r *TierRepository) CountReferences(ctx context.Context, id, name string) (int, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users WHERE subscription_plan = $2) +
			(SELECT COUNT(*) FROM user_subscriptions WHERE tier_id = $1)
	`
	var n int
	if err := r.db.Querier(ctx).QueryRow(ctx, query, id, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tier references: %w", err)
	}
	return n, nil
}

func (r *TierRepository) CatalogVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := r.db.Querier(ctx).QueryRow(ctx, `SELECT version FROM tier_catalog_state WHERE id = 1`).Scan(&v); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return v, nil
}

// BumpCatalogVersion increments the catalog version. Call it in the same
// transaction as the tier mutation.
func (r *TierRepository) BumpCatalogVersion(ctx context.Context) (int64, error) {
	var v int64
	query := `UPDATE tier_catalog_state SET version = version + 1, updated_at = NOW() WHERE id = 1 RETURNING version`
	if err := r.db.Querier(ctx).QueryRow(ctx, query).Scan(&v); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return v, nil
}
