package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/yoked/internal/database"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository struct {
	db *database.DB
}

func NewSubscriptionRepository(db *database.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, user_id, tier_id, status, stripe_subscription_id, start_date, end_date, renewal_date, created_at, updated_at`

func scanSubscriptionRow(scanner rowScanner) (*models.UserSubscription, error) {
	var s models.UserSubscription
	var stripeID *string

	err := scanner.Scan(
		&s.ID, &s.UserID, &s.TierID, &s.Status, &stripeID,
		&s.StartDate, &s.EndDate, &s.RenewalDate, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	s.StripeSubscriptionID = deref(stripeID)
	return &s, nil
}

func scanSubscriptionRows(rows pgx.Rows) ([]*models.UserSubscription, error) {
	defer rows.Close()

	subs := make([]*models.UserSubscription, 0)
	for rows.Next() {
		s, err := scanSubscriptionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return subs, nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *models.UserSubscription) (*models.UserSubscription, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = models.SubscriptionPending
	}

	query := `
		INSERT INTO user_subscriptions (id, user_id, tier_id, status, stripe_subscription_id, start_date, end_date, renewal_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING` + subscriptionColumns

	return scanSubscriptionRow(r.db.Querier(ctx).QueryRow(ctx, query,
		s.ID, s.UserID, s.TierID, s.Status, nullable(s.StripeSubscriptionID), s.StartDate, s.EndDate, s.RenewalDate,
	))
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*models.UserSubscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM user_subscriptions WHERE id = $1`
	return scanSubscriptionRow(r.db.Querier(ctx).QueryRow(ctx, query, id))
}

func (r *SubscriptionRepository) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.UserSubscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM user_subscriptions WHERE stripe_subscription_id = $1`
	return scanSubscriptionRow(r.db.Querier(ctx).QueryRow(ctx, query, stripeSubscriptionID))
}

// GetCurrentForUser returns the newest active or past-due subscription.
func (r *SubscriptionRepository) GetCurrentForUser(ctx context.Context, userID string) (*models.UserSubscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM user_subscriptions
		WHERE user_id = $1 AND status IN ('active', 'past_due')
		ORDER BY created_at DESC
		LIMIT 1`
	return scanSubscriptionRow(r.db.Querier(ctx).QueryRow(ctx, query, userID))
}

func (r *SubscriptionRepository) ListCurrentForUser(ctx context.Context, userID string) ([]*models.UserSubscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM user_subscriptions
		WHERE user_id = $1 AND status IN ('active', 'past_due')
		ORDER BY created_at DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	return scanSubscriptionRows(rows)
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus) error {
	query := `
		UPDATE user_subscriptions SET
			status = $2,
			end_date = CASE WHEN $2 IN ('cancelled', 'expired') THEN COALESCE(end_date, NOW()) ELSE end_date END,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Activate marks the subscription active from start until renewal.
func (r *SubscriptionRepository) Activate(ctx context.Context, id, stripeSubscriptionID string, start, renewal time.Time) error {
	query := `
		UPDATE user_subscriptions SET
			status = 'active',
			stripe_subscription_id = COALESCE($2, stripe_subscription_id),
			start_date = COALESCE(start_date, $3),
			renewal_date = $4,
			end_date = NULL,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, id, nullable(stripeSubscriptionID), start, renewal)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
