package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/yoked/internal/database"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PaymentRepository struct {
	db *database.DB
}

func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, user_id, subscription_id, platform, status, external_id, stripe_payment_intent_id,
	amount, currency, renewal_date, failure_reason, created_at, updated_at`

func scanPaymentRow(scanner rowScanner) (*models.Payment, error) {
	var p models.Payment
	var externalID, intentID, reason *string

	err := scanner.Scan(
		&p.ID, &p.UserID, &p.SubscriptionID, &p.Platform, &p.Status, &externalID, &intentID,
		&p.Amount, &p.Currency, &p.RenewalDate, &reason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	p.ExternalID = deref(externalID)
	p.StripePaymentIntentID = deref(intentID)
	p.FailureReason = deref(reason)
	return &p, nil
}

func scanPaymentRows(rows pgx.Rows) ([]*models.Payment, error) {
	defer rows.Close()

	payments := make([]*models.Payment, 0)
	for rows.Next() {
		p, err := scanPaymentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = models.PaymentPending
	}

	query := `
		INSERT INTO payments (id, user_id, subscription_id, platform, status, external_id, stripe_payment_intent_id, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING` + paymentColumns

	return scanPaymentRow(r.db.Querier(ctx).QueryRow(ctx, query,
		p.ID, p.UserID, p.SubscriptionID, p.Platform, p.Status,
		nullable(p.ExternalID), nullable(p.StripePaymentIntentID), p.Amount, p.Currency,
	))
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPaymentRow(r.db.Querier(ctx).QueryRow(ctx, query, id))
}

func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE external_id = $1`
	return scanPaymentRow(r.db.Querier(ctx).QueryRow(ctx, query, externalID))
}

// GetLatestForSubscription returns the newest payment of a subscription,
// optionally restricted to one status.
func (r *PaymentRepository) GetLatestForSubscription(ctx context.Context, subscriptionID string, status *models.PaymentStatus) (*models.Payment, error) {
	query := `SELECT` + paymentColumns + `
		FROM payments
		WHERE subscription_id = $1 AND ($2::varchar IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT 1`
	return scanPaymentRow(r.db.Querier(ctx).QueryRow(ctx, query, subscriptionID, status))
}

// UpdateStatus moves a payment from one status to another. The write only
// lands if the row is still in from, so concurrent or out-of-order updates
// cannot regress it; a lost race returns ErrInvalidTransition.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, from, to models.PaymentStatus, reason string) (*models.Payment, error) {
	if !from.CanTransitionTo(to) {
		return nil, models.ErrInvalidTransition
	}

	query := `
		UPDATE payments SET status = $3, failure_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING` + paymentColumns

	p, err := scanPaymentRow(r.db.Querier(ctx).QueryRow(ctx, query, id, from, to, nullable(reason)))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidTransition
	}
	return p, err
}

// MarkSucceeded moves a pending, failed or abandoned payment to succeeded
// with its renewal date and payment intent.
func (r *PaymentRepository) MarkSucceeded(ctx context.Context, id string, from models.PaymentStatus, intentID string, renewal time.Time) (*models.Payment, error) {
	if !from.CanTransitionTo(models.PaymentSucceeded) {
		return nil, models.ErrInvalidTransition
	}

	query := `
		UPDATE payments SET
			status = 'succeeded',
			stripe_payment_intent_id = COALESCE($3, stripe_payment_intent_id),
			renewal_date = $4,
			failure_reason = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
			AND (status <> 'cancelled' OR failure_reason = 'checkout_cancelled')
		RETURNING` + paymentColumns

	p, err := scanPaymentRow(r.db.Querier(ctx).QueryRow(ctx, query, id, from, nullable(intentID), renewal))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidTransition
	}
	return p, err
}

// ExtendRenewal moves the renewal date of a succeeded payment.
func (r *PaymentRepository) ExtendRenewal(ctx context.Context, id string, renewal time.Time) error {
	query := `UPDATE payments SET renewal_date = $2, updated_at = NOW() WHERE id = $1 AND status = 'succeeded'`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, id, renewal)
	if err != nil {
		return fmt.Errorf("failed to extend renewal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

func (r *PaymentRepository) SetPaymentIntent(ctx context.Context, id, intentID string) error {
	_, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE payments SET stripe_payment_intent_id = $2, updated_at = NOW() WHERE id = $1`, id, intentID)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}
	return nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, int, error) {
	var total int
	if err := r.db.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	query := `SELECT` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Querier(ctx).Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query payments: %w", err)
	}
	payments, err := scanPaymentRows(rows)
	return payments, total, err
}

func (r *PaymentRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Payment, int, error) {
	var total int
	if err := r.db.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	query := `SELECT` + paymentColumns + ` FROM payments ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Querier(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query payments: %w", err)
	}
	payments, err := scanPaymentRows(rows)
	return payments, total, err
}

// ListPending returns pending payments created before cutoff, oldest first.
// An empty platform matches all platforms.
func (r *PaymentRepository) ListPending(ctx context.Context, platform models.PaymentPlatform, cutoff time.Time, limit int) ([]*models.Payment, error) {
	query := `SELECT` + paymentColumns + `
		FROM payments
		WHERE status = 'pending' AND created_at < $1 AND ($2::varchar = '' OR platform = $2)
		ORDER BY created_at ASC
		LIMIT $3`

	rows, err := r.db.Querier(ctx).Query(ctx, query, cutoff, string(platform), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payments: %w", err)
	}
	return scanPaymentRows(rows)
}

// ListLapsed returns succeeded payments whose renewal date has passed.
func (r *PaymentRepository) ListLapsed(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error) {
	query := `SELECT` + paymentColumns + `
		FROM payments
		WHERE status = 'succeeded' AND renewal_date IS NOT NULL AND renewal_date < $1
		ORDER BY renewal_date ASC
		LIMIT $2`

	rows, err := r.db.Querier(ctx).Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lapsed payments: %w", err)
	}
	return scanPaymentRows(rows)
}
