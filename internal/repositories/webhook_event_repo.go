package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/yoked/internal/database"
)

// WebhookEventRepository records processed processor event ids so that
// redelivered events are applied once.
type WebhookEventRepository struct {
	db *database.DB
}

func NewWebhookEventRepository(db *database.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// MarkProcessed inserts the event id. It returns false when the id was
// already recorded. Run it in the same transaction as the event's effects.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `
		INSERT INTO processed_webhook_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WebhookEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM processed_webhook_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}
