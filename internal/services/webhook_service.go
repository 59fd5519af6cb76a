package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/yoked/internal/models"
)

// WebhookEventRepository records processed event ids.
type WebhookEventRepository interface {
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WebhookParser verifies and decodes a processor webhook.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error)
}

// WebhookService applies processor webhooks exactly once. The event id is
// recorded in the same transaction as its effects, so a failed handler
// leaves the event unrecorded for redelivery.
type WebhookService struct {
	events   WebhookEventRepository
	tx       Transactor
	parser   WebhookParser
	payments *PaymentService
	logger   *slog.Logger
	now      func() time.Time
}

func NewWebhookService(events WebhookEventRepository, tx Transactor, parser WebhookParser, payments *PaymentService, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		events:   events,
		tx:       tx,
		parser:   parser,
		payments: payments,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle verifies payload against signature and applies the event.
// Signature failures wrap ErrInvalidSignature and malformed payloads wrap
// ErrBadRequest; any other error means the event should be retried.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.parser.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSignature) || errors.Is(err, models.ErrBadRequest) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	ctx, flush := s.payments.DeferEvents(ctx)

	duplicate := false
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		first, err := s.events.MarkProcessed(ctx, ev.ID, ev.Type)
		if err != nil {
			return err
		}
		if !first {
			duplicate = true
			return nil
		}
		return s.dispatch(ctx, ev)
	})
	flush(err == nil)

	if err != nil {
		s.logger.Error("failed to process webhook event",
			slog.String("event_id", ev.ID),
			slog.String("type", ev.Type),
			slog.Any("error", err))
		return err
	}
	if duplicate {
		s.logger.Info("duplicate webhook event ignored", slog.String("event_id", ev.ID), slog.String("type", ev.Type))
		return nil
	}

	s.logger.Info("webhook event processed", slog.String("event_id", ev.ID), slog.String("type", ev.Type))
	return nil
}

func (s *WebhookService) dispatch(ctx context.Context, ev *models.WebhookEvent) error {
	switch ev.Type {
	case models.EventCheckoutCompleted:
		return s.payments.HandleCheckoutCompleted(ctx, ev)
	case models.EventCheckoutExpired:
		return s.payments.HandleCheckoutExpired(ctx, ev)
	case models.EventInvoicePaid:
		return s.payments.HandleInvoicePaid(ctx, ev)
	case models.EventInvoiceFailed:
		return s.payments.HandleInvoiceFailed(ctx, ev)
	case models.EventSubscriptionUpdated:
		return s.payments.HandleSubscriptionUpdated(ctx, ev)
	case models.EventSubscriptionDeleted:
		return s.payments.HandleSubscriptionDeleted(ctx, ev)
	default:
		s.logger.Info("unhandled webhook event type", slog.String("type", ev.Type))
		return nil
	}
}

// PruneProcessed forgets event ids older than retention.
func (s *WebhookService) PruneProcessed(ctx context.Context, retention time.Duration) (int64, error) {
	return s.events.DeleteOlderThan(ctx, s.now().Add(-retention))
}
