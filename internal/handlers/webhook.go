package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
)

// MaxWebhookBody bounds a Stripe webhook payload.
const MaxWebhookBody = 64 << 10

// WebhookServiceInterface verifies and applies a processor event
type WebhookServiceInterface interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

// WebhookHandler receives Stripe webhooks. Stripe retries any non-2xx
// answer, so only failures worth retrying return 500.
type WebhookHandler struct {
	service WebhookServiceInterface
	logger  *slog.Logger
}

func NewWebhookHandler(service WebhookServiceInterface, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// Stripe handles POST /stripe/webhooks/
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Webhook payload too large")
			return
		}
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.service.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidSignature):
			h.logger.Warn("webhook signature rejected")
			pkghttp.WriteBadRequest(w, "Invalid signature")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Malformed event")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
