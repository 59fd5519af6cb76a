package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/yoked/internal/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	minCheckoutWindow = 31 * time.Minute
	maxCheckoutWindow = 24 * time.Hour
)

// CheckoutRequest describes a subscription checkout for one tier.
type CheckoutRequest struct {
	UserID     string
	Email      string
	Tier       *models.SubscriptionTier
	SuccessURL string
	CancelURL  string
	ExpiresAt  time.Time
}

type CheckoutSession struct {
	ID  string
	URL string
}

// StripeGateway wraps the Stripe API calls used for subscriptions.
type StripeGateway struct {
	sc            *client.API
	webhookSecret string
	logger        *slog.Logger
	now           func() time.Time
}

func NewStripeGateway(secretKey, webhookSecret string, logger *slog.Logger) *StripeGateway {
	return &StripeGateway{
		sc:            client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		logger:        logger,
		now:           time.Now,
	}
}

func providerError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrPaymentProvider, op, err)
}

// buildCheckoutParams builds a subscription-mode checkout with an inline
// recurring price for the tier.
func buildCheckoutParams(req CheckoutRequest, now time.Time) *stripe.CheckoutSessionParams {
	tier := req.Tier

	expiresAt := req.ExpiresAt
	if expiresAt.Sub(now) < minCheckoutWindow {
		expiresAt = now.Add(minCheckoutWindow)
	}
	if expiresAt.Sub(now) > maxCheckoutWindow {
		expiresAt = now.Add(maxCheckoutWindow)
	}

	metadata := map[string]string{
		"tier_id": tier.ID,
		"user_id": req.UserID,
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(req.UserID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		Metadata:          metadata,
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(tier.Currency)),
					UnitAmount: stripe.Int64(tier.Price),
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(tier.RecurringInterval.StripeInterval()),
					},
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(tier.Name),
						Description: stripe.String(productDescription(tier)),
					},
				},
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	return params
}

func productDescription(t *models.SubscriptionTier) string {
	var parts []string
	if t.Description != "" {
		parts = append(parts, t.Description)
	}
	if len(t.Features) > 0 {
		parts = append(parts, "Features: "+strings.Join(t.Features, ", "))
	}
	if t.BillingCycle != "" {
		parts = append(parts, "Billing: "+t.BillingCycle)
	}
	if t.CancellationPolicy != "" {
		parts = append(parts, "Cancellation: "+t.CancellationPolicy)
	}
	if len(parts) == 0 {
		return t.Name
	}
	return strings.Join(parts, ". ")
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := buildCheckoutParams(req, g.now())
	params.Context = ctx

	cs, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		g.logger.Error("stripe checkout session creation failed",
			slog.String("tier_id", req.Tier.ID),
			slog.Any("error", err))
		return nil, providerError("create checkout session", err)
	}
	return &CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}

// GetCheckoutStatus fetches a checkout session with its invoice expanded so
// the payment intent of the first subscription charge can be resolved.
func (g *StripeGateway) GetCheckoutStatus(ctx context.Context, sessionID string) (*models.CheckoutStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("invoice")

	cs, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, providerError("get checkout session", err)
	}
	return checkoutStatus(cs), nil
}

func checkoutStatus(cs *stripe.CheckoutSession) *models.CheckoutStatus {
	status := &models.CheckoutStatus{
		SessionID: cs.ID,
		Paid:      cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Expired:   cs.Status == stripe.CheckoutSessionStatusExpired,
	}
	if cs.PaymentIntent != nil {
		status.PaymentIntentID = cs.PaymentIntent.ID
	} else if cs.Invoice != nil && cs.Invoice.PaymentIntent != nil {
		status.PaymentIntentID = cs.Invoice.PaymentIntent.ID
	}
	if cs.Subscription != nil {
		status.StripeSubscriptionID = cs.Subscription.ID
	}
	return status
}

func (g *StripeGateway) PaymentIntentSucceeded(ctx context.Context, paymentIntentID string) (bool, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.sc.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return false, providerError("get payment intent", err)
	}
	return pi.Status == stripe.PaymentIntentStatusSucceeded, nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx

	if _, err := g.sc.Refunds.New(params); err != nil {
		return providerError("create refund", err)
	}
	return nil
}

// CancelSubscription cancels a Stripe subscription immediately. A
// subscription Stripe no longer knows about counts as cancelled.
func (g *StripeGateway) CancelSubscription(ctx context.Context, stripeSubscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := g.sc.Subscriptions.Cancel(stripeSubscriptionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			g.logger.Warn("stripe subscription already gone", slog.String("stripe_subscription_id", stripeSubscriptionID))
			return nil
		}
		return providerError("cancel subscription", err)
	}
	return nil
}

// ParseWebhook verifies the Stripe-Signature header and reduces the event to
// a models.WebhookEvent.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	}
	return normalizeEvent(event)
}

func normalizeEvent(event stripe.Event) (*models.WebhookEvent, error) {
	out := &models.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch {
	case strings.HasPrefix(out.Type, "checkout.session."):
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: checkout session payload: %v", models.ErrBadRequest, err)
		}
		out.CheckoutSessionID = cs.ID
		out.PaymentStatus = string(cs.PaymentStatus)
		if cs.PaymentIntent != nil {
			out.PaymentIntentID = cs.PaymentIntent.ID
		}
		if cs.Subscription != nil {
			out.StripeSubscriptionID = cs.Subscription.ID
		}

	case strings.HasPrefix(out.Type, "invoice."):
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: invoice payload: %v", models.ErrBadRequest, err)
		}
		if inv.Subscription != nil {
			out.StripeSubscriptionID = inv.Subscription.ID
		}
		if inv.PaymentIntent != nil {
			out.PaymentIntentID = inv.PaymentIntent.ID
		}
		if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil && inv.Lines.Data[0].Period.End > 0 {
			end := time.Unix(inv.Lines.Data[0].Period.End, 0).UTC()
			out.PeriodEnd = &end
		}

	case strings.HasPrefix(out.Type, "customer.subscription."):
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription payload: %v", models.ErrBadRequest, err)
		}
		out.StripeSubscriptionID = sub.ID
		out.SubscriptionStatus = string(sub.Status)
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			out.PeriodEnd = &end
		}
	}

	return out, nil
}
