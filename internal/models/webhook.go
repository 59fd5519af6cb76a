package models

import "time"

// Stripe event types handled by the webhook endpoint.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventCheckoutExpired     = "checkout.session.expired"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// WebhookEvent is a verified processor event reduced to the fields the
// reconciliation logic needs.
type WebhookEvent struct {
	ID                   string
	Type                 string
	CheckoutSessionID    string
	PaymentStatus        string // checkout payment_status: paid, unpaid, no_payment_required
	PaymentIntentID      string
	StripeSubscriptionID string
	SubscriptionStatus   string // processor subscription status
	PeriodEnd            *time.Time
}

// CheckoutStatus is the processor's view of a checkout session.
type CheckoutStatus struct {
	SessionID            string
	Paid                 bool
	Expired              bool
	PaymentIntentID      string
	StripeSubscriptionID string
}
