package models

import "time"

type BillingEventType string

const (
	BillingPaymentSucceeded      BillingEventType = "payment.succeeded"
	BillingPaymentFailed         BillingEventType = "payment.failed"
	BillingPaymentRefunded       BillingEventType = "payment.refunded"
	BillingSubscriptionCancelled BillingEventType = "subscription.cancelled"
)

// BillingEvent is published after a billing state change is committed.
type BillingEvent struct {
	Type       BillingEventType `json:"type"`
	UserID     string           `json:"user_id"`
	Email      string           `json:"email"`
	PaymentID  string           `json:"payment_id,omitempty"`
	TierName   string           `json:"tier_name,omitempty"`
	Amount     int64            `json:"amount,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
