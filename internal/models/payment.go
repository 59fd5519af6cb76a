package models

import (
	"time"
)

// PaymentStatus is the closed set of states a payment can be in.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentSucceeded, PaymentFailed, PaymentCancelled},
	PaymentSucceeded: {PaymentRefunded, PaymentCancelled, PaymentFailed},
	PaymentFailed:    {PaymentSucceeded},
	PaymentCancelled: {PaymentSucceeded},
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSucceeded, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed. The one
// exception is an abandoned checkout, see Payment.AbandonedCheckout.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentRefunded || s == PaymentCancelled
}

// CanTransitionTo reports whether s may move to next. Succeeded may fall back
// to failed only for a lapsed or failed renewal; failed may recover when the
// processor confirms payment late, and cancelled may too when it was an
// abandoned checkout.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentPlatform string

const (
	PlatformStripe PaymentPlatform = "stripe"
	PlatformGoogle PaymentPlatform = "google"
	PlatformApple  PaymentPlatform = "apple"
)

// Failure reasons recorded on payments moved to failed or cancelled by the
// system.
const (
	FailureCheckoutCancelled = "checkout_cancelled"
	FailureCheckoutExpired   = "checkout_expired"
	FailurePendingTimeout    = "pending_timeout"
	FailureRenewalLapsed     = "renewal_lapsed"
	FailureInvoiceFailed     = "invoice_payment_failed"
)

type Payment struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"user_id"`
	SubscriptionID        string          `json:"subscription_id"`
	Platform              PaymentPlatform `json:"platform"`
	Status                PaymentStatus   `json:"status"`
	ExternalID            string          `json:"external_id,omitempty"` // Stripe checkout session id
	StripePaymentIntentID string          `json:"stripe_payment_intent_id,omitempty"`
	Amount                int64           `json:"amount"`
	Currency              string          `json:"currency"`
	RenewalDate           *time.Time      `json:"renewal_date,omitempty"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// AbandonedCheckout reports whether the user walked away from the checkout
// before the processor reported on it. Such a payment still succeeds if the
// processor later confirms it was paid.
func (p *Payment) AbandonedCheckout() bool {
	return p.Status == PaymentCancelled && p.FailureReason == FailureCheckoutCancelled
}

// SubscriptionStatus is the lifecycle of a user's subscription to a tier.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// IsCurrent reports whether the subscription still grants its tier.
func (s SubscriptionStatus) IsCurrent() bool {
	return s == SubscriptionActive || s == SubscriptionPastDue
}

type UserSubscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"user_id"`
	TierID               string             `json:"tier_id"`
	Status               SubscriptionStatus `json:"status"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty"`
	StartDate            *time.Time         `json:"start_date,omitempty"`
	EndDate              *time.Time         `json:"end_date,omitempty"`
	RenewalDate          *time.Time         `json:"renewal_date,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// SubscriptionDetails joins a subscription with its tier for display.
type SubscriptionDetails struct {
	Subscription *UserSubscription `json:"subscription"`
	Tier         *SubscriptionTier `json:"tier"`
}

type CreatePaymentRequest struct {
	TierID   string          `json:"tier_id" validate:"required,uuid"`
	Platform PaymentPlatform `json:"platform" validate:"omitempty,oneof=stripe google apple"`
}

type CreatePaymentResponse struct {
	PaymentID string `json:"payment_id"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// VerifyPaymentRequest identifies a payment by id or by checkout session id.
type VerifyPaymentRequest struct {
	PaymentID string `json:"payment_id" validate:"required_without=SessionID,omitempty,uuid"`
	SessionID string `json:"session_id" validate:"required_without=PaymentID"`
}

type RefundRequest struct {
	PaymentID string `json:"payment_id" validate:"required,uuid"`
	UserID    string `json:"user_id" validate:"required,uuid"`
}

type PaymentHistoryResponse struct {
	Payments []*Payment `json:"payments"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}
