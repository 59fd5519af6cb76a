package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{PaymentPending, PaymentSucceeded, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentPending, PaymentCancelled, true},
		{PaymentPending, PaymentRefunded, false},
		{PaymentSucceeded, PaymentRefunded, true},
		{PaymentSucceeded, PaymentCancelled, true},
		{PaymentSucceeded, PaymentFailed, true},
		{PaymentSucceeded, PaymentPending, false},
		{PaymentFailed, PaymentSucceeded, true},
		{PaymentFailed, PaymentRefunded, false},
		{PaymentRefunded, PaymentSucceeded, false},
		{PaymentRefunded, PaymentFailed, false},
		{PaymentCancelled, PaymentSucceeded, true},
		{PaymentCancelled, PaymentFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPaymentStatus_Terminal(t *testing.T) {
	assert.True(t, PaymentRefunded.IsTerminal())
	assert.True(t, PaymentCancelled.IsTerminal())
	assert.False(t, PaymentSucceeded.IsTerminal())
	assert.False(t, PaymentStatus("paid").Valid())
}

func TestPayment_AbandonedCheckout(t *testing.T) {
	abandoned := &Payment{Status: PaymentCancelled, FailureReason: FailureCheckoutCancelled}
	assert.True(t, abandoned.AbandonedCheckout())

	cancelledSub := &Payment{Status: PaymentCancelled, FailureReason: "subscription_cancelled"}
	assert.False(t, cancelledSub.AbandonedCheckout())

	pending := &Payment{Status: PaymentPending}
	assert.False(t, pending.AbandonedCheckout())
}

func TestSetupStep_Advance_IsForwardOnly(t *testing.T) {
	step := SetupStepEmailVerification

	step = step.Advance(SetupStepProfileCompletion)
	assert.Equal(t, SetupStepProfileCompletion, step)

	step = step.Advance(SetupStepCompleted)
	assert.Equal(t, SetupStepCompleted, step)

	step = step.Advance(SetupStepProfileCompletion)
	assert.Equal(t, SetupStepCompleted, step, "a completed user never moves back")
}

func TestRecurringInterval_Mapping(t *testing.T) {
	from := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "month", IntervalMonthly.StripeInterval())
	assert.Equal(t, "year", IntervalYearly.StripeInterval())
	assert.Equal(t, "week", IntervalWeekly.StripeInterval())
	assert.Equal(t, "day", IntervalDaily.StripeInterval())

	assert.Equal(t, from.AddDate(0, 0, 1), IntervalDaily.NextRenewal(from))
	assert.Equal(t, from.AddDate(0, 0, 7), IntervalWeekly.NextRenewal(from))
	assert.Equal(t, from.AddDate(0, 1, 0), IntervalMonthly.NextRenewal(from))
	assert.Equal(t, from.AddDate(1, 0, 0), IntervalYearly.NextRenewal(from))
}

func TestSessionIsExpired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now}

	assert.True(t, s.IsExpired(now), "expiry instant itself is expired")
	assert.False(t, s.IsExpired(now.Add(-time.Second)))
}

func TestDecodeSettings_RejectsUnknownKeys(t *testing.T) {
	_, err := DecodeSettings(FeaturePrivacy, strings.NewReader(`{"profile_visibility":"private","shoe_size":11}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadRequest))
}

func TestDecodeSettings_OverlaysDefaults(t *testing.T) {
	doc, err := DecodeSettings(FeatureWorkout, strings.NewReader(`{"weekly_goal_days":5}`))
	require.NoError(t, err)

	ws, ok := doc.(*WorkoutSettings)
	require.True(t, ok)
	assert.Equal(t, 5, ws.WeeklyGoalDays)
	assert.Equal(t, "metric", ws.Units)
}

func TestDecodeSettings_UnknownFeature(t *testing.T) {
	_, err := DecodeSettings(SettingsFeature("telepathy"), strings.NewReader(`{}`))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCooldownError_UnwrapsSentinel(t *testing.T) {
	err := error(&CooldownError{RetryAfter: 12 * time.Second})
	assert.True(t, errors.Is(err, ErrCooldownActive))
	assert.Contains(t, err.Error(), "12s")
}
