package models

import (
	"time"
)

type RecurringInterval string

const (
	IntervalDaily   RecurringInterval = "daily"
	IntervalWeekly  RecurringInterval = "weekly"
	IntervalMonthly RecurringInterval = "monthly"
	IntervalYearly  RecurringInterval = "yearly"
)

// StripeInterval maps to Stripe's recurring interval names.
func (i RecurringInterval) StripeInterval() string {
	switch i {
	case IntervalDaily:
		return "day"
	case IntervalWeekly:
		return "week"
	case IntervalYearly:
		return "year"
	default:
		return "month"
	}
}

// NextRenewal returns the renewal date one interval after from.
func (i RecurringInterval) NextRenewal(from time.Time) time.Time {
	switch i {
	case IntervalDaily:
		return from.AddDate(0, 0, 1)
	case IntervalWeekly:
		return from.AddDate(0, 0, 7)
	case IntervalYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// TierCapabilities are the feature flags a tier grants.
type TierCapabilities struct {
	HasAds                     bool `json:"has_ads"`
	AccessReels                bool `json:"access_reels"`
	ReelsAdFree                bool `json:"reels_ad_free"`
	AccessWorkouts             bool `json:"access_workouts"`
	WorkoutFilters             bool `json:"workout_filters"`
	AccessCommunityRead        bool `json:"access_community_read"`
	AccessCommunityPost        bool `json:"access_community_post"`
	PrivateCommunityChallenges bool `json:"private_community_challenges"`
	AccessNutrition            bool `json:"access_nutrition"`
	CalorieTracking            bool `json:"calorie_tracking"`
	PersonalizedNutrition      bool `json:"personalized_nutrition"`
	DirectMessaging            bool `json:"direct_messaging"`
	BasicProgressTracking      bool `json:"basic_progress_tracking"`
	EnhancedProgressTracking   bool `json:"enhanced_progress_tracking"`
	AccessLiveClasses          bool `json:"access_live_classes"`
	OneOnOneCoaching           bool `json:"one_on_one_coaching"`
	PrioritySupport            bool `json:"priority_support"`
}

// TierLimits are usage caps. Nil means unlimited.
type TierLimits struct {
	MaxReelUploads    *int `json:"max_reel_uploads,omitempty" validate:"omitempty,min=0"`
	MaxSavedWorkouts  *int `json:"max_saved_workouts,omitempty" validate:"omitempty,min=0"`
	MaxMessagesPerDay *int `json:"max_messages_per_day,omitempty" validate:"omitempty,min=0"`
}

type SubscriptionTier struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Price              int64             `json:"price"` // minor currency units
	Currency           string            `json:"currency"`
	RecurringInterval  RecurringInterval `json:"recurring_interval"`
	Features           []string          `json:"features"`
	Capabilities       TierCapabilities  `json:"capabilities"`
	Limits             TierLimits        `json:"usage_limits"`
	IsActive           bool              `json:"is_active"`
	IsHidden           bool              `json:"is_hidden"`
	IsTrialAvailable   bool              `json:"is_trial_available"`
	TrialPeriodDays    int               `json:"trial_period_days"`
	BillingCycle       string            `json:"billing_cycle"`
	CancellationPolicy string            `json:"cancellation_policy"`
	Version            int               `json:"version"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Purchasable reports whether a checkout may be opened for the tier.
func (t *SubscriptionTier) Purchasable() bool {
	return t.IsActive && t.Price > 0
}

type TierRequest struct {
	Name               string            `json:"name" validate:"required,min=1,max=100"`
	Description        string            `json:"description" validate:"max=2000"`
	Price              int64             `json:"price" validate:"min=0"`
	Currency           string            `json:"currency" validate:"required,len=3,lowercase"`
	RecurringInterval  RecurringInterval `json:"recurring_interval" validate:"required,oneof=daily weekly monthly yearly"`
	Features           []string          `json:"features" validate:"max=50,dive,max=200"`
	Capabilities       TierCapabilities  `json:"capabilities"`
	Limits             TierLimits        `json:"usage_limits"`
	IsActive           *bool             `json:"is_active"`
	IsHidden           bool              `json:"is_hidden"`
	IsTrialAvailable   bool              `json:"is_trial_available"`
	TrialPeriodDays    int               `json:"trial_period_days" validate:"min=0,max=365"`
	BillingCycle       string            `json:"billing_cycle" validate:"max=100"`
	CancellationPolicy string            `json:"cancellation_policy" validate:"max=2000"`
	ExpectedVersion    *int              `json:"expected_version,omitempty" validate:"omitempty,min=1"`
}

// Apply copies the request onto t. Version and timestamps are left alone.
func (r *TierRequest) Apply(t *SubscriptionTier) {
	t.Name = r.Name
	t.Description = r.Description
	t.Price = r.Price
	t.Currency = r.Currency
	t.RecurringInterval = r.RecurringInterval
	t.Features = r.Features
	if t.Features == nil {
		t.Features = []string{}
	}
	t.Capabilities = r.Capabilities
	t.Limits = r.Limits
	t.IsActive = true
	if r.IsActive != nil {
		t.IsActive = *r.IsActive
	}
	t.IsHidden = r.IsHidden
	t.IsTrialAvailable = r.IsTrialAvailable
	t.TrialPeriodDays = r.TrialPeriodDays
	t.BillingCycle = r.BillingCycle
	t.CancellationPolicy = r.CancellationPolicy
}

type CatalogVersionResponse struct {
	Version int64 `json:"version"`
}
