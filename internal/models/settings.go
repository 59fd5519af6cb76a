package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// SettingsFeature names one typed settings document per user.
type SettingsFeature string

const (
	FeatureNotifications SettingsFeature = "notifications"
	FeaturePrivacy       SettingsFeature = "privacy"
	FeatureReels         SettingsFeature = "reels"
	FeatureCommunity     SettingsFeature = "community"
	FeatureNutrition     SettingsFeature = "nutrition"
	FeatureWorkout       SettingsFeature = "workout"
)

type NotificationSettings struct {
	EmailNotifications bool `json:"email_notifications"`
	PushNotifications  bool `json:"push_notifications"`
	WorkoutReminders   bool `json:"workout_reminders"`
	CommunityActivity  bool `json:"community_activity"`
	BillingAlerts      bool `json:"billing_alerts"`
}

type PrivacySettings struct {
	ProfileVisibility  string `json:"profile_visibility" validate:"oneof=public followers private"`
	ReelsVisibility    string `json:"reels_visibility" validate:"oneof=public followers private"`
	CommentsVisibility string `json:"comments_visibility" validate:"oneof=everyone followers nobody"`
}

type ReelsSettings struct {
	Visibility     string `json:"visibility" validate:"oneof=public followers private"`
	AllowComments  bool   `json:"allow_comments"`
	AutoModeration bool   `json:"auto_moderation"`
}

type CommunitySettings struct {
	PostVisibility     string `json:"post_visibility" validate:"oneof=public followers private"`
	HideFlaggedContent bool   `json:"hide_flagged_content"`
	AllowMentions      bool   `json:"allow_mentions"`
}

type NutritionSettings struct {
	DietaryPreference string   `json:"dietary_preference" validate:"max=50"`
	Allergies         []string `json:"allergies" validate:"max=20,dive,max=50"`
	DailyCalorieGoal  int      `json:"daily_calorie_goal" validate:"min=0,max=20000"`
	CalorieTracking   bool     `json:"calorie_tracking"`
}

type WorkoutSettings struct {
	ActivityLevel    string `json:"activity_level" validate:"oneof=sedentary light moderate active athlete"`
	WeeklyGoalDays   int    `json:"weekly_goal_days" validate:"min=0,max=7"`
	ProgressTracking bool   `json:"progress_tracking"`
	Units            string `json:"units" validate:"oneof=metric imperial"`
}

// DefaultSettings returns the document a user has before saving any
// settings for feature.
func DefaultSettings(feature SettingsFeature) (any, error) {
	switch feature {
	case FeatureNotifications:
		return &NotificationSettings{EmailNotifications: true, PushNotifications: true, BillingAlerts: true}, nil
	case FeaturePrivacy:
		return &PrivacySettings{ProfileVisibility: "public", ReelsVisibility: "public", CommentsVisibility: "everyone"}, nil
	case FeatureReels:
		return &ReelsSettings{Visibility: "public", AllowComments: true}, nil
	case FeatureCommunity:
		return &CommunitySettings{PostVisibility: "public", HideFlaggedContent: true, AllowMentions: true}, nil
	case FeatureNutrition:
		return &NutritionSettings{Allergies: []string{}}, nil
	case FeatureWorkout:
		return &WorkoutSettings{ActivityLevel: "moderate", WeeklyGoalDays: 3, ProgressTracking: true, Units: "metric"}, nil
	}
	return nil, fmt.Errorf("%w: unknown settings feature %q", ErrNotFound, feature)
}

// DecodeSettings parses a settings document for feature on top of its
// defaults. Unknown keys are rejected.
func DecodeSettings(feature SettingsFeature, r io.Reader) (any, error) {
	doc, err := DefaultSettings(feature)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return doc, nil
}

// DecodeStoredSettings parses a persisted document. Stored data was
// validated on write, so unknown keys from older schemas are ignored.
func DecodeStoredSettings(feature SettingsFeature, raw []byte) (any, error) {
	doc, err := DefaultSettings(feature)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode stored %s settings: %w", feature, err)
	}
	return doc, nil
}
