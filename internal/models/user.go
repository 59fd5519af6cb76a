package models

import (
	"time"
)

type UserType string

const (
	UserTypeRegular UserType = "regular"
	UserTypeAdmin   UserType = "admin"
)

// SetupStep is the onboarding position of a user. Steps only move forward.
type SetupStep string

const (
	SetupStepEmailVerification     SetupStep = "email_verification"
	SetupStepProfileCompletion     SetupStep = "profile_completion"
	SetupStepSubscriptionSelection SetupStep = "subscription_selection"
	SetupStepCompleted             SetupStep = "completed"
)

var setupStepOrder = map[SetupStep]int{
	SetupStepEmailVerification:     0,
	SetupStepProfileCompletion:     1,
	SetupStepSubscriptionSelection: 2,
	SetupStepCompleted:             3,
}

// Advance returns the later of s and next. Unknown steps are treated as the
// first step.
func (s SetupStep) Advance(next SetupStep) SetupStep {
	if setupStepOrder[next] > setupStepOrder[s] {
		return next
	}
	return s
}

func (s SetupStep) Valid() bool {
	_, ok := setupStepOrder[s]
	return ok
}

// FreePlan is the plan name of users without a paid subscription.
const FreePlan = "Free"

type User struct {
	ID                      string
	Username                string
	Email                   string
	PasswordHash            string
	FullName                string
	Bio                     string
	FitnessGoals            string
	ProfilePicture          string
	IsActive                bool
	IsVerified              bool
	UserType                UserType
	AdminSecretKey          string // SHA-256 fingerprint of the secret presented at admin creation
	FlaggedForReview        bool
	SetupStep               SetupStep
	SubscriptionPlan        string
	ProfileVersion          int
	MFASecretEncrypted      []byte // AES-256-GCM encrypted TOTP secret
	MFASecretNonce          []byte
	MFAEnabled              bool
	MFABackupCodes          []string // hashes only
	AcceptedTerms           bool
	AcceptedPrivacyPolicy   bool
	AcceptedTermsAt         *time.Time
	AcceptedPrivacyPolicyAt *time.Time
	VerificationSentAt      *time.Time
	JoinedAt                time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (u *User) IsAdmin() bool {
	return u.UserType == UserTypeAdmin
}

// HasMFASecret reports whether a TOTP secret is stored, enabled or not.
func (u *User) HasMFASecret() bool {
	return len(u.MFASecretEncrypted) > 0
}

// UserResponse is the public representation of a user.
type UserResponse struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name,omitempty"`
	Bio              string    `json:"bio,omitempty"`
	FitnessGoals     string    `json:"fitness_goals,omitempty"`
	ProfilePicture   string    `json:"profile_picture,omitempty"`
	IsActive         bool      `json:"is_active"`
	IsVerified       bool      `json:"is_verified"`
	UserType         UserType  `json:"user_type"`
	FlaggedForReview bool      `json:"flagged_for_review"`
	SetupStep        SetupStep `json:"setup_step"`
	SubscriptionPlan string    `json:"subscription_plan"`
	ProfileVersion   int       `json:"profile_version"`
	MFAEnabled       bool      `json:"mfa_enabled"`
	JoinedAt         time.Time `json:"joined_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		FullName:         u.FullName,
		Bio:              u.Bio,
		FitnessGoals:     u.FitnessGoals,
		ProfilePicture:   u.ProfilePicture,
		IsActive:         u.IsActive,
		IsVerified:       u.IsVerified,
		UserType:         u.UserType,
		FlaggedForReview: u.FlaggedForReview,
		SetupStep:        u.SetupStep,
		SubscriptionPlan: u.SubscriptionPlan,
		ProfileVersion:   u.ProfileVersion,
		MFAEnabled:       u.MFAEnabled,
		JoinedAt:         u.JoinedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// UpdateProfileRequest replaces the editable profile fields. ExpectedVersion,
// when set, makes the write conditional on the current profile_version.
type UpdateProfileRequest struct {
	FullName        string `json:"full_name" validate:"max=255"`
	Username        string `json:"username" validate:"omitempty,min=3,max=50,alphanum"`
	Bio             string `json:"bio" validate:"max=1000"`
	FitnessGoals    string `json:"fitness_goals" validate:"max=1000"`
	ExpectedVersion *int   `json:"expected_version,omitempty" validate:"omitempty,min=1"`
}

// ProfileVersionResponse lets clients poll for profile changes cheaply.
type ProfileVersionResponse struct {
	ProfileVersion int `json:"profile_version"`
}

type ListUsersResponse struct {
	Users []*UserResponse `json:"users"`
	Total int             `json:"total"`
}
