package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim.
const (
	TokenTypeEmailVerification = "email_verification"
	TokenTypePasswordReset     = "password_reset"
)

type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type RegisterRequest struct {
	Username              string     `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email                 string     `json:"email" validate:"required,email,max=255"`
	Password              string     `json:"password" validate:"required,min=8,max=128"`
	FullName              string     `json:"full_name" validate:"max=255"`
	AcceptedTerms         bool       `json:"accepted_terms"`
	AcceptedPrivacyPolicy bool       `json:"accepted_privacy_policy"`
	Device                DeviceInfo `json:"device"`
}

type LoginRequest struct {
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"password" validate:"required"`
	Device   DeviceInfo `json:"device"`
}

// AuthResponse is returned by register and login. When MFARequired is set
// the session exists but is limited to the MFA verification routes.
type AuthResponse struct {
	User             *UserResponse    `json:"user"`
	Session          *SessionResponse `json:"session"`
	MFARequired      bool             `json:"mfa_required"`
	MFASetupRequired bool             `json:"mfa_setup_required,omitempty"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// PasswordConfirmRequest guards destructive account actions.
type PasswordConfirmRequest struct {
	Password string `json:"password" validate:"required"`
}

// Verification outcomes reported to the frontend redirect.
const (
	VerificationStatusSuccess         = "success"
	VerificationStatusAlreadyVerified = "already_verified"
	VerificationStatusExpired         = "expired"
	VerificationStatusInvalid         = "invalid"
	VerificationStatusError           = "error"
)
