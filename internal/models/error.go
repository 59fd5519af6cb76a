package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountInactive   = errors.New("account is inactive")
	ErrTermsNotAccepted  = errors.New("terms and privacy policy must be accepted")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrUsernameTaken     = errors.New("username already registered")
	ErrEmailTaken        = errors.New("email already registered")
	ErrVersionMismatch   = errors.New("resource was modified by another request")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionCreation = errors.New("session creation failed")

	// MFA errors
	ErrMFARequired       = errors.New("MFA verification required")
	ErrMFANotSetup       = errors.New("MFA is not set up")
	ErrMFAAlreadyEnabled = errors.New("MFA is already enabled")
	ErrInvalidMFACode    = errors.New("invalid MFA code")

	// Email verification errors
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrAlreadyVerified = errors.New("email already verified")
	ErrCooldownActive  = errors.New("please wait before requesting another email")

	// Billing errors
	ErrInvalidTransition   = errors.New("invalid payment status transition")
	ErrTierInUse           = errors.New("subscription tier is in use")
	ErrTierUnavailable     = errors.New("subscription tier is not available for purchase")
	ErrAlreadySubscribed   = errors.New("user already has an active subscription")
	ErrUnsupportedPlatform = errors.New("payment platform not supported")
	ErrPaymentProvider     = errors.New("payment provider error")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
)

// CooldownError reports how long a caller must wait before retrying.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s (%ds remaining)", ErrCooldownActive.Error(), int(e.RetryAfter.Seconds()+0.5))
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}
