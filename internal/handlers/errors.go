package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
)

// writeServiceError maps a service sentinel to its HTTP response. Anything
// unrecognised is a 500 without detail.
func writeServiceError(w http.ResponseWriter, err error) {
	var cooldown *models.CooldownError
	switch {
	case errors.As(err, &cooldown):
		pkghttp.WriteRetryAfter(w, cooldown.RetryAfter, models.ErrCooldownActive.Error())

	case errors.Is(err, models.ErrInvalidCredential),
		errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrSessionExpired),
		errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")

	case errors.Is(err, models.ErrAccountInactive):
		pkghttp.WriteForbidden(w, "Account is inactive")
	case errors.Is(err, models.ErrMFARequired):
		pkghttp.WriteForbidden(w, "MFA verification required")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")

	case errors.Is(err, models.ErrInvalidMFACode):
		pkghttp.WriteBadRequest(w, "Invalid MFA code")
	case errors.Is(err, models.ErrMFANotSetup):
		pkghttp.WriteBadRequest(w, "MFA is not set up")
	case errors.Is(err, models.ErrTermsNotAccepted),
		errors.Is(err, models.ErrUnsupportedPlatform),
		errors.Is(err, models.ErrAlreadySubscribed),
		errors.Is(err, models.ErrTierUnavailable),
		errors.Is(err, models.ErrAlreadyVerified),
		errors.Is(err, models.ErrInvalidToken),
		errors.Is(err, models.ErrTokenExpired),
		errors.Is(err, models.ErrInvalidSignature):
		pkghttp.WriteBadRequest(w, capitalise(sentinelMessage(err)))
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, capitalise(strings.TrimPrefix(err.Error(), models.ErrBadRequest.Error()+": ")))

	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")

	case errors.Is(err, models.ErrEmailTaken),
		errors.Is(err, models.ErrUsernameTaken),
		errors.Is(err, models.ErrVersionMismatch),
		errors.Is(err, models.ErrTierInUse),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrMFAAlreadyEnabled):
		pkghttp.WriteConflict(w, capitalise(sentinelMessage(err)))
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")

	case errors.Is(err, models.ErrPaymentProvider):
		pkghttp.WriteBadGateway(w, "Payment provider unavailable")

	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// sentinelMessage returns the message of the first known sentinel wrapped by
// err, so wrapped context never leaks into responses.
func sentinelMessage(err error) string {
	for _, s := range []error{
		models.ErrTermsNotAccepted, models.ErrUnsupportedPlatform, models.ErrAlreadySubscribed,
		models.ErrTierUnavailable, models.ErrAlreadyVerified, models.ErrInvalidToken,
		models.ErrTokenExpired, models.ErrInvalidSignature, models.ErrEmailTaken,
		models.ErrUsernameTaken, models.ErrVersionMismatch, models.ErrTierInUse,
		models.ErrInvalidTransition, models.ErrMFAAlreadyEnabled,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
