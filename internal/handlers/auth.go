package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	AdminLogin(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, userID string, isMobile *bool) (int64, error)
	RequestPasswordReset(ctx context.Context, email string)
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, user *models.User, session *models.Session, req models.ChangePasswordRequest) error
}

// EmailVerificationServiceInterface defines the interface for email verification
type EmailVerificationServiceInterface interface {
	VerifyEmail(ctx context.Context, token string) string
	ResendVerification(ctx context.Context, email string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service      AuthServiceInterface
	verification EmailVerificationServiceInterface
	ipConfig     *pkghttp.IPConfig
	frontendURL  string
	logger       *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, verification EmailVerificationServiceInterface, ipConfig *pkghttp.IPConfig, frontendURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:      service,
		verification: verification,
		ipConfig:     ipConfig,
		frontendURL:  strings.TrimRight(frontendURL, "/"),
		logger:       logger,
	}
}

// LogoutAllResponse reports how many sessions were ended.
type LogoutAllResponse struct {
	SessionsRevoked int64 `json:"sessions_revoked"`
}

// withClientIP fills the device address from the connection; clients never
// choose it.
func (h *AuthHandler) withClientIP(r *http.Request, d models.DeviceInfo) models.DeviceInfo {
	d.IPAddress = pkghttp.ExtractClientIP(r, h.ipConfig)
	return d
}

// Register handles user registration
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}
	req.Device = h.withClientIP(r, req.Device)

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// Login handles user login
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.service.Login)
}

// AdminLogin handles admin login. The response says whether the admin must
// enrol or verify MFA before reaching admin routes.
// @Router /api/admin/login [post]
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.service.AdminLogin)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.LoginRequest) (*models.AuthResponse, error)) {
	var req models.LoginRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Device = h.withClientIP(r, req.Device)

	resp, err := fn(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredential):
			// Same message for unknown email and wrong password
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
		default:
			writeServiceError(w, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Logout ends the current session
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), session.Token); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll ends every session of the current user. ?device=mobile or
// ?device=web limits it to one device class.
// @Router /api/auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	isMobile, ok := deviceFilter(r)
	if !ok {
		pkghttp.WriteBadRequest(w, "device must be mobile or web")
		return
	}

	n, err := h.service.LogoutAll(r.Context(), user.ID, isMobile)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LogoutAllResponse{SessionsRevoked: n})
}

func deviceFilter(r *http.Request) (*bool, bool) {
	switch r.URL.Query().Get("device") {
	case "":
		return nil, true
	case "mobile":
		v := true
		return &v, true
	case "web":
		v := false
		return &v, true
	}
	return nil, false
}

// VerifyEmail consumes a verification link and redirects to the frontend
// with the outcome.
// @Router /api/auth/verify-email [get]
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	status := models.VerificationStatusInvalid
	if token := r.URL.Query().Get("token"); token != "" {
		status = h.verification.VerifyEmail(r.Context(), token)
	}

	target := h.frontendURL + "/verify-email?status=" + url.QueryEscape(status)
	http.Redirect(w, r, target, http.StatusFound)
}

// ResendVerification handles resending of verification email
// @Router /api/auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req models.ResendVerificationRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	if err := h.verification.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists with this email, a verification email will be sent.",
	})
}

// RequestPasswordReset always answers 202 so callers cannot probe for
// registered addresses.
// @Router /api/auth/reset-password/request [post]
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordResetRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	h.service.RequestPasswordReset(r.Context(), req.Email)

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists with this email, a password reset link will be sent.",
	})
}

// ConfirmPasswordReset sets a new password from a reset token
// @Router /api/auth/reset-password [post]
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordResetConfirmRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	if err := h.service.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidToken), errors.Is(err, models.ErrTokenExpired), errors.Is(err, models.ErrNotFound):
			pkghttp.WriteBadRequest(w, "Invalid or expired reset token")
		default:
			writeServiceError(w, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Password updated. Please log in again.",
	})
}

// ChangePassword replaces the current user's password and ends their other
// sessions
// @Router /api/settings/password [put]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, session := auth.GetUserFromContext(r), auth.GetSessionFromContext(r)
	if user == nil || session == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req models.ChangePasswordRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	if err := h.service.ChangePassword(r.Context(), user, session, req); err != nil {
		if errors.Is(err, models.ErrInvalidCredential) {
			pkghttp.WriteBadRequest(w, "Current password is incorrect")
			return
		}
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
