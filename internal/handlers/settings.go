package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	"github.com/go-chi/chi/v5"
)

// SettingsServiceInterface stores the typed per-feature settings documents
type SettingsServiceInterface interface {
	Get(ctx context.Context, userID string, feature models.SettingsFeature) (any, error)
	Update(ctx context.Context, userID string, feature models.SettingsFeature, doc any) (int, error)
}

// SessionServiceInterface lists and revokes the user's devices
type SessionServiceInterface interface {
	ListActiveSessions(ctx context.Context, userID string, isMobile *bool) ([]*models.Session, error)
	RevokeSessionByID(ctx context.Context, userID, sessionID string) error
}

// SubscriptionSettingsInterface exposes the user's own subscription
type SubscriptionSettingsInterface interface {
	CurrentSubscription(ctx context.Context, userID string) (*models.SubscriptionDetails, error)
	CancelSubscription(ctx context.Context, user *models.User, password string) error
}

// SettingsHandler serves the settings screens
type SettingsHandler struct {
	settings      SettingsServiceInterface
	sessions      SessionServiceInterface
	subscriptions SubscriptionSettingsInterface
}

func NewSettingsHandler(settings SettingsServiceInterface, sessions SessionServiceInterface, subscriptions SubscriptionSettingsInterface) *SettingsHandler {
	return &SettingsHandler{settings: settings, sessions: sessions, subscriptions: subscriptions}
}

// SettingsUpdateResponse echoes the stored document and the new profile
// version.
type SettingsUpdateResponse struct {
	Settings       any `json:"settings"`
	ProfileVersion int `json:"profile_version"`
}

// SessionView is one device on the sessions screen.
type SessionView struct {
	*models.Session
	Current bool `json:"current"`
}

// GetFeature handles GET /api/settings/{feature}
func (h *SettingsHandler) GetFeature(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	doc, err := h.settings.Get(r.Context(), user.ID, models.SettingsFeature(chi.URLParam(r, "feature")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, doc)
}

// UpdateFeature handles PUT /api/settings/{feature}. Unknown keys are
// rejected.
func (h *SettingsHandler) UpdateFeature(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	feature := models.SettingsFeature(chi.URLParam(r, "feature"))
	doc, err := models.DecodeSettings(feature, http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Unknown settings feature")
			return
		}
		pkghttp.WriteBadRequest(w, "Invalid settings document")
		return
	}
	if err := ValidateRequest(doc); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	version, err := h.settings.Update(r.Context(), user.ID, feature, doc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, SettingsUpdateResponse{Settings: doc, ProfileVersion: version})
}

// ListSessions handles GET /api/settings/sessions
func (h *SettingsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user, current, ok := currentUserAndSession(w, r)
	if !ok {
		return
	}

	isMobile, ok := deviceFilter(r)
	if !ok {
		pkghttp.WriteBadRequest(w, "device must be mobile or web")
		return
	}

	sessions, err := h.sessions.ListActiveSessions(r.Context(), user.ID, isMobile)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, SessionView{Session: s, Current: s.ID == current.ID})
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// RevokeSession handles DELETE /api/settings/sessions/{id}
func (h *SettingsHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.sessions.RevokeSessionByID(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSubscription handles GET /api/settings/subscription
func (h *SettingsHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	details, err := h.subscriptions.CurrentSubscription(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No active subscription")
			return
		}
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, details)
}

// CancelSubscription handles DELETE /api/settings/subscription
func (h *SettingsHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req models.PasswordConfirmRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	if err := h.subscriptions.CancelSubscription(r.Context(), user, req.Password); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredential):
			pkghttp.WriteBadRequest(w, "Password is incorrect")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "No active subscription")
		default:
			writeServiceError(w, err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
