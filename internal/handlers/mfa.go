package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	"github.com/go-chi/chi/v5"
)

// MFAServiceInterface defines the MFA enrolment and verification contract
type MFAServiceInterface interface {
	BeginSetup(ctx context.Context, user *models.User) (*models.MFASetupResponse, error)
	ConfirmSetup(ctx context.Context, user *models.User, session *models.Session, code string) (*models.MFAConfirmResponse, error)
	Verify(ctx context.Context, user *models.User, session *models.Session, code string) (*models.MFAVerifyResponse, error)
	Disable(ctx context.Context, user *models.User, code string) error
	Reset(ctx context.Context, actorID, userID string) error
}

// MFAHandler handles TOTP enrolment, per-session verification and admin
// resets.
type MFAHandler struct {
	service MFAServiceInterface
}

func NewMFAHandler(service MFAServiceInterface) *MFAHandler {
	return &MFAHandler{service: service}
}

func currentUserAndSession(w http.ResponseWriter, r *http.Request) (*models.User, *models.Session, bool) {
	user, session := auth.GetUserFromContext(r), auth.GetSessionFromContext(r)
	if user == nil || session == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return nil, nil, false
	}
	return user, session, true
}

// Setup handles POST /api/auth/mfa/setup
func (h *MFAHandler) Setup(w http.ResponseWriter, r *http.Request) {
	user, _, ok := currentUserAndSession(w, r)
	if !ok {
		return
	}

	resp, err := h.service.BeginSetup(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Confirm handles POST /api/auth/mfa/confirm
func (h *MFAHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	user, session, ok := currentUserAndSession(w, r)
	if !ok {
		return
	}

	var req models.MFACodeRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	resp, err := h.service.ConfirmSetup(r.Context(), user, session, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Verify handles POST /api/auth/mfa/verify
func (h *MFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user, session, ok := currentUserAndSession(w, r)
	if !ok {
		return
	}

	var req models.MFACodeRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	resp, err := h.service.Verify(r.Context(), user, session, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Disable handles DELETE /api/auth/mfa
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	user, _, ok := currentUserAndSession(w, r)
	if !ok {
		return
	}

	var req models.MFACodeRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	if err := h.service.Disable(r.Context(), user, req.Code); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /api/admin/users/{id}/mfa/reset
func (h *MFAHandler) Reset(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetUserFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Reset(r.Context(), admin.ID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
