package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/BradenHooton/yoked/internal/services"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
)

// UserServiceInterface defines the interface for profile and account logic
type UserServiceInterface interface {
	UpdateProfile(ctx context.Context, user *models.User, req models.UpdateProfileRequest, ifMatch *int) (*models.User, error)
	UploadAvatar(ctx context.Context, user *models.User, contentType string, body io.Reader, size int64) (*models.User, error)
	DeleteAccount(ctx context.Context, user *models.User, password string) error
}

// UserHandler handles the signed-in user's profile and account
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

func setVersionETag(w http.ResponseWriter, version int) {
	w.Header().Set("ETag", `"`+strconv.Itoa(version)+`"`)
}

// parseIfMatch reads a profile version precondition. An absent header means
// last write wins.
func parseIfMatch(r *http.Request) (*int, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return nil, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return nil, errors.New("If-Match must be a profile version")
	}
	return &v, nil
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	setVersionETag(w, user.ProfileVersion)
	pkghttp.WriteJSON(w, http.StatusOK, user.ToResponse())
}

// ProfileVersion handles GET /api/users/me/version
func (h *UserHandler) ProfileVersion(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, models.ProfileVersionResponse{ProfileVersion: user.ProfileVersion})
}

// UpdateProfile handles PUT /api/users/me/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	ifMatch, err := parseIfMatch(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var req models.UpdateProfileRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user, req, ifMatch)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	setVersionETag(w, updated.ProfileVersion)
	pkghttp.WriteJSON(w, http.StatusOK, updated.ToResponse())
}

// UploadAvatar handles PUT /api/users/me/avatar with a multipart "file"
// part.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	// Room for the multipart envelope around a maximum-size image.
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAvatarBytes+64<<10)
	if err := r.ParseMultipartForm(services.MaxAvatarBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Image must be at most 5 MiB")
			return
		}
		pkghttp.WriteBadRequest(w, "Invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		pkghttp.WriteBadRequest(w, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if ct, _, found := strings.Cut(contentType, ";"); found {
		contentType = ct
	}

	updated, err := h.service.UploadAvatar(r.Context(), user, strings.TrimSpace(contentType), file, header.Size)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	setVersionETag(w, updated.ProfileVersion)
	pkghttp.WriteJSON(w, http.StatusOK, updated.ToResponse())
}

// DeleteAccount handles DELETE /api/settings/account
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteAccount(r.Context(), user, req.Password); err != nil {
		if errors.Is(err, models.ErrInvalidCredential) {
			pkghttp.WriteBadRequest(w, "Password is incorrect")
			return
		}
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
