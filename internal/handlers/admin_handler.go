package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminServiceInterface defines the admin user-management contract.
type AdminServiceInterface interface {
	CreateAdmin(ctx context.Context, req models.CreateAdminRequest, creationSecret string) (*models.User, error)
	ListUsers(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error)
	ListFlagged(ctx context.Context, limit, offset int) ([]*models.User, int, error)
	SetFlagged(ctx context.Context, actorID, userID string, flagged bool) (*models.User, error)
	Deactivate(ctx context.Context, actorID, userID string) (*models.User, error)
	Reactivate(ctx context.Context, actorID, userID string) (*models.User, error)
}

// AdminHandler handles admin user-management HTTP requests.
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

func toUserList(users []*models.User, total int) models.ListUsersResponse {
	resp := models.ListUsersResponse{Users: make([]*models.UserResponse, 0, len(users)), Total: total}
	for _, u := range users {
		resp.Users = append(resp.Users, u.ToResponse())
	}
	return resp
}

// CreateAdmin handles POST /api/admin/create. IP allow-listing and the
// superuser secret are enforced by middleware.
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAdminRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	user, err := h.service.CreateAdmin(r.Context(), req, r.Header.Get(auth.SuperuserSecretHeader))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, user.ToResponse())
}

// ListUsers handles GET /api/admin/list
// Accepts ?type=regular|admin (default regular), page and page_size.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	userType := models.UserType(r.URL.Query().Get("type"))
	switch userType {
	case "":
		userType = models.UserTypeRegular
	case models.UserTypeRegular, models.UserTypeAdmin:
	default:
		pkghttp.WriteBadRequest(w, "type must be regular or admin")
		return
	}

	page, pageSize := pkghttp.Pagination(r, 20, 100)
	users, total, err := h.service.ListUsers(r.Context(), userType, pageSize, (page-1)*pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, toUserList(users, total))
}

// ListFlagged handles GET /api/admin/moderate-flagged
func (h *AdminHandler) ListFlagged(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pkghttp.Pagination(r, 20, 100)
	users, total, err := h.service.ListFlagged(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, toUserList(users, total))
}

// Flag handles PUT /api/admin/users/{id}/flag
func (h *AdminHandler) Flag(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetUserFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req models.FlagUserRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	user, err := h.service.SetFlagged(r.Context(), admin.ID, chi.URLParam(r, "id"), req.Flagged)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, user.ToResponse())
}

// Deactivate handles POST /api/admin/users/{id}/deactivate
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, h.service.Deactivate)
}

// Reactivate handles POST /api/admin/users/{id}/reactivate
func (h *AdminHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, h.service.Reactivate)
}

func (h *AdminHandler) setActive(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID, userID string) (*models.User, error)) {
	admin := auth.GetUserFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := fn(r.Context(), admin.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, user.ToResponse())
}
