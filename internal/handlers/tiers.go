package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	"github.com/go-chi/chi/v5"
)

// TierServiceInterface defines the subscription tier catalog contract
type TierServiceInterface interface {
	List(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, int64, error)
	CatalogVersion(ctx context.Context) (int64, error)
	Get(ctx context.Context, id string) (*models.SubscriptionTier, error)
	Create(ctx context.Context, actorID string, req models.TierRequest) (*models.SubscriptionTier, error)
	Update(ctx context.Context, actorID, id string, req models.TierRequest) (*models.SubscriptionTier, error)
	Deactivate(ctx context.Context, actorID, id string) (*models.SubscriptionTier, error)
	Delete(ctx context.Context, actorID, id string) error
}

// TierHandler serves the public tier catalog and its admin mutations
type TierHandler struct {
	service TierServiceInterface
}

func NewTierHandler(service TierServiceInterface) *TierHandler {
	return &TierHandler{service: service}
}

// TierListResponse is the catalog listing.
type TierListResponse struct {
	Tiers   []*models.SubscriptionTier `json:"tiers"`
	Version int64                      `json:"version"`
}

// catalogETag identifies one rendering of the catalog. Listings with and
// without inactive tiers differ, so they get distinct tags.
func catalogETag(version int64, includeInactive bool) string {
	if includeInactive {
		return fmt.Sprintf(`"catalog-%d-all"`, version)
	}
	return fmt.Sprintf(`"catalog-%d"`, version)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// List handles GET /api/subscriptions/
func (h *TierHandler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	if inm := r.Header.Get("If-None-Match"); inm != "" {
		version, err := h.service.CatalogVersion(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if etag := catalogETag(version, includeInactive); etagMatches(inm, etag) {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	tiers, version, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("ETag", catalogETag(version, includeInactive))
	w.Header().Set("Cache-Control", "no-cache")
	pkghttp.WriteJSON(w, http.StatusOK, TierListResponse{Tiers: tiers, Version: version})
}

// Version handles GET /api/subscriptions/version
func (h *TierHandler) Version(w http.ResponseWriter, r *http.Request) {
	version, err := h.service.CatalogVersion(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, models.CatalogVersionResponse{Version: version})
}

// Get handles GET /api/subscriptions/{id}
func (h *TierHandler) Get(w http.ResponseWriter, r *http.Request) {
	tier, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, tier)
}

// Create handles POST /api/subscriptions/
func (h *TierHandler) Create(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetUserFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req models.TierRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	tier, err := h.service.Create(r.Context(), admin.ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, tier)
}

// Update handles PUT /api/subscriptions/{id}
func (h *TierHandler) Update(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetUserFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req models.TierRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	tier, err := h.service.Update(r.Context(), admin.ID, chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, tier)
}

// Deactivate handles PUT /api/subscriptions/{id}/deactivate
func (h *TierHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetUserFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	tier, err := h.service.Deactivate(r.Context(), admin.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, tier)
}

// Delete handles DELETE /api/subscriptions/{id}. Tiers still referenced by a
// user are rejected; deactivate them instead.
func (h *TierHandler) Delete(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetUserFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Delete(r.Context(), admin.ID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
