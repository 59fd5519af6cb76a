package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/handlers"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asAdmin(req *http.Request) *http.Request {
	admin := handlers.TestUser("admin-1")
	admin.UserType = models.UserTypeAdmin
	return handlers.WithAuthContext(req, admin, handlers.TestSession("s-admin", admin.ID))
}

func TestCreateAdmin_PassesSuperuserSecret(t *testing.T) {
	var secret string
	svc := &handlers.MockAdminService{
		CreateAdminFunc: func(ctx context.Context, req models.CreateAdminRequest, creationSecret string) (*models.User, error) {
			secret = creationSecret
			return &models.User{ID: "new-admin", Username: req.Username, Email: req.Email, UserType: models.UserTypeAdmin, IsActive: true}, nil
		},
	}

	req := handlers.NewTestRequest(t, "POST", "/api/admin/create", models.CreateAdminRequest{
		Username: "coach",
		Email:    "coach@yoked.test",
		Password: "Sup3r$ecretPass",
	})
	req.Header.Set(auth.SuperuserSecretHeader, "s3cret")
	w := httptest.NewRecorder()
	handlers.NewAdminHandler(svc).CreateAdmin(w, req)

	var resp models.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.Equal(t, models.UserTypeAdmin, resp.UserType)
	assert.Equal(t, "s3cret", secret)
}

func TestCreateAdmin_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"wrong secret", models.ErrForbidden, http.StatusForbidden},
		{"email taken", models.ErrEmailTaken, http.StatusConflict},
		{"weak password", models.ErrBadRequest, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockAdminService{
				CreateAdminFunc: func(ctx context.Context, req models.CreateAdminRequest, creationSecret string) (*models.User, error) {
					return nil, tt.err
				},
			}

			req := handlers.NewTestRequest(t, "POST", "/api/admin/create", models.CreateAdminRequest{
				Username: "coach",
				Email:    "coach@yoked.test",
				Password: "Sup3r$ecretPass",
			})
			w := httptest.NewRecorder()
			handlers.NewAdminHandler(svc).CreateAdmin(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestCreateAdmin_InvalidBody(t *testing.T) {
	req := handlers.NewTestRequest(t, "POST", "/api/admin/create", map[string]string{"username": "x", "email": "nope"})
	w := httptest.NewRecorder()
	handlers.NewAdminHandler(&handlers.MockAdminService{}).CreateAdmin(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestListUsers_TypeAndPaging(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantType   models.UserType
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", models.UserTypeRegular, 20, 0},
		{"admins page 3", "?type=admin&page=3&page_size=10", models.UserTypeAdmin, 10, 20},
		{"page size capped", "?page_size=1000", models.UserTypeRegular, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockAdminService{
				ListUsersFunc: func(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error) {
					assert.Equal(t, tt.wantType, userType)
					assert.Equal(t, tt.wantLimit, limit)
					assert.Equal(t, tt.wantOffset, offset)
					return []*models.User{handlers.TestUser("u1")}, 41, nil
				},
			}

			w := httptest.NewRecorder()
			handlers.NewAdminHandler(svc).ListUsers(w, asAdmin(httptest.NewRequest("GET", "/api/admin/list"+tt.query, nil)))

			var resp models.ListUsersResponse
			handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
			assert.Equal(t, 41, resp.Total)
			require.Len(t, resp.Users, 1)
			assert.Equal(t, "u1", resp.Users[0].ID)
		})
	}
}

func TestListUsers_BadType(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.NewAdminHandler(&handlers.MockAdminService{}).ListUsers(w, asAdmin(httptest.NewRequest("GET", "/api/admin/list?type=superuser", nil)))

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestListFlagged(t *testing.T) {
	svc := &handlers.MockAdminService{
		ListFlaggedFunc: func(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
			u := handlers.TestUser("u-flagged")
			u.FlaggedForReview = true
			return []*models.User{u}, 1, nil
		},
	}

	w := httptest.NewRecorder()
	handlers.NewAdminHandler(svc).ListFlagged(w, asAdmin(httptest.NewRequest("GET", "/api/admin/moderate-flagged", nil)))

	var resp models.ListUsersResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp.Users, 1)
	assert.True(t, resp.Users[0].FlaggedForReview)
}

func TestFlag(t *testing.T) {
	svc := &handlers.MockAdminService{
		SetFlaggedFunc: func(ctx context.Context, actorID, userID string, flagged bool) (*models.User, error) {
			assert.Equal(t, "admin-1", actorID)
			assert.Equal(t, "u-7", userID)
			u := handlers.TestUser(userID)
			u.FlaggedForReview = flagged
			return u, nil
		},
	}

	req := handlers.NewTestRequest(t, "PUT", "/api/admin/users/u-7/flag", models.FlagUserRequest{Flagged: true})
	req = asAdmin(handlers.WithChiRouteContext(req, map[string]string{"id": "u-7"}))
	w := httptest.NewRecorder()
	handlers.NewAdminHandler(svc).Flag(w, req)

	var resp models.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.FlaggedForReview)
}

func TestFlag_UnknownUser_Returns404(t *testing.T) {
	req := handlers.NewTestRequest(t, "PUT", "/api/admin/users/missing/flag", models.FlagUserRequest{Flagged: true})
	req = asAdmin(handlers.WithChiRouteContext(req, map[string]string{"id": "missing"}))
	w := httptest.NewRecorder()
	handlers.NewAdminHandler(&handlers.MockAdminService{}).Flag(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestDeactivateAndReactivate(t *testing.T) {
	svc := &handlers.MockAdminService{
		DeactivateFunc: func(ctx context.Context, actorID, userID string) (*models.User, error) {
			if actorID == userID {
				return nil, models.ErrBadRequest
			}
			u := handlers.TestUser(userID)
			u.IsActive = false
			return u, nil
		},
		ReactivateFunc: func(ctx context.Context, actorID, userID string) (*models.User, error) {
			return handlers.TestUser(userID), nil
		},
	}
	h := handlers.NewAdminHandler(svc)

	t.Run("deactivate", func(t *testing.T) {
		req := asAdmin(handlers.WithChiRouteContext(httptest.NewRequest("POST", "/api/admin/users/u-2/deactivate", nil), map[string]string{"id": "u-2"}))
		w := httptest.NewRecorder()
		h.Deactivate(w, req)

		var resp models.UserResponse
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		assert.False(t, resp.IsActive)
	})

	t.Run("deactivate self", func(t *testing.T) {
		req := asAdmin(handlers.WithChiRouteContext(httptest.NewRequest("POST", "/api/admin/users/admin-1/deactivate", nil), map[string]string{"id": "admin-1"}))
		w := httptest.NewRecorder()
		h.Deactivate(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	})

	t.Run("reactivate", func(t *testing.T) {
		req := asAdmin(handlers.WithChiRouteContext(httptest.NewRequest("POST", "/api/admin/users/u-2/reactivate", nil), map[string]string{"id": "u-2"}))
		w := httptest.NewRecorder()
		h.Reactivate(w, req)

		var resp models.UserResponse
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		assert.True(t, resp.IsActive)
	})
}
