package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSessionValidator struct {
	ValidateSessionFunc func(ctx context.Context, token string) (*models.Session, error)
}

func (m *mockSessionValidator) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	return m.ValidateSessionFunc(ctx, token)
}

type mockUserRepo struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.GetByIDFunc(ctx, id)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Message
}

func validSessionStack(session *models.Session, user *models.User) (*mockSessionValidator, *mockUserRepo) {
	sessions := &mockSessionValidator{
		ValidateSessionFunc: func(ctx context.Context, token string) (*models.Session, error) {
			if token != session.Token {
				return nil, models.ErrSessionNotFound
			}
			return session, nil
		},
	}
	users := &mockUserRepo{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if user == nil || id != user.ID {
				return nil, models.ErrNotFound
			}
			return user, nil
		},
	}
	return sessions, users
}

// ============================================================================
// SessionMiddleware Tests
// ============================================================================

func TestSessionMiddleware_ValidToken_InjectsUserAndSession(t *testing.T) {
	session := &models.Session{ID: "s1", UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	user := &models.User{ID: "u1", IsActive: true}
	sessions, users := validSessionStack(session, user)

	var gotUser *models.User
	var gotSession *models.Session
	handler := SessionMiddleware(sessions, users, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserFromContext(r)
		gotSession = GetSessionFromContext(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Same(t, user, gotUser)
	assert.Same(t, session, gotSession)
}

func TestSessionMiddleware_MissingBearerPrefix(t *testing.T) {
	sessions, users := validSessionStack(&models.Session{Token: "tok"}, nil)

	for _, header := range []string{"", "tok", "Basic tok", "Bearer "} {
		called := false
		handler := SessionMiddleware(sessions, users, discardLogger())(okHandler(&called))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.Equal(t, "invalid format", errorMessage(t, w))
		assert.False(t, called)
	}
}

func TestSessionMiddleware_SessionErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown token", models.ErrSessionNotFound, http.StatusUnauthorized},
		{"expired", models.ErrSessionExpired, http.StatusUnauthorized},
		{"storage failure", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &mockSessionValidator{
				ValidateSessionFunc: func(ctx context.Context, token string) (*models.Session, error) {
					return nil, tt.err
				},
			}
			called := false
			handler := SessionMiddleware(sessions, &mockUserRepo{}, discardLogger())(okHandler(&called))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer tok")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.False(t, called)
		})
	}
}

func TestSessionMiddleware_DeletedUser(t *testing.T) {
	sessions, users := validSessionStack(&models.Session{ID: "s1", UserID: "gone", Token: "tok"}, nil)
	called := false
	handler := SessionMiddleware(sessions, users, discardLogger())(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "user not found", errorMessage(t, w))
	assert.False(t, called)
}

func TestSessionMiddleware_InactiveUser(t *testing.T) {
	sessions, users := validSessionStack(
		&models.Session{ID: "s1", UserID: "u1", Token: "tok"},
		&models.User{ID: "u1", IsActive: false},
	)
	called := false
	handler := SessionMiddleware(sessions, users, discardLogger())(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, called)
}

// ============================================================================
// RequireMFA Tests
// ============================================================================

func TestRequireMFA(t *testing.T) {
	tests := []struct {
		name        string
		mfaEnabled  bool
		mfaVerified bool
		wantStatus  int
	}{
		{"mfa disabled", false, false, http.StatusOK},
		{"mfa enabled and verified", true, true, http.StatusOK},
		{"mfa enabled not verified", true, false, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{ID: "u1", IsActive: true, MFAEnabled: tt.mfaEnabled}
			session := &models.Session{ID: "s1", UserID: "u1", MFAVerified: tt.mfaVerified}

			called := false
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithUser(req.Context(), user, session))
			w := httptest.NewRecorder()
			RequireMFA(okHandler(&called)).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
			if tt.wantStatus == http.StatusForbidden {
				assert.Equal(t, "MFA verification required", errorMessage(t, w))
			}
		})
	}
}

func TestRequireMFA_NoContext(t *testing.T) {
	called := false
	w := httptest.NewRecorder()
	RequireMFA(okHandler(&called)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)
}

// ============================================================================
// RequireAdmin Tests
// ============================================================================

func TestRequireAdmin(t *testing.T) {
	admin := func(mut func(u *models.User)) *models.User {
		u := &models.User{ID: "a1", IsActive: true, UserType: models.UserTypeAdmin, MFAEnabled: true}
		if mut != nil {
			mut(u)
		}
		return u
	}

	tests := []struct {
		name         string
		serverSecret string
		header       string
		user         *models.User
		unverified   bool
		wantStatus   int
		wantMessage  string
	}{
		{"valid admin", "s3cret", "s3cret", admin(nil), false, http.StatusOK, ""},
		{"wrong secret", "s3cret", "nope", admin(nil), false, http.StatusForbidden, "admin privileges required"},
		{"missing header", "s3cret", "", admin(nil), false, http.StatusForbidden, "admin privileges required"},
		{"server secret unset", "", "", admin(nil), false, http.StatusForbidden, "admin privileges required"},
		{"regular user", "s3cret", "s3cret", admin(func(u *models.User) { u.UserType = models.UserTypeRegular }), false, http.StatusForbidden, "admin privileges required"},
		{"flagged admin", "s3cret", "s3cret", admin(func(u *models.User) { u.FlaggedForReview = true }), false, http.StatusForbidden, "admin privileges required"},
		{"inactive admin", "s3cret", "s3cret", admin(func(u *models.User) { u.IsActive = false }), false, http.StatusForbidden, "admin privileges required"},
		{"admin without mfa", "s3cret", "s3cret", admin(func(u *models.User) { u.MFAEnabled = false }), false, http.StatusForbidden, "MFA setup required"},
		{"admin session not verified", "s3cret", "s3cret", admin(nil), true, http.StatusForbidden, "MFA verification required"},
		{"no user", "s3cret", "s3cret", nil, false, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(http.MethodGet, "/api/admin/list", nil)
			if tt.header != "" {
				req.Header.Set(AdminSecretHeader, tt.header)
			}
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user, &models.Session{ID: "s1", MFAVerified: !tt.unverified}))
			}
			w := httptest.NewRecorder()
			RequireAdmin(tt.serverSecret)(okHandler(&called)).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, errorMessage(t, w))
			}
		})
	}
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, SecretMatches("abc", "abc"))
	assert.False(t, SecretMatches("abc", "abd"))
	assert.False(t, SecretMatches("abc", "ab"))
	assert.False(t, SecretMatches("", ""))
}
