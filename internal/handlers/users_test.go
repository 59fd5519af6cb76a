package handlers_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/BradenHooton/yoked/internal/handlers"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authed(req *http.Request) (*http.Request, *models.User) {
	user := handlers.TestUser("user-1")
	return handlers.WithAuthContext(req, user, handlers.TestSession("s-1", user.ID)), user
}

func TestMe_ReturnsUserWithETag(t *testing.T) {
	req, _ := authed(httptest.NewRequest("GET", "/api/users/me", nil))
	w := httptest.NewRecorder()
	handlers.NewUserHandler(&handlers.MockUserService{}).Me(w, req)

	var resp models.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "user-1", resp.ID)
	assert.Equal(t, `"3"`, w.Header().Get("ETag"))
}

func TestMe_Unauthenticated(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.NewUserHandler(&handlers.MockUserService{}).Me(w, httptest.NewRequest("GET", "/api/users/me", nil))

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestProfileVersion(t *testing.T) {
	req, _ := authed(httptest.NewRequest("GET", "/api/users/me/version", nil))
	w := httptest.NewRecorder()
	handlers.NewUserHandler(&handlers.MockUserService{}).ProfileVersion(w, req)

	var resp models.ProfileVersionResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, 3, resp.ProfileVersion)
}

func TestUpdateProfile_PassesIfMatch(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   *int
	}{
		{"absent", "", nil},
		{"quoted", `"4"`, intPtr(4)},
		{"weak", `W/"5"`, intPtr(5)},
		{"bare", "6", intPtr(6)},
		{"wildcard", "*", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *int
			svc := &handlers.MockUserService{
				UpdateProfileFunc: func(ctx context.Context, user *models.User, req models.UpdateProfileRequest, ifMatch *int) (*models.User, error) {
					got = ifMatch
					updated := *user
					updated.FullName = req.FullName
					updated.ProfileVersion = user.ProfileVersion + 1
					return &updated, nil
				},
			}

			req, _ := authed(handlers.NewTestRequest(t, "PUT", "/api/users/me/profile", map[string]string{"full_name": "Ada Lift"}))
			if tt.header != "" {
				req.Header.Set("If-Match", tt.header)
			}
			w := httptest.NewRecorder()
			handlers.NewUserHandler(svc).UpdateProfile(w, req)

			var resp models.UserResponse
			handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
			assert.Equal(t, "Ada Lift", resp.FullName)
			assert.Equal(t, 4, resp.ProfileVersion)
			assert.Equal(t, `"4"`, w.Header().Get("ETag"))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdateProfile_BadIfMatch_Returns400(t *testing.T) {
	req, _ := authed(handlers.NewTestRequest(t, "PUT", "/api/users/me/profile", map[string]string{"full_name": "Ada"}))
	req.Header.Set("If-Match", `"abc"`)
	w := httptest.NewRecorder()
	handlers.NewUserHandler(&handlers.MockUserService{}).UpdateProfile(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestUpdateProfile_StaleVersion_Returns409(t *testing.T) {
	svc := &handlers.MockUserService{
		UpdateProfileFunc: func(ctx context.Context, user *models.User, req models.UpdateProfileRequest, ifMatch *int) (*models.User, error) {
			return nil, models.ErrVersionMismatch
		},
	}

	req, _ := authed(handlers.NewTestRequest(t, "PUT", "/api/users/me/profile", map[string]any{"full_name": "Ada", "expected_version": 1}))
	w := httptest.NewRecorder()
	handlers.NewUserHandler(svc).UpdateProfile(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusConflict, "conflict")
}

func TestUpdateProfile_UsernameTaken_Returns409(t *testing.T) {
	svc := &handlers.MockUserService{
		UpdateProfileFunc: func(ctx context.Context, user *models.User, req models.UpdateProfileRequest, ifMatch *int) (*models.User, error) {
			return nil, models.ErrUsernameTaken
		},
	}

	req, _ := authed(handlers.NewTestRequest(t, "PUT", "/api/users/me/profile", map[string]any{"username": "taken"}))
	w := httptest.NewRecorder()
	handlers.NewUserHandler(svc).UpdateProfile(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusConflict, "conflict")
	assert.Contains(t, w.Body.String(), "Username already registered")
}

func multipartAvatar(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("PUT", "/api/users/me/avatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAvatar_PassesFileToService(t *testing.T) {
	var gotType string
	var gotSize int64
	var gotData []byte
	svc := &handlers.MockUserService{
		UploadAvatarFunc: func(ctx context.Context, user *models.User, contentType string, body io.Reader, size int64) (*models.User, error) {
			gotType, gotSize = contentType, size
			gotData, _ = io.ReadAll(body)
			updated := *user
			updated.ProfilePicture = "https://cdn.test/avatars/user-1/x.png"
			updated.ProfileVersion++
			return &updated, nil
		},
	}

	req, _ := authed(multipartAvatar(t, "image/png", []byte("pngbytes")))
	w := httptest.NewRecorder()
	handlers.NewUserHandler(svc).UploadAvatar(w, req)

	var resp models.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "https://cdn.test/avatars/user-1/x.png", resp.ProfilePicture)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, int64(8), gotSize)
	assert.Equal(t, []byte("pngbytes"), gotData)
}

func TestUploadAvatar_MissingFile_Returns400(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("PUT", "/api/users/me/avatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req, _ = authed(req)
	w := httptest.NewRecorder()
	handlers.NewUserHandler(&handlers.MockUserService{}).UploadAvatar(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestUploadAvatar_NotMultipart_Returns400(t *testing.T) {
	req, _ := authed(handlers.NewTestRequest(t, "PUT", "/api/users/me/avatar", map[string]string{"file": "x"}))
	w := httptest.NewRecorder()
	handlers.NewUserHandler(&handlers.MockUserService{}).UploadAvatar(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestUploadAvatar_UnsupportedType_Returns400(t *testing.T) {
	svc := &handlers.MockUserService{
		UploadAvatarFunc: func(ctx context.Context, user *models.User, contentType string, body io.Reader, size int64) (*models.User, error) {
			return nil, models.ErrBadRequest
		},
	}

	req, _ := authed(multipartAvatar(t, "image/gif", []byte("gif")))
	w := httptest.NewRecorder()
	handlers.NewUserHandler(svc).UploadAvatar(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestDeleteAccount(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"success", nil, http.StatusNoContent},
		{"wrong password", models.ErrInvalidCredential, http.StatusBadRequest},
		{"processor down", models.ErrPaymentProvider, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var password string
			svc := &handlers.MockUserService{
				DeleteAccountFunc: func(ctx context.Context, user *models.User, pw string) error {
					password = pw
					return tt.err
				},
			}

			req, _ := authed(handlers.NewTestRequest(t, "DELETE", "/api/settings/account", map[string]string{"password": "secret"}))
			w := httptest.NewRecorder()
			handlers.NewUserHandler(svc).DeleteAccount(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "secret", password)
		})
	}
}

func TestDeleteAccount_PasswordRequired(t *testing.T) {
	req, _ := authed(handlers.NewTestRequest(t, "DELETE", "/api/settings/account", map[string]string{}))
	w := httptest.NewRecorder()
	handlers.NewUserHandler(&handlers.MockUserService{}).DeleteAccount(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func intPtr(v int) *int { return &v }
