package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// TestUser returns an active, verified regular user.
func TestUser(id string) *models.User {
	return &models.User{
		ID:               id,
		Username:         "lifter",
		Email:            id + "@example.com",
		IsActive:         true,
		IsVerified:       true,
		UserType:         models.UserTypeRegular,
		SetupStep:        models.SetupStepCompleted,
		SubscriptionPlan: models.FreePlan,
		ProfileVersion:   3,
	}
}

// TestSession returns a verified web session of userID.
func TestSession(id, userID string) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:           id,
		UserID:       userID,
		Token:        "token-" + id,
		MFAVerified:  true,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
		LastActivity: now,
	}
}

// WithAuthContext adds the user and session to the request context, as
// SessionMiddleware does
func WithAuthContext(req *http.Request, user *models.User, session *models.Session) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user, session))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// WithChiRouteContext adds chi URL parameters to request context for testing
//
//	req := httptest.NewRequest("PUT", "/api/admin/users/user123/flag", body)
//	req = WithChiRouteContext(req, map[string]string{"id": "user123"})
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc             func(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	LoginFunc                func(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	AdminLoginFunc           func(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	LogoutFunc               func(ctx context.Context, token string) error
	LogoutAllFunc            func(ctx context.Context, userID string, isMobile *bool) (int64, error)
	RequestPasswordResetFunc func(ctx context.Context, email string)
	ConfirmPasswordResetFunc func(ctx context.Context, token, newPassword string) error
	ChangePasswordFunc       func(ctx context.Context, user *models.User, session *models.Session, req models.ChangePasswordRequest) error
}

func (m *MockAuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, req)
}

func (m *MockAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredential
	}
	return m.LoginFunc(ctx, req)
}

func (m *MockAuthService) AdminLogin(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if m.AdminLoginFunc == nil {
		return nil, models.ErrInvalidCredential
	}
	return m.AdminLoginFunc(ctx, req)
}

func (m *MockAuthService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, token)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID string, isMobile *bool) (int64, error) {
	if m.LogoutAllFunc == nil {
		return 0, nil
	}
	return m.LogoutAllFunc(ctx, userID, isMobile)
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email string) {
	if m.RequestPasswordResetFunc != nil {
		m.RequestPasswordResetFunc(ctx, email)
	}
}

func (m *MockAuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if m.ConfirmPasswordResetFunc == nil {
		return models.ErrInvalidToken
	}
	return m.ConfirmPasswordResetFunc(ctx, token, newPassword)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, user *models.User, session *models.Session, req models.ChangePasswordRequest) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, user, session, req)
}

// MockEmailVerificationService for testing
type MockEmailVerificationService struct {
	VerifyEmailFunc        func(ctx context.Context, token string) string
	ResendVerificationFunc func(ctx context.Context, email string) error
}

func (m *MockEmailVerificationService) VerifyEmail(ctx context.Context, token string) string {
	if m.VerifyEmailFunc == nil {
		return models.VerificationStatusInvalid
	}
	return m.VerifyEmailFunc(ctx, token)
}

func (m *MockEmailVerificationService) ResendVerification(ctx context.Context, email string) error {
	if m.ResendVerificationFunc == nil {
		return nil
	}
	return m.ResendVerificationFunc(ctx, email)
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	BeginSetupFunc   func(ctx context.Context, user *models.User) (*models.MFASetupResponse, error)
	ConfirmSetupFunc func(ctx context.Context, user *models.User, session *models.Session, code string) (*models.MFAConfirmResponse, error)
	VerifyFunc       func(ctx context.Context, user *models.User, session *models.Session, code string) (*models.MFAVerifyResponse, error)
	DisableFunc      func(ctx context.Context, user *models.User, code string) error
	ResetFunc        func(ctx context.Context, actorID, userID string) error
}

func (m *MockMFAService) BeginSetup(ctx context.Context, user *models.User) (*models.MFASetupResponse, error) {
	if m.BeginSetupFunc == nil {
		return &models.MFASetupResponse{}, nil
	}
	return m.BeginSetupFunc(ctx, user)
}

func (m *MockMFAService) ConfirmSetup(ctx context.Context, user *models.User, session *models.Session, code string) (*models.MFAConfirmResponse, error) {
	if m.ConfirmSetupFunc == nil {
		return nil, models.ErrInvalidMFACode
	}
	return m.ConfirmSetupFunc(ctx, user, session, code)
}

func (m *MockMFAService) Verify(ctx context.Context, user *models.User, session *models.Session, code string) (*models.MFAVerifyResponse, error) {
	if m.VerifyFunc == nil {
		return nil, models.ErrInvalidMFACode
	}
	return m.VerifyFunc(ctx, user, session, code)
}

func (m *MockMFAService) Disable(ctx context.Context, user *models.User, code string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, user, code)
}

func (m *MockMFAService) Reset(ctx context.Context, actorID, userID string) error {
	if m.ResetFunc == nil {
		return nil
	}
	return m.ResetFunc(ctx, actorID, userID)
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	UpdateProfileFunc func(ctx context.Context, user *models.User, req models.UpdateProfileRequest, ifMatch *int) (*models.User, error)
	UploadAvatarFunc  func(ctx context.Context, user *models.User, contentType string, body io.Reader, size int64) (*models.User, error)
	DeleteAccountFunc func(ctx context.Context, user *models.User, password string) error
}

func (m *MockUserService) UpdateProfile(ctx context.Context, user *models.User, req models.UpdateProfileRequest, ifMatch *int) (*models.User, error) {
	if m.UpdateProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateProfileFunc(ctx, user, req, ifMatch)
}

func (m *MockUserService) UploadAvatar(ctx context.Context, user *models.User, contentType string, body io.Reader, size int64) (*models.User, error) {
	if m.UploadAvatarFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.UploadAvatarFunc(ctx, user, contentType, body, size)
}

func (m *MockUserService) DeleteAccount(ctx context.Context, user *models.User, password string) error {
	if m.DeleteAccountFunc == nil {
		return nil
	}
	return m.DeleteAccountFunc(ctx, user, password)
}

// MockSettingsService implements SettingsServiceInterface for testing
type MockSettingsService struct {
	GetFunc    func(ctx context.Context, userID string, feature models.SettingsFeature) (any, error)
	UpdateFunc func(ctx context.Context, userID string, feature models.SettingsFeature, doc any) (int, error)
}

func (m *MockSettingsService) Get(ctx context.Context, userID string, feature models.SettingsFeature) (any, error) {
	if m.GetFunc == nil {
		return models.DefaultSettings(feature)
	}
	return m.GetFunc(ctx, userID, feature)
}

func (m *MockSettingsService) Update(ctx context.Context, userID string, feature models.SettingsFeature, doc any) (int, error) {
	if m.UpdateFunc == nil {
		return 1, nil
	}
	return m.UpdateFunc(ctx, userID, feature, doc)
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	ListActiveSessionsFunc func(ctx context.Context, userID string, isMobile *bool) ([]*models.Session, error)
	RevokeSessionByIDFunc  func(ctx context.Context, userID, sessionID string) error
}

func (m *MockSessionService) ListActiveSessions(ctx context.Context, userID string, isMobile *bool) ([]*models.Session, error) {
	if m.ListActiveSessionsFunc == nil {
		return []*models.Session{}, nil
	}
	return m.ListActiveSessionsFunc(ctx, userID, isMobile)
}

func (m *MockSessionService) RevokeSessionByID(ctx context.Context, userID, sessionID string) error {
	if m.RevokeSessionByIDFunc == nil {
		return nil
	}
	return m.RevokeSessionByIDFunc(ctx, userID, sessionID)
}

// MockSubscriptionSettings implements SubscriptionSettingsInterface for testing
type MockSubscriptionSettings struct {
	CurrentSubscriptionFunc func(ctx context.Context, userID string) (*models.SubscriptionDetails, error)
	CancelSubscriptionFunc  func(ctx context.Context, user *models.User, password string) error
}

func (m *MockSubscriptionSettings) CurrentSubscription(ctx context.Context, userID string) (*models.SubscriptionDetails, error) {
	if m.CurrentSubscriptionFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.CurrentSubscriptionFunc(ctx, userID)
}

func (m *MockSubscriptionSettings) CancelSubscription(ctx context.Context, user *models.User, password string) error {
	if m.CancelSubscriptionFunc == nil {
		return nil
	}
	return m.CancelSubscriptionFunc(ctx, user, password)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	CreateAdminFunc func(ctx context.Context, req models.CreateAdminRequest, creationSecret string) (*models.User, error)
	ListUsersFunc   func(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error)
	ListFlaggedFunc func(ctx context.Context, limit, offset int) ([]*models.User, int, error)
	SetFlaggedFunc  func(ctx context.Context, actorID, userID string, flagged bool) (*models.User, error)
	DeactivateFunc  func(ctx context.Context, actorID, userID string) (*models.User, error)
	ReactivateFunc  func(ctx context.Context, actorID, userID string) (*models.User, error)
}

func (m *MockAdminService) CreateAdmin(ctx context.Context, req models.CreateAdminRequest, creationSecret string) (*models.User, error) {
	if m.CreateAdminFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateAdminFunc(ctx, req, creationSecret)
}

func (m *MockAdminService) ListUsers(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, 0, nil
	}
	return m.ListUsersFunc(ctx, userType, limit, offset)
}

func (m *MockAdminService) ListFlagged(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	if m.ListFlaggedFunc == nil {
		return []*models.User{}, 0, nil
	}
	return m.ListFlaggedFunc(ctx, limit, offset)
}

func (m *MockAdminService) SetFlagged(ctx context.Context, actorID, userID string, flagged bool) (*models.User, error) {
	if m.SetFlaggedFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SetFlaggedFunc(ctx, actorID, userID, flagged)
}

func (m *MockAdminService) Deactivate(ctx context.Context, actorID, userID string) (*models.User, error) {
	if m.DeactivateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.DeactivateFunc(ctx, actorID, userID)
}

func (m *MockAdminService) Reactivate(ctx context.Context, actorID, userID string) (*models.User, error) {
	if m.ReactivateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ReactivateFunc(ctx, actorID, userID)
}

// MockTierService implements TierServiceInterface for testing
type MockTierService struct {
	ListFunc           func(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, int64, error)
	CatalogVersionFunc func(ctx context.Context) (int64, error)
	GetFunc            func(ctx context.Context, id string) (*models.SubscriptionTier, error)
	CreateFunc         func(ctx context.Context, actorID string, req models.TierRequest) (*models.SubscriptionTier, error)
	UpdateFunc         func(ctx context.Context, actorID, id string, req models.TierRequest) (*models.SubscriptionTier, error)
	DeactivateFunc     func(ctx context.Context, actorID, id string) (*models.SubscriptionTier, error)
	DeleteFunc         func(ctx context.Context, actorID, id string) error
}

func (m *MockTierService) List(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, int64, error) {
	if m.ListFunc == nil {
		return []*models.SubscriptionTier{}, 1, nil
	}
	return m.ListFunc(ctx, includeInactive)
}

func (m *MockTierService) CatalogVersion(ctx context.Context) (int64, error) {
	if m.CatalogVersionFunc == nil {
		return 1, nil
	}
	return m.CatalogVersionFunc(ctx)
}

func (m *MockTierService) Get(ctx context.Context, id string) (*models.SubscriptionTier, error) {
	if m.GetFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetFunc(ctx, id)
}

func (m *MockTierService) Create(ctx context.Context, actorID string, req models.TierRequest) (*models.SubscriptionTier, error) {
	if m.CreateFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateFunc(ctx, actorID, req)
}

func (m *MockTierService) Update(ctx context.Context, actorID, id string, req models.TierRequest) (*models.SubscriptionTier, error) {
	if m.UpdateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateFunc(ctx, actorID, id, req)
}

func (m *MockTierService) Deactivate(ctx context.Context, actorID, id string) (*models.SubscriptionTier, error) {
	if m.DeactivateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.DeactivateFunc(ctx, actorID, id)
}

func (m *MockTierService) Delete(ctx context.Context, actorID, id string) error {
	if m.DeleteFunc == nil {
		return nil
	}
	return m.DeleteFunc(ctx, actorID, id)
}

// MockPaymentService implements PaymentServiceInterface for testing
type MockPaymentService struct {
	CreateCheckoutFunc func(ctx context.Context, user *models.User, req models.CreatePaymentRequest) (*models.CreatePaymentResponse, error)
	SubscribeFreeFunc  func(ctx context.Context, user *models.User) error
	CancelCheckoutFunc func(ctx context.Context, user *models.User, sessionID string) (*models.Payment, error)
	VerifyPaymentFunc  func(ctx context.Context, user *models.User, req models.VerifyPaymentRequest) (*models.Payment, error)
	RefundPaymentFunc  func(ctx context.Context, actorID string, req models.RefundRequest) (*models.Payment, error)
	HistoryFunc        func(ctx context.Context, userID string, page, pageSize int) (*models.PaymentHistoryResponse, error)
	AllHistoryFunc     func(ctx context.Context, page, pageSize int) (*models.PaymentHistoryResponse, error)
}

func (m *MockPaymentService) CreateCheckout(ctx context.Context, user *models.User, req models.CreatePaymentRequest) (*models.CreatePaymentResponse, error) {
	if m.CreateCheckoutFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.CreateCheckoutFunc(ctx, user, req)
}

func (m *MockPaymentService) SubscribeFree(ctx context.Context, user *models.User) error {
	if m.SubscribeFreeFunc == nil {
		return nil
	}
	return m.SubscribeFreeFunc(ctx, user)
}

func (m *MockPaymentService) CancelCheckout(ctx context.Context, user *models.User, sessionID string) (*models.Payment, error) {
	if m.CancelCheckoutFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.CancelCheckoutFunc(ctx, user, sessionID)
}

func (m *MockPaymentService) VerifyPayment(ctx context.Context, user *models.User, req models.VerifyPaymentRequest) (*models.Payment, error) {
	if m.VerifyPaymentFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.VerifyPaymentFunc(ctx, user, req)
}

func (m *MockPaymentService) RefundPayment(ctx context.Context, actorID string, req models.RefundRequest) (*models.Payment, error) {
	if m.RefundPaymentFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RefundPaymentFunc(ctx, actorID, req)
}

func (m *MockPaymentService) History(ctx context.Context, userID string, page, pageSize int) (*models.PaymentHistoryResponse, error) {
	if m.HistoryFunc == nil {
		return &models.PaymentHistoryResponse{Payments: []*models.Payment{}, Page: page, PageSize: pageSize}, nil
	}
	return m.HistoryFunc(ctx, userID, page, pageSize)
}

func (m *MockPaymentService) AllHistory(ctx context.Context, page, pageSize int) (*models.PaymentHistoryResponse, error) {
	if m.AllHistoryFunc == nil {
		return &models.PaymentHistoryResponse{Payments: []*models.Payment{}, Page: page, PageSize: pageSize}, nil
	}
	return m.AllHistoryFunc(ctx, page, pageSize)
}

// MockWebhookService implements WebhookServiceInterface for testing
type MockWebhookService struct {
	HandleFunc func(ctx context.Context, payload []byte, signature string) error
}

func (m *MockWebhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	if m.HandleFunc == nil {
		return nil
	}
	return m.HandleFunc(ctx, payload, signature)
}
