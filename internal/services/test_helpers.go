package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/yoked/internal/billing"
	"github.com/BradenHooton/yoked/internal/models"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc                 func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc              func(ctx context.Context, email string) (*models.User, error)
	ExistsByUsernameOrEmailFunc func(ctx context.Context, username, email string) (bool, bool, error)
	CreateFunc                  func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfileFunc           func(ctx context.Context, user *models.User, expectedVersion *int) (*models.User, error)
	UpdateProfilePictureFunc    func(ctx context.Context, userID, url string) (*models.User, error)
	MarkVerifiedFunc            func(ctx context.Context, userID string, next models.SetupStep) (bool, error)
	UpdatePasswordFunc          func(ctx context.Context, userID, passwordHash string) error
	SetActiveFunc               func(ctx context.Context, userID string, active bool) (*models.User, error)
	SetFlaggedFunc              func(ctx context.Context, userID string, flagged bool) (*models.User, error)
	SetPlanFunc                 func(ctx context.Context, userID, plan string, step *models.SetupStep) error
	BumpProfileVersionFunc      func(ctx context.Context, userID string) (int, error)
	SetMFASecretFunc            func(ctx context.Context, userID string, encrypted, nonce []byte) error
	EnableMFAFunc               func(ctx context.Context, userID string, backupCodeHashes []string) error
	ConsumeBackupCodeFunc       func(ctx context.Context, userID, codeHash string) (bool, error)
	ClearMFAFunc                func(ctx context.Context, userID string) error
	ListByTypeFunc              func(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error)
	ListFlaggedFunc             func(ctx context.Context, limit, offset int) ([]*models.User, int, error)
	DeleteFunc                  func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, bool, error) {
	if m.ExistsByUsernameOrEmailFunc != nil {
		return m.ExistsByUsernameOrEmailFunc(ctx, username, email)
	}
	return false, false, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return user, nil
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, user *models.User, expectedVersion *int) (*models.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, user, expectedVersion)
	}
	return user, nil
}

func (m *MockUserRepository) UpdateProfilePicture(ctx context.Context, userID, url string) (*models.User, error) {
	if m.UpdateProfilePictureFunc != nil {
		return m.UpdateProfilePictureFunc(ctx, userID, url)
	}
	return &models.User{ID: userID, ProfilePicture: url}, nil
}

func (m *MockUserRepository) MarkVerified(ctx context.Context, userID string, next models.SetupStep) (bool, error) {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, userID, next)
	}
	return true, nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, userID, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) SetActive(ctx context.Context, userID string, active bool) (*models.User, error) {
	if m.SetActiveFunc != nil {
		return m.SetActiveFunc(ctx, userID, active)
	}
	return &models.User{ID: userID, IsActive: active}, nil
}

func (m *MockUserRepository) SetFlagged(ctx context.Context, userID string, flagged bool) (*models.User, error) {
	if m.SetFlaggedFunc != nil {
		return m.SetFlaggedFunc(ctx, userID, flagged)
	}
	return &models.User{ID: userID, FlaggedForReview: flagged}, nil
}

func (m *MockUserRepository) SetPlan(ctx context.Context, userID, plan string, step *models.SetupStep) error {
	if m.SetPlanFunc != nil {
		return m.SetPlanFunc(ctx, userID, plan, step)
	}
	return nil
}

func (m *MockUserRepository) BumpProfileVersion(ctx context.Context, userID string) (int, error) {
	if m.BumpProfileVersionFunc != nil {
		return m.BumpProfileVersionFunc(ctx, userID)
	}
	return 2, nil
}

func (m *MockUserRepository) SetMFASecret(ctx context.Context, userID string, encrypted, nonce []byte) error {
	if m.SetMFASecretFunc != nil {
		return m.SetMFASecretFunc(ctx, userID, encrypted, nonce)
	}
	return nil
}

func (m *MockUserRepository) EnableMFA(ctx context.Context, userID string, backupCodeHashes []string) error {
	if m.EnableMFAFunc != nil {
		return m.EnableMFAFunc(ctx, userID, backupCodeHashes)
	}
	return nil
}

func (m *MockUserRepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, userID, codeHash)
	}
	return false, nil
}

func (m *MockUserRepository) ClearMFA(ctx context.Context, userID string) error {
	if m.ClearMFAFunc != nil {
		return m.ClearMFAFunc(ctx, userID)
	}
	return nil
}

func (m *MockUserRepository) ListByType(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error) {
	if m.ListByTypeFunc != nil {
		return m.ListByTypeFunc(ctx, userType, limit, offset)
	}
	return []*models.User{}, 0, nil
}

func (m *MockUserRepository) ListFlagged(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	if m.ListFlaggedFunc != nil {
		return m.ListFlaggedFunc(ctx, limit, offset)
	}
	return []*models.User{}, 0, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc         func(ctx context.Context, s *models.Session) (*models.Session, error)
	FindReusableFunc   func(ctx context.Context, userID string, d models.DeviceInfo, now time.Time) (*models.Session, error)
	GetByTokenFunc     func(ctx context.Context, token string) (*models.Session, error)
	TouchFunc          func(ctx context.Context, id string, at time.Time) error
	SetMFAVerifiedFunc func(ctx context.Context, id string) error
	DeleteByTokenFunc  func(ctx context.Context, token string) (bool, error)
	DeleteByIDFunc     func(ctx context.Context, userID, id string) (bool, error)
	DeleteByUserFunc   func(ctx context.Context, userID string, isMobile *bool, exceptID string) (int64, error)
	ListActiveFunc     func(ctx context.Context, userID string, isMobile *bool, now time.Time) ([]*models.Session, error)
	DeleteExpiredFunc  func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	return s, nil
}

func (m *MockSessionRepository) FindReusable(ctx context.Context, userID string, d models.DeviceInfo, now time.Time) (*models.Session, error) {
	if m.FindReusableFunc != nil {
		return m.FindReusableFunc(ctx, userID, d, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, id, at)
	}
	return nil
}

func (m *MockSessionRepository) SetMFAVerified(ctx context.Context, id string) error {
	if m.SetMFAVerifiedFunc != nil {
		return m.SetMFAVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	if m.DeleteByTokenFunc != nil {
		return m.DeleteByTokenFunc(ctx, token)
	}
	return true, nil
}

func (m *MockSessionRepository) DeleteByID(ctx context.Context, userID, id string) (bool, error) {
	if m.DeleteByIDFunc != nil {
		return m.DeleteByIDFunc(ctx, userID, id)
	}
	return true, nil
}

func (m *MockSessionRepository) DeleteByUser(ctx context.Context, userID string, isMobile *bool, exceptID string) (int64, error) {
	if m.DeleteByUserFunc != nil {
		return m.DeleteByUserFunc(ctx, userID, isMobile, exceptID)
	}
	return 0, nil
}

func (m *MockSessionRepository) ListActive(ctx context.Context, userID string, isMobile *bool, now time.Time) ([]*models.Session, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, userID, isMobile, now)
	}
	return []*models.Session{}, nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now)
	}
	return 0, nil
}

// MockTierRepository implements TierRepository for testing
type MockTierRepository struct {
	ListFunc               func(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, error)
	GetByIDFunc            func(ctx context.Context, id string) (*models.SubscriptionTier, error)
	CreateFunc             func(ctx context.Context, t *models.SubscriptionTier) (*models.SubscriptionTier, error)
	UpdateFunc             func(ctx context.Context, t *models.SubscriptionTier, expectedVersion *int) (*models.SubscriptionTier, error)
	DeactivateFunc         func(ctx context.Context, id string) (*models.SubscriptionTier, error)
	DeleteFunc             func(ctx context.Context, id string) error
	CountReferencesFunc    func(ctx context.Context, id, name string) (int, error)
	CatalogVersionFunc     func(ctx context.Context) (int64, error)
	BumpCatalogVersionFunc func(ctx context.Context) (int64, error)
}

func (m *MockTierRepository) List(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, includeInactive)
	}
	return []*models.SubscriptionTier{}, nil
}

func (m *MockTierRepository) GetByID(ctx context.Context, id string) (*models.SubscriptionTier, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockTierRepository) Create(ctx context.Context, t *models.SubscriptionTier) (*models.SubscriptionTier, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	return t, nil
}

func (m *MockTierRepository) Update(ctx context.Context, t *models.SubscriptionTier, expectedVersion *int) (*models.SubscriptionTier, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t, expectedVersion)
	}
	return t, nil
}

func (m *MockTierRepository) Deactivate(ctx context.Context, id string) (*models.SubscriptionTier, error) {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockTierRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockTierRepository) CountReferences(ctx context.Context, id, name string) (int, error) {
	if m.CountReferencesFunc != nil {
		return m.CountReferencesFunc(ctx, id, name)
	}
	return 0, nil
}

func (m *MockTierRepository) CatalogVersion(ctx context.Context) (int64, error) {
	if m.CatalogVersionFunc != nil {
		return m.CatalogVersionFunc(ctx)
	}
	return 1, nil
}

func (m *MockTierRepository) BumpCatalogVersion(ctx context.Context) (int64, error) {
	if m.BumpCatalogVersionFunc != nil {
		return m.BumpCatalogVersionFunc(ctx)
	}
	return 2, nil
}

// MockPaymentRepository implements PaymentRepository for testing
type MockPaymentRepository struct {
	CreateFunc                   func(ctx context.Context, p *models.Payment) (*models.Payment, error)
	GetByIDFunc                  func(ctx context.Context, id string) (*models.Payment, error)
	GetByExternalIDFunc          func(ctx context.Context, externalID string) (*models.Payment, error)
	GetLatestForSubscriptionFunc func(ctx context.Context, subscriptionID string, status *models.PaymentStatus) (*models.Payment, error)
	UpdateStatusFunc             func(ctx context.Context, id string, from, to models.PaymentStatus, reason string) (*models.Payment, error)
	MarkSucceededFunc            func(ctx context.Context, id string, from models.PaymentStatus, intentID string, renewal time.Time) (*models.Payment, error)
	ExtendRenewalFunc            func(ctx context.Context, id string, renewal time.Time) error
	SetPaymentIntentFunc         func(ctx context.Context, id, intentID string) error
	ListByUserFunc               func(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, int, error)
	ListAllFunc                  func(ctx context.Context, limit, offset int) ([]*models.Payment, int, error)
	ListPendingFunc              func(ctx context.Context, platform models.PaymentPlatform, cutoff time.Time, limit int) ([]*models.Payment, error)
	ListLapsedFunc               func(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error)
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return p, nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockPaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	if m.GetByExternalIDFunc != nil {
		return m.GetByExternalIDFunc(ctx, externalID)
	}
	return nil, models.ErrNotFound
}

func (m *MockPaymentRepository) GetLatestForSubscription(ctx context.Context, subscriptionID string, status *models.PaymentStatus) (*models.Payment, error) {
	if m.GetLatestForSubscriptionFunc != nil {
		return m.GetLatestForSubscriptionFunc(ctx, subscriptionID, status)
	}
	return nil, models.ErrNotFound
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id string, from, to models.PaymentStatus, reason string) (*models.Payment, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, from, to, reason)
	}
	return &models.Payment{ID: id, Status: to, FailureReason: reason}, nil
}

func (m *MockPaymentRepository) MarkSucceeded(ctx context.Context, id string, from models.PaymentStatus, intentID string, renewal time.Time) (*models.Payment, error) {
	if m.MarkSucceededFunc != nil {
		return m.MarkSucceededFunc(ctx, id, from, intentID, renewal)
	}
	return &models.Payment{ID: id, Status: models.PaymentSucceeded, StripePaymentIntentID: intentID, RenewalDate: &renewal}, nil
}

func (m *MockPaymentRepository) ExtendRenewal(ctx context.Context, id string, renewal time.Time) error {
	if m.ExtendRenewalFunc != nil {
		return m.ExtendRenewalFunc(ctx, id, renewal)
	}
	return nil
}

func (m *MockPaymentRepository) SetPaymentIntent(ctx context.Context, id, intentID string) error {
	if m.SetPaymentIntentFunc != nil {
		return m.SetPaymentIntentFunc(ctx, id, intentID)
	}
	return nil
}

func (m *MockPaymentRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, int, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit, offset)
	}
	return []*models.Payment{}, 0, nil
}

func (m *MockPaymentRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Payment, int, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx, limit, offset)
	}
	return []*models.Payment{}, 0, nil
}

func (m *MockPaymentRepository) ListPending(ctx context.Context, platform models.PaymentPlatform, cutoff time.Time, limit int) ([]*models.Payment, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, platform, cutoff, limit)
	}
	return []*models.Payment{}, nil
}

func (m *MockPaymentRepository) ListLapsed(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error) {
	if m.ListLapsedFunc != nil {
		return m.ListLapsedFunc(ctx, now, limit)
	}
	return []*models.Payment{}, nil
}

// MockSubscriptionRepository implements SubscriptionRepository for testing
type MockSubscriptionRepository struct {
	CreateFunc             func(ctx context.Context, s *models.UserSubscription) (*models.UserSubscription, error)
	GetByIDFunc            func(ctx context.Context, id string) (*models.UserSubscription, error)
	GetByStripeIDFunc      func(ctx context.Context, stripeSubscriptionID string) (*models.UserSubscription, error)
	GetCurrentForUserFunc  func(ctx context.Context, userID string) (*models.UserSubscription, error)
	ListCurrentForUserFunc func(ctx context.Context, userID string) ([]*models.UserSubscription, error)
	UpdateStatusFunc       func(ctx context.Context, id string, status models.SubscriptionStatus) error
	ActivateFunc           func(ctx context.Context, id, stripeSubscriptionID string, start, renewal time.Time) error
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, s *models.UserSubscription) (*models.UserSubscription, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	return s, nil
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, id string) (*models.UserSubscription, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSubscriptionRepository) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.UserSubscription, error) {
	if m.GetByStripeIDFunc != nil {
		return m.GetByStripeIDFunc(ctx, stripeSubscriptionID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSubscriptionRepository) GetCurrentForUser(ctx context.Context, userID string) (*models.UserSubscription, error) {
	if m.GetCurrentForUserFunc != nil {
		return m.GetCurrentForUserFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSubscriptionRepository) ListCurrentForUser(ctx context.Context, userID string) ([]*models.UserSubscription, error) {
	if m.ListCurrentForUserFunc != nil {
		return m.ListCurrentForUserFunc(ctx, userID)
	}
	return []*models.UserSubscription{}, nil
}

func (m *MockSubscriptionRepository) UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockSubscriptionRepository) Activate(ctx context.Context, id, stripeSubscriptionID string, start, renewal time.Time) error {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, id, stripeSubscriptionID, start, renewal)
	}
	return nil
}

// MockPaymentGateway implements PaymentGateway for testing
type MockPaymentGateway struct {
	CreateCheckoutSessionFunc  func(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error)
	GetCheckoutStatusFunc      func(ctx context.Context, sessionID string) (*models.CheckoutStatus, error)
	PaymentIntentSucceededFunc func(ctx context.Context, paymentIntentID string) (bool, error)
	RefundFunc                 func(ctx context.Context, paymentIntentID string) error
	CancelSubscriptionFunc     func(ctx context.Context, stripeSubscriptionID string) error
}

func (m *MockPaymentGateway) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, req)
	}
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.com/c/pay/cs_test"}, nil
}

func (m *MockPaymentGateway) GetCheckoutStatus(ctx context.Context, sessionID string) (*models.CheckoutStatus, error) {
	if m.GetCheckoutStatusFunc != nil {
		return m.GetCheckoutStatusFunc(ctx, sessionID)
	}
	return &models.CheckoutStatus{SessionID: sessionID}, nil
}

func (m *MockPaymentGateway) PaymentIntentSucceeded(ctx context.Context, paymentIntentID string) (bool, error) {
	if m.PaymentIntentSucceededFunc != nil {
		return m.PaymentIntentSucceededFunc(ctx, paymentIntentID)
	}
	return false, nil
}

func (m *MockPaymentGateway) Refund(ctx context.Context, paymentIntentID string) error {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, paymentIntentID)
	}
	return nil
}

func (m *MockPaymentGateway) CancelSubscription(ctx context.Context, stripeSubscriptionID string) error {
	if m.CancelSubscriptionFunc != nil {
		return m.CancelSubscriptionFunc(ctx, stripeSubscriptionID)
	}
	return nil
}

// MockObjectStore implements ObjectStore for testing
type MockObjectStore struct {
	PutFunc        func(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	DeleteFunc     func(ctx context.Context, key string) error
	KeyFromURLFunc func(url string) string
}

func (m *MockObjectStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, contentType, body, size)
	}
	return "https://cdn.test/" + key, nil
}

func (m *MockObjectStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

func (m *MockObjectStore) KeyFromURL(url string) string {
	if m.KeyFromURLFunc != nil {
		return m.KeyFromURLFunc(url)
	}
	return strings.TrimPrefix(url, "https://cdn.test/")
}

// MockSubscriptionCanceller implements SubscriptionCanceller for testing
type MockSubscriptionCanceller struct {
	CancelUserSubscriptionsFunc func(ctx context.Context, userID string) error
}

func (m *MockSubscriptionCanceller) CancelUserSubscriptions(ctx context.Context, userID string) error {
	if m.CancelUserSubscriptionsFunc != nil {
		return m.CancelUserSubscriptionsFunc(ctx, userID)
	}
	return nil
}

// MockAccountMailer implements AccountMailer for testing
type MockAccountMailer struct {
	SendVerificationEmailFunc  func(ctx context.Context, email, name, token string) error
	SendPasswordResetEmailFunc func(ctx context.Context, email, name, token string) error
}

func (m *MockAccountMailer) SendVerificationEmail(ctx context.Context, email, name, token string) error {
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, name, token)
	}
	return nil
}

func (m *MockAccountMailer) SendPasswordResetEmail(ctx context.Context, email, name, token string) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, name, token)
	}
	return nil
}

// MockCooldownStore implements CooldownStore for testing
type MockCooldownStore struct {
	ClaimFunc   func(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error)
	ReleaseFunc func(ctx context.Context, key string) error
}

func (m *MockCooldownStore) Claim(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, key, cooldown)
	}
	return true, 0, nil
}

func (m *MockCooldownStore) Release(ctx context.Context, key string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, key)
	}
	return nil
}

// MockWebhookEventRepository implements WebhookEventRepository for testing
type MockWebhookEventRepository struct {
	MarkProcessedFunc   func(ctx context.Context, eventID, eventType string) (bool, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockWebhookEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if m.MarkProcessedFunc != nil {
		return m.MarkProcessedFunc(ctx, eventID, eventType)
	}
	return true, nil
}

func (m *MockWebhookEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockWebhookParser implements WebhookParser for testing
type MockWebhookParser struct {
	ParseWebhookFunc func(payload []byte, signature string) (*models.WebhookEvent, error)
}

func (m *MockWebhookParser) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	if m.ParseWebhookFunc != nil {
		return m.ParseWebhookFunc(payload, signature)
	}
	return nil, models.ErrInvalidSignature
}

// MockSettingsRepository implements SettingsRepository for testing
type MockSettingsRepository struct {
	GetFunc    func(ctx context.Context, userID string, feature models.SettingsFeature) ([]byte, error)
	UpsertFunc func(ctx context.Context, userID string, feature models.SettingsFeature, doc any) error
}

func (m *MockSettingsRepository) Get(ctx context.Context, userID string, feature models.SettingsFeature) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID, feature)
	}
	return nil, nil
}

func (m *MockSettingsRepository) Upsert(ctx context.Context, userID string, feature models.SettingsFeature, doc any) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, userID, feature, doc)
	}
	return nil
}

// MockTransactor runs fn directly. Set Err to fail before fn runs.
type MockTransactor struct {
	Err   error
	Calls int
}

func (m *MockTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.Calls++
	if m.Err != nil {
		return m.Err
	}
	return fn(ctx)
}

// MockPublisher records published billing events.
type MockPublisher struct {
	mu     sync.Mutex
	Events []models.BillingEvent
	Err    error
}

func (m *MockPublisher) Publish(ctx context.Context, event models.BillingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return m.Err
}

func (m *MockPublisher) Types() []models.BillingEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]models.BillingEventType, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Type
	}
	return types
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

// fixedClock returns a now func pinned to t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
