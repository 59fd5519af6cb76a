package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BradenHooton/yoked/internal/models"
	pkgauth "github.com/BradenHooton/yoked/pkg/auth"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
	"github.com/google/uuid"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, bool, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User, expectedVersion *int) (*models.User, error)
	UpdateProfilePicture(ctx context.Context, userID, url string) (*models.User, error)
	MarkVerified(ctx context.Context, userID string, next models.SetupStep) (bool, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetActive(ctx context.Context, userID string, active bool) (*models.User, error)
	SetFlagged(ctx context.Context, userID string, flagged bool) (*models.User, error)
	SetPlan(ctx context.Context, userID, plan string, step *models.SetupStep) error
	BumpProfileVersion(ctx context.Context, userID string) (int, error)
	SetMFASecret(ctx context.Context, userID string, encrypted, nonce []byte) error
	EnableMFA(ctx context.Context, userID string, backupCodeHashes []string) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)
	ClearMFA(ctx context.Context, userID string) error
	ListByType(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error)
	ListFlagged(ctx context.Context, limit, offset int) ([]*models.User, int, error)
	Delete(ctx context.Context, id string) error
}

// Transactor runs fn inside a database transaction carried by ctx.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ObjectStore stores public user media.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
	KeyFromURL(url string) string
}

// SubscriptionCanceller ends a user's paid subscriptions before the account
// goes away.
type SubscriptionCanceller interface {
	CancelUserSubscriptions(ctx context.Context, userID string) error
}

const MaxAvatarBytes = 5 << 20

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// UserService handles profile and account lifecycle for the signed-in user
type UserService struct {
	repo        UserRepository
	store       ObjectStore
	canceller   SubscriptionCanceller
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewUserService(repo UserRepository, store ObjectStore, canceller SubscriptionCanceller, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	return &UserService{
		repo:        repo,
		store:       store,
		canceller:   canceller,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

// UpdateProfile replaces the editable profile fields. The precondition is
// taken from the body first, then from ifMatch; with neither the last write
// wins. The repository advances setup_step from the stored row.
func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, req models.UpdateProfileRequest, ifMatch *int) (*models.User, error) {
	expected := req.ExpectedVersion
	if expected == nil {
		expected = ifMatch
	}

	updated := *user
	updated.FullName = strings.TrimSpace(req.FullName)
	updated.Bio = strings.TrimSpace(req.Bio)
	updated.FitnessGoals = strings.TrimSpace(req.FitnessGoals)

	if username := strings.TrimSpace(req.Username); username != "" && !strings.EqualFold(username, user.Username) {
		taken, _, err := s.repo.ExistsByUsernameOrEmail(ctx, username, "")
		if err != nil {
			s.logger.Error("failed to check username", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if taken {
			return nil, models.ErrUsernameTaken
		}
		updated.Username = username
	}

	result, err := s.repo.UpdateProfile(ctx, &updated, expected)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrVersionMismatch):
			return nil, models.ErrVersionMismatch
		case errors.Is(err, models.ErrConflict):
			return nil, models.ErrUsernameTaken
		case errors.Is(err, models.ErrNotFound):
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update profile", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("profile updated", slog.String("user_id", user.ID), slog.Int("profile_version", result.ProfileVersion))
	return result, nil
}

// UploadAvatar stores a JPEG, PNG or WebP picture of at most 5 MiB and
// points the profile at it.
func (s *UserService) UploadAvatar(ctx context.Context, user *models.User, contentType string, body io.Reader, size int64) (*models.User, error) {
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported image type %q", models.ErrBadRequest, contentType)
	}
	if size <= 0 || size > MaxAvatarBytes {
		return nil, fmt.Errorf("%w: image must be between 1 byte and 5 MiB", models.ErrBadRequest)
	}

	key := fmt.Sprintf("avatars/%s/%s.%s", user.ID, uuid.New().String(), ext)
	url, err := s.store.Put(ctx, key, contentType, body, size)
	if err != nil {
		s.logger.Error("failed to store avatar", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	updated, err := s.repo.UpdateProfilePicture(ctx, user.ID, url)
	if err != nil {
		s.logger.Error("failed to save avatar url", slog.String("user_id", user.ID), slog.Any("error", err))
		s.removeObject(ctx, url)
		return nil, models.ErrInternalServer
	}

	if user.ProfilePicture != "" {
		s.removeObject(ctx, user.ProfilePicture)
	}
	return updated, nil
}

func (s *UserService) removeObject(ctx context.Context, url string) {
	key := s.store.KeyFromURL(url)
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete stored object", slog.String("key", key), slog.Any("error", err))
	}
}

// DeleteAccount removes the user after confirming the password. Paid
// subscriptions are cancelled first; if that fails the account is kept.
func (s *UserService) DeleteAccount(ctx context.Context, user *models.User, password string) error {
	if !pkgauth.VerifyPassword(user.PasswordHash, password) {
		s.auditLogger.LogAuthAttempt(ctx, "account_delete_failed", user.ID, "", false, "invalid_password")
		return models.ErrInvalidCredential
	}

	if err := s.canceller.CancelUserSubscriptions(ctx, user.ID); err != nil {
		s.logger.Error("failed to cancel subscriptions before account deletion",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return err
	}

	if err := s.repo.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete user", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.ProfilePicture != "" {
		s.removeObject(ctx, user.ProfilePicture)
	}

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		Category:  pkglogger.AuditAccount,
		EventType: "account_deleted",
		UserID:    user.ID,
		Success:   true,
	})
	s.logger.Info("account deleted", slog.String("user_id", user.ID))
	return nil
}
