package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/BradenHooton/yoked/internal/models"
	pkgauth "github.com/BradenHooton/yoked/pkg/auth"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
)

// AdminService handles admin accounts and user moderation.
type AdminService struct {
	repo        UserRepository
	sessions    *SessionService
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewAdminService(repo UserRepository, sessions *SessionService, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AdminService {
	return &AdminService{
		repo:        repo,
		sessions:    sessions,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// SecretFingerprint is what gets stored in users.admin_secret_key.
func SecretFingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// CreateAdmin creates a verified admin whose onboarding is already complete.
// The caller has been authorised by IP and superuser secret.
func (s *AdminService) CreateAdmin(ctx context.Context, req models.CreateAdminRequest, creationSecret string) (*models.User, error) {
	if err := pkgauth.ValidatePassword(req.Password); err != nil {
		return nil, ErrWeakPassword
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	usernameTaken, emailTaken, err := s.repo.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		s.logger.Error("failed to check existing user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if emailTaken {
		return nil, models.ErrEmailTaken
	}
	if usernameTaken {
		return nil, models.ErrUsernameTaken
	}

	user, err := s.createAdmin(ctx, username, email, strings.TrimSpace(req.FullName), req.Password, creationSecret)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin created", slog.String("user_id", user.ID))
	s.auditLogger.LogAdminAction(ctx, "admin_created", "", user.ID, nil)
	return user, nil
}

func (s *AdminService) createAdmin(ctx context.Context, username, email, fullName, password, secret string) (*models.User, error) {
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	user, err := s.repo.Create(ctx, &models.User{
		Username:                username,
		Email:                   email,
		PasswordHash:            hash,
		FullName:                fullName,
		IsActive:                true,
		IsVerified:              true,
		UserType:                models.UserTypeAdmin,
		AdminSecretKey:          SecretFingerprint(secret),
		SetupStep:               models.SetupStepCompleted,
		SubscriptionPlan:        models.FreePlan,
		ProfileVersion:          1,
		AcceptedTerms:           true,
		AcceptedPrivacyPolicy:   true,
		AcceptedTermsAt:         &now,
		AcceptedPrivacyPolicyAt: &now,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create admin", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

// Bootstrap creates the configured admin on first start. An existing account
// with that email is left alone.
func (s *AdminService) Bootstrap(ctx context.Context, email, password, secret string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	user, err := s.createAdmin(ctx, bootstrapUsername(email), email, "", password, secret)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	s.logger.Info("bootstrap admin created", slog.String("user_id", user.ID))
	return nil
}

func bootstrapUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range local {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) < 3 {
		name = "admin" + name
	}
	if len(name) > 50 {
		name = name[:50]
	}
	return name
}

func (s *AdminService) ListUsers(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error) {
	users, total, err := s.repo.ListByType(ctx, userType, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, 0, models.ErrInternalServer
	}
	return users, total, nil
}

func (s *AdminService) ListFlagged(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	users, total, err := s.repo.ListFlagged(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list flagged users", slog.Any("error", err))
		return nil, 0, models.ErrInternalServer
	}
	return users, total, nil
}

func (s *AdminService) SetFlagged(ctx context.Context, actorID, userID string, flagged bool) (*models.User, error) {
	user, err := s.repo.SetFlagged(ctx, userID, flagged)
	if err != nil {
		return nil, s.mapUserErr("flag user", userID, err)
	}
	s.auditLogger.LogAdminAction(ctx, "user_flagged", actorID, userID, map[string]string{"flagged": fmt.Sprint(flagged)})
	return user, nil
}

// Deactivate disables a user and ends all their sessions. Admins cannot
// deactivate themselves.
func (s *AdminService) Deactivate(ctx context.Context, actorID, userID string) (*models.User, error) {
	if actorID == userID {
		return nil, fmt.Errorf("%w: cannot deactivate your own account", models.ErrBadRequest)
	}

	user, err := s.repo.SetActive(ctx, userID, false)
	if err != nil {
		return nil, s.mapUserErr("deactivate user", userID, err)
	}

	if _, err := s.sessions.InvalidateUserSessions(ctx, userID, nil); err != nil {
		s.logger.Error("failed to invalidate sessions of deactivated user", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.auditLogger.LogAdminAction(ctx, "user_deactivated", actorID, userID, nil)
	return user, nil
}

func (s *AdminService) Reactivate(ctx context.Context, actorID, userID string) (*models.User, error) {
	user, err := s.repo.SetActive(ctx, userID, true)
	if err != nil {
		return nil, s.mapUserErr("reactivate user", userID, err)
	}
	s.auditLogger.LogAdminAction(ctx, "user_reactivated", actorID, userID, nil)
	return user, nil
}

func (s *AdminService) mapUserErr(op, userID string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNotFound
	}
	s.logger.Error("failed to "+op, slog.String("user_id", userID), slog.Any("error", err))
	return models.ErrInternalServer
}
