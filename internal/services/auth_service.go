package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkgauth "github.com/BradenHooton/yoked/pkg/auth"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
)

// AccountMailer sends the account emails triggered by auth flows.
type AccountMailer interface {
	SendVerificationEmail(ctx context.Context, email, name, token string) error
	SendPasswordResetEmail(ctx context.Context, email, name, token string) error
}

// ErrWeakPassword is returned when a new password fails the strength rules.
var ErrWeakPassword = fmt.Errorf("%w: password does not meet strength requirements", models.ErrBadRequest)

// AuthService handles authentication business logic
type AuthService struct {
	repo        UserRepository
	sessions    *SessionService
	tokens      *auth.TokenManager
	mailer      AccountMailer
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo UserRepository,
	sessions *SessionService,
	tokens *auth.TokenManager,
	mailer AccountMailer,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		sessions:    sessions,
		tokens:      tokens,
		mailer:      mailer,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Register creates a regular user, opens a session for the registering device
// and sends the verification email. A failed email is logged only; the user
// can ask for another one.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if !req.AcceptedTerms || !req.AcceptedPrivacyPolicy {
		return nil, models.ErrTermsNotAccepted
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	if err := pkgauth.ValidatePassword(req.Password); err != nil {
		return nil, ErrWeakPassword
	}

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

	hash, err := pkgauth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	user, err := s.repo.Create(ctx, &models.User{
		Username:                username,
		Email:                   email,
		PasswordHash:            hash,
		FullName:                strings.TrimSpace(req.FullName),
		IsActive:                true,
		IsVerified:              false,
		UserType:                models.UserTypeRegular,
		SetupStep:               models.SetupStepEmailVerification,
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
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, req.Device, true)
	if err != nil {
		return nil, err
	}

	s.sendVerification(ctx, user)

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(ctx, "register", user.ID, req.Device.IPAddress, true, "")

	return &models.AuthResponse{
		User:    user.ToResponse(),
		Session: session.ToResponse(),
	}, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) {
	token, err := s.tokens.GenerateVerificationToken(user)
	if err != nil {
		s.logger.Error("failed to generate verification token", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	if err := s.mailer.SendVerificationEmail(ctx, user.Email, user.FullName, token); err != nil {
		s.logger.Warn("failed to send verification email",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}
}

// authenticate checks credentials with a uniform delay on failure so unknown
// emails and wrong passwords take the same time.
func (s *AuthService) authenticate(ctx context.Context, email, password, ip string) (*models.User, error) {
	start := s.now()

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user == nil || !pkgauth.VerifyPassword(user.PasswordHash, password) {
		userID := ""
		if user != nil {
			userID = user.ID
		}
		s.auditLogger.LogAuthAttempt(ctx, "login_failed", userID, ip, false, "invalid_credentials")
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrInvalidCredential
	}

	if !user.IsActive {
		s.auditLogger.LogAuthAttempt(ctx, "login_failed", user.ID, ip, false, "account_inactive")
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrAccountInactive
	}

	s.timing.WaitFrom(ctx, start, true)
	return user, nil
}

// Login authenticates a user and issues a session. Users with MFA enabled get
// a session that must be verified before it reaches protected routes.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password, req.Device.IPAddress)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, req.Device, !user.MFAEnabled)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID), slog.Bool("mfa_required", user.MFAEnabled))
	s.auditLogger.LogAuthAttempt(ctx, "login_success", user.ID, req.Device.IPAddress, true, "")

	return &models.AuthResponse{
		User:        user.ToResponse(),
		Session:     session.ToResponse(),
		MFARequired: user.MFAEnabled && !session.MFAVerified,
	}, nil
}

// AdminLogin is Login restricted to active, unflagged admins. An admin
// without MFA enabled is told to set it up.
func (s *AuthService) AdminLogin(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password, req.Device.IPAddress)
	if err != nil {
		return nil, err
	}

	if !user.IsAdmin() || user.FlaggedForReview {
		s.auditLogger.LogAuthAttempt(ctx, "admin_login_denied", user.ID, req.Device.IPAddress, false, "not_admin")
		return nil, models.ErrForbidden
	}

	// Admin sessions start unverified: an admin without MFA must enroll
	// before any admin route admits them.
	session, err := s.sessions.CreateSession(ctx, user.ID, req.Device, false)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(ctx, "admin_login", user.ID, req.Device.IPAddress, true, "")

	return &models.AuthResponse{
		User:             user.ToResponse(),
		Session:          session.ToResponse(),
		MFARequired:      user.MFAEnabled && !session.MFAVerified,
		MFASetupRequired: !user.MFAEnabled,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.InvalidateSession(ctx, token)
}

// LogoutAll ends every session of the user, or only one device class when
// isMobile is set.
func (s *AuthService) LogoutAll(ctx context.Context, userID string, isMobile *bool) (int64, error) {
	n, err := s.sessions.InvalidateUserSessions(ctx, userID, isMobile)
	if err != nil {
		return 0, err
	}
	s.auditLogger.LogAuthAttempt(ctx, "logout_all", userID, "", true, "")
	return n, nil
}

// RequestPasswordReset mails a reset link when the address belongs to an
// active user. It never reports whether the address exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to look up user for password reset", slog.Any("error", err))
		}
		return
	}
	if !user.IsActive {
		return
	}

	token, err := s.tokens.GeneratePasswordResetToken(user)
	if err != nil {
		s.logger.Error("failed to generate password reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, user.FullName, token); err != nil {
		s.logger.Warn("failed to send password reset email", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	s.auditLogger.LogAuthAttempt(ctx, "password_reset_requested", user.ID, "", true, "")
}

// ConfirmPasswordReset sets a new password and signs the user out everywhere.
// Reset tokens are single use because they are bound to the old hash.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	user, err := s.tokens.ParsePasswordResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrTokenExpired) {
			return models.ErrTokenExpired
		}
		return models.ErrInvalidToken
	}

	if err := s.setPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}

	if _, err := s.sessions.InvalidateUserSessions(ctx, user.ID, nil); err != nil {
		s.logger.Error("failed to invalidate sessions after password reset",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.auditLogger.LogAuthAttempt(ctx, "password_reset", user.ID, "", true, "")
	return nil
}

// ChangePassword verifies the current password, stores the new one and
// invalidates every other session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, session *models.Session, req models.ChangePasswordRequest) error {
	if !pkgauth.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
		s.auditLogger.LogAuthAttempt(ctx, "password_change_failed", user.ID, "", false, "invalid_password")
		return models.ErrInvalidCredential
	}

	if err := s.setPassword(ctx, user.ID, req.NewPassword); err != nil {
		return err
	}

	keep := ""
	if session != nil {
		keep = session.ID
	}
	if _, err := s.sessions.InvalidateOtherSessions(ctx, user.ID, keep); err != nil {
		s.logger.Error("failed to invalidate other sessions", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.auditLogger.LogAuthAttempt(ctx, "password_changed", user.ID, "", true, "")
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return ErrWeakPassword
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to update password", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
