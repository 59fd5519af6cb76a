package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
)

// CooldownStore rate limits verification sends per user.
type CooldownStore interface {
	Claim(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error)
	Release(ctx context.Context, key string) error
}

// EmailVerificationService consumes verification tokens and resends them.
type EmailVerificationService struct {
	repo        UserRepository
	tokens      *auth.TokenManager
	mailer      AccountMailer
	cooldown    CooldownStore
	cooldownDur time.Duration
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewEmailVerificationService(
	repo UserRepository,
	tokens *auth.TokenManager,
	mailer AccountMailer,
	cooldown CooldownStore,
	cooldownDur time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *EmailVerificationService {
	return &EmailVerificationService{
		repo:        repo,
		tokens:      tokens,
		mailer:      mailer,
		cooldown:    cooldown,
		cooldownDur: cooldownDur,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// VerifyEmail consumes a verification token and reports the outcome as one of
// the VerificationStatus values. Verifying twice is harmless.
func (s *EmailVerificationService) VerifyEmail(ctx context.Context, token string) string {
	claims, err := s.tokens.ParseVerificationToken(token)
	if err != nil {
		if errors.Is(err, models.ErrTokenExpired) {
			return models.VerificationStatusExpired
		}
		return models.VerificationStatusInvalid
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.VerificationStatusInvalid
		}
		s.logger.Error("failed to load user for verification", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return models.VerificationStatusError
	}
	if !strings.EqualFold(user.Email, claims.Email) {
		return models.VerificationStatusInvalid
	}
	if user.IsVerified {
		return models.VerificationStatusAlreadyVerified
	}

	changed, err := s.repo.MarkVerified(ctx, user.ID, models.SetupStepProfileCompletion)
	if err != nil {
		s.logger.Error("failed to mark user verified", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.VerificationStatusError
	}
	if !changed {
		return models.VerificationStatusAlreadyVerified
	}

	s.logger.Info("email verified", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(ctx, "email_verified", user.ID, "", true, "")
	return models.VerificationStatusSuccess
}

// ResendVerification mails a fresh token unless one went out within the
// cooldown. Unknown addresses succeed silently.
func (s *EmailVerificationService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		s.logger.Error("failed to look up user for resend", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if user.IsVerified {
		return models.ErrAlreadyVerified
	}

	ok, remaining, err := s.cooldown.Claim(ctx, user.ID, s.cooldownDur)
	if err != nil {
		s.logger.Error("failed to claim resend cooldown", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !ok {
		return &models.CooldownError{RetryAfter: remaining}
	}

	token, err := s.tokens.GenerateVerificationToken(user)
	if err == nil {
		err = s.mailer.SendVerificationEmail(ctx, user.Email, user.FullName, token)
	}
	if err != nil {
		s.logger.Error("failed to resend verification email", slog.String("user_id", user.ID), slog.Any("error", err))
		if relErr := s.cooldown.Release(ctx, user.ID); relErr != nil {
			s.logger.Warn("failed to release resend cooldown", slog.String("user_id", user.ID), slog.Any("error", relErr))
		}
		return models.ErrInternalServer
	}

	s.logger.Info("verification email resent", slog.String("user_id", user.ID))
	return nil
}
