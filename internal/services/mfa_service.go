package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
)

// MFAService manages TOTP enrolment and the per-session MFA gate.
type MFAService struct {
	repo        UserRepository
	sessions    *SessionService
	totp        *auth.TOTPManager
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewMFAService(repo UserRepository, sessions *SessionService, totp *auth.TOTPManager, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *MFAService {
	return &MFAService{
		repo:        repo,
		sessions:    sessions,
		totp:        totp,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// BeginSetup stores a new pending secret and returns the provisioning
// material. Calling it again before confirmation replaces the secret.
func (s *MFAService) BeginSetup(ctx context.Context, user *models.User) (*models.MFASetupResponse, error) {
	if user.MFAEnabled {
		return nil, models.ErrMFAAlreadyEnabled
	}

	setup, encrypted, nonce, err := s.totp.GenerateSetup(user.Email)
	if err != nil {
		s.logger.Error("failed to generate MFA setup", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.repo.SetMFASecret(ctx, user.ID, encrypted, nonce); err != nil {
		s.logger.Error("failed to store MFA secret", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogMFAEvent(ctx, "mfa_setup_started", user.ID, true)
	return setup, nil
}

// ConfirmSetup enables MFA once the user proves the authenticator works. The
// current session counts as verified and the backup codes are returned once.
func (s *MFAService) ConfirmSetup(ctx context.Context, user *models.User, session *models.Session, code string) (*models.MFAConfirmResponse, error) {
	if user.MFAEnabled {
		return nil, models.ErrMFAAlreadyEnabled
	}
	if !user.HasMFASecret() {
		return nil, models.ErrMFANotSetup
	}
	if !s.totp.ValidateEncrypted(user.MFASecretEncrypted, user.MFASecretNonce, code) {
		s.auditLogger.LogMFAEvent(ctx, "mfa_setup_confirm_failed", user.ID, false)
		return nil, models.ErrInvalidMFACode
	}

	codes, err := s.totp.GenerateBackupCodes(auth.BackupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = s.totp.HashBackupCode(c)
	}

	if err := s.repo.EnableMFA(ctx, user.ID, hashes); err != nil {
		if errors.Is(err, models.ErrMFANotSetup) {
			return nil, models.ErrMFANotSetup
		}
		s.logger.Error("failed to enable MFA", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if session != nil {
		if err := s.sessions.MarkMFAVerified(ctx, session.ID); err != nil {
			s.logger.Warn("failed to mark session MFA verified", slog.String("session_id", session.ID), slog.Any("error", err))
		}
	}

	s.logger.Info("MFA enabled", slog.String("user_id", user.ID))
	s.auditLogger.LogMFAEvent(ctx, "mfa_enabled", user.ID, true)
	return &models.MFAConfirmResponse{MFAEnabled: true, BackupCodes: codes}, nil
}

// checkCode accepts a TOTP code or consumes a backup code. It reports whether
// a backup code was used.
func (s *MFAService) checkCode(ctx context.Context, user *models.User, code string) (bool, error) {
	if s.totp.ValidateEncrypted(user.MFASecretEncrypted, user.MFASecretNonce, code) {
		return false, nil
	}
	if !auth.LooksLikeBackupCode(code) {
		return false, models.ErrInvalidMFACode
	}

	consumed, err := s.repo.ConsumeBackupCode(ctx, user.ID, s.totp.HashBackupCode(code))
	if err != nil {
		s.logger.Error("failed to consume backup code", slog.String("user_id", user.ID), slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	if !consumed {
		return false, models.ErrInvalidMFACode
	}
	return true, nil
}

// Verify marks the session MFA verified after a valid TOTP or backup code.
func (s *MFAService) Verify(ctx context.Context, user *models.User, session *models.Session, code string) (*models.MFAVerifyResponse, error) {
	if !user.MFAEnabled || !user.HasMFASecret() {
		return nil, models.ErrMFANotSetup
	}

	usedBackup, err := s.checkCode(ctx, user, code)
	if err != nil {
		if errors.Is(err, models.ErrInvalidMFACode) {
			s.auditLogger.LogMFAEvent(ctx, "mfa_verify_failed", user.ID, false)
		}
		return nil, err
	}

	if err := s.sessions.MarkMFAVerified(ctx, session.ID); err != nil {
		s.logger.Error("failed to mark session MFA verified", slog.String("session_id", session.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	resp := &models.MFAVerifyResponse{MFAVerified: true, UsedBackup: usedBackup}
	if usedBackup {
		resp.BackupsRemain = max(len(user.MFABackupCodes)-1, 0)
		s.auditLogger.LogMFAEvent(ctx, "mfa_backup_code_used", user.ID, true)
	} else {
		s.auditLogger.LogMFAEvent(ctx, "mfa_verified", user.ID, true)
	}
	return resp, nil
}

// Disable turns MFA off after a valid code.
func (s *MFAService) Disable(ctx context.Context, user *models.User, code string) error {
	if !user.MFAEnabled || !user.HasMFASecret() {
		return models.ErrMFANotSetup
	}
	if _, err := s.checkCode(ctx, user, code); err != nil {
		if errors.Is(err, models.ErrInvalidMFACode) {
			s.auditLogger.LogMFAEvent(ctx, "mfa_disable_failed", user.ID, false)
		}
		return err
	}

	if err := s.repo.ClearMFA(ctx, user.ID); err != nil {
		s.logger.Error("failed to disable MFA", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	s.auditLogger.LogMFAEvent(ctx, "mfa_disabled", user.ID, true)
	return nil
}

// Reset clears a user's MFA enrolment on an admin's behalf.
func (s *MFAService) Reset(ctx context.Context, actorID, userID string) error {
	if err := s.repo.ClearMFA(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to reset MFA", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	s.auditLogger.LogAdminAction(ctx, "mfa_reset", actorID, userID, nil)
	return nil
}
