package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/yoked/internal/models"
	pkgauth "github.com/BradenHooton/yoked/pkg/auth"
)

// SessionRepository defines the persistence operations for sessions
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) (*models.Session, error)
	FindReusable(ctx context.Context, userID string, d models.DeviceInfo, now time.Time) (*models.Session, error)
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	SetMFAVerified(ctx context.Context, id string) error
	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteByID(ctx context.Context, userID, id string) (bool, error)
	DeleteByUser(ctx context.Context, userID string, isMobile *bool, exceptID string) (int64, error)
	ListActive(ctx context.Context, userID string, isMobile *bool, now time.Time) ([]*models.Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionService issues and validates opaque bearer-token sessions
type SessionService struct {
	repo      SessionRepository
	mobileTTL time.Duration
	webTTL    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewSessionService(repo SessionRepository, mobileTTL, webTTL time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:      repo,
		mobileTTL: mobileTTL,
		webTTL:    webTTL,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SessionService) ttl(isMobile bool) time.Duration {
	if isMobile {
		return s.mobileTTL
	}
	return s.webTTL
}

// CreateSession returns the caller's live session for the same device when
// one exists, otherwise a new one. A verified session is never handed to a
// login that still owes its second factor.
func (s *SessionService) CreateSession(ctx context.Context, userID string, device models.DeviceInfo, mfaVerified bool) (*models.Session, error) {
	now := s.now()

	existing, err := s.repo.FindReusable(ctx, userID, device, now)
	switch {
	case err == nil && (mfaVerified || !existing.MFAVerified):
		if mfaVerified && !existing.MFAVerified {
			if err := s.repo.SetMFAVerified(ctx, existing.ID); err != nil {
				s.logger.Error("failed to upgrade reused session", slog.String("session_id", existing.ID), slog.Any("error", err))
				return nil, models.ErrSessionCreation
			}
			existing.MFAVerified = true
		}
		if err := s.repo.Touch(ctx, existing.ID, now); err != nil {
			s.logger.Warn("failed to touch reused session", slog.String("session_id", existing.ID), slog.Any("error", err))
		}
		existing.LastActivity = now
		return existing, nil
	case err != nil && !errors.Is(err, models.ErrNotFound):
		s.logger.Error("failed to look up reusable session", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrSessionCreation
	}

	token, err := pkgauth.GenerateSessionToken()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, models.ErrSessionCreation
	}

	session, err := s.repo.Create(ctx, &models.Session{
		UserID:      userID,
		Token:       token,
		IsMobile:    device.IsMobile,
		MFAVerified: mfaVerified,
		DeviceType:  device.DeviceType,
		OS:          device.OS,
		Browser:     device.Browser,
		IPAddress:   device.IPAddress,
		Location:    device.Location,
		ExpiresAt:   now.Add(s.ttl(device.IsMobile)),
	})
	if err != nil {
		s.logger.Error("failed to persist session", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrSessionCreation
	}

	s.logger.Info("session created",
		slog.String("user_id", userID),
		slog.String("session_id", session.ID),
		slog.Bool("is_mobile", session.IsMobile))
	return session, nil
}

// ValidateSession resolves a token. Expired sessions are deleted on sight.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	now := s.now()
	if session.IsExpired(now) {
		if _, err := s.repo.DeleteByToken(ctx, token); err != nil {
			s.logger.Warn("failed to delete expired session", slog.String("session_id", session.ID), slog.Any("error", err))
		}
		return nil, models.ErrSessionExpired
	}

	if err := s.repo.Touch(ctx, session.ID, now); err != nil {
		s.logger.Warn("failed to update session activity", slog.String("session_id", session.ID), slog.Any("error", err))
	}
	session.LastActivity = now
	return session, nil
}

func (s *SessionService) InvalidateSession(ctx context.Context, token string) error {
	deleted, err := s.repo.DeleteByToken(ctx, token)
	if err != nil {
		return err
	}
	if !deleted {
		return models.ErrSessionNotFound
	}
	return nil
}

// InvalidateUserSessions deletes every session of the user, optionally only
// those of one device class.
func (s *SessionService) InvalidateUserSessions(ctx context.Context, userID string, isMobile *bool) (int64, error) {
	n, err := s.repo.DeleteByUser(ctx, userID, isMobile, "")
	if err != nil {
		return 0, err
	}
	s.logger.Info("user sessions invalidated", slog.String("user_id", userID), slog.Int64("count", n))
	return n, nil
}

// InvalidateOtherSessions deletes every session of the user except keepID.
func (s *SessionService) InvalidateOtherSessions(ctx context.Context, userID, keepID string) (int64, error) {
	return s.repo.DeleteByUser(ctx, userID, nil, keepID)
}

func (s *SessionService) ListActiveSessions(ctx context.Context, userID string, isMobile *bool) ([]*models.Session, error) {
	return s.repo.ListActive(ctx, userID, isMobile, s.now())
}

// RevokeSessionByID deletes one of the user's sessions. Sessions of other
// users are reported as not found.
func (s *SessionService) RevokeSessionByID(ctx context.Context, userID, sessionID string) error {
	deleted, err := s.repo.DeleteByID(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return models.ErrSessionNotFound
	}
	return nil
}

func (s *SessionService) MarkMFAVerified(ctx context.Context, sessionID string) error {
	return s.repo.SetMFAVerified(ctx, sessionID)
}

func (s *SessionService) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
