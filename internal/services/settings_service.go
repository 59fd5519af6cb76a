package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/yoked/internal/models"
)

// SettingsRepository stores one JSON document per user and feature.
type SettingsRepository interface {
	Get(ctx context.Context, userID string, feature models.SettingsFeature) ([]byte, error)
	Upsert(ctx context.Context, userID string, feature models.SettingsFeature, doc any) error
}

// SettingsService reads and writes typed per-feature user settings.
type SettingsService struct {
	repo   SettingsRepository
	users  UserRepository
	tx     Transactor
	logger *slog.Logger
}

func NewSettingsService(repo SettingsRepository, users UserRepository, tx Transactor, logger *slog.Logger) *SettingsService {
	return &SettingsService{repo: repo, users: users, tx: tx, logger: logger}
}

// Get returns the user's settings for feature, or the defaults when none
// were saved.
func (s *SettingsService) Get(ctx context.Context, userID string, feature models.SettingsFeature) (any, error) {
	raw, err := s.repo.Get(ctx, userID, feature)
	if err != nil {
		s.logger.Error("failed to load settings", slog.String("user_id", userID), slog.String("feature", string(feature)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	doc, err := models.DecodeStoredSettings(feature, raw)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to decode settings", slog.String("user_id", userID), slog.String("feature", string(feature)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return doc, nil
}

// Update replaces the user's settings for feature and bumps their profile
// version. doc must already be decoded and validated.
func (s *SettingsService) Update(ctx context.Context, userID string, feature models.SettingsFeature, doc any) (int, error) {
	var version int
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Upsert(ctx, userID, feature, doc); err != nil {
			return err
		}
		var err error
		version, err = s.users.BumpProfileVersion(ctx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, models.ErrNotFound
		}
		s.logger.Error("failed to save settings", slog.String("user_id", userID), slog.String("feature", string(feature)), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	return version, nil
}
