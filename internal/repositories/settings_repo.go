package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/yoked/internal/database"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/jackc/pgx/v5"
)

type SettingsRepository struct {
	db *database.DB
}

func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the stored JSON document, or nil when none was saved.
func (r *SettingsRepository) Get(ctx context.Context, userID string, feature models.SettingsFeature) ([]byte, error) {
	var raw []byte
	query := `SELECT settings FROM user_settings WHERE user_id = $1 AND feature = $2`
	err := r.db.Querier(ctx).QueryRow(ctx, query, userID, feature).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s settings: %w", feature, err)
	}
	return raw, nil
}

// Upsert stores doc as the user's settings for feature.
func (r *SettingsRepository) Upsert(ctx context.Context, userID string, feature models.SettingsFeature, doc any) error {
	query := `
		INSERT INTO user_settings (user_id, feature, settings, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, feature) DO UPDATE SET settings = EXCLUDED.settings, updated_at = NOW()
	`
	if _, err := r.db.Querier(ctx).Exec(ctx, query, userID, feature, doc); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}
