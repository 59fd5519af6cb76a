package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/yoked/internal/database"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, user_id, token, is_mobile, mfa_verified, device_type, os, browser, ip_address, location,
	created_at, expires_at, last_activity`

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var s models.Session
	var deviceType, os, browser, ip, location *string

	err := scanner.Scan(
		&s.ID, &s.UserID, &s.Token, &s.IsMobile, &s.MFAVerified,
		&deviceType, &os, &browser, &ip, &location,
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivity,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	s.DeviceType = deref(deviceType)
	s.OS = deref(os)
	s.Browser = deref(browser)
	s.IPAddress = deref(ip)
	s.Location = deref(location)

	return &s, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sessions (id, user_id, token, is_mobile, mfa_verified, device_type, os, browser, ip_address, location, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING` + sessionColumns

	return scanSessionRow(r.db.Querier(ctx).QueryRow(ctx, query,
		s.ID, s.UserID, s.Token, s.IsMobile, s.MFAVerified,
		nullable(s.DeviceType), nullable(s.OS), nullable(s.Browser), nullable(s.IPAddress), nullable(s.Location),
		s.ExpiresAt,
	))
}

// FindReusable returns the newest unexpired session of userID whose device
// fingerprint matches. Location is not part of the fingerprint.
func (r *SessionRepository) FindReusable(ctx context.Context, userID string, d models.DeviceInfo, now time.Time) (*models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND is_mobile = $2
		  AND device_type IS NOT DISTINCT FROM $3
		  AND os IS NOT DISTINCT FROM $4
		  AND browser IS NOT DISTINCT FROM $5
		  AND ip_address IS NOT DISTINCT FROM $6
		  AND expires_at > $7
		ORDER BY created_at DESC
		LIMIT 1`

	return scanSessionRow(r.db.Querier(ctx).QueryRow(ctx, query,
		userID, d.IsMobile, nullable(d.DeviceType), nullable(d.OS), nullable(d.Browser), nullable(d.IPAddress), now,
	))
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions WHERE token = $1`
	return scanSessionRow(r.db.Querier(ctx).QueryRow(ctx, query, token))
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Querier(ctx).Exec(ctx, `UPDATE sessions SET last_activity = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

func (r *SessionRepository) SetMFAVerified(ctx context.Context, id string) error {
	tag, err := r.db.Querier(ctx).Exec(ctx, `UPDATE sessions SET mfa_verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark session MFA verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	tag, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepository) DeleteByID(ctx context.Context, userID, id string) (bool, error) {
	tag, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteByUser removes the user's sessions, optionally only one device class,
// and optionally sparing one session.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string, isMobile *bool, exceptID string) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE user_id = $1
		  AND ($2::boolean IS NULL OR is_mobile = $2)
		  AND ($3::uuid IS NULL OR id <> $3)
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, userID, isMobile, nullable(exceptID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) ListActive(ctx context.Context, userID string, isMobile *bool, now time.Time) ([]*models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2 AND ($3::boolean IS NULL OR is_mobile = $3)
		ORDER BY last_activity DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, userID, now, isMobile)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	return scanSessionRows(rows)
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
