package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/yoked/internal/database"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `
	id, username, email, password_hash, full_name, bio, fitness_goals, profile_picture,
	is_active, is_verified, user_type, admin_secret_key, flagged_for_review,
	setup_step, subscription_plan, profile_version,
	mfa_secret_encrypted, mfa_secret_nonce, mfa_enabled, mfa_backup_codes,
	accepted_terms, accepted_privacy_policy, accepted_terms_at, accepted_privacy_policy_at,
	verification_sent_at, joined_at, created_at, updated_at`

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var fullName, bio, goals, picture, adminKey *string

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&fullName, &bio, &goals, &picture,
		&user.IsActive, &user.IsVerified, &user.UserType, &adminKey, &user.FlaggedForReview,
		&user.SetupStep, &user.SubscriptionPlan, &user.ProfileVersion,
		&user.MFASecretEncrypted, &user.MFASecretNonce, &user.MFAEnabled, &user.MFABackupCodes,
		&user.AcceptedTerms, &user.AcceptedPrivacyPolicy, &user.AcceptedTermsAt, &user.AcceptedPrivacyPolicyAt,
		&user.VerificationSentAt, &user.JoinedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.FullName = deref(fullName)
	user.Bio = deref(bio)
	user.FitnessGoals = deref(goals)
	user.ProfilePicture = deref(picture)
	user.AdminSecretKey = deref(adminKey)

	return &user, nil
}

// scanUserRows iterates through rows and scans each into User models
func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.Querier(ctx).QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUserRow(r.db.Querier(ctx).QueryRow(ctx, query, email))
}

// ExistsByUsernameOrEmail reports which of the two identifiers are taken.
func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE LOWER(username) = LOWER($1)),
			EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($2))
	`
	if err := r.db.Querier(ctx).QueryRow(ctx, query, username, email).Scan(&usernameTaken, &emailTaken); err != nil {
		return false, false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return usernameTaken, emailTaken, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.UserType == "" {
		user.UserType = models.UserTypeRegular
	}
	if user.SetupStep == "" {
		user.SetupStep = models.SetupStepEmailVerification
	}
	if user.SubscriptionPlan == "" {
		user.SubscriptionPlan = models.FreePlan
	}
	if user.ProfileVersion == 0 {
		user.ProfileVersion = 1
	}
	if user.MFABackupCodes == nil {
		user.MFABackupCodes = []string{}
	}

	query := `
		INSERT INTO users (
			id, username, email, password_hash, full_name, is_active, is_verified, user_type,
			admin_secret_key, setup_step, subscription_plan, profile_version, mfa_backup_codes,
			accepted_terms, accepted_privacy_policy, accepted_terms_at, accepted_privacy_policy_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING` + userColumns

	return scanUserRow(r.db.Querier(ctx).QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, nullable(user.FullName),
		user.IsActive, user.IsVerified, user.UserType, nullable(user.AdminSecretKey),
		user.SetupStep, user.SubscriptionPlan, user.ProfileVersion, user.MFABackupCodes,
		user.AcceptedTerms, user.AcceptedPrivacyPolicy, user.AcceptedTermsAt, user.AcceptedPrivacyPolicyAt,
	))
}

// UpdateProfile writes the editable profile fields and bumps profile_version.
// A row still at profile_completion moves to subscription_selection once it
// has a full name; setup_step is otherwise left as stored, so a concurrent
// advance is never rolled back. A non-nil expectedVersion turns the write
// into a compare-and-swap that returns ErrVersionMismatch when another write
// got there first.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User, expectedVersion *int) (*models.User, error) {
	query := `
		UPDATE users SET
			username = $2, full_name = $3, bio = $4, fitness_goals = $5,
			setup_step = CASE
				WHEN setup_step = $6 AND $7::boolean THEN $8
				ELSE setup_step
			END,
			profile_version = profile_version + 1, updated_at = NOW()
		WHERE id = $1 AND ($9::int IS NULL OR profile_version = $9)
		RETURNING` + userColumns

	updated, err := scanUserRow(r.db.Querier(ctx).QueryRow(ctx, query,
		user.ID, user.Username, nullable(user.FullName), nullable(user.Bio), nullable(user.FitnessGoals),
		models.SetupStepProfileCompletion, user.FullName != "", models.SetupStepSubscriptionSelection,
		expectedVersion,
	))
	if errors.Is(err, models.ErrNotFound) && expectedVersion != nil {
		if _, getErr := r.GetByID(ctx, user.ID); getErr == nil {
			return nil, models.ErrVersionMismatch
		}
	}
	return updated, err
}

func (r *UserRepository) UpdateProfilePicture(ctx context.Context, userID, url string) (*models.User, error) {
	query := `
		UPDATE users SET profile_picture = $2, profile_version = profile_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING` + userColumns
	return scanUserRow(r.db.Querier(ctx).QueryRow(ctx, query, userID, url))
}

// MarkVerified sets is_verified and advances setup_step. It returns false when
// the user was already verified, leaving profile_version untouched.
func (r *UserRepository) MarkVerified(ctx context.Context, userID string, next models.SetupStep) (bool, error) {
	query := `
		UPDATE users SET
			is_verified = TRUE,
			setup_step = CASE WHEN setup_step = 'email_verification' THEN $2 ELSE setup_step END,
			profile_version = profile_version + 1,
			updated_at = NOW()
		WHERE id = $1 AND is_verified = FALSE
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, userID, next)
	if err != nil {
		return false, fmt.Errorf("failed to mark user verified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimVerificationSend records a verification email send unless one was
// recorded within cooldown. It returns the time of the blocking send when
// the claim fails.
func (r *UserRepository) ClaimVerificationSend(ctx context.Context, userID string, cooldown time.Duration) (bool, *time.Time, error) {
	query := `
		UPDATE users SET verification_sent_at = NOW()
		WHERE id = $1 AND (verification_sent_at IS NULL OR verification_sent_at <= NOW() - make_interval(secs => $2))
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, userID, cooldown.Seconds())
	if err != nil {
		return false, nil, fmt.Errorf("failed to claim verification send: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil, nil
	}

	var sentAt *time.Time
	if err := r.db.Querier(ctx).QueryRow(ctx, `SELECT verification_sent_at FROM users WHERE id = $1`, userID).Scan(&sentAt); err != nil {
		return false, nil, database.MapPostgresError(err)
	}
	return false, sentAt, nil
}

// ReleaseVerificationSend clears the cooldown after a failed send.
func (r *UserRepository) ReleaseVerificationSend(ctx context.Context, userID string) error {
	_, err := r.db.Querier(ctx).Exec(ctx, `UPDATE users SET verification_sent_at = NULL WHERE id = $1`, userID)
	return err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, profile_version = profile_version + 1, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetActive toggles is_active and bumps profile_version.
func (r *UserRepository) SetActive(ctx context.Context, userID string, active bool) (*models.User, error) {
	query := `
		UPDATE users SET is_active = $2, profile_version = profile_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING` + userColumns
	return scanUserRow(r.db.Querier(ctx).QueryRow(ctx, query, userID, active))
}

func (r *UserRepository) SetFlagged(ctx context.Context, userID string, flagged bool) (*models.User, error) {
	query := `
		UPDATE users SET flagged_for_review = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING` + userColumns
	return scanUserRow(r.db.Querier(ctx).QueryRow(ctx, query, userID, flagged))
}

// SetPlan records the user's current plan, optionally advancing setup_step,
// and bumps profile_version.
func (r *UserRepository) SetPlan(ctx context.Context, userID, plan string, step *models.SetupStep) error {
	query := `
		UPDATE users SET
			subscription_plan = $2,
			setup_step = COALESCE($3, setup_step),
			profile_version = profile_version + 1,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, userID, plan, step)
	if err != nil {
		return fmt.Errorf("failed to set subscription plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// BumpProfileVersion increments profile_version for mutations stored outside
// the users row, such as settings.
func (r *UserRepository) BumpProfileVersion(ctx context.Context, userID string) (int, error) {
	var version int
	query := `UPDATE users SET profile_version = profile_version + 1, updated_at = NOW() WHERE id = $1 RETURNING profile_version`
	if err := r.db.Querier(ctx).QueryRow(ctx, query, userID).Scan(&version); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return version, nil
}

// SetMFASecret stores an encrypted TOTP secret with MFA still disabled.
func (r *UserRepository) SetMFASecret(ctx context.Context, userID string, encrypted, nonce []byte) error {
	query := `
		UPDATE users SET mfa_secret_encrypted = $2, mfa_secret_nonce = $3, mfa_enabled = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, userID, encrypted, nonce)
	if err != nil {
		return fmt.Errorf("failed to store MFA secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) EnableMFA(ctx context.Context, userID string, backupCodeHashes []string) error {
	query := `
		UPDATE users SET mfa_enabled = TRUE, mfa_backup_codes = $2, profile_version = profile_version + 1, updated_at = NOW()
		WHERE id = $1 AND mfa_secret_encrypted IS NOT NULL
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, userID, backupCodeHashes)
	if err != nil {
		return fmt.Errorf("failed to enable MFA: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrMFANotSetup
	}
	return nil
}

// ConsumeBackupCode removes one backup code hash. It returns false when the
// hash was not present.
func (r *UserRepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	query := `
		UPDATE users SET mfa_backup_codes = array_remove(mfa_backup_codes, $2), updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(mfa_backup_codes)
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, userID, codeHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearMFA removes the secret, backup codes and enabled flag.
func (r *UserRepository) ClearMFA(ctx context.Context, userID string) error {
	query := `
		UPDATE users SET
			mfa_secret_encrypted = NULL, mfa_secret_nonce = NULL, mfa_enabled = FALSE,
			mfa_backup_codes = '{}', profile_version = profile_version + 1, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to clear MFA: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) ListByType(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error) {
	var total int
	if err := r.db.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE user_type = $1`, userType).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT` + userColumns + ` FROM users WHERE user_type = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Querier(ctx).Query(ctx, query, userType, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", err)
	}
	users, err := scanUserRows(rows)
	return users, total, err
}

func (r *UserRepository) ListFlagged(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	var total int
	if err := r.db.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE flagged_for_review`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count flagged users: %w", err)
	}

	query := `SELECT` + userColumns + ` FROM users WHERE flagged_for_review ORDER BY updated_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Querier(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query flagged users: %w", err)
	}
	users, err := scanUserRows(rows)
	return users, total, err
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
