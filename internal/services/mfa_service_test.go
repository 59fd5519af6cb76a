package services

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mfaFixture struct {
	users    *MockUserRepository
	sessions *MockSessionRepository
	totp     *auth.TOTPManager
	svc      *MFAService
}

func newMFAFixture(t *testing.T) *mfaFixture {
	t.Helper()
	tm, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "Yoked")
	require.NoError(t, err)

	f := &mfaFixture{users: &MockUserRepository{}, sessions: &MockSessionRepository{}, totp: tm}
	sessions := NewSessionService(f.sessions, time.Hour, time.Hour, testLogger())
	f.svc = NewMFAService(f.users, sessions, tm, testLogger(), testAuditLogger())
	return f
}

// enrolledUser returns a user holding a fresh secret and the plain secret.
func (f *mfaFixture) enrolledUser(t *testing.T, enabled bool) (*models.User, string) {
	t.Helper()
	setup, encrypted, nonce, err := f.totp.GenerateSetup("lifter@example.com")
	require.NoError(t, err)
	return &models.User{
		ID:                 "user-1",
		Email:              "lifter@example.com",
		MFAEnabled:         enabled,
		MFASecretEncrypted: encrypted,
		MFASecretNonce:     nonce,
	}, setup.Secret
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// ============================================================================
// BeginSetup
// ============================================================================

func TestMFAService_BeginSetup_StoresSecret(t *testing.T) {
	f := newMFAFixture(t)
	var stored []byte
	f.users.SetMFASecretFunc = func(ctx context.Context, userID string, encrypted, nonce []byte) error {
		stored = encrypted
		assert.NotEmpty(t, nonce)
		return nil
	}

	setup, err := f.svc.BeginSetup(context.Background(), &models.User{ID: "user-1", Email: "a@b.com"})

	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.QRCode, "data:image/png;base64,")
	assert.NotEmpty(t, stored)
	assert.NotEqual(t, setup.Secret, string(stored))
}

func TestMFAService_BeginSetup_AlreadyEnabled(t *testing.T) {
	f := newMFAFixture(t)

	_, err := f.svc.BeginSetup(context.Background(), &models.User{ID: "user-1", MFAEnabled: true})

	assert.ErrorIs(t, err, models.ErrMFAAlreadyEnabled)
}

// ============================================================================
// ConfirmSetup
// ============================================================================

func TestMFAService_ConfirmSetup_EnablesAndVerifiesSession(t *testing.T) {
	f := newMFAFixture(t)
	user, secret := f.enrolledUser(t, false)
	var hashes []string
	f.users.EnableMFAFunc = func(ctx context.Context, userID string, h []string) error {
		hashes = h
		return nil
	}
	verified := ""
	f.sessions.SetMFAVerifiedFunc = func(ctx context.Context, id string) error {
		verified = id
		return nil
	}

	resp, err := f.svc.ConfirmSetup(context.Background(), user, &models.Session{ID: "sess-1"}, currentCode(t, secret))

	require.NoError(t, err)
	assert.True(t, resp.MFAEnabled)
	require.Len(t, resp.BackupCodes, auth.BackupCodeCount)
	require.Len(t, hashes, auth.BackupCodeCount)
	assert.Equal(t, f.totp.HashBackupCode(resp.BackupCodes[0]), hashes[0])
	assert.Equal(t, "sess-1", verified)
}

func TestMFAService_ConfirmSetup_NoPendingSecret(t *testing.T) {
	f := newMFAFixture(t)

	_, err := f.svc.ConfirmSetup(context.Background(), &models.User{ID: "user-1"}, nil, "123456")

	assert.ErrorIs(t, err, models.ErrMFANotSetup)
}

func TestMFAService_ConfirmSetup_WrongCode(t *testing.T) {
	f := newMFAFixture(t)
	user, _ := f.enrolledUser(t, false)
	f.users.EnableMFAFunc = func(ctx context.Context, userID string, h []string) error {
		t.Fatal("must not enable")
		return nil
	}

	_, err := f.svc.ConfirmSetup(context.Background(), user, nil, "000000")

	assert.ErrorIs(t, err, models.ErrInvalidMFACode)
}

// ============================================================================
// Verify
// ============================================================================

func TestMFAService_Verify_TOTP(t *testing.T) {
	f := newMFAFixture(t)
	user, secret := f.enrolledUser(t, true)

	resp, err := f.svc.Verify(context.Background(), user, &models.Session{ID: "sess-1"}, currentCode(t, secret))

	require.NoError(t, err)
	assert.True(t, resp.MFAVerified)
	assert.False(t, resp.UsedBackup)
}

func TestMFAService_Verify_BackupCodeConsumed(t *testing.T) {
	f := newMFAFixture(t)
	user, _ := f.enrolledUser(t, true)
	user.MFABackupCodes = []string{"h1", "h2", "h3"}
	var consumed string
	f.users.ConsumeBackupCodeFunc = func(ctx context.Context, userID, codeHash string) (bool, error) {
		consumed = codeHash
		return true, nil
	}

	resp, err := f.svc.Verify(context.Background(), user, &models.Session{ID: "sess-1"}, "abcd-efgh")

	require.NoError(t, err)
	assert.True(t, resp.UsedBackup)
	assert.Equal(t, 2, resp.BackupsRemain)
	assert.Equal(t, f.totp.HashBackupCode("ABCDEFGH"), consumed)
}

func TestMFAService_Verify_BackupCodeReused(t *testing.T) {
	f := newMFAFixture(t)
	user, _ := f.enrolledUser(t, true)
	f.users.ConsumeBackupCodeFunc = func(ctx context.Context, userID, codeHash string) (bool, error) {
		return false, nil
	}
	f.sessions.SetMFAVerifiedFunc = func(ctx context.Context, id string) error {
		t.Fatal("session must stay unverified")
		return nil
	}

	_, err := f.svc.Verify(context.Background(), user, &models.Session{ID: "sess-1"}, "ABCDEFGH")

	assert.ErrorIs(t, err, models.ErrInvalidMFACode)
}

func TestMFAService_Verify_NotEnabled(t *testing.T) {
	f := newMFAFixture(t)
	user, _ := f.enrolledUser(t, false)

	_, err := f.svc.Verify(context.Background(), user, &models.Session{ID: "sess-1"}, "123456")

	assert.ErrorIs(t, err, models.ErrMFANotSetup)
}

// ============================================================================
// Disable / Reset
// ============================================================================

func TestMFAService_Disable_ValidCode(t *testing.T) {
	f := newMFAFixture(t)
	user, secret := f.enrolledUser(t, true)
	cleared := false
	f.users.ClearMFAFunc = func(ctx context.Context, userID string) error {
		cleared = true
		return nil
	}

	err := f.svc.Disable(context.Background(), user, currentCode(t, secret))

	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestMFAService_Disable_InvalidCode(t *testing.T) {
	f := newMFAFixture(t)
	user, _ := f.enrolledUser(t, true)

	err := f.svc.Disable(context.Background(), user, "000000")

	assert.ErrorIs(t, err, models.ErrInvalidMFACode)
}

func TestMFAService_Reset_UnknownUser(t *testing.T) {
	f := newMFAFixture(t)
	f.users.ClearMFAFunc = func(ctx context.Context, userID string) error { return models.ErrNotFound }

	err := f.svc.Reset(context.Background(), "admin-1", "ghost")

	assert.ErrorIs(t, err, models.ErrNotFound)
}
