package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "j***@*******.com", SanitizedEmail("jane@example.com"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("no-at-sign"))
}

func TestTokenPrefix(t *testing.T) {
	assert.Equal(t, "abcdef…", TokenPrefix("abcdefghijklmnop"))
	assert.Equal(t, "[redacted]", TokenPrefix("short"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("token=abc"))
	assert.True(t, SanitizeQueryString("session_id=cs_test_1"))
	assert.False(t, SanitizeQueryString("page=2&page_size=10"))
}

func TestAuditLogger_LevelFollowsOutcome(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogAuthAttempt(context.Background(), "login", "user-1", "203.0.113.1", false, "invalid_password")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "auth", entry["audit_type"])
	assert.Equal(t, "invalid_password", entry["failure_reason"])
}

func TestAuditLogger_AdminActionCarriesActor(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogAdminAction(context.Background(), "user_deactivated", "admin-1", "user-2", nil)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "admin-1", entry["actor_id"])
	assert.Equal(t, "user-2", entry["user_id"])
}

func TestAuditLogger_NilSafe(t *testing.T) {
	var al *AuditLogger
	assert.NotPanics(t, func() {
		al.LogMFAEvent(context.Background(), "mfa_verified", "u", true)
	})
}
