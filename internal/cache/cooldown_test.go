package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClaimer struct {
	ClaimFunc   func(ctx context.Context, userID string, cooldown time.Duration) (bool, *time.Time, error)
	ReleaseFunc func(ctx context.Context, userID string) error
}

func (m *mockClaimer) ClaimVerificationSend(ctx context.Context, userID string, cooldown time.Duration) (bool, *time.Time, error) {
	return m.ClaimFunc(ctx, userID, cooldown)
}

func (m *mockClaimer) ReleaseVerificationSend(ctx context.Context, userID string) error {
	return m.ReleaseFunc(ctx, userID)
}

func TestDBCooldown_Claim_Free(t *testing.T) {
	c := NewDBCooldown(&mockClaimer{
		ClaimFunc: func(ctx context.Context, userID string, cooldown time.Duration) (bool, *time.Time, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, 30*time.Second, cooldown)
			return true, nil, nil
		},
	})

	ok, remaining, err := c.Claim(context.Background(), "u1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, remaining)
}

func TestDBCooldown_Claim_Blocked_ReportsRemaining(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	sentAt := now.Add(-10 * time.Second)
	c := NewDBCooldown(&mockClaimer{
		ClaimFunc: func(ctx context.Context, userID string, cooldown time.Duration) (bool, *time.Time, error) {
			return false, &sentAt, nil
		},
	})
	c.now = func() time.Time { return now }

	ok, remaining, err := c.Claim(context.Background(), "u1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, remaining)
}

func TestDBCooldown_Claim_BlockedWithoutTimestamp(t *testing.T) {
	c := NewDBCooldown(&mockClaimer{
		ClaimFunc: func(ctx context.Context, userID string, cooldown time.Duration) (bool, *time.Time, error) {
			return false, nil, nil
		},
	})

	ok, remaining, err := c.Claim(context.Background(), "u1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, remaining)
}

func TestDBCooldown_Claim_Error(t *testing.T) {
	c := NewDBCooldown(&mockClaimer{
		ClaimFunc: func(ctx context.Context, userID string, cooldown time.Duration) (bool, *time.Time, error) {
			return false, nil, errors.New("db down")
		},
	})

	_, _, err := c.Claim(context.Background(), "u1", 30*time.Second)
	assert.Error(t, err)
}

func TestDBCooldown_Release(t *testing.T) {
	released := ""
	c := NewDBCooldown(&mockClaimer{
		ReleaseFunc: func(ctx context.Context, userID string) error {
			released = userID
			return nil
		},
	})

	require.NoError(t, c.Release(context.Background(), "u1"))
	assert.Equal(t, "u1", released)
}
