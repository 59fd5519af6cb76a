package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore enforces a minimum interval between actions on a key.
// Claim reports whether the caller may proceed and, when it may not, how
// long remains.
type CooldownStore interface {
	Claim(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error)
	Release(ctx context.Context, key string) error
}

// RedisCooldown keeps cooldowns in Redis so they survive restarts and are
// shared between instances.
type RedisCooldown struct {
	client *redis.Client
	prefix string
}

func NewRedisCooldown(client *redis.Client, prefix string) *RedisCooldown {
	return &RedisCooldown{client: client, prefix: prefix}
}

func (c *RedisCooldown) key(k string) string {
	return c.prefix + ":" + k
}

func (c *RedisCooldown) Claim(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error) {
	ok, err := c.client.SetNX(ctx, c.key(key), time.Now().Unix(), cooldown).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to claim cooldown: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := c.client.PTTL(ctx, c.key(key)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read cooldown ttl: %w", err)
	}
	// -2: key vanished between calls, -1: no expiry set
	if ttl < 0 {
		ttl = cooldown
	}
	return false, ttl, nil
}

func (c *RedisCooldown) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to release cooldown: %w", err)
	}
	return nil
}

// VerificationSendClaimer is the users table view used by DBCooldown.
type VerificationSendClaimer interface {
	ClaimVerificationSend(ctx context.Context, userID string, cooldown time.Duration) (bool, *time.Time, error)
	ReleaseVerificationSend(ctx context.Context, userID string) error
}

// DBCooldown tracks the verification email cooldown in
// users.verification_sent_at. Keys are user ids.
type DBCooldown struct {
	users VerificationSendClaimer
	now   func() time.Time
}

func NewDBCooldown(users VerificationSendClaimer) *DBCooldown {
	return &DBCooldown{users: users, now: time.Now}
}

func (c *DBCooldown) Claim(ctx context.Context, userID string, cooldown time.Duration) (bool, time.Duration, error) {
	ok, sentAt, err := c.users.ClaimVerificationSend(ctx, userID, cooldown)
	if err != nil {
		return false, 0, err
	}
	if ok {
		return true, 0, nil
	}

	remaining := cooldown
	if sentAt != nil {
		remaining = cooldown - c.now().Sub(*sentAt)
	}
	if remaining <= 0 {
		remaining = time.Second
	}
	return false, remaining, nil
}

func (c *DBCooldown) Release(ctx context.Context, userID string) error {
	return c.users.ReleaseVerificationSend(ctx, userID)
}
