package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/yoked/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserFetcher loads the user a reset token was issued for.
type UserFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TokenManager issues the signed single-purpose tokens sent by email.
type TokenManager struct {
	secret           string
	verificationTTL  time.Duration
	passwordResetTTL time.Duration
	users            UserFetcher
	now              func() time.Time
}

func NewTokenManager(secret string, verificationTTL, passwordResetTTL time.Duration, users UserFetcher) *TokenManager {
	return &TokenManager{
		secret:           secret,
		verificationTTL:  verificationTTL,
		passwordResetTTL: passwordResetTTL,
		users:            users,
		now:              time.Now,
	}
}

// resetKey binds a reset token to the password hash it was issued against,
// so the token stops working once the password changes.
func (tm *TokenManager) resetKey(user *models.User) []byte {
	return []byte(tm.secret + user.PasswordHash)
}

func (tm *TokenManager) sign(tokenType string, user *models.User, ttl time.Duration, key []byte) (string, error) {
	now := tm.now()
	claims := &models.TokenClaims{
		Type:   tokenType,
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (tm *TokenManager) GenerateVerificationToken(user *models.User) (string, error) {
	return tm.sign(models.TokenTypeEmailVerification, user, tm.verificationTTL, []byte(tm.secret))
}

func (tm *TokenManager) GeneratePasswordResetToken(user *models.User) (string, error) {
	return tm.sign(models.TokenTypePasswordReset, user, tm.passwordResetTTL, tm.resetKey(user))
}

// ParseVerificationToken returns the claims of a valid email verification
// token. Expired tokens yield ErrTokenExpired, anything else ErrInvalidToken.
func (tm *TokenManager) ParseVerificationToken(tokenString string) (*models.TokenClaims, error) {
	claims, err := tm.parse(tokenString, func(*models.TokenClaims) ([]byte, error) {
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Type != models.TokenTypeEmailVerification {
		return nil, models.ErrInvalidToken
	}
	return claims, nil
}

// ParsePasswordResetToken validates a reset token against the user's current
// password hash and returns that user.
func (tm *TokenManager) ParsePasswordResetToken(ctx context.Context, tokenString string) (*models.User, error) {
	var user *models.User
	claims, err := tm.parse(tokenString, func(c *models.TokenClaims) ([]byte, error) {
		if c.Type != models.TokenTypePasswordReset || c.UserID == "" {
			return nil, models.ErrInvalidToken
		}
		u, err := tm.users.GetByID(ctx, c.UserID)
		if err != nil {
			return nil, models.ErrInvalidToken
		}
		user = u
		return tm.resetKey(u), nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Type != models.TokenTypePasswordReset || user == nil {
		return nil, models.ErrInvalidToken
	}
	return user, nil
}

func (tm *TokenManager) parse(tokenString string, key func(*models.TokenClaims) ([]byte, error)) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key(claims)
	}, jwt.WithTimeFunc(tm.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrInvalidToken
	}
	if !token.Valid {
		return nil, models.ErrInvalidToken
	}
	return claims, nil
}
