package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
)

type contextKey string

const (
	UserContextKey    contextKey = "user"
	SessionContextKey contextKey = "session"
)

// AdminSecretHeader carries the server-wide admin secret on admin routes.
const AdminSecretHeader = "X-Admin-Secret"

// SuperuserSecretHeader carries the admin creation secret.
const SuperuserSecretHeader = "X-Superuser-Secret"

// SessionValidator resolves an opaque bearer token to a live session.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
}

// UserRepository loads the owner of a session.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// SessionMiddleware authenticates the bearer token and injects the session
// and its user into the request context.
func SessionMiddleware(sessions SessionValidator, users UserRepository, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "invalid format")
				return
			}

			session, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, models.ErrSessionExpired):
					pkghttp.WriteUnauthorized(w, "session expired")
				case errors.Is(err, models.ErrSessionNotFound):
					pkghttp.WriteUnauthorized(w, "invalid session")
				default:
					logger.Error("session validation failed", slog.Any("error", err))
					pkghttp.WriteInternalError(w, "internal server error")
				}
				return
			}

			user, err := users.GetByID(r.Context(), session.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "user not found")
					return
				}
				logger.Error("failed to load session user", slog.String("session_id", session.ID), slog.Any("error", err))
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			if !user.IsActive {
				pkghttp.WriteForbidden(w, "account is inactive")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			ctx = context.WithValue(ctx, SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireMFA rejects users with MFA enabled whose session has not passed the
// second factor. Must run after SessionMiddleware.
func RequireMFA(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r)
		session := GetSessionFromContext(r)
		if user == nil || session == nil {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}

		if user.MFAEnabled && !session.MFAVerified {
			pkghttp.WriteForbidden(w, "MFA verification required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin admits active, unflagged admins presenting the server admin
// secret from a session that passed MFA. An empty adminSecret denies every
// request.
func RequireAdmin(adminSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r)
			if user == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			if !user.IsAdmin() || !user.IsActive || user.FlaggedForReview {
				pkghttp.WriteForbidden(w, "admin privileges required")
				return
			}

			if !SecretMatches(adminSecret, r.Header.Get(AdminSecretHeader)) {
				pkghttp.WriteForbidden(w, "admin privileges required")
				return
			}

			// Admins enroll a second factor through /mfa/setup and /mfa/confirm,
			// which live outside this group.
			if !user.MFAEnabled {
				pkghttp.WriteForbidden(w, "MFA setup required")
				return
			}
			if session := GetSessionFromContext(r); session == nil || !session.MFAVerified {
				pkghttp.WriteForbidden(w, "MFA verification required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecretMatches compares a presented secret against the configured one in
// constant time. An unset expected secret never matches.
func SecretMatches(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

func GetUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func GetSessionFromContext(r *http.Request) *models.Session {
	session, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}

// WithUser returns a copy of ctx carrying user and session. Used by tests
// and by handlers that act on behalf of a freshly created session.
func WithUser(ctx context.Context, user *models.User, session *models.Session) context.Context {
	ctx = context.WithValue(ctx, UserContextKey, user)
	return context.WithValue(ctx, SessionContextKey, session)
}
