package middleware

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/yoked/internal/auth"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
)

// AdminCreationConfig guards the admin creation route.
type AdminCreationConfig struct {
	AllowedIPs      []string
	SuperuserSecret string
}

// RequireAdminCreation admits requests from an allow-listed client IP that
// carry the superuser creation secret. An empty allow-list or secret denies
// everything.
func RequireAdminCreation(config AdminCreationConfig, ipConfig *pkghttp.IPConfig, audit *pkglogger.AuditLogger, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipConfig)

			reason := ""
			switch {
			case !pkghttp.IPAllowed(ip, config.AllowedIPs):
				reason = "ip_not_allowed"
			case !auth.SecretMatches(config.SuperuserSecret, r.Header.Get(auth.SuperuserSecretHeader)):
				reason = "bad_superuser_secret"
			}

			if reason != "" {
				logger.Warn("admin creation rejected", slog.String("client_ip", ip), slog.String("reason", reason))
				audit.Log(r.Context(), pkglogger.AuditEvent{
					Category:      pkglogger.AuditAdmin,
					EventType:     "admin_create",
					IPAddress:     ip,
					FailureReason: reason,
				})
				pkghttp.WriteForbidden(w, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
