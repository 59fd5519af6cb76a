package routes

import (
	"log/slog"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/handlers"
	"github.com/BradenHooton/yoked/internal/middleware"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
type Handlers struct {
	Auth     *handlers.AuthHandler
	MFA      *handlers.MFAHandler
	User     *handlers.UserHandler
	Settings *handlers.SettingsHandler
	Admin    *handlers.AdminHandler
	Tier     *handlers.TierHandler
	Payment  *handlers.PaymentHandler
	Webhook  *handlers.WebhookHandler
	Health   *handlers.HealthHandler
}

// Security carries what the auth middleware needs.
type Security struct {
	Sessions      auth.SessionValidator
	Users         auth.UserRepository
	IPConfig      *pkghttp.IPConfig
	AdminSecret   string
	AdminCreation middleware.AdminCreationConfig
	AuthRateLimit middleware.RateLimitConfig
	Audit         *pkglogger.AuditLogger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, sec Security, logger *slog.Logger) {
	limited := middleware.RateLimitByIP(sec.AuthRateLimit, sec.IPConfig)

	router.Get("/health", h.Health.Health)
	router.Post("/stripe/webhooks/", h.Webhook.Stripe)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(limited)
		r.Post("/api/auth/register", h.Auth.Register)
		r.Post("/api/auth/login", h.Auth.Login)
		r.Post("/api/auth/resend-verification", h.Auth.ResendVerification)
		r.Post("/api/auth/reset-password/request", h.Auth.RequestPasswordReset)
		r.Post("/api/auth/reset-password", h.Auth.ConfirmPasswordReset)
		r.Post("/api/admin/login", h.Auth.AdminLogin)
	})
	router.Get("/api/auth/verify-email", h.Auth.VerifyEmail)
	router.With(middleware.RequireAdminCreation(sec.AdminCreation, sec.IPConfig, sec.Audit, logger)).
		Post("/api/admin/create", h.Admin.CreateAdmin)

	router.Get("/api/subscriptions/", h.Tier.List)
	router.Get("/api/subscriptions/version", h.Tier.Version)
	router.Get("/api/subscriptions/{id}", h.Tier.Get)

	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(sec.Sessions, sec.Users, logger))

		// Reachable before the second factor is verified.
		r.Post("/api/auth/logout", h.Auth.Logout)
		r.Post("/api/auth/logout-all", h.Auth.LogoutAll)
		for _, prefix := range []string{"/api/auth/mfa", "/api/admin/mfa"} {
			r.Post(prefix+"/setup", h.MFA.Setup)
			r.Post(prefix+"/confirm", h.MFA.Confirm)
			r.Post(prefix+"/verify", h.MFA.Verify)
		}
		r.Get("/api/admin/mfa/setup", h.MFA.Setup)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireMFA)

			r.Delete("/api/auth/mfa", h.MFA.Disable)

			r.Get("/api/users/me", h.User.Me)
			r.Get("/api/users/me/version", h.User.ProfileVersion)
			r.Put("/api/users/me/profile", h.User.UpdateProfile)
			r.Put("/api/users/me/avatar", h.User.UploadAvatar)

			r.Put("/api/settings/password", h.Auth.ChangePassword)
			r.Get("/api/settings/sessions", h.Settings.ListSessions)
			r.Delete("/api/settings/sessions/{id}", h.Settings.RevokeSession)
			r.Get("/api/settings/subscription", h.Settings.GetSubscription)
			r.Delete("/api/settings/subscription", h.Settings.CancelSubscription)
			r.Delete("/api/settings/account", h.User.DeleteAccount)
			r.Get("/api/settings/{feature}", h.Settings.GetFeature)
			r.Put("/api/settings/{feature}", h.Settings.UpdateFeature)

			r.Post("/api/payments/create", h.Payment.Create)
			r.Post("/api/payments/free", h.Payment.SubscribeFree)
			r.Get("/api/payments/cancel", h.Payment.Cancel)
			r.Post("/api/payments/verify", h.Payment.Verify)
			r.Get("/api/payments/history", h.Payment.History)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin(sec.AdminSecret))

				r.Get("/api/admin/list", h.Admin.ListUsers)
				r.Get("/api/admin/moderate-flagged", h.Admin.ListFlagged)
				r.Put("/api/admin/users/{id}/flag", h.Admin.Flag)
				r.Post("/api/admin/users/{id}/deactivate", h.Admin.Deactivate)
				r.Post("/api/admin/users/{id}/reactivate", h.Admin.Reactivate)
				r.Post("/api/admin/users/{id}/mfa/reset", h.MFA.Reset)

				r.Post("/api/subscriptions/", h.Tier.Create)
				r.Put("/api/subscriptions/{id}", h.Tier.Update)
				r.Put("/api/subscriptions/{id}/deactivate", h.Tier.Deactivate)
				r.Delete("/api/subscriptions/{id}", h.Tier.Delete)

				r.Post("/api/payments/refund", h.Payment.Refund)
				r.Get("/api/payments/admin/history", h.Payment.AdminHistory)
			})
		})
	})
}
