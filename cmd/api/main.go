package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/background"
	"github.com/BradenHooton/yoked/internal/billing"
	"github.com/BradenHooton/yoked/internal/cache"
	"github.com/BradenHooton/yoked/internal/config"
	"github.com/BradenHooton/yoked/internal/database"
	"github.com/BradenHooton/yoked/internal/events"
	"github.com/BradenHooton/yoked/internal/handlers"
	middlewareCustom "github.com/BradenHooton/yoked/internal/middleware"
	"github.com/BradenHooton/yoked/internal/repositories"
	"github.com/BradenHooton/yoked/internal/routes"
	"github.com/BradenHooton/yoked/internal/services"
	"github.com/BradenHooton/yoked/internal/storage"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	subscriptionRepo := repositories.NewSubscriptionRepository(db)
	tierRepo := repositories.NewTierRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)
	webhookRepo := repositories.NewWebhookEventRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.EmailVerificationTTL, cfg.Auth.PasswordResetTTL, userRepo)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay: time.Duration(cfg.Auth.LoginTimingBaseDelayMs) * time.Millisecond,
		Jitter:    50 * time.Millisecond,
	})
	totpManager, err := auth.NewTOTPManager(cfg.MFA.EncryptionKey, cfg.MFA.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	// Verification cooldown lives in Redis when available
	var cooldown services.CooldownStore = cache.NewDBCooldown(userRepo)
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, using database cooldown", slog.Any("error", err))
		} else {
			defer redisClient.Close()
			cooldown = cache.NewRedisCooldown(redisClient, "verify")
		}
	}

	var publisher services.EventPublisher = events.NewNoopPublisher(logger)
	if cfg.Queue.URL != "" {
		amqpPublisher := events.NewAMQPPublisher(cfg.Queue.URL, cfg.Queue.Queue, logger)
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	emailService, err := services.NewEmailService(ctx, cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.BaseURL, cfg.Email.FrontendURL, cfg.Email.Enabled, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	avatarStore, err := storage.NewS3Store(ctx, cfg.Storage.Region, cfg.Storage.Bucket, cfg.Storage.PublicBaseURL, logger)
	if err != nil {
		logger.Error("failed to initialize object storage", slog.Any("error", err))
		os.Exit(1)
	}

	gateway := billing.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, logger)

	// Initialize services
	sessionService := services.NewSessionService(sessionRepo, cfg.Session.MobileTTL, cfg.Session.WebTTL, logger)
	authService := services.NewAuthService(userRepo, sessionService, tokenManager, emailService, timingDelay, logger, auditLogger)
	verificationService := services.NewEmailVerificationService(userRepo, tokenManager, emailService, cooldown, cfg.Auth.VerificationCooldown, logger, auditLogger)
	mfaService := services.NewMFAService(userRepo, sessionService, totpManager, logger, auditLogger)
	adminService := services.NewAdminService(userRepo, sessionService, logger, auditLogger)
	tierService := services.NewTierService(tierRepo, db, logger, auditLogger)
	paymentService := services.NewPaymentService(
		paymentRepo, subscriptionRepo, tierRepo, userRepo, db, gateway, publisher,
		services.PaymentConfig{FrontendURL: cfg.Email.FrontendURL, PendingWindow: cfg.Stripe.PendingWindow},
		logger, auditLogger,
	)
	userService := services.NewUserService(userRepo, avatarStore, paymentService, logger, auditLogger)
	settingsService := services.NewSettingsService(settingsRepo, userRepo, db, logger)
	webhookService := services.NewWebhookService(webhookRepo, db, gateway, paymentService, logger)

	// Bootstrap first admin user if configured
	bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := adminService.Bootstrap(bootstrapCtx, cfg.Admin.BootstrapEmail, cfg.Admin.BootstrapPass, cfg.Admin.SuperuserSecret); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, verificationService, ipConfig, cfg.Email.FrontendURL, logger),
		MFA:      handlers.NewMFAHandler(mfaService),
		User:     handlers.NewUserHandler(userService),
		Settings: handlers.NewSettingsHandler(settingsService, sessionService, paymentService),
		Admin:    handlers.NewAdminHandler(adminService),
		Tier:     handlers.NewTierHandler(tierService),
		Payment:  handlers.NewPaymentHandler(paymentService),
		Webhook:  handlers.NewWebhookHandler(webhookService, logger),
		Health:   handlers.NewHealthHandler(db, logger),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, h, routes.Security{
		Sessions:    sessionService,
		Users:       userRepo,
		IPConfig:    ipConfig,
		AdminSecret: cfg.Admin.AdminSecret,
		AdminCreation: middlewareCustom.AdminCreationConfig{
			AllowedIPs:      cfg.Admin.AllowedIPs,
			SuperuserSecret: cfg.Admin.SuperuserSecret,
		},
		AuthRateLimit: middlewareCustom.DefaultAuthRateLimit(),
		Audit:         auditLogger,
	}, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	scheduler := background.NewScheduler(logger, background.DefaultJobs(cfg.Jobs, sessionService, paymentService, webhookService)...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return scheduler.Start(gctx)
	})

	if cfg.Queue.URL != "" {
		consumer := events.NewConsumer(cfg.Queue.URL, cfg.Queue.Queue, emailService, logger)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		scheduler.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
