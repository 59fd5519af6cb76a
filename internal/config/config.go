package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Session  SessionConfig
	MFA      MFAConfig
	Email    EmailConfig
	Stripe   StripeConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Storage  StorageConfig
	Admin    AdminConfig
	Jobs     JobsConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	StatementTimeout  time.Duration
	ApplicationName   string
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// AuthConfig holds the signing secret for verification and password reset
// tokens. Sessions themselves are opaque and stored in the database.
type AuthConfig struct {
	JWTSecret              string
	EmailVerificationTTL   time.Duration
	PasswordResetTTL       time.Duration
	VerificationCooldown   time.Duration
	LoginTimingBaseDelayMs int
}

type SessionConfig struct {
	MobileTTL time.Duration
	WebTTL    time.Duration
}

type MFAConfig struct {
	EncryptionKey []byte
	Issuer        string
}

type EmailConfig struct {
	Region      string
	FromAddress string
	BaseURL     string
	FrontendURL string
	Enabled     bool
}

type StripeConfig struct {
	SecretKey     string
	PublicKey     string
	WebhookSecret string
	PendingWindow time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type QueueConfig struct {
	URL   string
	Queue string
}

type StorageConfig struct {
	Region        string
	Bucket        string
	PublicBaseURL string
}

type AdminConfig struct {
	AllowedIPs      []string
	SuperuserSecret string
	AdminSecret     string
	BootstrapEmail  string
	BootstrapPass   string
}

type JobsConfig struct {
	SessionCleanupInterval    time.Duration
	PendingPaymentInterval    time.Duration
	SubscriptionLapseInterval time.Duration
	StripeReconcileInterval   time.Duration
	WebhookPruneInterval      time.Duration
	WebhookRetention          time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "yoked"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			ConnectTimeout:    getEnvAsDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
			StatementTimeout:  getEnvAsDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
			ApplicationName:   getEnv("DB_APPLICATION_NAME", "yoked-api"),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:              jwtSecret,
			EmailVerificationTTL:   getEnvAsDuration("EMAIL_VERIFICATION_TTL", 24*time.Hour),
			PasswordResetTTL:       getEnvAsDuration("PASSWORD_RESET_TTL", 30*time.Minute),
			VerificationCooldown:   getEnvAsDuration("EMAIL_RESEND_COOLDOWN", 30*time.Second),
			LoginTimingBaseDelayMs: getEnvAsInt("LOGIN_TIMING_BASE_DELAY_MS", 250),
		},
		Session: SessionConfig{
			MobileTTL: getEnvAsDuration("SESSION_TTL_MOBILE", 365*24*time.Hour),
			WebTTL:    getEnvAsDuration("SESSION_TTL_WEB", 7*24*time.Hour),
		},
		MFA: MFAConfig{
			Issuer: getEnv("MFA_ISSUER", "Yoked App"),
		},
		Email: EmailConfig{
			Region:      getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@yoked.app"),
			BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
			FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			Enabled:     getEnvAsBool("EMAIL_ENABLED", env == "production"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			PublicKey:     getEnv("STRIPE_PUBLIC_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			PendingWindow: getEnvAsDuration("PAYMENT_PENDING_WINDOW", time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			URL:   getEnv("RABBITMQ_URL", ""),
			Queue: getEnv("BILLING_QUEUE", "billing.events"),
		},
		Storage: StorageConfig{
			Region:        getEnv("S3_REGION", getEnv("AWS_REGION", "us-east-1")),
			Bucket:        getEnv("S3_BUCKET_NAME", ""),
			PublicBaseURL: strings.TrimRight(getEnv("S3_PUBLIC_BASE_URL", ""), "/"),
		},
		Admin: AdminConfig{
			AllowedIPs:      getEnvAsList("ADMIN_WHITELISTED_IPS"),
			SuperuserSecret: getEnv("SUPERUSER_CREATION_SECRET_KEY", ""),
			AdminSecret:     getEnv("ADMIN_SECRET_KEY", ""),
			BootstrapEmail:  getEnv("ADMIN_EMAIL", ""),
			BootstrapPass:   getEnv("ADMIN_PASSWORD", ""),
		},
		Jobs: JobsConfig{
			SessionCleanupInterval:    getEnvAsDuration("JOB_SESSION_CLEANUP_INTERVAL", time.Hour),
			PendingPaymentInterval:    getEnvAsDuration("JOB_PENDING_PAYMENT_INTERVAL", time.Hour),
			SubscriptionLapseInterval: getEnvAsDuration("JOB_SUBSCRIPTION_LAPSE_INTERVAL", 24*time.Hour),
			StripeReconcileInterval:   getEnvAsDuration("JOB_STRIPE_RECONCILE_INTERVAL", 2*time.Hour),
			WebhookPruneInterval:      getEnvAsDuration("JOB_WEBHOOK_PRUNE_INTERVAL", 24*time.Hour),
			WebhookRetention:          getEnvAsDuration("WEBHOOK_EVENT_RETENTION", 30*24*time.Hour),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	key, err := loadMFAKey(getEnv("MFA_ENCRYPTION_KEY", ""), jwtSecret, env)
	if err != nil {
		return nil, err
	}
	cfg.MFA.EncryptionKey = key

	if env == "production" && cfg.Stripe.SecretKey != "" && cfg.Stripe.WebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// loadMFAKey decodes the base64 AES-256 key used for TOTP secrets. Outside
// production a missing key is derived from the JWT secret.
func loadMFAKey(encoded, jwtSecret, env string) ([]byte, error) {
	if encoded == "" {
		if env == "production" {
			return nil, fmt.Errorf("MFA_ENCRYPTION_KEY is required in production")
		}
		sum := sha256.Sum256([]byte("mfa:" + jwtSecret))
		return sum[:], nil
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",  // Vite default
		"http://localhost:19006", // Expo web
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
