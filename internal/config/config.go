package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	MigrationsPath     string
	MigrateOnStart     bool
	JWTSecret          string
	JWTIssuer          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	CORSAllowedOrigins []string

	DefaultPerPage int
	MaxPerPage     int

	IdempotencyTTL  time.Duration
	RateLimitMax    int64
	RateLimitWindow time.Duration

	WebhookDeliveryEnabled bool
	WebhookRequestTimeout  time.Duration
	WebhookMaxAttempts     int

	SecurityHeadersEnabled bool
	EnableHSTS             bool
	MaxBodyBytes           int64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		MigrationsPath:     valueOrDefault(k.String("MIGRATIONS_PATH"), "file://migrations"),
		MigrateOnStart:     parseBool(valueOrDefault(k.String("MIGRATE_ON_START"), "true")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "khata-api"),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		RefreshTokenTTL:    parseDuration(k.String("REFRESH_TOKEN_TTL"), "720h"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		DefaultPerPage: intOrDefault(k, "PAGINATION_DEFAULT_PER_PAGE", 20),
		MaxPerPage:     intOrDefault(k, "PAGINATION_MAX_PER_PAGE", 100),

		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitMax:    int64(intOrDefault(k, "RATE_LIMIT_MAX", 120)),
		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),

		WebhookDeliveryEnabled: parseBool(valueOrDefault(k.String("WEBHOOK_DELIVERY_ENABLED"), "true")),
		WebhookRequestTimeout:  parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "10s"),
		WebhookMaxAttempts:     intOrDefault(k, "WEBHOOK_MAX_ATTEMPTS", 6),

		SecurityHeadersEnabled: parseBool(valueOrDefault(k.String("SECURITY_HEADERS_ENABLED"), "true")),
		EnableHSTS:             parseBool(k.String("SECURITY_ENABLE_HSTS")),
		MaxBodyBytes:           int64(intOrDefault(k, "HTTP_MAX_BODY_BYTES", 1<<20)),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(k *koanf.Koanf, key string, def int) int {
	if v := k.Int(key); v > 0 {
		return v
	}
	return def
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
