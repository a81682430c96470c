package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Line         LineConfig
	CORS         CORSConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines session and magic-link parameters.
type AuthConfig struct {
	JWTSecret                  string
	SessionTTLHours            int
	MagicLinkTTLMinutes        int
	MagicLinkRequestsPerMinute int
	SessionCacheTTLSeconds     int
}

// LineConfig holds LINE channel credentials for ID token verification.
type LineConfig struct {
	ChannelID     string
	ChannelSecret string
	VerifyURL     string
}

// CORSConfig controls cross-origin behavior for browser clients.
type CORSConfig struct {
	PrimaryOrigin string
	ExtraOrigins  []string
}

// NotificationConfig holds magic-link delivery endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "audition-session-service"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:                  getEnv("AUTH_JWT_SECRET", "dev-secret"),
			SessionTTLHours:            getEnvAsInt("AUTH_SESSION_TTL_HOURS", 24),
			MagicLinkTTLMinutes:        getEnvAsInt("AUTH_MAGIC_LINK_TTL_MINUTES", 10),
			MagicLinkRequestsPerMinute: getEnvAsInt("MAGIC_LINK_REQUESTS_PER_MINUTE", 3),
			SessionCacheTTLSeconds:     getEnvAsInt("AUTH_SESSION_CACHE_TTL_SECONDS", 2),
		},
		Line: LineConfig{
			ChannelID:     os.Getenv("LINE_CHANNEL_ID"),
			ChannelSecret: os.Getenv("LINE_CHANNEL_SECRET"),
			VerifyURL:     getEnv("LINE_VERIFY_URL", "https://api.line.me/oauth2/v2.1/verify"),
		},
		CORS: CORSConfig{
			PrimaryOrigin: getEnv("CORS_PRIMARY_ORIGIN", defaultPrimaryOrigin(env)),
			ExtraOrigins:  splitCSV(os.Getenv("CORS_EXTRA_ORIGINS")),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// IsDevelopment reports whether the service runs in the designated local-development environment.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

// SessionTTL returns the session token lifetime.
func (c AuthConfig) SessionTTL() time.Duration {
	hours := c.SessionTTLHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// MagicLinkTTL returns the single-use link lifetime.
func (c AuthConfig) MagicLinkTTL() time.Duration {
	minutes := c.MagicLinkTTLMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

// SessionCacheTTL bounds the session lookup cache. Capped at a few seconds;
// the cache is a latency optimization, never a source of truth.
func (c AuthConfig) SessionCacheTTL() time.Duration {
	seconds := c.SessionCacheTTLSeconds
	if seconds <= 0 || seconds > 5 {
		seconds = 2
	}
	return time.Duration(seconds) * time.Second
}

// AllowedOrigins returns the full CORS allow-set including the primary origin.
func (c CORSConfig) AllowedOrigins() []string {
	origins := make([]string, 0, len(c.ExtraOrigins)+1)
	if c.PrimaryOrigin != "" {
		origins = append(origins, c.PrimaryOrigin)
	}
	origins = append(origins, c.ExtraOrigins...)
	return origins
}

func defaultPrimaryOrigin(env string) string {
	if env == "development" {
		return "http://localhost:3000"
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
