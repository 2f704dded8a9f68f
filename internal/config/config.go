package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string
	Env      string // development | production

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string // empty → tokens are checked against /auth/v1/user
	StorageBucket      string

	// Session
	SessionCookieName string
	SessionCacheTTL   time.Duration

	// Cron
	CronSecret   string
	CronSchedule string // empty disables the in-process scheduler
	Timezone     string

	// Exports
	GotenbergURL    string
	ExportRateLimit int // requests per minute per user/IP

	// Diagnostics rate limit (shared through Redis when REDIS_URL is set)
	RedisURL        string
	DiagRateLimit   int
	DiagRateWindow  time.Duration
	CatalogCacheTTL time.Duration

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Observability
	OTLPEndpoint string

	// CORS
	CORSOrigins []string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("APP_ENV", "development"),

		SupabaseURL:        strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),
		StorageBucket:      getEnv("SUPABASE_STORAGE_BUCKET", "auditorias"),

		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "sb-access-token"),
		SessionCacheTTL:   getEnvDuration("SESSION_CACHE_TTL", time.Minute),

		CronSecret:   getEnv("CRON_SECRET", ""),
		CronSchedule: getEnv("CRON_SCHEDULE", ""),
		Timezone:     getEnv("APP_TIMEZONE", "America/Sao_Paulo"),

		GotenbergURL:    strings.TrimRight(getEnv("GOTENBERG_URL", "http://localhost:3000"), "/"),
		ExportRateLimit: getEnvInt("EXPORT_RATE_LIMIT", 30),

		RedisURL:        getEnv("REDIS_URL", ""),
		DiagRateLimit:   getEnvInt("DIAG_RATE_LIMIT", 10),
		DiagRateWindow:  getEnvDuration("DIAG_RATE_WINDOW", time.Minute),
		CatalogCacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 0),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
	}
}

// Validate reports missing settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.SupabaseURL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is required"))
	}
	if c.SupabaseServiceKey == "" {
		errs = append(errs, errors.New("SUPABASE_SERVICE_ROLE_KEY is required"))
	}
	if c.SupabaseAnonKey == "" {
		errs = append(errs, errors.New("SUPABASE_ANON_KEY is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, errors.New("APP_TIMEZONE is not a valid IANA zone"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Location returns the configured timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
