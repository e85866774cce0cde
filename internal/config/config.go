// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tenancy: static API keys mapping bearer keys to tenant IDs.
	// Format: "key1:tenant-a,key2:tenant-b". Key issuance and rotation are
	// handled outside this service.
	APIKeys map[string]string

	// AdminSecret authenticates admin surfaces (webhook subscription CRUD).
	AdminSecret string

	// SnapshotInterval controls the periodic trust snapshot worker.
	// Zero disables snapshotting.
	SnapshotInterval time.Duration

	// OTLPEndpoint enables OpenTelemetry tracing when set.
	OTLPEndpoint string

	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string

	// RateLimitPerMinute caps requests per client on the API.
	// Zero disables rate limiting.
	RateLimitPerMinute int
}

// Defaults
const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultSnapshotInterval   = time.Hour
	DefaultRateLimitPerMinute = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	interval, err := parseInterval(os.Getenv("SNAPSHOT_INTERVAL"))
	if err != nil {
		return nil, err
	}

	keys, err := parseAPIKeys(os.Getenv("API_KEYS"))
	if err != nil {
		return nil, err
	}

	rateLimit, err := parseRateLimit(os.Getenv("RATE_LIMIT_PER_MINUTE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		APIKeys:          keys,
		AdminSecret:      os.Getenv("ADMIN_SECRET"),
		SnapshotInterval: interval,
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		AllowedOrigins:     parseList(os.Getenv("ALLOWED_ORIGINS")),
		RateLimitPerMinute: rateLimit,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.IsProduction() && len(c.APIKeys) == 0 {
		return fmt.Errorf("API_KEYS is required in production")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func parseInterval(s string) (time.Duration, error) {
	if s == "" {
		return DefaultSnapshotInterval, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("SNAPSHOT_INTERVAL must be a duration (e.g. 1h): %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("SNAPSHOT_INTERVAL must not be negative")
	}
	return d, nil
}

// parseAPIKeys parses "key:tenant" pairs separated by commas.
func parseAPIKeys(s string) (map[string]string, error) {
	keys := make(map[string]string)
	if s == "" {
		return keys, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, tenant, ok := strings.Cut(pair, ":")
		if !ok || key == "" || tenant == "" {
			return nil, fmt.Errorf("API_KEYS entry %q must be key:tenant", pair)
		}
		keys[key] = tenant
	}
	return keys, nil
}

func parseRateLimit(s string) (int, error) {
	if s == "" {
		return DefaultRateLimitPerMinute, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be a non-negative integer")
	}
	return n, nil
}

// parseList splits a comma-separated value, dropping empty entries.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
