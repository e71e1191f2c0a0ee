package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openfolio/identity/pkg/observability"
	"github.com/openfolio/identity/pkg/storage"
)

// Config holds all identity core configuration
type Config struct {
	Database storage.Config
	Redis    RedisConfig
	Session  SessionConfig
	Site     SiteConfig

	Observability ObservabilityConfig
}

// RedisConfig holds the request session store configuration
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	// Timeout is the absolute session expiry extended on every renew.
	Timeout time.Duration
	// LastAccessUpdateFrequency throttles last-access writes. Zero means
	// write on every renew.
	LastAccessUpdateFrequency time.Duration
	// MaxLoginTries is the failed-login threshold after which an account is
	// locked until the counter is externally reset.
	MaxLoginTries int
}

// SiteConfig holds site-wide policy flags
type SiteConfig struct {
	// Closed blocks non-admin logins (maintenance or upgrade windows).
	Closed bool
	// CleanURLs enables per-user URL slug reservation on account creation.
	CleanURLs bool
	// DefaultQuota is applied to accounts whose quota is unset.
	DefaultQuota int64
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	MetricsAddr    string

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Session:       loadSessionConfig(),
		Site:          loadSiteConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadDatabaseConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if url := getEnv("FOLIO_DATABASE_URL", ""); url != "" {
		cfg.URL = url
	}
	if maxConns := getEnvInt("FOLIO_DATABASE_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("FOLIO_DATABASE_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("FOLIO_DATABASE_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("FOLIO_REDIS_URL", "redis://localhost:6379/0"),
		Password: getEnv("FOLIO_REDIS_PASSWORD", ""),
		DB:       getEnvInt("FOLIO_REDIS_DB", -1),
		PoolSize: getEnvInt("FOLIO_REDIS_POOL_SIZE", 0),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Timeout:                   getEnvDuration("FOLIO_SESSION_TIMEOUT", 30*time.Minute),
		LastAccessUpdateFrequency: getEnvDuration("FOLIO_SESSION_LASTACCESS_FREQUENCY", 5*time.Minute),
		MaxLoginTries:             getEnvInt("FOLIO_MAX_LOGIN_TRIES", 5),
	}
}

func loadSiteConfig() SiteConfig {
	return SiteConfig{
		Closed:       getEnvBool("FOLIO_SITE_CLOSED", false),
		CleanURLs:    getEnvBool("FOLIO_CLEAN_URLS", true),
		DefaultQuota: getEnvInt64("FOLIO_DEFAULT_QUOTA", 50*1024*1024),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(strings.ToLower(getEnv("FOLIO_LOG_LEVEL", "info"))),
		MetricsEnabled:     getEnvBool("FOLIO_METRICS_ENABLED", true),
		MetricsAddr:        getEnv("FOLIO_METRICS_ADDR", ":9090"),
		OTelEnabled:        getEnvBool("FOLIO_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FOLIO_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FOLIO_OTEL_SERVICE_NAME", "folio-identity"),
		OTelServiceVersion: getEnv("FOLIO_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FOLIO_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}
	if c.Session.MaxLoginTries <= 0 {
		return fmt.Errorf("max login tries must be positive")
	}
	if c.Session.LastAccessUpdateFrequency < 0 {
		return fmt.Errorf("last-access update frequency must not be negative")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt64 returns a 64-bit integer environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
