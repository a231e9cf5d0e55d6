// Package config loads application configuration from the environment and
// validates it before anything starts. A YAML seed file can pre-register
// axis paths, packages, and distributions; see seed.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pinstack/pinstack/pkg/observability"
	"github.com/pinstack/pinstack/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Observability ObservabilityConfig
	Retention     RetentionConfig

	// SeedFile is an optional YAML file of axis paths, packages, and
	// distributions to register on startup.
	SeedFile string
	// SeedWatch reloads the seed file when it changes on disk.
	SeedWatch bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// RetentionConfig bounds the change event history.
type RetentionConfig struct {
	// Days past which change events are swept. Zero disables sweeping.
	Days int
	// Schedule is a cron expression controlling when sweeps run.
	Schedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		Retention:     loadRetentionConfig(),
		SeedFile:      getEnv("PINSTACK_SEED_FILE", ""),
		SeedWatch:     getEnvBool("PINSTACK_SEED_WATCH", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PINSTACK_HOST", "0.0.0.0"),
		Port:            getEnv("PINSTACK_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PINSTACK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PINSTACK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PINSTACK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PINSTACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("PINSTACK_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("PINSTACK_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	if pgURL := getEnv("PINSTACK_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("PINSTACK_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("PINSTACK_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("PINSTACK_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("PINSTACK_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("PINSTACK_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("PINSTACK_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("PINSTACK_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("PINSTACK_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	if cacheEnabled := getEnv("PINSTACK_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if l1CacheSize := getEnvInt("PINSTACK_L1_CACHE_SIZE", 0); l1CacheSize > 0 {
		cfg.L1CacheSize = l1CacheSize
	}

	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(strings.ToLower(getEnv("PINSTACK_LOG_LEVEL", "info"))),
		MetricsEnabled: getEnvBool("PINSTACK_METRICS_ENABLED", true),
	}
}

func loadRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Days:     getEnvInt("PINSTACK_RETENTION_DAYS", 365),
		Schedule: getEnv("PINSTACK_RETENTION_SCHEDULE", "0 3 * * *"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Type {
	case "memory":
		// nothing to validate
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	if c.Retention.Days < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	if c.SeedWatch && c.SeedFile == "" {
		return fmt.Errorf("seed watching requires a seed file")
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
