package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Keychain  KeychainConfig
	ResultRef ResultRefConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings. Postgres backs the
// event log, queue, projections, keychain cache and result_ref store.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds the accelerant cache used for the workflow_state
// read-through cache and the admission rate limiter's counters. Redis is
// never the source of truth; Postgres is.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// QueueConfig controls lease/reap behavior of the durable Postgres queue.
type QueueConfig struct {
	DefaultLeaseDuration time.Duration
	ReapInterval         time.Duration
	MaxAttempts          int
	RetryBaseDelay       time.Duration
}

// KeychainConfig controls the credential cache subsystem.
type KeychainConfig struct {
	EncryptionKeyHex   string // 32-byte hex-encoded AEAD key (KMS-managed in production)
	RenewAheadSeconds  int
	SweepInterval      time.Duration
}

// ResultRefConfig controls result externalization thresholds and storage.
type ResultRefConfig struct {
	InlineMaxBytes int
	Store          string // memory | postgres; no other backend is implemented, other names fail as unknown stores
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "noetl"),
			User:        getEnv("POSTGRES_USER", "noetl"),
			Password:    getEnv("POSTGRES_PASSWORD", "noetl"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			DefaultLeaseDuration: getEnvDuration("QUEUE_LEASE_DURATION", 60*time.Second),
			ReapInterval:         getEnvDuration("QUEUE_REAP_INTERVAL", 15*time.Second),
			MaxAttempts:          getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
			RetryBaseDelay:       getEnvDuration("QUEUE_RETRY_BASE_DELAY", 2*time.Second),
		},
		Keychain: KeychainConfig{
			EncryptionKeyHex:  getEnv("KEYCHAIN_ENCRYPTION_KEY", ""),
			RenewAheadSeconds: getEnvInt("KEYCHAIN_RENEW_AHEAD_SECONDS", 300),
			SweepInterval:     getEnvDuration("KEYCHAIN_SWEEP_INTERVAL", 1*time.Minute),
		},
		ResultRef: ResultRefConfig{
			InlineMaxBytes: getEnvInt("RESULT_REF_INLINE_MAX_BYTES", 32*1024),
			Store:          getEnv("RESULT_REF_STORE", "postgres"),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", false),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue max_attempts must be >= 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
