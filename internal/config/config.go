package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Notification modes: sync sends before the request returns, async hands
// events to the in-process bus.
const (
	NotifyModeSync  = "sync"
	NotifyModeAsync = "async"
)

// Notification transports.
const (
	NotifyTransportLog  = "log"
	NotifyTransportNATS = "nats"
)

// Config holds all configuration for the easybooking application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	AppEnv      string `json:"app_env"`
	StoreDriver string `json:"store_driver"`
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	// MemorySeedFile is a JSON directory fixture loaded when StoreDriver is memory.
	MemorySeedFile string `json:"memory_seed_file,omitempty"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout       time.Duration `json:"-"`
	HTTPShutdownTimeoutStr    string        `json:"http_shutdown_timeout"`
	DispatcherDrainTimeout    time.Duration `json:"-"`
	DispatcherDrainTimeoutStr string        `json:"dispatcher_drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	NotifyMode         string `json:"notify_mode"`
	EventBusBufferSize int    `json:"eventbus_buffer_size"`
	NotifyTransport    string `json:"notify_transport"`
	NATSURL            string `json:"nats_url,omitempty"`
	NATSSubject        string `json:"nats_subject"`
	NotifyParallelism  int    `json:"notify_parallelism"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	// Notification stats are only kept when RedisAddr is set.
	NotifyStatsWindow       time.Duration `json:"-"`
	NotifyStatsWindowStr    string        `json:"notify_stats_window"`
	NotifyStatsRetention    time.Duration `json:"-"`
	NotifyStatsRetentionStr string        `json:"notify_stats_retention"`

	// Warnings lists values Load ignored in favour of a default.
	Warnings []string `json:"-"`
}

// LoadEnvFiles merges variables from the given dotenv files into the
// process environment without overriding variables that are already set.
// Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		AppEnv:                    os.Getenv("APP_ENV"),
		StoreDriver:               os.Getenv("STORE_DRIVER"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		MemorySeedFile:            os.Getenv("MEMORY_SEED_FILE"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		HTTPAddr:                  os.Getenv("HTTP_ADDR"),
		DBOpTimeoutStr:            os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:      os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:      os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:    os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		DispatcherDrainTimeoutStr: os.Getenv("DISPATCHER_DRAIN_TIMEOUT"),
		MetricsEnabled:            os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:               os.Getenv("METRICS_PATH"),
		NotifyMode:                os.Getenv("NOTIFY_MODE"),
		NotifyTransport:           os.Getenv("NOTIFY_TRANSPORT"),
		NATSURL:                   os.Getenv("NATS_URL"),
		NATSSubject:               os.Getenv("NATS_SUBJECT"),
		CircuitBreakerCooldownStr: os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		NotifyStatsWindowStr:      os.Getenv("NOTIFY_STATS_WINDOW"),
		NotifyStatsRetentionStr:   os.Getenv("NOTIFY_STATS_RETENTION"),
	}

	cfg.EventBusBufferSize = cfg.positiveInt("EVENTBUS_BUFFER_SIZE", 100)
	cfg.NotifyParallelism = cfg.positiveInt("NOTIFY_PARALLELISM", 4)
	cfg.DBMaxOpenConns = cfg.positiveInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = cfg.positiveInt("DB_MAX_IDLE_CONNS", 5)

	cfg.CircuitBreakerThreshold = 5
	if s := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			cfg.CircuitBreakerThreshold = n
		} else {
			cfg.warnf("invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", s)
		}
	}

	if cfg.AppEnv == "" {
		cfg.AppEnv = "production"
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverPostgres
	}
	if cfg.NotifyMode == "" {
		cfg.NotifyMode = NotifyModeSync
	}
	if cfg.NotifyTransport == "" {
		cfg.NotifyTransport = NotifyTransportLog
	}
	if cfg.NATSSubject == "" {
		cfg.NATSSubject = "easybooking.notifications.email"
	}

	// Support the platform's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.DispatcherDrainTimeoutStr == "" {
		cfg.DispatcherDrainTimeoutStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.NotifyStatsWindowStr == "" {
		cfg.NotifyStatsWindowStr = "1h"
	}
	if cfg.NotifyStatsRetentionStr == "" {
		cfg.NotifyStatsRetentionStr = "168h"
	}

	// Parse durations; validation is handled separately by Validate().
	cfg.DBOpTimeout = parseDuration(cfg.DBOpTimeoutStr)
	cfg.DBConnMaxLifetime = parseDuration(cfg.DBConnMaxLifetimeStr)
	cfg.DBConnMaxIdleTime = parseDuration(cfg.DBConnMaxIdleTimeStr)
	cfg.HTTPShutdownTimeout = parseDuration(cfg.HTTPShutdownTimeoutStr)
	cfg.DispatcherDrainTimeout = parseDuration(cfg.DispatcherDrainTimeoutStr)
	cfg.CircuitBreakerCooldown = parseDuration(cfg.CircuitBreakerCooldownStr)
	cfg.NotifyStatsWindow = parseDuration(cfg.NotifyStatsWindowStr)
	cfg.NotifyStatsRetention = parseDuration(cfg.NotifyStatsRetentionStr)

	return cfg
}

// IsDevelopment reports whether APP_ENV selects development behaviour.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) positiveInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		c.warnf("invalid %s %q (must be a positive integer), using default %d", key, s, def)
		return def
	}
	return n
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	masked.NATSURL = maskSecret(c.NATSURL)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://", "nats://", "tls://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
