package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Stats windows the analytics sink can bucket by.
var statsWindows = []time.Duration{time.Minute, 5 * time.Minute, time.Hour, 24 * time.Hour}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		// DATABASE_URL is required for the postgres store
		if cfg.DatabaseURL == "" {
			add("DATABASE_URL", "required when STORE_DRIVER is postgres")
		}
		if cfg.MemorySeedFile != "" {
			add("MEMORY_SEED_FILE", "only used when STORE_DRIVER is memory")
		}
	case StoreDriverMemory, "":
	default:
		add("STORE_DRIVER", "must be 'postgres' or 'memory', got %q", cfg.StoreDriver)
	}

	if cfg.NotifyMode != "" && cfg.NotifyMode != NotifyModeSync && cfg.NotifyMode != NotifyModeAsync {
		add("NOTIFY_MODE", "must be 'sync' or 'async', got %q", cfg.NotifyMode)
	}

	switch cfg.NotifyTransport {
	case NotifyTransportNATS:
		if cfg.NATSURL == "" {
			add("NATS_URL", "required when NOTIFY_TRANSPORT is nats")
		}
	case NotifyTransportLog, "":
	default:
		add("NOTIFY_TRANSPORT", "must be 'log' or 'nats', got %q", cfg.NotifyTransport)
	}

	positive := []struct {
		field string
		value string
	}{
		{"DB_OP_TIMEOUT", cfg.DBOpTimeoutStr},
		{"DB_CONN_MAX_LIFETIME", cfg.DBConnMaxLifetimeStr},
		{"DB_CONN_MAX_IDLE_TIME", cfg.DBConnMaxIdleTimeStr},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr},
		{"DISPATCHER_DRAIN_TIMEOUT", cfg.DispatcherDrainTimeoutStr},
		{"CIRCUIT_BREAKER_COOLDOWN", cfg.CircuitBreakerCooldownStr},
		{"NOTIFY_STATS_RETENTION", cfg.NotifyStatsRetentionStr},
	}
	for _, p := range positive {
		if p.value == "" {
			continue
		}
		d, err := time.ParseDuration(p.value)
		if err != nil {
			add(p.field, "invalid duration: %v", err)
		} else if d <= 0 {
			add(p.field, "must be positive")
		}
	}

	if cfg.NotifyStatsWindowStr != "" {
		d, err := time.ParseDuration(cfg.NotifyStatsWindowStr)
		if err != nil {
			add("NOTIFY_STATS_WINDOW", "invalid duration: %v", err)
		} else if !supportedWindow(d) {
			add("NOTIFY_STATS_WINDOW", "must be one of 1m, 5m, 1h, 24h, got %s", cfg.NotifyStatsWindowStr)
		}
	}

	if cfg.MetricsEnabled && !strings.HasPrefix(cfg.MetricsPath, "/") {
		add("METRICS_PATH", "must start with '/', got %q", cfg.MetricsPath)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func supportedWindow(d time.Duration) bool {
	for _, w := range statsWindows {
		if d == w {
			return true
		}
	}
	return false
}
