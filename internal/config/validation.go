package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		add("server.grpc_port", "grpc_port must be between 0 and 65535, got %d", c.Server.GRPCPort)
	} else if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		add("server.grpc_port", "grpc_port must differ from port (%d)", c.Server.Port)
	}
	if c.Server.ReadTimeoutSeconds < 0 {
		add("server.read_timeout_seconds", "read timeout cannot be negative")
	}
	if c.Server.WriteTimeoutSeconds < 0 {
		add("server.write_timeout_seconds", "write timeout cannot be negative")
	}

	// Database
	switch c.Database.Type {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			add("database.sqlite_path", "sqlite_path is required when type is sqlite")
		}
	case "memory":
		if c.Database.MemoryCapacityDays < 0 {
			add("database.memory_capacity_days", "memory capacity cannot be negative")
		}
	default:
		add("database.type", "database type must be 'sqlite' or 'memory', got '%s'", c.Database.Type)
	}

	// Analytics
	a := c.Analytics
	if a.ZScoreThreshold <= 0 {
		add("analytics.z_score_threshold", "z-score threshold must be positive, got %g", a.ZScoreThreshold)
	}
	if a.RollingWindow < 1 {
		add("analytics.rolling_window", "rolling window must be at least 1, got %d", a.RollingWindow)
	}
	if a.RollingThreshold <= 0 {
		add("analytics.rolling_threshold", "rolling threshold must be positive, got %g", a.RollingThreshold)
	}
	if a.MovingAverageWindow < 1 {
		add("analytics.moving_average_window", "moving average window must be at least 1, got %d", a.MovingAverageWindow)
	}
	if a.SmoothingAlpha < 0 || a.SmoothingAlpha > 1 {
		add("analytics.smoothing_alpha", "smoothing alpha must be within [0, 1], got %g", a.SmoothingAlpha)
	}
	if a.LookbackDays < 1 {
		add("analytics.lookback_days", "lookback days must be at least 1, got %d", a.LookbackDays)
	} else if a.LookbackDays > MaxWindowDays {
		add("analytics.lookback_days", "lookback days cannot exceed %d, got %d", MaxWindowDays, a.LookbackDays)
	}
	if a.RetentionDays < 0 {
		add("analytics.retention_days", "retention days cannot be negative")
	} else if a.RetentionDays > 0 && a.RetentionDays < a.LookbackDays {
		add("analytics.retention_days", "retention days (%d) must cover lookback days (%d)", a.RetentionDays, a.LookbackDays)
	}
	for metric, v := range a.Confidence {
		if v < 0 || v > 1 {
			add("analytics.confidence."+metric, "confidence must be within [0, 1], got %g", v)
		}
	}
	if a.DefaultConfidence < 0 || a.DefaultConfidence > 1 {
		add("analytics.default_confidence", "confidence must be within [0, 1], got %g", a.DefaultConfidence)
	}
	if a.InsightThreshold < 0 || a.InsightThreshold >= 1 {
		add("analytics.insight_threshold", "insight threshold must be within [0, 1), got %g", a.InsightThreshold)
	}
	if a.MaxInsights < 0 {
		add("analytics.max_insights", "max insights cannot be negative")
	}

	// Logging
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "invalid log level '%s' (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "console" {
		add("logging.format", "log format must be 'json' or 'console', got '%s'", c.Logging.Format)
	}
	if c.Logging.FilePath != "" && c.Logging.MaxSizeMB < 1 {
		add("logging.max_size_mb", "max_size_mb must be at least 1 when file_path is set")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			add("rate_limit.requests_per_second", "requests_per_second must be positive when rate limiting is enabled")
		}
		if c.RateLimit.Burst < 1 {
			add("rate_limit.burst", "burst must be at least 1 when rate limiting is enabled")
		}
	}

	// Notifications
	if c.Notifications.Enabled && c.Notifications.IntervalMinutes < 1 {
		add("notifications.interval_minutes", "interval must be at least 1 minute, got %d", c.Notifications.IntervalMinutes)
	}
	switch c.Notifications.MinSeverity {
	case "info", "warning", "critical":
	default:
		add("notifications.min_severity", "min_severity must be info, warning, or critical, got '%s'", c.Notifications.MinSeverity)
	}

	return errs
}
