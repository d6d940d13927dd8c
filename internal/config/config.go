package config

import (
	"context"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/anomaly"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/forecasting"
)

// Package config provides configuration management for healthtrack-analytics.
//
// Responsibilities:
//   - Load configuration from YAML files, environment variables, and CLI flags
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (for some settings)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (HEALTHTRACK_* prefix, "." replaced by "_")
//   3. YAML config files (default: /etc/healthtrack/config.yaml)
//   4. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - host, port: HTTP listen address (default :8080)
//      - grpc_port: gRPC health service port (default 9090, 0 picks a free port)
//      - allowed_origins: WebSocket origin allow-list
//      - read_timeout_seconds, write_timeout_seconds
//
//   2. Database
//      - type: "sqlite" | "memory"
//      - sqlite_path: Path to SQLite file
//      - memory_capacity_days: Days kept per series by the memory store
//
//   3. Analytics
//      - z_score_threshold, rolling_window, rolling_threshold
//      - moving_average_window, smoothing_alpha
//      - lookback_days: Days of history loaded per report
//      - retention_days: Samples older than this are pruned (0 keeps all)
//      - confidence: per-metric forecast confidence, default_confidence
//      - insight_threshold, max_insights
//
//   4. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "console"
//      - file_path and lumberjack rotation settings
//
//   5. Rate limit
//      - enabled, requests_per_second, burst (per client IP)
//
//   6. Notifications
//      - enabled: Run the scheduled report pipeline
//      - interval_minutes: Time between pipeline runs
//      - min_severity: "info" | "warning" | "critical"

// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Host     string
		Port     int
		GRPCPort int
		// AllowedOrigins is a list of origins permitted to open WebSocket connections.
		// Use ["*"] to allow any origin (development only).
		AllowedOrigins      []string
		ReadTimeoutSeconds  int
		WriteTimeoutSeconds int
	}

	// Database configuration
	Database struct {
		Type               string
		SQLitePath         string
		MemoryCapacityDays int
	}

	// Analytics configuration
	Analytics struct {
		ZScoreThreshold     float64
		RollingWindow       int
		RollingThreshold    float64
		MovingAverageWindow int
		SmoothingAlpha      float64
		LookbackDays        int
		RetentionDays       int
		Confidence          map[string]float64
		DefaultConfidence   float64
		InsightThreshold    float64
		MaxInsights         int
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string
		FilePath   string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}

	// Rate limiting configuration
	RateLimit struct {
		Enabled           bool
		RequestsPerSecond float64
		Burst             int
	}

	// Notification pipeline configuration
	Notifications struct {
		Enabled         bool
		IntervalMinutes int
		MinSeverity     string
	}
}

// MaxWindowDays caps the day range any single query or report may span.
const MaxWindowDays = 3650

// WindowLimit returns the widest day range a request may ask for: the
// retention period when one is set, never more than MaxWindowDays.
func (c *Config) WindowLimit() int {
	if r := c.Analytics.RetentionDays; r > 0 && r < MaxWindowDays {
		return r
	}
	return MaxWindowDays
}

// AnomalyOptions returns the detector parameters.
func (c *Config) AnomalyOptions() anomaly.Options {
	return anomaly.Options{
		ZThreshold:       c.Analytics.ZScoreThreshold,
		RollingWindow:    c.Analytics.RollingWindow,
		RollingThreshold: c.Analytics.RollingThreshold,
	}
}

// ForecastOptions returns the forecaster parameters.
func (c *Config) ForecastOptions() forecasting.Options {
	return forecasting.Options{
		Window: c.Analytics.MovingAverageWindow,
		Alpha:  c.Analytics.SmoothingAlpha,
	}
}

// EngineOptions returns the full analytics engine configuration.
func (c *Config) EngineOptions() analytics.Options {
	confidence := make(map[string]float64, len(c.Analytics.Confidence))
	for metric, v := range c.Analytics.Confidence {
		confidence[analytics.CanonicalMetric(metric)] = v
	}
	return analytics.Options{
		Anomaly:           c.AnomalyOptions(),
		Forecast:          c.ForecastOptions(),
		Confidence:        confidence,
		DefaultConfidence: c.Analytics.DefaultConfidence,
		InsightThreshold:  c.Analytics.InsightThreshold,
		MaxInsights:       c.Analytics.MaxInsights,
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager(DefaultConfigPath)
}

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "/etc/healthtrack/config.yaml"
