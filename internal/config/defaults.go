package config

import (
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/anomaly"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/forecasting"
)

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = ""
	cfg.Server.Port = 8080
	cfg.Server.GRPCPort = 9090
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.ReadTimeoutSeconds = 15
	cfg.Server.WriteTimeoutSeconds = 30

	// Database defaults
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "/var/lib/healthtrack/analytics.db"
	cfg.Database.MemoryCapacityDays = 730

	// Analytics defaults
	cfg.Analytics.ZScoreThreshold = anomaly.DefaultZThreshold
	cfg.Analytics.RollingWindow = anomaly.DefaultRollingWindow
	cfg.Analytics.RollingThreshold = anomaly.DefaultRollingThreshold
	cfg.Analytics.MovingAverageWindow = forecasting.DefaultWindow
	cfg.Analytics.SmoothingAlpha = forecasting.DefaultAlpha
	cfg.Analytics.LookbackDays = 30
	cfg.Analytics.RetentionDays = 365
	cfg.Analytics.Confidence = map[string]float64{
		"sleep":     forecasting.ConfidenceSleep,
		"hydration": forecasting.ConfidenceHydration,
		"stress":    forecasting.ConfidenceStress,
	}
	cfg.Analytics.DefaultConfidence = 0.75
	cfg.Analytics.InsightThreshold = 0.3
	cfg.Analytics.MaxInsights = 5

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.FilePath = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	// Rate limit defaults
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 20
	cfg.RateLimit.Burst = 40

	// Notification defaults
	cfg.Notifications.Enabled = true
	cfg.Notifications.IntervalMinutes = 24 * 60
	cfg.Notifications.MinSeverity = "warning"

	return cfg
}
