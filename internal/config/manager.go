package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// HEALTHTRACK_SERVER_PORT for server.port.
const EnvPrefix = "HEALTHTRACK"

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	mu         sync.RWMutex
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
	fileLoaded bool
	watchOnce  sync.Once
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// Initialize viper
	m.viper = viper.New()

	// Set config file path
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	// Set environment variable prefix
	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	m.setDefaults()

	if err := m.readConfigFile(); err != nil {
		return err
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// readConfigFile reads the YAML file; a missing file is not an error.
func (m *viperConfigManager) readConfigFile() error {
	if m.configPath == "" {
		return nil
	}
	err := m.viper.ReadInConfig()
	if err == nil {
		m.fileLoaded = true
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error reading config file: %w", err)
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.Get(ctx).Validate()
	if len(errs) > 0 {
		// Combine all errors into a single error message
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads. Updates that fail to
// parse or validate are dropped. Without a config file nothing is watched.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	if !m.fileLoaded {
		return m.watchChan
	}
	m.watchOnce.Do(func() {
		m.viper.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			if err := m.unmarshalConfig(); err != nil {
				return
			}
			cfg := m.Get(ctx)
			if len(cfg.Validate()) > 0 {
				return
			}
			select {
			case m.watchChan <- *cfg:
			default:
				// Channel full, skip this update
			}
		})
		m.viper.WatchConfig()
	})
	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.readConfigFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.grpc_port", defaults.Server.GRPCPort)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.read_timeout_seconds", defaults.Server.ReadTimeoutSeconds)
	m.viper.SetDefault("server.write_timeout_seconds", defaults.Server.WriteTimeoutSeconds)

	// Database defaults
	m.viper.SetDefault("database.type", defaults.Database.Type)
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)
	m.viper.SetDefault("database.memory_capacity_days", defaults.Database.MemoryCapacityDays)

	// Analytics defaults
	m.viper.SetDefault("analytics.z_score_threshold", defaults.Analytics.ZScoreThreshold)
	m.viper.SetDefault("analytics.rolling_window", defaults.Analytics.RollingWindow)
	m.viper.SetDefault("analytics.rolling_threshold", defaults.Analytics.RollingThreshold)
	m.viper.SetDefault("analytics.moving_average_window", defaults.Analytics.MovingAverageWindow)
	m.viper.SetDefault("analytics.smoothing_alpha", defaults.Analytics.SmoothingAlpha)
	m.viper.SetDefault("analytics.lookback_days", defaults.Analytics.LookbackDays)
	m.viper.SetDefault("analytics.retention_days", defaults.Analytics.RetentionDays)
	m.viper.SetDefault("analytics.confidence", defaults.Analytics.Confidence)
	m.viper.SetDefault("analytics.default_confidence", defaults.Analytics.DefaultConfidence)
	m.viper.SetDefault("analytics.insight_threshold", defaults.Analytics.InsightThreshold)
	m.viper.SetDefault("analytics.max_insights", defaults.Analytics.MaxInsights)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file_path", defaults.Logging.FilePath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Rate limit defaults
	m.viper.SetDefault("rate_limit.enabled", defaults.RateLimit.Enabled)
	m.viper.SetDefault("rate_limit.requests_per_second", defaults.RateLimit.RequestsPerSecond)
	m.viper.SetDefault("rate_limit.burst", defaults.RateLimit.Burst)

	// Notification defaults
	m.viper.SetDefault("notifications.enabled", defaults.Notifications.Enabled)
	m.viper.SetDefault("notifications.interval_minutes", defaults.Notifications.IntervalMinutes)
	m.viper.SetDefault("notifications.min_severity", defaults.Notifications.MinSeverity)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.GRPCPort = m.viper.GetInt("server.grpc_port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.ReadTimeoutSeconds = m.viper.GetInt("server.read_timeout_seconds")
	cfg.Server.WriteTimeoutSeconds = m.viper.GetInt("server.write_timeout_seconds")

	// Database
	cfg.Database.Type = m.viper.GetString("database.type")
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")
	cfg.Database.MemoryCapacityDays = m.viper.GetInt("database.memory_capacity_days")

	// Analytics
	cfg.Analytics.ZScoreThreshold = m.viper.GetFloat64("analytics.z_score_threshold")
	cfg.Analytics.RollingWindow = m.viper.GetInt("analytics.rolling_window")
	cfg.Analytics.RollingThreshold = m.viper.GetFloat64("analytics.rolling_threshold")
	cfg.Analytics.MovingAverageWindow = m.viper.GetInt("analytics.moving_average_window")
	cfg.Analytics.SmoothingAlpha = m.viper.GetFloat64("analytics.smoothing_alpha")
	cfg.Analytics.LookbackDays = m.viper.GetInt("analytics.lookback_days")
	cfg.Analytics.RetentionDays = m.viper.GetInt("analytics.retention_days")
	confidence, err := toFloatMap(m.viper.Get("analytics.confidence"))
	if err != nil {
		return fmt.Errorf("analytics.confidence: %w", err)
	}
	cfg.Analytics.Confidence = confidence
	cfg.Analytics.DefaultConfidence = m.viper.GetFloat64("analytics.default_confidence")
	cfg.Analytics.InsightThreshold = m.viper.GetFloat64("analytics.insight_threshold")
	cfg.Analytics.MaxInsights = m.viper.GetInt("analytics.max_insights")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.FilePath = m.viper.GetString("logging.file_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	// Rate limit
	cfg.RateLimit.Enabled = m.viper.GetBool("rate_limit.enabled")
	cfg.RateLimit.RequestsPerSecond = m.viper.GetFloat64("rate_limit.requests_per_second")
	cfg.RateLimit.Burst = m.viper.GetInt("rate_limit.burst")

	// Notifications
	cfg.Notifications.Enabled = m.viper.GetBool("notifications.enabled")
	cfg.Notifications.IntervalMinutes = m.viper.GetInt("notifications.interval_minutes")
	cfg.Notifications.MinSeverity = m.viper.GetString("notifications.min_severity")

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// toFloatMap converts a YAML mapping of metric → number.
func toFloatMap(v interface{}) (map[string]float64, error) {
	switch m := v.(type) {
	case nil:
		return map[string]float64{}, nil
	case map[string]float64:
		out := make(map[string]float64, len(m))
		for k, f := range m {
			out[strings.ToLower(k)] = f
		}
		return out, nil
	}
	raw, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for k, val := range raw {
		f, err := cast.ToFloat64E(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[strings.ToLower(k)] = f
	}
	return out, nil
}
