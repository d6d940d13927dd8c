package main

// Package main is the entry point for the healthtrack-analytics server.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables, and CLI flags
//   - Open the sample store (SQLite or in-memory)
//   - Build the analytics engine and expose it over REST, WebSocket and gRPC health
//   - Run the scheduled report pipeline that pushes morning summaries
//   - Prune samples older than the retention window
//   - Apply log level changes from the watched config file
//   - Implement graceful shutdown with context cancellation
//
// Graceful Shutdown:
//   - Stops the report pipeline
//   - Closes HTTP listeners, WebSocket subscribers and the gRPC server
//   - Closes the store and flushes logs

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/config"
	"github.com/healthtrack/healthtrack-analytics/internal/db"
	"github.com/healthtrack/healthtrack-analytics/internal/logging"
	"github.com/healthtrack/healthtrack-analytics/internal/server"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneInterval   = 6 * time.Hour
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		port       int
		debug      bool
	)
	cmd := &cobra.Command{
		Use:           "healthtrack-analytics",
		Short:         "Health metrics analytics server",
		Long:          "Serves anomaly detection, correlation, forecasting and risk reports for daily health metrics.",
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mgr, cfg, err := loadConfiguration(ctx, configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if debug {
				cfg.Logging.Level = "debug"
			}
			return run(ctx, mgr, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "path to configuration file")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

// loadConfiguration loads and validates configuration
func loadConfiguration(ctx context.Context, cfgPath string) (config.ConfigManager, *config.Config, error) {
	mgr, err := config.NewConfigManager(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return nil, nil, err
	}
	return mgr, mgr.Get(ctx), nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}

// openStore opens the configured backend.
func openStore(cfg *config.Config) (db.Store, error) {
	if cfg.Database.Type == "memory" {
		return db.NewMemoryStore(cfg.Database.MemoryCapacityDays), nil
	}
	return db.Open(cfg.Database.Type, cfg.Database.SQLitePath)
}

func run(ctx context.Context, mgr config.ConfigManager, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()
	defer logger.Sync() //nolint:errcheck

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Database.Type, err)
	}
	defer store.Close()

	engine := analytics.NewEngine(cfg.EngineOptions(), logger.Named("engine"))
	srv, err := server.NewServer(cfg, engine, store, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	if cfg.Notifications.Enabled {
		interval := time.Duration(cfg.Notifications.IntervalMinutes) * time.Minute
		pipeline := analytics.NewPipeline(engine, srv.Adapter(), srv.Adapter(), interval,
			cfg.Analytics.LookbackDays, logger.Named("pipeline"))
		pipeline.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			pipeline.Stop()
			return nil
		})
		logger.Info("Report pipeline started", zap.Duration("interval", interval))
	}

	if cfg.Analytics.RetentionDays > 0 {
		g.Go(func() error {
			runRetention(gctx, store, cfg.Analytics.RetentionDays, pruneInterval, logger.Named("retention"))
			return nil
		})
	}

	g.Go(func() error {
		watchLogLevel(gctx, mgr, logger)
		return nil
	})

	return g.Wait()
}

// runRetention prunes once at startup and then on every tick.
func runRetention(ctx context.Context, store db.Store, days int, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if n, err := pruneSamples(ctx, store, days, time.Now()); err != nil {
			logger.Warn("retention prune failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned old samples", zap.Int64("deleted", n), zap.Int("retention_days", days))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pruneSamples deletes samples whose day falls before now minus days.
func pruneSamples(ctx context.Context, store db.Store, days int, now time.Time) (int64, error) {
	cutoff := db.Day(now).AddDate(0, 0, -days)
	return store.DeleteSamplesBefore(ctx, cutoff)
}

// watchLogLevel applies the log level of every reloaded config.
func watchLogLevel(ctx context.Context, mgr config.ConfigManager, logger *logging.Logger) {
	if mgr == nil {
		return
	}
	updates := mgr.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			if err := logger.SetLevel(cfg.Logging.Level); err != nil {
				logger.Warn("ignoring log level from reloaded config", zap.Error(err))
				continue
			}
			logger.Info("log level updated", zap.String("level", cfg.Logging.Level))
		}
	}
}
