package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthtrack/healthtrack-analytics/internal/config"
	"github.com/healthtrack/healthtrack-analytics/internal/db"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.GRPCPort = 0
	cfg.Database.Type = "memory"
	cfg.Logging.Level = "error"
	return cfg
}

func TestOpenStore(t *testing.T) {
	cfg := testConfig(t)
	store, err := openStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	store.Close()

	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "analytics.db")
	store, err = openStore(cfg)
	require.NoError(t, err)
	store.Close()

	cfg.Database.Type = "postgres"
	_, err = openStore(cfg)
	assert.Error(t, err)
}

func TestPruneSamples(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore(0)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	var recs []*db.SampleRecord
	for i := 0; i < 10; i++ {
		recs = append(recs, &db.SampleRecord{
			UserID: "u1", Metric: "sleep", Day: db.Day(now).AddDate(0, 0, -i), Value: 7,
		})
	}
	require.NoError(t, store.UpsertSamples(ctx, recs))

	deleted, err := pruneSamples(ctx, store, 5, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted, "days -6 through -9 fall before the cutoff")

	left, err := store.QuerySamples(ctx, "u1", "sleep", db.Day(now).AddDate(0, 0, -30), db.Day(now))
	require.NoError(t, err)
	assert.Len(t, left, 6)
}

func TestLoadConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9191
database:
  type: memory
notifications:
  min_severity: critical
`), 0o600))

	_, cfg, err := loadConfiguration(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, "critical", cfg.Notifications.MinSeverity)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server:\n  port: -1\n"), 0o600))
	_, _, err = loadConfiguration(context.Background(), bad)
	assert.Error(t, err)
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, config.DefaultConfigPath, cmd.Flags().Lookup("config").DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("port"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotEmpty(t, cmd.Version)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- run(ctx, nil, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}
