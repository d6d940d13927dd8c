package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	logger, err := NewWithWriter(cfg, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("report built", zap.String("user_id", "u1"))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "report built", entry["message"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Contains(t, entry, "timestamp")
	assert.Contains(t, entry, "caller")
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "xml"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "warn"
	logger, err := NewWithWriter(cfg, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, logger.SetLevel("debug"))
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")

	assert.Error(t, logger.SetLevel("nope"))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "console"
	cfg.FilePath = path
	cfg.Compress = false

	logger, err := NewWithWriter(cfg, zapcore.AddSync(&console))
	require.NoError(t, err)
	logger.Warn("disk check", zap.Int("free_mb", 12))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry), "file output must be JSON")
	assert.Equal(t, "disk check", entry["message"])
	assert.Contains(t, console.String(), "disk check")
}
