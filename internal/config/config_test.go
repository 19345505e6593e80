package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "data/tracker.db", cfg.DBPath)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "default", cfg.DefaultWorkspace)
	assert.Empty(t, cfg.SeedFile)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("TRACKER_ADDR", ":9999")
	t.Setenv("TRACKER_LOG_LEVEL", "debug")
	t.Setenv("TRACKER_DEFAULT_WORKSPACE", "acme")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "acme", cfg.DefaultWorkspace)
}

func TestLoadFileBelowEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: /tmp/from-file.db\nlog-format: json\naddr: \":7000\"\n"), 0o600))
	t.Setenv("TRACKER_ADDR", ":7001")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":7001", cfg.Addr)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("log level", func(t *testing.T) {
		t.Setenv("TRACKER_LOG_LEVEL", "chatty")
		_, err := Load(New(), "")
		assert.Error(t, err)
	})
	t.Run("log format", func(t *testing.T) {
		t.Setenv("TRACKER_LOG_FORMAT", "xml")
		_, err := Load(New(), "")
		assert.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
