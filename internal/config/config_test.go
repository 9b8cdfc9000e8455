package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultEngineConfig(), cfg)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultEngineConfig(), cfg)
}

func TestLoadOverridesFromTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	content := "busy_timeout_ms = 9000\ncache_size_kib = 128000\nretry_on_stale = true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.BusyTimeoutMS)
	require.Equal(t, 128000, cfg.CacheSizeKiB)
	require.True(t, cfg.RetryOnStale)
	// fields absent from the file keep their defaults
	require.Equal(t, DefaultEngineConfig().WALAutocheckpoint, cfg.WALAutocheckpoint)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("SQLER_BUSY_TIMEOUT_MS", "12345")
	t.Setenv("SQLER_RETRY_ON_STALE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 12345, cfg.BusyTimeoutMS)
	require.True(t, cfg.RetryOnStale)
}

func TestLoadEnvOverridesFileLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	os.WriteFile(path, []byte("busy_timeout_ms = 9000\n"), 0o644)
	t.Setenv("SQLER_BUSY_TIMEOUT_MS", "500")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 500, cfg.BusyTimeoutMS)
}
