package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "a missing config file falls back to defaults")

	assert.Equal(t, ".ichiscan-cache", cfg.Cache.Dir)
	assert.Equal(t, 9, cfg.Scan.Tenkan)
	assert.Equal(t, 26, cfg.Scan.Kijun)
	assert.Equal(t, 52, cfg.Scan.Senkou)
	assert.Equal(t, 10, cfg.Scan.Lookback)
	assert.True(t, cfg.Scan.StrictCross)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  dir: /var/cache/bars
  postgres_dsn: postgres://scan:secret@db:5432/bars
scan:
  lookback: 20
  min_price: 5
  workers: 4
server:
  addr: ":9090"
  schedule_cron: "0 30 21 * * MON-FRI"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/bars", cfg.Cache.Dir)
	assert.Equal(t, "postgres://scan:secret@db:5432/bars", cfg.Cache.PostgresDSN)
	assert.Equal(t, 20, cfg.Scan.Lookback)
	assert.Equal(t, 5.0, cfg.Scan.MinPrice)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "0 30 21 * * MON-FRI", cfg.Server.ScheduleCron)

	// Unset fields keep their defaults.
	assert.Equal(t, 9, cfg.Scan.Tenkan)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ICHISCAN_CACHE_DIR", "/tmp/override")
	t.Setenv("ICHISCAN_ADDR", ":7070")
	t.Setenv("ICHISCAN_WORKERS", "16")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override", cfg.Cache.Dir)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 16, cfg.Scan.Workers)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
