package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Contains(t, cfg.DefaultSymbols, "BTCUSDT")
}

func TestLoadConfig_EnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http_port": 9000}`), 0o644))

	t.Setenv("BACKBONE_HTTP_PORT", "9100")
	t.Setenv("BACKBONE_DB_PATH", "/tmp/override.db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, "/tmp/override.db", cfg.DBPath)
}

func TestLoadConfig_InvalidEnvPortIgnored(t *testing.T) {
	t.Setenv("BACKBONE_HTTP_PORT", "not-a-number")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
}
