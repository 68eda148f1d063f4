package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.Grid.IndexURL, "BR500KM.zip")
	assert.Contains(t, cfg.Grid.BaseURL, "grade_estatistica")
	assert.Equal(t, "dados_ibge", cfg.Grid.CacheDir)
	assert.Equal(t, 30, cfg.Grid.TimeoutSecs)
	assert.InDelta(t, 2, cfg.Grid.RatePerSec, 0.001)
	assert.Equal(t, 100.0, cfg.Margins.Height)
	assert.Equal(t, 215.0, cfg.Margins.CVSize)
	assert.Equal(t, 5000.0, cfg.Margins.AdjSize)
	assert.Equal(t, "square", cfg.Margins.CornerStyle)
	assert.Equal(t, 5.0, cfg.Analysis.OperationalThreshold)
	assert.Equal(t, 50.0, cfg.Analysis.AdjacentThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
margins:
  height: 60
  corner_style: rounded
server:
  port: 9999
`), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60.0, cfg.Margins.Height)
	assert.Equal(t, "rounded", cfg.Margins.CornerStyle)
	assert.Equal(t, 9999, cfg.Server.Port)
	// Untouched keys keep their defaults.
	assert.Equal(t, 215.0, cfg.Margins.CVSize)
}

func TestLoadEnvOverride(t *testing.T) {
	chtemp(t)
	t.Setenv("GROUNDRISK_ANALYSIS_ADJACENT_THRESHOLD", "75")
	t.Setenv("GROUNDRISK_GRID_CACHE_DIR", "/tmp/grid-cache")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 75.0, cfg.Analysis.AdjacentThreshold)
	assert.Equal(t, "/tmp/grid-cache", cfg.Grid.CacheDir)
}

func TestLoadBadConfigFile(t *testing.T) {
	dir := chtemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{{nope"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "json"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
