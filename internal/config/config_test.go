package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from a directory without a config file so defaults apply.
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60000, cfg.Server.RateWindowMS)
	assert.Equal(t, 60, cfg.Server.RateMax)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Geocode.Cache.Driver)
	assert.Equal(t, 1, cfg.Geocode.Nominatim.CallsPerInterval)
	assert.Equal(t, 1000, cfg.Geocode.Nominatim.IntervalMS)
	assert.Equal(t, 2, cfg.Import.Pages)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
env: production
server:
  port: 9090
  rate_max: 10
source:
  app_id: test-id
  app_key: test-key
import:
  secret: hunter2
store:
  driver: postgres
  database_url: postgres://localhost/jobatlas
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.RateMax)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ProductionRequiresCredentials(t *testing.T) {
	cfg := &Config{Env: "production"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_id/app_key")
}

func TestValidate_DevelopmentToleratesMissingCredentials(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ProductionRequiresImportSecret(t *testing.T) {
	cfg := &Config{
		Env:    "production",
		Source: SourceConfig{AppID: "id", AppKey: "key"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import.secret")
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
