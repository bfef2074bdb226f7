package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "test-version")
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "metadata.yaml", cfg.MetadataPath)
	assert.True(t, cfg.Learner.Enabled)
	assert.Equal(t, 30, cfg.Learner.AskTimeoutSeconds)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, int32(25), cfg.Database.MaxConnections)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	payload := `
env: production
log_level: warn
metadata_path: /etc/tablemesh/metadata.yaml
learner:
  enabled: false
  ask_timeout_seconds: 5
database:
  host: db.internal
  port: 5433
  database: tablemesh_prod
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cfg, err := Load(path, "v1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/etc/tablemesh/metadata.yaml", cfg.MetadataPath)
	assert.False(t, cfg.Learner.Enabled)
	assert.Equal(t, 5, cfg.Learner.AskTimeoutSeconds)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env: local\n"), 0o644))

	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("PGPASSWORD", "secret-from-env")

	cfg, err := Load(path, "dev")
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env)
	// Password is env-only; it never appears in YAML.
	assert.Equal(t, "secret-from-env", cfg.Database.Password)
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "tablemesh",
		Password: "pw",
		Database: "tablemesh_engine",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=tablemesh password=pw dbname=tablemesh_engine sslmode=disable",
		cfg.ConnectionString())
}
