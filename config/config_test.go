package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 100, cfg.Engine.MaxSteps)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Database.DSN, cfg.Database.DSN)
}

func TestLoadAppliesYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log:
  level: debug
database:
  driver: postgres
  dsn: "host=localhost dbname=docuflow"
engine:
  max_steps: 25
  poll_interval: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Engine.MaxSteps)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.PollInterval)
	// Untouched sections keep their defaults.
	assert.Equal(t, Default().LLM.Model, cfg.LLM.Model)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite\n"), 0o644))

	t.Setenv("DOCUFLOW_DB_DRIVER", "memory")
	t.Setenv("DOCUFLOW_LLM_API_KEY", "sk-from-env")
	t.Setenv("DOCUFLOW_MAX_STEPS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, 7, cfg.Engine.MaxSteps)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [not a map"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "oracle"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.MaxSteps = 0
	require.Error(t, cfg.Validate())
}
