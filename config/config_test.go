package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 4, cfg.Round.MaxToolIterations)
	assert.True(t, cfg.SanitizeLogs())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
model:
  provider: mock
round:
  maxToolIterations: 2
  budget: 10s
  modelTimeout: 5s
logging:
  sanitize: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "mock", cfg.Model.Provider)
	assert.Equal(t, 2, cfg.Round.MaxToolIterations)
	assert.Equal(t, 10*time.Second, cfg.Round.Budget)
	assert.False(t, cfg.SanitizeLogs())
	assert.Equal(t, "concierge.db", cfg.Storage.DSN, "untouched sections keep defaults")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONCIERGE_MODEL_API_KEY", "sk-env")
	t.Setenv("CONCIERGE_DB_DSN", "/var/lib/concierge.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Model.APIKey)
	assert.Equal(t, "/var/lib/concierge.db", cfg.Storage.DSN)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Model.Provider = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Round.ModelTimeout = cfg.Round.Budget + time.Second
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Round.MaxToolIterations = 0
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}
