package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gharra/filed/internal/bytesize"
	"github.com/gharra/filed/pkg/config"
)

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 16*bytesize.MiB, cfg.MaxFragmentSize)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filed.yaml")
	yaml := `
logging:
  level: debug
  format: json
data_dir: /var/lib/filed
storage:
  backend: sqlite
  sqlite:
    path: /var/lib/filed/filed.db
max_fragment_size: 4Mi
metrics:
  enabled: true
  listen: localhost:9100
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/filed", cfg.DataDir)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/filed/filed.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, 4*bytesize.MiB, cfg.MaxFragmentSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "localhost:9100", cfg.Metrics.Listen)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sqlite\n"), 0o644))

	t.Setenv("FILED_STORAGE_BACKEND", "badger")

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Storage.Backend)
}

func TestLoadFlagOverridesEnvironmentAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sqlite\n"), 0o644))
	t.Setenv("FILED_STORAGE_BACKEND", "badger")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("storage.backend", "memory", "")
	require.NoError(t, flags.Set("storage.backend", "postgres"))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: mongodb\n"), 0o644))

	_, err := config.Load(path, nil)
	assert.Error(t, err)
}

func TestLoadRequiresDSNForPostgresBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: postgres\n"), 0o644))

	_, err := config.Load(path, nil)
	assert.Error(t, err)
}

func TestLoadFillsDefaultListenWhenMetricsEnabledWithoutOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  enabled: true\n"), 0o644))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9090", cfg.Metrics.Listen)
}
