package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Zero(t, cfg.Index.RewriteMinLogBytes)
	assert.False(t, cfg.Index.NoDirty)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: DEBUG
  format: json
metrics:
  enabled: true
index:
  rewrite_min_log_bytes: 4096
  no_dirty: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, uint32(4096), cfg.Index.RewriteMinLogBytes)
	assert.True(t, cfg.Index.NoDirty)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"}}
	assert.NoError(t, cfg.Validate())

	cfg.Logging.Level = "LOUD"
	assert.Error(t, cfg.Validate())

	cfg.Logging.Level = "INFO"
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg.Logging.Format = "text"
	cfg.Logging.Output = ""
	assert.Error(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("INDEXSYNC_LOGGING_LEVEL", "WARN")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}
