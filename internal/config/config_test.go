package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 20*time.Millisecond, cfg.Profiler.Interval)
	assert.Equal(t, 2*time.Second, cfg.Profiler.SampleTimeout)
	assert.Equal(t, 5, cfg.Profiler.FailureThreshold)
	assert.Equal(t, "lldb", cfg.Debugger.Path)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Profiler.Interval = 0 }},
		{"negative interval", func(c *Config) { c.Profiler.Interval = -time.Millisecond }},
		{"zero sample timeout", func(c *Config) { c.Profiler.SampleTimeout = 0 }},
		{"zero failure threshold", func(c *Config) { c.Profiler.FailureThreshold = 0 }},
		{"empty lldb path", func(c *Config) { c.Debugger.Path = "" }},
		{"zero attach retries", func(c *Config) { c.Debugger.AttachRetries = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	l := &Loader{homeDir: t.TempDir()}

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, cfg.Profiler.Interval)
	assert.Equal(t, l.HistoryPath(), cfg.HistoryFile)
}

func TestLoadFile_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
profiler:
  interval: 50ms
  failure_threshold: 10
debugger:
  path: /usr/local/bin/lldb
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	l := &Loader{homeDir: dir}
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.Profiler.Interval)
	assert.Equal(t, 10, cfg.Profiler.FailureThreshold)
	assert.Equal(t, "/usr/local/bin/lldb", cfg.Debugger.Path)
	// Untouched values keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Profiler.SampleTimeout)
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiler: ["), 0o600))

	l := &Loader{homeDir: dir}
	_, err := l.LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_InvalidValuesRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiler:\n  interval: -1s\n"), 0o600))

	l := &Loader{homeDir: dir}
	_, err := l.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("STACKWATCH_INTERVAL", "100ms")
	t.Setenv("STACKWATCH_LOG_LEVEL", "debug")
	t.Setenv("STACKWATCH_FAILURE_THRESHOLD", "7")
	t.Setenv("STACKWATCH_LOG_PRETTY", "false")

	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, 100*time.Millisecond, cfg.Profiler.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Profiler.FailureThreshold)
	assert.False(t, cfg.Logging.Pretty)
}

func TestLoadFromEnv_InvalidDuration(t *testing.T) {
	t.Setenv("STACKWATCH_INTERVAL", "not-a-duration")

	cfg := DefaultConfig()
	err := LoadFromEnv(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STACKWATCH_INTERVAL")
}

func TestLoadFromEnv_EmptyValuesIgnored(t *testing.T) {
	t.Setenv("STACKWATCH_LOG_LEVEL", "")

	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))
	assert.Equal(t, "info", cfg.Logging.Level)
}
