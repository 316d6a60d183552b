package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultDir  = ".stackwatch"
	configFile  = "config.yaml"
	historyFile = "history"
)

// Loader handles loading configuration files.
type Loader struct {
	homeDir string
}

// NewLoader creates a new config loader.
// The base directory is resolved in this order:
//  1. STACKWATCH_CONFIG environment variable.
//  2. User home directory (~/).
//  3. /tmp/stackwatch-fallback (environments without a home dir).
//
// The loader never fails to construct; when no config file exists the Load
// methods return defaults with env var overrides applied.
func NewLoader() *Loader {
	if baseDir := os.Getenv("STACKWATCH_CONFIG"); baseDir != "" {
		return &Loader{homeDir: baseDir}
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		return &Loader{homeDir: homeDir}
	}

	return &Loader{homeDir: "/tmp/stackwatch-fallback"}
}

// ConfigPath returns the path to the config file.
func (l *Loader) ConfigPath() string {
	return filepath.Join(l.homeDir, defaultDir, configFile)
}

// HistoryPath returns the default path for shell history.
func (l *Loader) HistoryPath() string {
	return filepath.Join(l.homeDir, defaultDir, historyFile)
}

// Load loads the configuration: defaults, then the YAML file if present,
// then environment variable overrides. The result is validated.
func (l *Loader) Load() (*Config, error) {
	return l.LoadFile(l.ConfigPath())
}

// LoadFile behaves like Load but reads the given YAML file path.
// A missing file is not an error.
func (l *Loader) LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = l.HistoryPath()
	}

	if _, err := os.Stat(path); err == nil {
		//nolint:gosec // G304: Path is from trusted config directory.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
