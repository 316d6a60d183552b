// Package config provides configuration loading and management.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (~/.stackwatch/config.yaml), then STACKWATCH_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Default sampling interval between two stack inspections.
const DefaultInterval = 20 * time.Millisecond

// Config is the root stackwatch configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Profiler ProfilerConfig `yaml:"profiler"`
	Debugger DebuggerConfig `yaml:"debugger"`

	// HistoryFile stores shell command history. Empty disables history.
	HistoryFile string `yaml:"history_file" env:"STACKWATCH_HISTORY_FILE"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"STACKWATCH_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"STACKWATCH_LOG_PRETTY"`
}

// ProfilerConfig configures the sampling engine.
type ProfilerConfig struct {
	// Interval is the default time between two stack samples.
	// A `start -t` flag overrides it per session.
	Interval time.Duration `yaml:"interval" env:"STACKWATCH_INTERVAL"`

	// SampleTimeout bounds a single stack inspection. A sample that takes
	// longer counts as a transient failure and the tick is skipped.
	SampleTimeout time.Duration `yaml:"sample_timeout" env:"STACKWATCH_SAMPLE_TIMEOUT"`

	// FailureThreshold is the number of consecutive transient sample
	// failures after which the target is declared unavailable and the
	// session stops.
	FailureThreshold int `yaml:"failure_threshold" env:"STACKWATCH_FAILURE_THRESHOLD"`
}

// DebuggerConfig configures the external LLDB process.
type DebuggerConfig struct {
	// Path is the lldb binary to spawn.
	Path string `yaml:"path" env:"STACKWATCH_LLDB_PATH"`

	// AttachRetries is the number of attach attempts before giving up.
	AttachRetries int `yaml:"attach_retries" env:"STACKWATCH_ATTACH_RETRIES"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Profiler: ProfilerConfig{
			Interval:         DefaultInterval,
			SampleTimeout:    2 * time.Second,
			FailureThreshold: 5,
		},
		Debugger: DebuggerConfig{
			Path:          "lldb",
			AttachRetries: 3,
		},
	}
}

// Validate rejects configurations the profiler cannot run with.
func (c *Config) Validate() error {
	if c.Profiler.Interval <= 0 {
		return fmt.Errorf("profiler.interval must be positive, got %s", c.Profiler.Interval)
	}
	if c.Profiler.SampleTimeout <= 0 {
		return fmt.Errorf("profiler.sample_timeout must be positive, got %s", c.Profiler.SampleTimeout)
	}
	if c.Profiler.FailureThreshold < 1 {
		return fmt.Errorf("profiler.failure_threshold must be at least 1, got %d", c.Profiler.FailureThreshold)
	}
	if c.Debugger.Path == "" {
		return fmt.Errorf("debugger.path cannot be empty")
	}
	if c.Debugger.AttachRetries < 1 {
		return fmt.Errorf("debugger.attach_retries must be at least 1, got %d", c.Debugger.AttachRetries)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
