// Package config loads the orchid configuration from file, environment,
// and defaults via viper.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete orchid configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Logging LoggingConfig `mapstructure:"logging"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Agents  []AgentRoute  `mapstructure:"agents"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Spool   SpoolConfig   `mapstructure:"spool"`
	Sinks   []SinkRoute   `mapstructure:"sinks"`
}

// ServerConfig controls the engine's HTTP surface.
type ServerConfig struct {
	// Addr is the listen address for serve mode
	Addr string `mapstructure:"addr"`
}

// PathsConfig controls where the engine keeps its state.
type PathsConfig struct {
	// DataDir holds the state snapshot, schedule, lock, and log files.
	// Empty means the per-user default (see DataDir()).
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig controls engine logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MonitorConfig controls workflow instance polling.
type MonitorConfig struct {
	// CheckIntervalSeconds is the cadence for polling running workflow
	// instances
	CheckIntervalSeconds int `mapstructure:"check_interval_seconds"`
}

// CheckInterval returns the poll cadence as a duration.
func (m *MonitorConfig) CheckInterval() time.Duration {
	return time.Duration(m.CheckIntervalSeconds) * time.Second
}

// AgentRoute binds a (type, id) pair in the dispatch pool to a remote
// agent endpoint. Types without any route use the built-in local agents.
type AgentRoute struct {
	// Type is the task type this agent serves
	Type string `mapstructure:"type"`
	// ID is the agent id within the type's pool (default: "default")
	ID string `mapstructure:"id"`
	// Endpoint is the agent's HTTP URL
	Endpoint string `mapstructure:"endpoint"`
}

// SandboxConfig points at the code-execution service used by the
// error recreation agent.
type SandboxConfig struct {
	// URL is the sandbox service base URL; empty disables the built-in
	// error recreation agent
	URL string `mapstructure:"url"`
	// TimeoutSeconds bounds one sandbox execution
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Timeout returns the sandbox execution bound as a duration.
func (s *SandboxConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// SpoolConfig controls the drop-directory submission path.
type SpoolConfig struct {
	// Enabled turns the spool watcher on in serve mode
	Enabled bool `mapstructure:"enabled"`
	// Dir is the watched directory. Empty means <data_dir>/spool.
	Dir string `mapstructure:"dir"`
}

// SinkRoute binds a task-type glob pattern to a result sink.
type SinkRoute struct {
	// Pattern is a glob over task types ("*" matches all)
	Pattern string `mapstructure:"pattern"`
	// Kind is "log" or "file"
	Kind string `mapstructure:"kind"`
	// Path is the output file for the file kind
	Path string `mapstructure:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8787"},
		Logging: LoggingConfig{Level: "info"},
		Monitor: MonitorConfig{CheckIntervalSeconds: 30},
		Sandbox: SandboxConfig{TimeoutSeconds: 30},
		Spool:   SpoolConfig{Enabled: false},
		Sinks:   []SinkRoute{{Pattern: "*", Kind: "log"}},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("server.addr", defaults.Server.Addr)
	viper.SetDefault("paths.data_dir", defaults.Paths.DataDir)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("monitor.check_interval_seconds", defaults.Monitor.CheckIntervalSeconds)
	viper.SetDefault("sandbox.url", defaults.Sandbox.URL)
	viper.SetDefault("sandbox.timeout_seconds", defaults.Sandbox.TimeoutSeconds)
	viper.SetDefault("spool.enabled", defaults.Spool.Enabled)
	viper.SetDefault("spool.dir", defaults.Spool.Dir)
}

// Load unmarshals the current viper state into a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Sinks) == 0 {
		cfg.Sinks = Default().Sinks
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// DataDir resolves the effective data directory.
func (c *Config) DataDir() string {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "orchid")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orchid"
	}
	return filepath.Join(home, ".local", "share", "orchid")
}

// SpoolDir resolves the effective spool directory.
func (c *Config) SpoolDir() string {
	if c.Spool.Dir != "" {
		return c.Spool.Dir
	}
	return filepath.Join(c.DataDir(), "spool")
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "orchid")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orchid"
	}
	return filepath.Join(home, ".config", "orchid")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
