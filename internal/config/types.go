package config

import (
	"path/filepath"
	"time"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete loadwatch.yaml configuration file.
type Config struct {
	Version    int              `yaml:"version" mapstructure:"version"`
	Monitor    MonitorConfig    `yaml:"monitor" mapstructure:"monitor"`
	SSH        SSHConfig        `yaml:"ssh" mapstructure:"ssh"`
	Thresholds ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
	State      StateConfig      `yaml:"state" mapstructure:"state"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-" mapstructure:"-"`
}

// MonitorConfig controls the periodic sampling loop.
type MonitorConfig struct {
	// Interval between ticks.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// InitialDelay before the first tick after start.
	InitialDelay time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`

	// HostTimeout bounds sampling one host within a tick.
	HostTimeout time.Duration `yaml:"host_timeout" mapstructure:"host_timeout"`

	// Concurrency is how many hosts are sampled at once.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// SSHConfig controls how sessions are opened.
type SSHConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`

	// HostKeyPolicy is "accept" (trust on first use) or "known_hosts".
	HostKeyPolicy string `yaml:"host_key_policy" mapstructure:"host_key_policy"`

	// KnownHosts is the file used by the known_hosts policy.
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`

	// Config is the OpenSSH client config used to resolve host aliases.
	Config string `yaml:"config" mapstructure:"config"`
}

// ThresholdsConfig controls alert limits.
type ThresholdsConfig struct {
	// Scope is "tenant" (per tenant and host) or "global" (per host).
	Scope      string `yaml:"scope" mapstructure:"scope"`
	DefaultCPU int    `yaml:"default_cpu" mapstructure:"default_cpu"`
	DefaultRAM int    `yaml:"default_ram" mapstructure:"default_ram"`
}

// StateConfig controls where credentials and thresholds are saved.
type StateConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Dir holds the state files.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// Format is "yaml" or "toml" for the file backend.
	Format string `yaml:"format" mapstructure:"format"`

	// SQLitePath defaults to <dir>/state.db.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// Host key policies.
const (
	HostKeyAccept     = "accept"
	HostKeyKnownHosts = "known_hosts"
)

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Monitor: MonitorConfig{
			Interval:     60 * time.Second,
			InitialDelay: 10 * time.Second,
			HostTimeout:  45 * time.Second,
			Concurrency:  8,
		},
		SSH: SSHConfig{
			ConnectTimeout: 10 * time.Second,
			CommandTimeout: 15 * time.Second,
			HostKeyPolicy:  HostKeyAccept,
			KnownHosts:     "~/.ssh/known_hosts",
			Config:         "~/.ssh/config",
		},
		Thresholds: ThresholdsConfig{
			Scope:      "tenant",
			DefaultCPU: 80,
			DefaultRAM: 80,
		},
		State: StateConfig{
			Backend: BackendFile,
			Dir:     "~/.local/state/loadwatch",
			Format:  "yaml",
		},
	}
}

// ResolvedSQLitePath returns the SQLite file, defaulting to <dir>/state.db.
func (s StateConfig) ResolvedSQLitePath() string {
	if s.SQLitePath != "" {
		return ExpandTilde(s.SQLitePath)
	}
	return filepath.Join(ExpandTilde(s.Dir), "state.db")
}
