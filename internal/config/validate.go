package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/loadwatch/internal/errors"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but loadwatch only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade loadwatch or lower the version in "+fileName(cfg))
	}

	if err := validateMonitor(cfg.Monitor); err != nil {
		return err
	}
	if err := validateSSH(cfg.SSH); err != nil {
		return err
	}
	if err := validateThresholds(cfg.Thresholds); err != nil {
		return err
	}
	return validateState(cfg.State)
}

func validateMonitor(m MonitorConfig) error {
	if err := positiveDuration("monitor.interval", m.Interval); err != nil {
		return err
	}
	if m.InitialDelay < 0 {
		return errors.New(errors.ErrConfig,
			"monitor.initial_delay can't be negative",
			"Use 0s to start checking immediately")
	}
	if err := positiveDuration("monitor.host_timeout", m.HostTimeout); err != nil {
		return err
	}
	if m.Concurrency < 1 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("monitor.concurrency must be at least 1, got %d", m.Concurrency),
			"Set it to how many hosts may be sampled at once, e.g. 8")
	}
	return nil
}

func validateSSH(s SSHConfig) error {
	if err := positiveDuration("ssh.connect_timeout", s.ConnectTimeout); err != nil {
		return err
	}
	if err := positiveDuration("ssh.command_timeout", s.CommandTimeout); err != nil {
		return err
	}
	switch s.HostKeyPolicy {
	case HostKeyAccept:
	case HostKeyKnownHosts:
		if s.KnownHosts == "" {
			return errors.New(errors.ErrConfig,
				"ssh.known_hosts is empty",
				"Point it at a known_hosts file, e.g. ~/.ssh/known_hosts")
		}
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown ssh.host_key_policy %q", s.HostKeyPolicy),
			"Use accept or known_hosts")
	}
	return nil
}

func validateThresholds(t ThresholdsConfig) error {
	switch strings.ToLower(t.Scope) {
	case "tenant", "global":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown thresholds.scope %q", t.Scope),
			"Use tenant (per tenant and host) or global (per host)")
	}
	for name, v := range map[string]int{"thresholds.default_cpu": t.DefaultCPU, "thresholds.default_ram": t.DefaultRAM} {
		if v < 0 || v > 100 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s must be between 0 and 100, got %d", name, v),
				"Thresholds are percentages")
		}
	}
	return nil
}

func validateState(s StateConfig) error {
	switch s.Backend {
	case BackendFile:
		if s.Dir == "" {
			return errors.New(errors.ErrConfig, "state.dir is empty", "Set a directory to keep state in")
		}
		switch strings.ToLower(s.Format) {
		case "yaml", "yml", "toml":
		default:
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Unknown state.format %q", s.Format),
				"Use yaml or toml")
		}
	case BackendSQLite:
		if s.Dir == "" && s.SQLitePath == "" {
			return errors.New(errors.ErrConfig,
				"state.sqlite_path and state.dir are both empty",
				"Set state.sqlite_path to the database file")
		}
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown state.backend %q", s.Backend),
			"Use file or sqlite")
	}
	return nil
}

func positiveDuration(name string, d time.Duration) error {
	if d <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("%s must be positive, got %s", name, d),
			"Durations look like 30s, 5m or 1h")
	}
	return nil
}

func fileName(cfg *Config) string {
	if cfg.Path == "" {
		return ConfigFileName
	}
	return cfg.Path
}
