package doctor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rileyhilliard/loadwatch/internal/config"
	"github.com/rileyhilliard/loadwatch/internal/errors"
)

// ConfigCheck verifies the config file, if any, loads and validates.
type ConfigCheck struct {
	ConfigPath string // Explicit path, or empty to search
}

func (c *ConfigCheck) Name() string     { return "config" }
func (c *ConfigCheck) Category() string { return "CONFIG" }

func (c *ConfigCheck) Run(_ context.Context) CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    errors.Short(err),
			Suggestion: "Check the path passed to --config",
		}
	}

	if path == "" {
		cfg, err := config.Load("")
		if err == nil {
			err = config.Validate(cfg)
		}
		if err != nil {
			return CheckResult{
				Name:       c.Name(),
				Status:     StatusFail,
				Message:    fmt.Sprintf("Environment overrides are invalid: %s", errors.Short(err)),
				Suggestion: "Check the LOADWATCH_* environment variables",
			}
		}
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "No config file, using defaults",
		}
	}

	cfg, err := config.Load(path)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: %s", filepath.Base(path), errors.Short(err)),
			Suggestion: "Fix the configuration errors in " + path,
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Config file: %s", path),
	}
}

func (c *ConfigCheck) Fix() error {
	return nil // Config errors require manual intervention
}
