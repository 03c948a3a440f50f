package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/store"
)

// StateDirCheck verifies the state directory exists and is writable.
type StateDirCheck struct {
	Dir string
}

func (c *StateDirCheck) Name() string     { return "state_dir" }
func (c *StateDirCheck) Category() string { return "STATE" }

func (c *StateDirCheck) Run(_ context.Context) CheckResult {
	info, err := os.Stat(c.Dir)
	if os.IsNotExist(err) {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("State directory %s doesn't exist yet", c.Dir),
			Suggestion: "It's created on the first save, or run 'loadwatch doctor --fix'",
			Fixable:    true,
		}
	}
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Cannot access %s: %v", c.Dir, err),
			Suggestion: "Check directory permissions",
		}
	}
	if !info.IsDir() {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s is not a directory", c.Dir),
			Suggestion: "Point state.dir at a directory",
		}
	}

	tmp, err := os.CreateTemp(c.Dir, ".doctor-*")
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s is not writable", c.Dir),
			Suggestion: "Fix: chmod u+w " + c.Dir,
		}
	}
	_ = tmp.Close()
	_ = os.Remove(tmp.Name())

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("State directory: %s", c.Dir),
	}
}

func (c *StateDirCheck) Fix() error {
	return os.MkdirAll(filepath.Clean(c.Dir), 0o700)
}

// StateLoadCheck verifies saved state can be read.
type StateLoadCheck struct {
	Gateway store.Gateway
}

func (c *StateLoadCheck) Name() string     { return "state_load" }
func (c *StateLoadCheck) Category() string { return "STATE" }

func (c *StateLoadCheck) Run(ctx context.Context) CheckResult {
	snap, err := c.Gateway.Load(ctx)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    errors.Short(err),
			Suggestion: "Saved servers are ignored until this is fixed. Move the broken file away to start fresh",
		}
	}

	servers, thresholds := len(snap.Servers), len(snap.Thresholds)
	return CheckResult{
		Name:   c.Name(),
		Status: StatusPass,
		Message: fmt.Sprintf("%d saved server%s, %d threshold override%s",
			servers, pluralize(servers), thresholds, pluralize(thresholds)),
	}
}

func (c *StateLoadCheck) Fix() error {
	return nil
}

// NewStateChecks creates the state checks for dir and gateway.
func NewStateChecks(dir string, gateway store.Gateway) []Check {
	return []Check{
		&StateDirCheck{Dir: dir},
		&StateLoadCheck{Gateway: gateway},
	}
}
