package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// Load is a point-in-time utilization sample, both values in percent.
type Load struct {
	CPU float64
	RAM float64
}

// Resource names a thresholded metric.
type Resource string

const (
	ResourceCPU Resource = "cpu"
	ResourceRAM Resource = "ram"
)

// ParseResource accepts "cpu" or "ram" (case-insensitive).
func ParseResource(s string) (Resource, error) {
	switch Resource(strings.ToLower(strings.TrimSpace(s))) {
	case ResourceCPU:
		return ResourceCPU, nil
	case ResourceRAM, "mem", "memory":
		return ResourceRAM, nil
	}
	return "", errors.New(errors.ErrValidation,
		fmt.Sprintf("Unknown resource %q", s),
		"Use cpu or ram")
}

// Label is the display name, e.g. "CPU".
func (r Resource) Label() string {
	return strings.ToUpper(string(r))
}

// Threshold holds the alert limits for one host, in percent.
type Threshold struct {
	CPU int
	RAM int
}

// DefaultThreshold applies to hosts without an explicit entry.
var DefaultThreshold = Threshold{CPU: 80, RAM: 80}

// ExceededBy reports whether load is strictly above either limit.
func (t Threshold) ExceededBy(load Load) bool {
	return load.CPU > float64(t.CPU) || load.RAM > float64(t.RAM)
}

// Value returns the limit for r.
func (t Threshold) Value(r Resource) int {
	if r == ResourceRAM {
		return t.RAM
	}
	return t.CPU
}

// With returns a copy of t with the limit for r set to v.
func (t Threshold) With(r Resource, v int) Threshold {
	if r == ResourceRAM {
		t.RAM = v
	} else {
		t.CPU = v
	}
	return t
}

// AllowedThresholdSteps are the values offered by the threshold menu.
var AllowedThresholdSteps = []int{20, 40, 60, 80, 90}

// IsAllowedStep reports whether v is one of AllowedThresholdSteps.
func IsAllowedStep(v int) bool {
	for _, s := range AllowedThresholdSteps {
		if s == v {
			return true
		}
	}
	return false
}

// Target is one live host to sample during a tick.
type Target struct {
	Tenant  string
	Host    string
	Session sshutil.Session
}

// Alert is emitted when a host's load exceeds its threshold.
type Alert struct {
	ID        string
	Tenant    string
	Host      string
	Load      Load
	Threshold Threshold
	At        time.Time
}

// Message renders the alert the way it is delivered to a tenant.
func (a Alert) Message() string {
	return fmt.Sprintf("Server %s exceeds thresholds!\nCPU: %s%%\nRAM: %.2f%%",
		a.Host, formatPercent(a.Load.CPU), a.Load.RAM)
}

// HostError is emitted when a host couldn't be sampled.
type HostError struct {
	ID     string
	Tenant string
	Host   string
	Cause  error
	At     time.Time
}

// Message renders the failure for a tenant.
func (e HostError) Message() string {
	return fmt.Sprintf("Error monitoring server %s: %s", e.Host, errors.Short(e.Cause))
}

// TickStats summarizes one tick.
type TickStats struct {
	Hosts    int
	Sampled  int
	Alerts   int
	Errors   int
	Skipped  int
	Duration time.Duration
}

// formatPercent prints the shortest exact form, keeping one decimal for
// whole numbers (10 -> "10.0", 3.25 -> "3.25").
func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
