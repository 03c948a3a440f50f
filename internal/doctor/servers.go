package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/monitor"
	"github.com/rileyhilliard/loadwatch/internal/store"
	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// DefaultServerTimeout bounds connecting to and sampling one server.
const DefaultServerTimeout = 30 * time.Second

// ServerCheck connects to a saved server with its saved credentials and
// samples it once.
type ServerCheck struct {
	Record    store.ServerRecord
	Connector sshutil.Connector
	Timeout   time.Duration
}

func (c *ServerCheck) Name() string {
	return fmt.Sprintf("server_%s_%s", c.Record.Tenant, c.Record.Host)
}
func (c *ServerCheck) Category() string { return "SERVERS" }

func (c *ServerCheck) Run(ctx context.Context) CheckResult {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultServerTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	label := fmt.Sprintf("%s [%s]", c.Record.Host, c.Record.Tenant)

	session, err := c.Connector.Connect(ctx, c.Record.Host, c.Record.Username, c.Record.Secret)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: %s", label, errors.Short(err)),
			Suggestion: suggestionFor(err, c.Record),
		}
	}
	defer session.Close()

	load, err := monitor.NewSampler().Sample(ctx, session)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%s: connected, but %s", label, errors.Short(err)),
			Suggestion: "The server needs top and free on its PATH",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s: CPU %.1f%%, RAM %.1f%%", label, load.CPU, load.RAM),
	}
}

func (c *ServerCheck) Fix() error {
	return nil // Network issues can't be auto-fixed
}

func suggestionFor(err error, rec store.ServerRecord) string {
	if errors.HasCode(err, errors.ErrAuth) {
		return fmt.Sprintf("Re-add it with new credentials: loadwatch host add %s --tenant %s", rec.Host, rec.Tenant)
	}
	return fmt.Sprintf("%s may be offline or firewalled", rec.Host)
}

// NewServerChecks creates a check per saved server.
func NewServerChecks(records []store.ServerRecord, connector sshutil.Connector, timeout time.Duration) []Check {
	checks := make([]Check, 0, len(records))
	for _, rec := range records {
		checks = append(checks, &ServerCheck{Record: rec, Connector: connector, Timeout: timeout})
	}
	return checks
}
