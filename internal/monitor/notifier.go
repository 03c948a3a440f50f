package monitor

import (
	"context"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/logger"
)

// Notifier receives events from a tick. Methods are called concurrently
// from the per-host goroutines, so implementations must be safe for
// concurrent use.
type Notifier interface {
	OnAlert(ctx context.Context, alert Alert)
	OnError(ctx context.Context, hostErr HostError)
}

// NotifierFuncs adapts plain functions to Notifier. Nil funcs are skipped.
type NotifierFuncs struct {
	Alert func(ctx context.Context, alert Alert)
	Error func(ctx context.Context, hostErr HostError)
}

func (f NotifierFuncs) OnAlert(ctx context.Context, alert Alert) {
	if f.Alert != nil {
		f.Alert(ctx, alert)
	}
}

func (f NotifierFuncs) OnError(ctx context.Context, hostErr HostError) {
	if f.Error != nil {
		f.Error(ctx, hostErr)
	}
}

// MultiNotifier fans events out to every notifier in order.
type MultiNotifier []Notifier

func (m MultiNotifier) OnAlert(ctx context.Context, alert Alert) {
	for _, n := range m {
		if n != nil {
			n.OnAlert(ctx, alert)
		}
	}
}

func (m MultiNotifier) OnError(ctx context.Context, hostErr HostError) {
	for _, n := range m {
		if n != nil {
			n.OnError(ctx, hostErr)
		}
	}
}

// LogNotifier writes events to a logger.
type LogNotifier struct {
	Log logger.Logger
}

// NewLogNotifier returns a notifier logging to log, or the default logger.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Default()
	}
	return &LogNotifier{Log: log}
}

func (n *LogNotifier) OnAlert(_ context.Context, a Alert) {
	n.Log.Warn("[monitor] threshold exceeded on %s (tenant %s): CPU %.1f%% > %d%% or RAM %.2f%% > %d%% [%s]",
		a.Host, a.Tenant, a.Load.CPU, a.Threshold.CPU, a.Load.RAM, a.Threshold.RAM, a.ID)
}

func (n *LogNotifier) OnError(_ context.Context, e HostError) {
	n.Log.Error("[monitor] error monitoring %s (tenant %s): %s [%s]",
		e.Host, e.Tenant, errors.Short(e.Cause), e.ID)
}
