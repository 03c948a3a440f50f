package monitor

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/logger"
	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// Defaults for Options fields left at zero.
const (
	DefaultInterval     = 60 * time.Second
	DefaultInitialDelay = 10 * time.Second
	DefaultHostTimeout  = 45 * time.Second
	DefaultConcurrency  = 8
)

// TargetSource supplies the hosts to sample. Targets must return a copy
// that the loop can use without holding any lock.
type TargetSource interface {
	Targets() []Target
}

// ThresholdSource looks up the limits for a host.
type ThresholdSource interface {
	Get(tenant, hostID string) Threshold
}

// LoadSampler samples one session.
type LoadSampler interface {
	Sample(ctx context.Context, session sshutil.Session) (Load, error)
}

// Options configures a Loop.
type Options struct {
	Interval     time.Duration
	InitialDelay time.Duration
	HostTimeout  time.Duration
	Concurrency  int
	Logger       logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.InitialDelay < 0 {
		o.InitialDelay = 0
	}
	if o.HostTimeout <= 0 {
		o.HostTimeout = DefaultHostTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	return o
}

// Loop periodically samples every target and reports threshold breaches.
type Loop struct {
	targets    TargetSource
	thresholds ThresholdSource
	sampler    LoadSampler
	notifier   Notifier
	opts       Options
	log        logger.Logger

	now   func() time.Time
	newID func() string
}

// NewLoop creates a loop. A nil notifier logs events.
func NewLoop(targets TargetSource, thresholds ThresholdSource, sampler LoadSampler, notifier Notifier, opts Options) *Loop {
	opts = opts.withDefaults()
	if sampler == nil {
		sampler = NewSampler()
	}
	if notifier == nil {
		notifier = NewLogNotifier(opts.Logger)
	}
	return &Loop{
		targets:    targets,
		thresholds: thresholds,
		sampler:    sampler,
		notifier:   notifier,
		opts:       opts,
		log:        opts.Logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Run waits InitialDelay, then ticks every Interval until ctx is done.
// It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("[monitor] first check in %s, then every %s", l.opts.InitialDelay, l.opts.Interval)

	timer := time.NewTimer(l.opts.InitialDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		stats := l.Tick(ctx)
		l.log.Debug("[monitor] tick: %d hosts, %d sampled, %d alerts, %d errors, %d skipped in %s",
			stats.Hosts, stats.Sampled, stats.Alerts, stats.Errors, stats.Skipped, stats.Duration.Round(time.Millisecond))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeAlert
	outcomeError
	outcomeSkipped
)

// Tick samples every current target once, in parallel, and waits for all
// of them. Failures are isolated per host.
func (l *Loop) Tick(ctx context.Context) TickStats {
	start := l.now()
	targets := l.targets.Targets()
	stats := TickStats{Hosts: len(targets)}

	sem := make(chan struct{}, l.opts.Concurrency)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, target := range targets {
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()

			result := outcomeSkipped
			select {
			case sem <- struct{}{}:
				result = l.checkHost(ctx, target)
				<-sem
			case <-ctx.Done():
			}

			mu.Lock()
			defer mu.Unlock()
			switch result {
			case outcomeOK:
				stats.Sampled++
			case outcomeAlert:
				stats.Sampled++
				stats.Alerts++
			case outcomeError:
				stats.Errors++
			case outcomeSkipped:
				stats.Skipped++
			}
		}(target)
	}

	wg.Wait()
	stats.Duration = l.now().Sub(start)
	return stats
}

func (l *Loop) checkHost(ctx context.Context, target Target) outcome {
	hostCtx, cancel := context.WithTimeout(ctx, l.opts.HostTimeout)
	defer cancel()

	load, err := l.sampler.Sample(hostCtx, target.Session)
	if err != nil {
		if stderrors.Is(err, sshutil.ErrSessionClosed) {
			l.log.Debug("[monitor] %s was removed during the tick, skipping", target.Host)
			return outcomeSkipped
		}
		if ctx.Err() != nil {
			return outcomeSkipped
		}
		l.log.Debug("[monitor] %s (tenant %s): %s", target.Host, target.Tenant, errors.Short(err))
		l.notifier.OnError(ctx, HostError{
			ID:     l.newID(),
			Tenant: target.Tenant,
			Host:   target.Host,
			Cause:  err,
			At:     l.now(),
		})
		return outcomeError
	}

	threshold := l.thresholds.Get(target.Tenant, target.Host)
	l.log.Debug("[monitor] %s: CPU %.1f%%, RAM %.2f%%, thresholds: CPU %d%%, RAM %d%%",
		target.Host, load.CPU, load.RAM, threshold.CPU, threshold.RAM)

	if !threshold.ExceededBy(load) {
		return outcomeOK
	}

	l.notifier.OnAlert(ctx, Alert{
		ID:        l.newID(),
		Tenant:    target.Tenant,
		Host:      target.Host,
		Load:      load,
		Threshold: threshold,
		At:        l.now(),
	})
	return outcomeAlert
}
