// Package service is the API front-ends use to manage monitored servers.
// It owns the registry, the threshold store and the persistence gateway,
// and saves a full snapshot after every mutation.
package service

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/logger"
	"github.com/rileyhilliard/loadwatch/internal/monitor"
	"github.com/rileyhilliard/loadwatch/internal/registry"
	"github.com/rileyhilliard/loadwatch/internal/store"
	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// OpenMode selects how saved servers are brought back at Open.
type OpenMode int

const (
	// OpenConnect reconnects every saved server before returning.
	OpenConnect OpenMode = iota
	// OpenLazy loads saved servers dormant and connects on first use.
	OpenLazy
)

// Service implements the registry API. Safe for concurrent use.
type Service struct {
	gateway    store.Gateway
	registry   *registry.Registry
	thresholds *monitor.ThresholdStore
	sampler    monitor.LoadSampler
	log        logger.Logger

	mode   OpenMode
	saveMu sync.Mutex
	dirty  atomic.Bool
}

// Options configures a Service.
type Options struct {
	Sampler monitor.LoadSampler
	Logger  logger.Logger
}

// New wires a service from its parts. Call Open before use.
func New(gateway store.Gateway, reg *registry.Registry, thresholds *monitor.ThresholdStore, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Sampler == nil {
		opts.Sampler = monitor.NewSampler()
	}
	return &Service{
		gateway:    gateway,
		registry:   reg,
		thresholds: thresholds,
		sampler:    opts.Sampler,
		log:        opts.Logger,
	}
}

// Registry exposes the server registry, e.g. as a monitor.TargetSource.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Thresholds exposes the threshold store.
func (s *Service) Thresholds() *monitor.ThresholdStore { return s.thresholds }

// Open loads the saved snapshot. A load failure is logged and treated as
// no prior state. When only one blob is unreadable the other is still used.
func (s *Service) Open(ctx context.Context, mode OpenMode) registry.RestoreReport {
	s.mode = mode
	snap := s.load(ctx)

	s.replaceThresholds(snap.Thresholds)
	if mode == OpenLazy {
		s.registry.Adopt(snap.Servers)
		return registry.RestoreReport{}
	}
	return s.registry.RestoreAll(ctx, snap.Servers)
}

// ConnectTenant connects the saved servers of one tenant that aren't live
// yet. Other tenants stay as they are.
func (s *Service) ConnectTenant(ctx context.Context, tenant string) registry.RestoreReport {
	return s.registry.ActivateTenant(ctx, tenant)
}

// Reload re-reads the snapshot and reconciles live sessions with it.
func (s *Service) Reload(ctx context.Context) registry.RestoreReport {
	snap := s.load(ctx)
	s.replaceThresholds(snap.Thresholds)
	report := s.registry.Reconcile(ctx, snap.Servers)
	s.dirty.Store(false)
	s.log.Info("[service] reloaded %d servers and %d thresholds", len(snap.Servers), len(snap.Thresholds))
	return report
}

func (s *Service) replaceThresholds(records []store.ThresholdRecord) {
	for _, r := range s.thresholds.Replace(records) {
		s.log.Warn("[service] ignoring saved threshold for %s (tenant %s): CPU %d%%, RAM %d%% must be 0-100",
			r.Host, r.Tenant, r.CPU, r.RAM)
	}
}

func (s *Service) load(ctx context.Context) *store.Snapshot {
	snap, err := s.gateway.Load(ctx)
	if err != nil && snap == nil {
		s.log.Error("[service] couldn't load saved state, starting empty: %s", errors.Short(err))
		return &store.Snapshot{}
	}
	if err != nil {
		s.log.Error("[service] couldn't load part of the saved state: %s", errors.Short(err))
	}
	s.log.Debug("[service] loaded %d servers and %d thresholds", len(snap.Servers), len(snap.Thresholds))
	return snap
}

// AddServer connects to host and registers it for tenant. Invalid
// credentials or an unreachable host leave the registry unchanged.
//
// A PERSIST error means the server was added but the change couldn't be
// saved yet; it is retried at the next mutation and at Close.
func (s *Service) AddServer(ctx context.Context, tenant, hostID, username, secret string) error {
	if err := s.registry.AddServer(ctx, tenant, hostID, username, secret); err != nil {
		return err
	}
	return s.persist(ctx)
}

// RemoveServer closes the session to host and forgets its credentials.
func (s *Service) RemoveServer(ctx context.Context, tenant, hostID string) error {
	if err := s.registry.RemoveServer(tenant, hostID); err != nil {
		return err
	}
	return s.persist(ctx)
}

// ListServers returns the live hosts of tenant in the order they were added.
func (s *Service) ListServers(tenant string) []string {
	return s.registry.ListServers(tenant)
}

// GetCurrentLoad samples host now. Hosts not registered for tenant return
// NOT_FOUND.
func (s *Service) GetCurrentLoad(ctx context.Context, tenant, hostID string) (monitor.Load, error) {
	session, err := s.session(ctx, tenant, hostID)
	if err != nil {
		return monitor.Load{}, err
	}

	load, err := s.sampler.Sample(ctx, session)
	if stderrors.Is(err, sshutil.ErrSessionClosed) {
		return monitor.Load{}, errors.NotFound(tenant, hostID)
	}
	return load, err
}

func (s *Service) session(ctx context.Context, tenant, hostID string) (sshutil.Session, error) {
	session, err := s.registry.Session(tenant, hostID)
	if err == nil || s.mode != OpenLazy || !s.registry.Known(tenant, hostID) {
		return session, err
	}
	if err := s.registry.Activate(ctx, tenant, hostID); err != nil {
		return nil, err
	}
	return s.registry.Session(tenant, hostID)
}

// SetThreshold updates one limit for host, keeping the other.
func (s *Service) SetThreshold(ctx context.Context, tenant, hostID string, resource monitor.Resource, value int) error {
	if strings.TrimSpace(hostID) == "" {
		return errors.New(errors.ErrValidation, "Host is empty", "Pass the server the threshold applies to")
	}
	if err := s.thresholds.Set(tenant, hostID, resource, value); err != nil {
		return err
	}
	return s.persist(ctx)
}

// GetThresholds returns the limits for host, (80, 80) unless set.
func (s *Service) GetThresholds(tenant, hostID string) monitor.Threshold {
	return s.thresholds.Get(tenant, hostID)
}

// Snapshot returns the state that Save would write.
func (s *Service) Snapshot() *store.Snapshot {
	return &store.Snapshot{
		Servers:    s.registry.Snapshot(),
		Thresholds: s.thresholds.Records(),
	}
}

// Save writes a full snapshot now.
func (s *Service) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.gateway.Save(ctx, s.Snapshot()); err != nil {
		s.dirty.Store(true)
		return err
	}
	s.dirty.Store(false)
	return nil
}

// Dirty reports whether the last save failed.
func (s *Service) Dirty() bool { return s.dirty.Load() }

func (s *Service) persist(ctx context.Context) error {
	if err := s.Save(ctx); err != nil {
		s.log.Error("[service] change applied but not saved: %s", errors.Short(err))
		return errors.WrapWithCode(err, errors.ErrPersist,
			"Change applied but not saved",
			"It will be retried on the next change and at shutdown. Check the state directory")
	}
	return nil
}

// Close flushes unsaved changes, closes every session and the gateway.
func (s *Service) Close(ctx context.Context) error {
	var flushErr error
	if s.Dirty() {
		s.log.Info("[service] flushing unsaved changes")
		if err := s.Save(ctx); err != nil {
			s.log.Error("[service] couldn't save state at shutdown: %s", errors.Short(err))
			flushErr = err
		}
	}

	s.registry.CloseAll()

	if err := s.gateway.Close(); err != nil && flushErr == nil {
		return errors.WrapWithCode(err, errors.ErrPersist, "Couldn't close the state store", "")
	}
	return flushErr
}
