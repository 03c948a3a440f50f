package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rileyhilliard/loadwatch/internal/config"
	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/logger"
	"github.com/rileyhilliard/loadwatch/internal/monitor"
	"github.com/rileyhilliard/loadwatch/internal/registry"
	"github.com/rileyhilliard/loadwatch/internal/service"
	"github.com/rileyhilliard/loadwatch/internal/store"
	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// app bundles the loaded config with the service built from it.
type app struct {
	cfg *config.Config
	svc *service.Service
	log logger.Logger
}

// openApp loads config, builds the service and restores saved servers.
func openApp(ctx context.Context, mode service.OpenMode) (*app, registry.RestoreReport, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, registry.RestoreReport{}, err
	}
	log := logger.Default()

	svc, err := buildService(ctx, cfg, nil, log)
	if err != nil {
		return nil, registry.RestoreReport{}, err
	}

	report := svc.Open(ctx, mode)
	return &app{cfg: cfg, svc: svc, log: log}, report, nil
}

// buildService wires a service from cfg. A nil connector means an SSH
// Dialer configured from cfg.SSH.
func buildService(ctx context.Context, cfg *config.Config, connector sshutil.Connector, log logger.Logger) (*service.Service, error) {
	if connector == nil {
		connector = newDialer(cfg.SSH)
	}

	scope, err := monitor.ParseScope(cfg.Thresholds.Scope)
	if err != nil {
		return nil, err
	}
	thresholds := monitor.NewThresholdStore(scope, monitor.Threshold{
		CPU: cfg.Thresholds.DefaultCPU,
		RAM: cfg.Thresholds.DefaultRAM,
	})

	gateway, err := openGateway(ctx, cfg.State)
	if err != nil {
		return nil, err
	}

	reg := registry.New(connector, registry.Options{
		Logger:      log,
		Concurrency: cfg.Monitor.Concurrency,
	})
	return service.New(gateway, reg, thresholds, service.Options{Logger: log}), nil
}

// newDialer builds the SSH dialer for cfg.
func newDialer(cfg config.SSHConfig) *sshutil.Dialer {
	d := &sshutil.Dialer{
		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
		SSHConfigPath:  config.ExpandTilde(cfg.Config),
	}
	switch cfg.HostKeyPolicy {
	case config.HostKeyKnownHosts:
		d.HostKeyPolicy = sshutil.KnownHostsPolicy{Path: config.ExpandTilde(cfg.KnownHosts)}
	default:
		d.HostKeyPolicy = sshutil.NewAcceptPolicy()
	}
	return d
}

// openGateway returns the state backend named by cfg.Backend. Backends
// are opened on first use, so a damaged store shows up as a load failure.
func openGateway(ctx context.Context, cfg config.StateConfig) (store.Gateway, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return store.NewSQLiteGateway(cfg.ResolvedSQLitePath())
	case config.BackendFile, "":
		return store.NewFileGateway(config.ExpandTilde(cfg.Dir), cfg.Format)
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown state backend '%s'", cfg.Backend),
			"Set state.backend to 'file' or 'sqlite'")
	}
}

// close flushes state and closes every session.
func (a *app) close(ctx context.Context) error {
	return a.svc.Close(ctx)
}

// release closes a at the end of a one-shot command. A failed flush is
// reported through errp unless the command already failed.
func (a *app) release(errp *error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.close(ctx); err != nil && *errp == nil {
		*errp = err
	}
}

// printRestoreReport summarizes reconnects after Open.
func printRestoreReport(w io.Writer, report registry.RestoreReport) {
	if len(report.Results) == 0 {
		return
	}
	fmt.Fprintf(w, "Restored %d of %d saved servers\n", report.Restored(), len(report.Results))
	for _, r := range report.Failed() {
		fmt.Fprintf(w, "  %s %s [%s]: %s\n", failSymbol(), r.Host, r.Tenant, errors.Short(r.Err))
	}
}
