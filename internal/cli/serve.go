package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rileyhilliard/loadwatch/internal/monitor"
	"github.com/rileyhilliard/loadwatch/internal/service"
	"github.com/rileyhilliard/loadwatch/internal/ui"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the final save and session close.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Reconnect saved servers and monitor them until stopped",
	Long: `Reconnect every saved server, then sample CPU and RAM on each one at the
configured interval and report the ones over their thresholds.

Servers of every tenant are monitored. Passing --tenant only filters what
is printed.

Signals:
  SIGINT, SIGTERM  save state, close sessions and exit
  SIGHUP           reload saved servers and thresholds`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant := ""
		if cmd.Flags().Changed("tenant") {
			tenant = tenantFlag
		}
		return serve(cmd.Context(), tenant)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, tenant string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, report, err := openApp(ctx, service.OpenConnect)
	if err != nil {
		return err
	}
	printRestoreReport(os.Stdout, report)

	reg := a.svc.Registry()
	live, dormant := reg.Counts()
	a.log.Info("[service] monitoring %d server(s), %d unreachable", live, dormant)

	loop := monitor.NewLoop(reg, a.svc.Thresholds(), nil, newServeNotifier(a, tenant), monitor.Options{
		Interval:     a.cfg.Monitor.Interval,
		InitialDelay: a.cfg.Monitor.InitialDelay,
		HostTimeout:  a.cfg.Monitor.HostTimeout,
		Concurrency:  a.cfg.Monitor.Concurrency,
		Logger:       a.log,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					a.log.Info("[service] reloading state")
					printRestoreReport(os.Stdout, a.svc.Reload(ctx))
					continue
				}
				a.log.Info("[service] %s received, shutting down", sig)
				cancel()
				return
			}
		}
	}()

	runErr := loop.Run(ctx)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	if err := a.close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// newServeNotifier prints events to the terminal, or logs them when
// stdout is redirected. Event ids are logged at debug level either way.
func newServeNotifier(a *app, tenant string) monitor.Notifier {
	if !stdoutIsTerminal() {
		return monitor.NewLogNotifier(a.log)
	}
	console := ui.NewConsoleNotifier(os.Stdout)
	console.Tenant = tenant
	return monitor.MultiNotifier{console, monitor.NotifierFuncs{
		Alert: func(_ context.Context, al monitor.Alert) {
			a.log.Debug("[monitor] alert %s for %s/%s", al.ID, al.Tenant, al.Host)
		},
		Error: func(_ context.Context, e monitor.HostError) {
			a.log.Debug("[monitor] error %s for %s/%s", e.ID, e.Tenant, e.Host)
		},
	}}
}
