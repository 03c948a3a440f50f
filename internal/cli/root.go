package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/loadwatch/internal/logger"
	"github.com/rileyhilliard/loadwatch/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile    string
	verbose    bool
	noColor    bool
	tenantFlag string
)

// TenantEnv sets the default --tenant.
const TenantEnv = "LOADWATCH_TENANT"

// DefaultTenant is used when neither --tenant nor LOADWATCH_TENANT is set.
const DefaultTenant = "default"

var rootCmd = &cobra.Command{
	Use:   "loadwatch",
	Short: "Watch CPU and RAM on remote servers over SSH",
	Long: `loadwatch keeps SSH sessions open to registered servers, samples their
CPU and memory usage on a schedule and reports any server that goes over
its thresholds.

Servers and thresholds are saved per tenant and restored on the next start.

Examples:
  loadwatch host add 10.0.0.5 --user monitor
  loadwatch threshold set 10.0.0.5 cpu 60
  loadwatch load 10.0.0.5
  loadwatch serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetDebug(verbose)
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./loadwatch.yaml or ~/.config/loadwatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&tenantFlag, "tenant", "t", defaultTenant(), "tenant that owns the servers (env: "+TenantEnv+")")
}

// defaultTenant reads LOADWATCH_TENANT, falling back to DefaultTenant.
func defaultTenant() string {
	if t := strings.TrimSpace(os.Getenv(TenantEnv)); t != "" {
		return t
	}
	return DefaultTenant
}

// Execute runs the root command and exits 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

// formatError renders structured errors as-is and gives plain errors
// (cobra usage errors, mostly) the same leading symbol.
func formatError(err error) string {
	msg := err.Error()
	if !strings.HasPrefix(msg, ui.SymbolFail) {
		msg = ui.SymbolFail + " " + msg
	}
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return msg
}
