package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rileyhilliard/loadwatch/internal/service"
	"github.com/rileyhilliard/loadwatch/internal/ui"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <host>",
	Short: "Show the current CPU and RAM usage of a server",
	Long: `Sample one server now and show its usage against its thresholds.

Examples:
  loadwatch load 10.0.0.5
  loadwatch load db --tenant acme`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showLoad(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func showLoad(ctx context.Context, host string) (err error) {
	a, _, err := openApp(ctx, service.OpenLazy)
	if err != nil {
		return err
	}
	defer a.release(&err)

	spinner := ui.NewSpinner(os.Stdout, fmt.Sprintf("Sampling %s", host), stdoutIsTerminal())
	spinner.Start()
	load, err := a.svc.GetCurrentLoad(ctx, tenantFlag, host)
	if err != nil {
		spinner.Fail(fmt.Sprintf("Couldn't sample %s", host))
		return err
	}
	spinner.Success(host)

	th := a.svc.GetThresholds(tenantFlag, host)
	fmt.Println(ui.RenderLoadBar("CPU", load.CPU, th.CPU, 30))
	fmt.Println(ui.RenderLoadBar("RAM", load.RAM, th.RAM, 30))
	if th.ExceededBy(load) {
		fmt.Printf("\n%s over threshold\n", ui.SymbolAlert)
	}
	return nil
}
