package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/monitor"
	"github.com/rileyhilliard/loadwatch/internal/service"
	"github.com/spf13/cobra"
)

var thresholdCmd = &cobra.Command{
	Use:     "threshold",
	Aliases: []string{"limit"},
	Short:   "Show or change alert thresholds",
	Long: `Thresholds are the CPU and RAM percentages above which a server raises
an alert. A server without its own thresholds uses the configured defaults.

Examples:
  loadwatch threshold get 10.0.0.5
  loadwatch threshold set 10.0.0.5 cpu 60
  loadwatch threshold set 10.0.0.5 ram     # pick from a menu`,
}

var thresholdSetCmd = &cobra.Command{
	Use:       "set <host> <cpu|ram> [percent]",
	Short:     "Set the CPU or RAM threshold for a server",
	Args:      cobra.RangeArgs(2, 3),
	ValidArgs: []string{"cpu", "ram"},
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 3 {
			value = args[2]
		}
		return thresholdSet(cmd.Context(), args[0], args[1], value)
	},
}

var thresholdGetCmd = &cobra.Command{
	Use:   "get <host>",
	Short: "Show the thresholds for a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return thresholdGet(cmd.Context(), args[0])
	},
}

func init() {
	thresholdCmd.AddCommand(thresholdSetCmd, thresholdGetCmd)
	rootCmd.AddCommand(thresholdCmd)
}

func thresholdSet(ctx context.Context, host, resourceArg, valueArg string) (err error) {
	resource, err := monitor.ParseResource(resourceArg)
	if err != nil {
		return err
	}

	var value int
	if valueArg != "" {
		if value, err = parseThresholdValue(valueArg); err != nil {
			return err
		}
	}

	a, _, err := openApp(ctx, service.OpenLazy)
	if err != nil {
		return err
	}
	defer a.release(&err)

	current := a.svc.GetThresholds(tenantFlag, host).Value(resource)

	if valueArg == "" {
		if value, err = pickThreshold(host, resource, current); err != nil {
			return err
		}
	}

	if err := a.svc.SetThreshold(ctx, tenantFlag, host, resource, value); err != nil {
		return err
	}
	fmt.Printf("%s %s threshold for %s: %d%% -> %d%%\n",
		successSymbol(), resource.Label(), host, current, value)
	return nil
}

// pickThreshold shows the step menu, preselecting current when it is
// one of the steps.
func pickThreshold(host string, resource monitor.Resource, current int) (int, error) {
	if !stdinIsTerminal() {
		return 0, errors.New(errors.ErrConfig,
			"No threshold value given",
			fmt.Sprintf("Pass it as an argument, e.g. loadwatch threshold set %s %s 80", host, resource))
	}

	options := make([]huh.Option[int], 0, len(monitor.AllowedThresholdSteps))
	for _, step := range monitor.AllowedThresholdSteps {
		options = append(options, huh.NewOption(fmt.Sprintf("%d%%", step), step))
	}

	selected := monitor.DefaultThreshold.Value(resource)
	if monitor.IsAllowedStep(current) {
		selected = current
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(fmt.Sprintf("%s threshold for %s", resource.Label(), host)).
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't get your selection",
			fmt.Sprintf("Try again or use: loadwatch threshold set %s %s <percent>", host, resource))
	}
	return selected, nil
}

func thresholdGet(ctx context.Context, host string) (err error) {
	a, _, err := openApp(ctx, service.OpenLazy)
	if err != nil {
		return err
	}
	defer a.release(&err)

	th := a.svc.GetThresholds(tenantFlag, host)
	fmt.Fprintf(os.Stdout, "%s\n  CPU: %d%%\n  RAM: %d%%\n", host, th.CPU, th.RAM)
	return nil
}
