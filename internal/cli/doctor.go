package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/loadwatch/internal/config"
	"github.com/rileyhilliard/loadwatch/internal/doctor"
	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/store"
	"github.com/rileyhilliard/loadwatch/internal/ui"
	"github.com/spf13/cobra"
)

var (
	doctorJSON    bool
	doctorFix     bool
	doctorOffline bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, saved state, SSH setup and servers",
	Long: `Run diagnostic checks and report anything that would stop loadwatch from
monitoring. Every saved server is connected to and sampled once unless
--offline is given.

Exits 1 when a check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant := ""
		if cmd.Flags().Changed("tenant") {
			tenant = tenantFlag
		}
		return doctorCommand(cmd.Context(), os.Stdout, tenant)
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output in JSON format")
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "attempt automatic fixes where possible")
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip connecting to saved servers")
	rootCmd.AddCommand(doctorCmd)
}

// DoctorOutput represents the JSON output for doctor command.
type DoctorOutput struct {
	Categories []doctor.Group `json:"categories"`
	Summary    SummaryOutput  `json:"summary"`
}

// SummaryOutput summarizes the check results.
type SummaryOutput struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	Fixable  int  `json:"fixable"`
	AllClear bool `json:"all_clear"`
}

func doctorCommand(ctx context.Context, w io.Writer, tenant string) error {
	checks, cleanup := collectChecks(ctx, tenant)
	defer cleanup()

	results := doctor.RunAllParallel(ctx, checks)
	if doctorFix {
		doctor.Fix(ctx, checks, results)
	}

	groups := doctor.GroupByCategory(checks, results)
	if doctorJSON {
		if err := outputDoctorJSON(w, groups, results); err != nil {
			return err
		}
	} else {
		outputDoctorText(w, groups, results)
	}

	if doctor.HasFailures(results) {
		return errors.New(errors.ErrConfig, doctor.Summary(results), "")
	}
	return nil
}

// collectChecks gathers every check the loaded config allows. A config
// that fails to load yields only the config check.
func collectChecks(ctx context.Context, tenant string) ([]doctor.Check, func()) {
	checks := []doctor.Check{&doctor.ConfigCheck{ConfigPath: cfgFile}}
	noop := func() {}

	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return checks, noop
	}

	checks = append(checks, doctor.NewSSHChecks(cfg.SSH.HostKeyPolicy,
		config.ExpandTilde(cfg.SSH.KnownHosts), config.ExpandTilde(cfg.SSH.Config))...)

	gateway, err := openGateway(ctx, cfg.State)
	if err != nil {
		checks = append(checks, &doctor.StateDirCheck{Dir: config.ExpandTilde(cfg.State.Dir)})
		return checks, noop
	}
	checks = append(checks, doctor.NewStateChecks(config.ExpandTilde(cfg.State.Dir), gateway)...)
	cleanup := func() { _ = gateway.Close() }

	if doctorOffline {
		return checks, cleanup
	}
	snap, err := gateway.Load(ctx)
	if err != nil && snap == nil {
		return checks, cleanup
	}
	records := filterTenant(snap.Servers, tenant)
	timeout := cfg.SSH.ConnectTimeout + 2*cfg.SSH.CommandTimeout
	checks = append(checks, doctor.NewServerChecks(records, newDialer(cfg.SSH), timeout)...)
	return checks, cleanup
}

func filterTenant(records []store.ServerRecord, tenant string) []store.ServerRecord {
	if tenant == "" {
		return records
	}
	var out []store.ServerRecord
	for _, r := range records {
		if r.Tenant == tenant {
			out = append(out, r)
		}
	}
	return out
}

// outputDoctorJSON outputs results in JSON format.
func outputDoctorJSON(w io.Writer, groups []doctor.Group, results []doctor.CheckResult) error {
	counts := doctor.CountByStatus(results)
	output := DoctorOutput{
		Categories: groups,
		Summary: SummaryOutput{
			Pass:     counts[doctor.StatusPass],
			Warn:     counts[doctor.StatusWarn],
			Fail:     counts[doctor.StatusFail],
			Fixable:  doctor.FixableCount(results),
			AllClear: !doctor.HasIssues(results),
		},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// outputDoctorText outputs results in human-readable format.
func outputDoctorText(w io.Writer, groups []doctor.Group, results []doctor.CheckResult) {
	successStyle := lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ui.ColorError)
	mutedStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("loadwatch Diagnostic Report"))
	fmt.Fprintln(w)

	for _, g := range groups {
		fmt.Fprintln(w, headerStyle.Render(g.Category))
		for _, result := range g.Results {
			renderCheckResult(w, result)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("━", 60))
	fmt.Fprintln(w)

	if !doctor.HasIssues(results) {
		fmt.Fprintf(w, "%s %s\n", successStyle.Render(ui.SymbolSuccess), doctor.Summary(results))
	} else {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render(ui.SymbolFail), doctor.Summary(results))
		if doctor.FixableCount(results) > 0 && !doctorFix {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  Run with %s to attempt automatic fixes where possible.\n",
				mutedStyle.Render("--fix"))
		}
	}
	fmt.Fprintln(w)
}

// renderCheckResult renders a single check result.
func renderCheckResult(w io.Writer, result doctor.CheckResult) {
	symbol, color := ui.SymbolComplete, ui.ColorSuccess
	switch result.Status {
	case doctor.StatusWarn:
		color = ui.ColorWarning
	case doctor.StatusFail:
		symbol, color = ui.SymbolFail, ui.ColorError
	}

	fmt.Fprintf(w, "  %s %s\n", lipgloss.NewStyle().Foreground(color).Render(symbol), result.Message)

	if result.Suggestion != "" && result.Status != doctor.StatusPass {
		muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
		for _, line := range strings.Split(result.Suggestion, "\n") {
			fmt.Fprintf(w, "    %s\n", muted.Render(line))
		}
	}
}
