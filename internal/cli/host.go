package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/service"
	"github.com/rileyhilliard/loadwatch/internal/ui"
	"github.com/spf13/cobra"
)

// Host command flags
var (
	hostAddUser          string
	hostAddPassword      string
	hostAddPasswordStdin bool
	hostRemoveYes        bool
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage monitored servers",
	Long: `Add, remove, and list the servers monitored for a tenant.

Examples:
  loadwatch host add 10.0.0.5 --user monitor
  loadwatch host remove 10.0.0.5
  loadwatch host list`,
}

var hostAddCmd = &cobra.Command{
	Use:   "add <host>",
	Short: "Connect to a server and start monitoring it",
	Long: `Open an SSH session to the server with a username and password and save
the credentials. The server is only registered if the connection succeeds.

The host can be an address, host:port, or an alias from ~/.ssh/config.
The password is prompted for when stdin is a terminal. In scripts, pipe it
in with --password-stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostAdd(cmd.Context(), args[0])
	},
}

var hostRemoveCmd = &cobra.Command{
	Use:     "remove <host>",
	Aliases: []string{"rm"},
	Short:   "Stop monitoring a server",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostRemove(cmd.Context(), args[0])
	},
}

var hostListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List servers with their status and thresholds",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostList(cmd.Context())
	},
}

func init() {
	hostAddCmd.Flags().StringVarP(&hostAddUser, "user", "u", "", "SSH username")
	hostAddCmd.Flags().StringVar(&hostAddPassword, "password", "", "SSH password (visible in shell history, prefer --password-stdin)")
	hostAddCmd.Flags().BoolVar(&hostAddPasswordStdin, "password-stdin", false, "read the password from stdin")
	hostAddCmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	hostRemoveCmd.Flags().BoolVarP(&hostRemoveYes, "yes", "y", false, "skip the confirmation prompt")

	hostCmd.AddCommand(hostAddCmd, hostRemoveCmd, hostListCmd)
	rootCmd.AddCommand(hostCmd)
}

func hostAdd(ctx context.Context, host string) (err error) {
	user, secret, err := credentialsFor(host)
	if err != nil {
		return err
	}

	a, _, err := openApp(ctx, service.OpenLazy)
	if err != nil {
		return err
	}
	defer a.release(&err)

	spinner := ui.NewSpinner(os.Stdout, fmt.Sprintf("Connecting to %s", host), stdoutIsTerminal())
	spinner.Start()
	if err := a.svc.AddServer(ctx, tenantFlag, host, user, secret); err != nil {
		// A save failure still registered the server.
		if errors.IsCode(err, errors.ErrPersist) {
			spinner.Success(fmt.Sprintf("Connected to %s", host))
			return err
		}
		spinner.Fail(fmt.Sprintf("Couldn't add %s", host))
		return err
	}
	spinner.Success(fmt.Sprintf("Added %s for %s", host, tenantFlag))
	return nil
}

// credentialsFor collects the username and password from flags, stdin,
// or interactive prompts.
func credentialsFor(host string) (user, secret string, err error) {
	user, secret = hostAddUser, hostAddPassword

	if hostAddPasswordStdin {
		secret, err = readSecret(os.Stdin)
		if err != nil {
			return "", "", err
		}
	}

	if user != "" && secret != "" {
		return user, secret, nil
	}
	if !stdinIsTerminal() {
		return "", "", errors.New(errors.ErrConfig,
			"Missing credentials for "+host,
			"Pass --user and --password-stdin when not running in a terminal")
	}

	var fields []huh.Field
	if user == "" {
		fields = append(fields, huh.NewInput().
			Title("Username").
			Value(&user).
			Validate(notEmpty("username")))
	}
	if secret == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&secret).
			Validate(notEmpty("password")))
	}

	form := huh.NewForm(huh.NewGroup(fields...).
		Title(fmt.Sprintf("Credentials for %s", host)))
	if err := form.Run(); err != nil {
		return "", "", errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't get your input",
			"Try again or pass --user and --password-stdin")
	}
	return user, secret, nil
}

func notEmpty(name string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s can't be empty", name)
		}
		return nil
	}
}

func hostRemove(ctx context.Context, host string) (err error) {
	if !hostRemoveYes && stdinIsTerminal() {
		var confirm bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Stop monitoring '%s'?", host)).
					Description("Its saved credentials are deleted").
					Value(&confirm),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't get your input",
				"Try again or pass --yes")
		}
		if !confirm {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	a, _, err := openApp(ctx, service.OpenLazy)
	if err != nil {
		return err
	}
	defer a.release(&err)

	if err := a.svc.RemoveServer(ctx, tenantFlag, host); err != nil {
		return err
	}
	fmt.Printf("%s Removed %s\n", successSymbol(), host)
	return nil
}

func hostList(ctx context.Context) (err error) {
	a, _, err := openApp(ctx, service.OpenLazy)
	if err != nil {
		return err
	}
	defer a.release(&err)

	report := a.svc.ConnectTenant(ctx, tenantFlag)
	writeHostTable(os.Stdout, a.svc, tenantFlag)
	if failed := len(report.Failed()); failed > 0 {
		fmt.Printf("\n%d server(s) couldn't be reached. Run with --verbose for details.\n", failed)
	}
	return nil
}

// writeHostTable renders the tenant's live servers first, then the ones
// that couldn't be reconnected.
func writeHostTable(w io.Writer, svc *service.Service, tenant string) {
	var rows []ui.HostRow
	for _, h := range svc.ListServers(tenant) {
		th := svc.GetThresholds(tenant, h)
		rows = append(rows, ui.HostRow{Host: h, Live: true, CPULim: th.CPU, RAMLim: th.RAM})
	}
	for _, h := range svc.Registry().Dormant(tenant) {
		th := svc.GetThresholds(tenant, h)
		rows = append(rows, ui.HostRow{Host: h, Live: false, CPULim: th.CPU, RAMLim: th.RAM})
	}
	fmt.Fprintln(w, ui.RenderHostTable(rows))
}
