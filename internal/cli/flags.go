package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/monitor"
	"github.com/rileyhilliard/loadwatch/internal/ui"
	"golang.org/x/term"
)

// stdinIsTerminal reports whether prompts can be shown.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// stdoutIsTerminal reports whether output can be animated.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// readSecret reads the first line of r, without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read the password from stdin", "")
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New(errors.ErrConfig,
			"No password on stdin",
			"Pipe the password in, e.g. echo \"$PASS\" | loadwatch host add <host> --password-stdin")
	}
	return secret, nil
}

// parseThresholdValue parses a percentage argument. Only the menu steps
// are accepted.
func parseThresholdValue(arg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(arg), "%"))
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrValidation,
			fmt.Sprintf("'%s' isn't a whole percentage", arg),
			"Use one of "+stepList())
	}
	if !monitor.IsAllowedStep(v) {
		return 0, errors.New(errors.ErrValidation,
			fmt.Sprintf("%d%% isn't an available threshold", v),
			"Use one of "+stepList())
	}
	return v, nil
}

func stepList() string {
	steps := make([]string, len(monitor.AllowedThresholdSteps))
	for i, step := range monitor.AllowedThresholdSteps {
		steps[i] = strconv.Itoa(step)
	}
	return strings.Join(steps, ", ")
}

func failSymbol() string {
	return lipgloss.NewStyle().Foreground(ui.ColorError).Render(ui.SymbolFail)
}

func successSymbol() string {
	return lipgloss.NewStyle().Foreground(ui.ColorSuccess).Render(ui.SymbolSuccess)
}
