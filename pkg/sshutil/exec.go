package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Run executes cmd on the remote host over a fresh channel and returns its
// trimmed stdout. The call is bounded by the dialer's command timeout and by
// ctx; hitting either is reported as a transport error.
func (c *Client) Run(ctx context.Context, cmd string) (string, error) {
	if c.client == nil {
		return "", errors.New(errors.ErrTransport,
			fmt.Sprintf("No SSH connection to '%s'", c.Host),
			"Reconnect to the host.")
	}

	if c.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.commandTimeout)
		defer cancel()
	}

	session, err := c.client.NewSession()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrTransport,
			fmt.Sprintf("Failed to open SSH channel to '%s'", c.Host),
			"Connection may have been closed. Try reconnecting.")
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return "", errors.WrapWithCode(ctx.Err(), errors.ErrTransport,
			fmt.Sprintf("Command on '%s' didn't finish in time", c.Host),
			"The host may be overloaded or the connection stalled.")
	case err := <-resultCh:
		if err != nil {
			var exitErr *ssh.ExitError
			if !stderrors.As(err, &exitErr) {
				return "", errors.WrapWithCode(err, errors.ErrTransport,
					fmt.Sprintf("Failed to execute command on '%s': %s", c.Host, cmd),
					"Connection may have been lost. Try reconnecting.")
			}
			// Command ran, just had non-zero exit
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}
