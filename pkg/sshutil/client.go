package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"golang.org/x/crypto/ssh"
)

const (
	// DefaultConnectTimeout bounds TCP dial plus SSH handshake.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultCommandTimeout bounds a single remote command.
	DefaultCommandTimeout = 15 * time.Second
)

// Client wraps an SSH connection with additional metadata.
type Client struct {
	client         *ssh.Client
	Host           string // The original host/alias used to connect
	Address        string // The resolved address (host:port)
	commandTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Dialer opens password-authenticated SSH sessions. It implements Connector.
type Dialer struct {
	// ConnectTimeout bounds dial + handshake. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// CommandTimeout bounds each Run. Zero means DefaultCommandTimeout.
	CommandTimeout time.Duration

	// HostKeyPolicy verifies server host keys. Nil means a fresh AcceptPolicy.
	HostKeyPolicy HostKeyPolicy

	// SSHConfigPath is the ssh_config consulted for alias resolution.
	// Empty means ~/.ssh/config.
	SSHConfigPath string

	policyOnce sync.Once
	policy     HostKeyPolicy
}

var _ Connector = (*Dialer)(nil)
var _ Session = (*Client)(nil)

// Connect satisfies Connector.
func (d *Dialer) Connect(ctx context.Context, host, username, secret string) (Session, error) {
	return d.Dial(ctx, host, username, secret)
}

// Dial establishes an SSH connection to the specified host.
// The host can be:
//   - An SSH config alias (e.g., "myserver")
//   - A hostname or IP (e.g., "192.168.1.100")
//   - A hostname:port (e.g., "192.168.1.100:2222")
//
// HostName and Port are resolved from the ssh config when available. A
// non-empty username overrides any User from the config.
func (d *Dialer) Dial(ctx context.Context, host, username, secret string) (*Client, error) {
	settings := resolveSSHSettings(host, d.sshConfigPath())
	if username != "" {
		settings.user = username
	}

	hostKeyCallback, err := d.hostKeyPolicy().Callback()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			fmt.Sprintf("Couldn't set up host key verification for '%s'", host),
			"Check the known_hosts file exists and is readable.")
	}

	timeout := d.connectTimeout()
	config := &ssh.ClientConfig{
		User:            settings.user,
		Auth:            passwordAuth(secret),
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	address := settings.address()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			fmt.Sprintf("Can't reach '%s' at %s", host, address),
			suggestionForDialError(err))
	}

	// ssh.NewClientConn has no context; bound the handshake with a deadline instead.
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()

		var hostKeyErr *HostKeyMismatchError
		if stderrors.As(err, &hostKeyErr) {
			return nil, errors.WrapWithCode(hostKeyErr, errors.ErrTransport,
				hostKeyErr.Error(),
				hostKeyErr.Suggestion())
		}

		if isAuthError(err) {
			return nil, errors.WrapWithCode(err, errors.ErrAuth,
				fmt.Sprintf("Wrong username or password for '%s'", host),
				"Double-check the credentials and try again.")
		}

		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", host),
			suggestionForHandshakeError(err))
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		client:         ssh.NewClient(sshConn, chans, reqs),
		Host:           host,
		Address:        address,
		commandTimeout: d.commandTimeout(),
	}, nil
}

// Close closes the SSH connection. Subsequent calls return nil.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.client != nil {
			c.closeErr = c.client.Close()
		}
	})
	return c.closeErr
}

// GetHost returns the original host/alias used to connect.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

func (d *Dialer) connectTimeout() time.Duration {
	if d.ConnectTimeout > 0 {
		return d.ConnectTimeout
	}
	return DefaultConnectTimeout
}

func (d *Dialer) commandTimeout() time.Duration {
	if d.CommandTimeout > 0 {
		return d.CommandTimeout
	}
	return DefaultCommandTimeout
}

func (d *Dialer) hostKeyPolicy() HostKeyPolicy {
	d.policyOnce.Do(func() {
		d.policy = d.HostKeyPolicy
		if d.policy == nil {
			d.policy = NewAcceptPolicy()
		}
	})
	return d.policy
}

func (d *Dialer) sshConfigPath() string {
	if d.SSHConfigPath != "" {
		return d.SSHConfigPath
	}
	return filepath.Join(homeDir(), ".ssh", "config")
}

// passwordAuth offers the secret as a password and answers every
// keyboard-interactive prompt with it (PAM setups often only allow the latter).
func passwordAuth(secret string) []ssh.AuthMethod {
	return []ssh.AuthMethod{
		ssh.Password(secret),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = secret
			}
			return answers, nil
		}),
	}
}

func isAuthError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "unable to authenticate") ||
		strings.Contains(errStr, "no supported methods remain")
}

// Helper functions

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box? Try: ssh <host>"
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "i/o timeout") {
		return "Connection timed out. Host might be offline or blocked by a firewall."
	}
	return "Make sure the host is reachable: ping <host>"
}

func suggestionForHandshakeError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Try connecting manually first: ssh <host>"
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return "The handshake timed out. The host may be overloaded."
	}
	return "Something went wrong during SSH setup. Try: ssh <host>"
}
