package sshutil

import (
	"context"

	"github.com/rileyhilliard/loadwatch/internal/errors"
)

// ErrSessionClosed is returned by sessions that were closed by their owner,
// typically because the host was removed while a command was queued.
var ErrSessionClosed = errors.New(errors.ErrNotFound,
	"Session is closed",
	"The server was removed. Add it again to resume monitoring")

// Session is a live, authenticated channel to one host that can execute
// commands. Both the real Client and mock implementations satisfy it.
type Session interface {
	// Run executes cmd and returns its stdout trimmed of surrounding
	// whitespace. A non-zero exit status is not an error; only transport
	// failures (including timeouts) are.
	Run(ctx context.Context, cmd string) (string, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// Connector opens sessions to hosts.
type Connector interface {
	Connect(ctx context.Context, host, username, secret string) (Session, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, host, username, secret string) (Session, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context, host, username, secret string) (Session, error) {
	return f(ctx, host, username, secret)
}
