package testing

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// ErrMockClosed is returned by Run after Close.
var ErrMockClosed = errors.New("mock session closed")

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Output string
	Error  error
	Delay  time.Duration // simulated remote latency; honours ctx cancellation
}

// MockSession simulates a remote session for testing.
// Commands are matched exactly first, then as regular expressions.
type MockSession struct {
	mu        sync.Mutex
	host      string
	responses map[string]CommandResponse
	history   []string
	closed    bool
	closes    int
	running   int
	overlap   bool
}

var _ sshutil.Session = (*MockSession)(nil)

// NewMockSession creates a mock session for host with no canned responses.
// Unknown commands return empty output, as a remote shell would for a
// command that prints nothing.
func NewMockSession(host string) *MockSession {
	return &MockSession{
		host:      host,
		responses: make(map[string]CommandResponse),
	}
}

// SetResponse registers the response for a command or command pattern.
func (m *MockSession) SetResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[pattern] = resp
}

// Run returns the configured response for cmd.
func (m *MockSession) Run(ctx context.Context, cmd string) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrMockClosed
	}
	m.history = append(m.history, cmd)
	m.running++
	if m.running > 1 {
		m.overlap = true
	}
	resp := m.lookup(cmd)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
	}()

	if resp.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(resp.Delay):
		}
	}

	return resp.Output, resp.Error
}

// lookup must be called with m.mu held.
func (m *MockSession) lookup(cmd string) CommandResponse {
	if resp, ok := m.responses[cmd]; ok {
		return resp
	}
	for pattern, resp := range m.responses {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp
		}
	}
	return CommandResponse{}
}

// Close marks the session closed.
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closes++
	return nil
}

// fresh returns a new open session carrying the same canned responses.
func (m *MockSession) fresh() *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := NewMockSession(m.host)
	for pattern, resp := range m.responses {
		next.responses[pattern] = resp
	}
	return next
}

// Host returns the host this session was created for.
func (m *MockSession) Host() string {
	return m.host
}

// IsClosed reports whether Close was called.
func (m *MockSession) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCount returns how many times Close was called.
func (m *MockSession) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// History returns the commands run so far, in order.
func (m *MockSession) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}

// Overlapped reports whether two Run calls were ever in flight at once.
func (m *MockSession) Overlapped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlap
}

// MockConnector hands out MockSessions and records connection attempts.
type MockConnector struct {
	mu       sync.Mutex
	sessions map[string]*MockSession
	errs     map[string]error
	attempts []ConnectAttempt
}

// ConnectAttempt records one Connect call.
type ConnectAttempt struct {
	Host     string
	Username string
	Secret   string
}

var _ sshutil.Connector = (*MockConnector)(nil)

// NewMockConnector creates a connector that succeeds for every host.
func NewMockConnector() *MockConnector {
	return &MockConnector{
		sessions: make(map[string]*MockSession),
		errs:     make(map[string]error),
	}
}

// SetSession makes Connect return session for host.
func (c *MockConnector) SetSession(host string, session *MockSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[host] = session
}

// SetError makes Connect fail for host. Pass nil to clear.
func (c *MockConnector) SetError(host string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, host)
		return
	}
	c.errs[host] = err
}

// Connect returns the configured session or error for host. Hosts without
// a configured session get a new MockSession, remembered for inspection;
// a closed session is replaced by an open copy, as a reconnect would.
func (c *MockConnector) Connect(ctx context.Context, host, username, secret string) (sshutil.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts = append(c.attempts, ConnectAttempt{Host: host, Username: username, Secret: secret})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := c.errs[host]; ok {
		return nil, err
	}
	session, ok := c.sessions[host]
	switch {
	case !ok:
		session = NewMockSession(host)
		c.sessions[host] = session
	case session.IsClosed():
		session = session.fresh()
		c.sessions[host] = session
	}
	return session, nil
}

// Session returns the last session handed out for host, or nil.
func (c *MockConnector) Session(host string) *MockSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[host]
}

// Attempts returns every Connect call so far.
func (c *MockConnector) Attempts() []ConnectAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConnectAttempt, len(c.attempts))
	copy(out, c.attempts)
	return out
}
