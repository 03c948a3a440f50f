package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy decides whether a server's host key is trusted.
// Swap implementations to harden verification without touching callers.
type HostKeyPolicy interface {
	Callback() (ssh.HostKeyCallback, error)
}

// AcceptPolicy trusts the first key a host presents and pins it for the
// lifetime of the policy. A different key on a later connection is rejected.
type AcceptPolicy struct {
	mu     sync.Mutex
	pinned map[string]ssh.PublicKey
}

// NewAcceptPolicy creates a trust-on-first-use policy with nothing pinned.
func NewAcceptPolicy() *AcceptPolicy {
	return &AcceptPolicy{pinned: make(map[string]ssh.PublicKey)}
}

// Callback returns the pinning host key callback.
func (p *AcceptPolicy) Callback() (ssh.HostKeyCallback, error) {
	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		p.mu.Lock()
		defer p.mu.Unlock()

		known, ok := p.pinned[hostname]
		if !ok {
			p.pinned[hostname] = key
			return nil
		}
		if !bytes.Equal(known.Marshal(), key.Marshal()) {
			return &HostKeyMismatchError{
				Hostname:     hostname,
				ReceivedType: key.Type(),
				WantTypes:    []string{known.Type()},
			}
		}
		return nil
	}, nil
}

// Pinned returns the number of hosts with a pinned key.
func (p *AcceptPolicy) Pinned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pinned)
}

// KnownHostsPolicy verifies host keys against an OpenSSH known_hosts file.
type KnownHostsPolicy struct {
	Path string
}

// Callback loads the known_hosts file, creating it empty if missing.
func (p KnownHostsPolicy) Callback() (ssh.HostKeyCallback, error) {
	path := p.Path
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "known_hosts")
	}
	return createHostKeyCallback(expandPath(path))
}

// HostKeyMismatchError provides helpful context when host key verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string // empty when the key was pinned in memory
	WantTypes    []string
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	wantStr := "unknown"
	if len(e.WantTypes) > 0 {
		wantStr = strings.Join(e.WantTypes, ", ")
	}

	if e.KnownHosts == "" {
		return fmt.Sprintf(
			"The server's host key changed since it was first seen (was %s, now %s).\n"+
				"  If the host was reinstalled, restart loadwatch to trust the new key.",
			wantStr, e.ReceivedType)
	}

	return fmt.Sprintf(
		"The server's host key doesn't match what's in known_hosts.\n"+
			"  Known types: %s\n"+
			"  Server sent: %s\n\n"+
			"  To update known_hosts with all key types:\n"+
			"    ssh-keyscan -t rsa,ecdsa,ed25519 %s >> %s\n\n"+
			"  Or remove the old entry:\n"+
			"    ssh-keygen -R %s",
		wantStr, e.ReceivedType, host, e.KnownHosts, host)
}

// createHostKeyCallback wraps the knownhosts callback to provide better error messages.
func createHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		dir := filepath.Dir(knownHostsPath)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := os.WriteFile(knownHostsPath, []byte{}, 0600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err != nil {
			var keyErr *knownhosts.KeyError
			if stderrors.As(err, &keyErr) && len(keyErr.Want) > 0 {
				wantTypes := make([]string, 0, len(keyErr.Want))
				for _, k := range keyErr.Want {
					wantTypes = append(wantTypes, k.Key.Type())
				}
				return &HostKeyMismatchError{
					Hostname:     hostname,
					ReceivedType: key.Type(),
					KnownHosts:   knownHostsPath,
					WantTypes:    wantTypes,
				}
			}
		}
		return err
	}, nil
}
