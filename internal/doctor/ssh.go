package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rileyhilliard/loadwatch/internal/config"
	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// HostKeyCheck verifies the host key policy can be used.
type HostKeyCheck struct {
	Policy     string // "accept" or "known_hosts"
	KnownHosts string
}

func (c *HostKeyCheck) Name() string     { return "host_keys" }
func (c *HostKeyCheck) Category() string { return "SSH" }

func (c *HostKeyCheck) Run(_ context.Context) CheckResult {
	if c.Policy != config.HostKeyKnownHosts {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "Host keys are trusted on first use and not saved",
			Suggestion: "Set ssh.host_key_policy to known_hosts to verify servers against " + c.KnownHosts,
		}
	}

	info, err := os.Stat(c.KnownHosts)
	if os.IsNotExist(err) {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s doesn't exist", c.KnownHosts),
			Suggestion: "Add each server with: ssh-keyscan <host> >> " + c.KnownHosts,
			Fixable:    true,
		}
	}
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Cannot access %s: %v", c.KnownHosts, err),
			Suggestion: "Check file permissions",
		}
	}
	if info.Size() == 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%s is empty, every server will be rejected", c.KnownHosts),
			Suggestion: "Add each server with: ssh-keyscan <host> >> " + c.KnownHosts,
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Verifying host keys against %s", c.KnownHosts),
	}
}

// Fix creates an empty known_hosts file.
func (c *HostKeyCheck) Fix() error {
	if err := os.MkdirAll(filepath.Dir(c.KnownHosts), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(c.KnownHosts, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	return f.Close()
}

// SSHConfigCheck verifies the OpenSSH client config parses, since host
// aliases are resolved through it.
type SSHConfigCheck struct {
	Path string
}

func (c *SSHConfigCheck) Name() string     { return "ssh_config" }
func (c *SSHConfigCheck) Category() string { return "SSH" }

func (c *SSHConfigCheck) Run(_ context.Context) CheckResult {
	cfg, err := sshutil.ReadSSHConfig(c.Path)
	if os.IsNotExist(err) {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "No SSH config, hosts are used as given",
		}
	}
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("Cannot read %s: %v", c.Path, err),
			Suggestion: "Host aliases won't be resolved until this is fixed",
		}
	}

	aliases := 0
	for _, h := range cfg.Hosts {
		for _, p := range h.Patterns {
			if s := p.String(); s != "*" && s != "" {
				aliases++
			}
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("SSH config: %d host pattern%s", aliases, pluralize(aliases)),
	}
}

func (c *SSHConfigCheck) Fix() error {
	return nil
}

// NewSSHChecks creates the SSH setup checks.
func NewSSHChecks(policy, knownHosts, sshConfig string) []Check {
	return []Check{
		&HostKeyCheck{Policy: policy, KnownHosts: knownHosts},
		&SSHConfigCheck{Path: sshConfig},
	}
}
