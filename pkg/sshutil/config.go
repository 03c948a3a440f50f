package sshutil

import (
	"bytes"
	"net"
	"os"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// sshSettings holds resolved SSH connection parameters.
type sshSettings struct {
	hostname string
	port     string
	user     string
}

// address returns the host:port string for dialing.
func (s *sshSettings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// resolveSSHSettings parses the host string and resolves HostName, Port and
// User from the ssh config at configPath. A missing or unreadable config
// just yields the parsed defaults.
func resolveSSHSettings(host, configPath string) *sshSettings {
	settings := &sshSettings{
		port: "22",
		user: currentUser(),
	}

	if atIdx := strings.Index(host, "@"); atIdx != -1 {
		settings.user = host[:atIdx]
		host = host[atIdx+1:]
	}

	host, settings.port = splitHostPort(host, settings.port)
	settings.hostname = host

	cfg, err := ReadSSHConfig(configPath)
	if err != nil {
		return settings
	}

	if hostname, _ := cfg.Get(host, "HostName"); hostname != "" {
		settings.hostname = hostname
	}
	if port, _ := cfg.Get(host, "Port"); port != "" {
		settings.port = port
	}
	if user, _ := cfg.Get(host, "User"); user != "" {
		settings.user = user
	}

	return settings
}

// splitHostPort separates an optional numeric port from host. Bare IPv6
// literals (more than one colon, no brackets) are returned unchanged.
func splitHostPort(host, defaultPort string) (string, string) {
	if strings.HasPrefix(host, "[") {
		if h, p, err := net.SplitHostPort(host); err == nil {
			return h, p
		}
		return strings.Trim(host, "[]"), defaultPort
	}

	if strings.Count(host, ":") != 1 {
		return host, defaultPort
	}

	colonIdx := strings.LastIndex(host, ":")
	potentialPort := host[colonIdx+1:]
	if potentialPort == "" {
		return host, defaultPort
	}
	for _, c := range potentialPort {
		if c < '0' || c > '9' {
			return host, defaultPort
		}
	}
	return host[:colonIdx], potentialPort
}

// ReadSSHConfig parses the OpenSSH client config at path. Anything from
// the first Match block on is ignored.
func ReadSSHConfig(path string) (*ssh_config.Config, error) {
	content, err := preprocessSSHConfig(path)
	if err != nil {
		return nil, err
	}
	return ssh_config.Decode(bytes.NewReader(content))
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// kevinburke/ssh_config doesn't support Match, so everything after it is dropped.
func preprocessSSHConfig(configPath string) ([]byte, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(content), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), nil
}
