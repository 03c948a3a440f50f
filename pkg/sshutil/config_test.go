package sshutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestResolveSSHSettings(t *testing.T) {
	noConfig := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name         string
		host         string
		wantHostname string
		wantPort     string
		wantUser     string
	}{
		{name: "simple host", host: "example.com", wantHostname: "example.com", wantPort: "22"},
		{name: "ipv4", host: "192.168.1.10", wantHostname: "192.168.1.10", wantPort: "22"},
		{name: "host with port", host: "example.com:2222", wantHostname: "example.com", wantPort: "2222"},
		{name: "user at host", host: "admin@example.com", wantHostname: "example.com", wantPort: "22", wantUser: "admin"},
		{name: "full format", host: "admin@server.example.com:2222", wantHostname: "server.example.com", wantPort: "2222", wantUser: "admin"},
		{name: "bare ipv6", host: "fe80::1", wantHostname: "fe80::1", wantPort: "22"},
		{name: "bracketed ipv6 with port", host: "[fe80::1]:2200", wantHostname: "fe80::1", wantPort: "2200"},
		{name: "non numeric port is kept", host: "example.com:abc", wantHostname: "example.com:abc", wantPort: "22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := resolveSSHSettings(tt.host, noConfig)

			assert.Equal(t, tt.wantHostname, settings.hostname)
			assert.Equal(t, tt.wantPort, settings.port)
			if tt.wantUser != "" {
				assert.Equal(t, tt.wantUser, settings.user)
			} else {
				assert.NotEmpty(t, settings.user)
			}
		})
	}
}

func TestResolveSSHSettings_FromConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config")
	writeFile(t, configPath, `Host db
  HostName 10.1.2.3
  Port 2022
  User ops

Host web
  HostName 10.1.2.4
`)

	settings := resolveSSHSettings("db", configPath)
	assert.Equal(t, "10.1.2.3", settings.hostname)
	assert.Equal(t, "2022", settings.port)
	assert.Equal(t, "ops", settings.user)
	assert.Equal(t, "10.1.2.3:2022", settings.address())

	settings = resolveSSHSettings("web", configPath)
	assert.Equal(t, "10.1.2.4", settings.hostname)
	assert.Equal(t, "22", settings.port)
}

func TestResolveSSHSettings_StopsAtMatch(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config")
	writeFile(t, configPath, `Host before
  HostName 10.0.0.1

Match host *.internal
  User nobody

Host after
  HostName 10.0.0.2
`)

	assert.Equal(t, "10.0.0.1", resolveSSHSettings("before", configPath).hostname)
	assert.Equal(t, "after", resolveSSHSettings("after", configPath).hostname,
		"hosts after a Match block are not resolved")
}

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		in       string
		wantHost string
		wantPort string
	}{
		{"host", "host", "22"},
		{"host:", "host:", "22"},
		{"host:2222", "host", "2222"},
		{"::1", "::1", "22"},
		{"[::1]:2200", "::1", "2200"},
		{"[::1]", "::1", "22"},
	}

	for _, tt := range tests {
		host, port := splitHostPort(tt.in, "22")
		assert.Equal(t, tt.wantHost, host, "input %q", tt.in)
		assert.Equal(t, tt.wantPort, port, "input %q", tt.in)
	}
}

func TestReadSSHConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config")
	writeFile(t, configPath, "Host db\n  HostName 10.1.2.3\n\nMatch all\n  User nobody\n")

	cfg, err := ReadSSHConfig(configPath)
	require.NoError(t, err)
	hostname, err := cfg.Get("db", "HostName")
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", hostname)

	_, err = ReadSSHConfig(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, os.IsNotExist(err))
}
