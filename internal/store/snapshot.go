// Package store persists registry credentials and thresholds as two durable
// blobs: one for servers, one for thresholds. Live sessions are never part
// of a snapshot.
package store

import "context"

// SchemaVersion is written into every blob.
const SchemaVersion = 1

// ServerRecord is the persisted form of one host registration.
type ServerRecord struct {
	Tenant   string `yaml:"tenant" toml:"tenant"`
	Host     string `yaml:"host" toml:"host"`
	Username string `yaml:"username" toml:"username"`
	Secret   string `yaml:"secret" toml:"secret"`
}

// ThresholdRecord is the persisted form of one threshold entry.
// Tenant is empty for entries shared by every tenant.
type ThresholdRecord struct {
	Tenant string `yaml:"tenant,omitempty" toml:"tenant,omitempty"`
	Host   string `yaml:"host" toml:"host"`
	CPU    int    `yaml:"cpu" toml:"cpu"`
	RAM    int    `yaml:"ram" toml:"ram"`
}

// Snapshot is everything that survives a restart.
type Snapshot struct {
	Servers    []ServerRecord
	Thresholds []ThresholdRecord
}

// Empty reports whether the snapshot holds nothing.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Servers) == 0 && len(s.Thresholds) == 0)
}

// Gateway loads and saves snapshots.
//
// Load returns an empty snapshot, not an error, when nothing was saved yet.
// When only one blob is unreadable, Load returns the other blob in a
// non-nil snapshot along with the error, and the next Save keeps a copy of
// the unreadable blob (suffixed ".corrupt") before replacing it.
type Gateway interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Close() error
}

// serversBlob and thresholdsBlob are the on-disk documents.
type serversBlob struct {
	Version int            `yaml:"version" toml:"version"`
	Servers []ServerRecord `yaml:"servers" toml:"servers"`
}

type thresholdsBlob struct {
	Version    int               `yaml:"version" toml:"version"`
	Thresholds []ThresholdRecord `yaml:"thresholds" toml:"thresholds"`
}
