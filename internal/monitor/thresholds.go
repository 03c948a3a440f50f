package monitor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/store"
)

// Scope controls how threshold entries are keyed.
type Scope string

const (
	// ScopeTenant keys entries by (tenant, host). Entries saved without a
	// tenant act as a fallback shared by every tenant.
	ScopeTenant Scope = "tenant"
	// ScopeGlobal keys entries by host only, shared across tenants.
	ScopeGlobal Scope = "global"
)

// ParseScope accepts "tenant" or "global". Empty means ScopeTenant.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeTenant:
		return ScopeTenant, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	}
	return "", errors.New(errors.ErrConfig,
		fmt.Sprintf("Unknown threshold scope %q", s),
		"Set thresholds.scope to tenant or global")
}

type thresholdKey struct {
	tenant string
	host   string
}

// ThresholdStore holds per-host alert limits. Safe for concurrent use.
// Entries are never deleted.
type ThresholdStore struct {
	mu       sync.RWMutex
	scope    Scope
	defaults Threshold
	entries  map[thresholdKey]Threshold
	order    []thresholdKey
}

// NewThresholdStore creates an empty store. Hosts without an entry get
// defaults.
func NewThresholdStore(scope Scope, defaults Threshold) *ThresholdStore {
	if scope == "" {
		scope = ScopeTenant
	}
	return &ThresholdStore{
		scope:    scope,
		defaults: defaults,
		entries:  make(map[thresholdKey]Threshold),
	}
}

// Scope returns how entries are keyed.
func (s *ThresholdStore) Scope() Scope { return s.scope }

// Defaults returns the limits used for hosts without an entry.
func (s *ThresholdStore) Defaults() Threshold { return s.defaults }

// Get returns the limits for host. It never fails.
func (s *ThresholdStore) Get(tenant, hostID string) Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(tenant, hostID)
}

func (s *ThresholdStore) getLocked(tenant, hostID string) Threshold {
	if t, ok := s.entries[s.key(tenant, hostID)]; ok {
		return t
	}
	if s.scope == ScopeTenant {
		if t, ok := s.entries[thresholdKey{host: hostID}]; ok {
			return t
		}
	}
	return s.defaults
}

// SetCPU sets the CPU limit, keeping the current RAM limit.
func (s *ThresholdStore) SetCPU(tenant, hostID string, value int) error {
	return s.Set(tenant, hostID, ResourceCPU, value)
}

// SetRAM sets the RAM limit, keeping the current CPU limit.
func (s *ThresholdStore) SetRAM(tenant, hostID string, value int) error {
	return s.Set(tenant, hostID, ResourceRAM, value)
}

// Set updates one limit of the pair. Values outside [0,100] are rejected.
func (s *ThresholdStore) Set(tenant, hostID string, resource Resource, value int) error {
	if !inRange(value) {
		return errors.New(errors.ErrValidation,
			fmt.Sprintf("Threshold %d%% is out of range", value),
			"Thresholds are percentages between 0 and 100")
	}
	if resource != ResourceCPU && resource != ResourceRAM {
		return errors.New(errors.ErrValidation,
			fmt.Sprintf("Unknown resource %q", resource), "Use cpu or ram")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.getLocked(tenant, hostID)
	s.putLocked(s.key(tenant, hostID), current.With(resource, value))
	return nil
}

func (s *ThresholdStore) putLocked(k thresholdKey, t Threshold) {
	if _, ok := s.entries[k]; !ok {
		s.order = append(s.order, k)
	}
	s.entries[k] = t
}

func (s *ThresholdStore) key(tenant, hostID string) thresholdKey {
	if s.scope == ScopeGlobal {
		return thresholdKey{host: hostID}
	}
	return thresholdKey{tenant: tenant, host: hostID}
}

// Len returns the number of explicit entries.
func (s *ThresholdStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Records returns every explicit entry in insertion order.
func (s *ThresholdStore) Records() []store.ThresholdRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]store.ThresholdRecord, 0, len(s.order))
	for _, k := range s.order {
		t := s.entries[k]
		records = append(records, store.ThresholdRecord{
			Tenant: k.tenant,
			Host:   k.host,
			CPU:    t.CPU,
			RAM:    t.RAM,
		})
	}
	return records
}

// Replace discards all entries and loads records. In global scope the
// tenant of each record is ignored and later records win. Records with an
// empty host or a limit outside [0,100] are skipped and returned.
func (s *ThresholdStore) Replace(records []store.ThresholdRecord) (skipped []store.ThresholdRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[thresholdKey]Threshold, len(records))
	s.order = nil
	for _, r := range records {
		if strings.TrimSpace(r.Host) == "" || !inRange(r.CPU) || !inRange(r.RAM) {
			skipped = append(skipped, r)
			continue
		}
		s.putLocked(s.key(r.Tenant, r.Host), Threshold{CPU: r.CPU, RAM: r.RAM})
	}
	return skipped
}

func inRange(v int) bool {
	return v >= 0 && v <= 100
}
