// Package registry tracks which servers each tenant monitors and owns the
// SSH session to each of them.
//
// An entry is live when it holds a connected session, or dormant when only
// its credentials are known (a restore that failed, or records adopted
// without connecting). Dormant entries are not listed or monitored but are
// kept in snapshots so saving never loses credentials.
package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/logger"
	"github.com/rileyhilliard/loadwatch/internal/monitor"
	"github.com/rileyhilliard/loadwatch/internal/store"
	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// DefaultConcurrency bounds parallel connects during a restore.
const DefaultConcurrency = 8

// Credentials authenticate to one server.
type Credentials struct {
	Username string
	Secret   string
}

type key struct {
	tenant string
	host   string
}

type entry struct {
	creds   Credentials
	session *lockedSession // nil while dormant
}

// Options configures a Registry.
type Options struct {
	Logger      logger.Logger
	Concurrency int
}

// Registry maps (tenant, host) to credentials and a live session.
// Safe for concurrent use.
type Registry struct {
	connector   sshutil.Connector
	log         logger.Logger
	concurrency int

	mu      sync.Mutex
	entries map[key]*entry
	order   []key
}

// New creates an empty registry that opens sessions with connector.
func New(connector sshutil.Connector, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Registry{
		connector:   connector,
		log:         opts.Logger,
		concurrency: opts.Concurrency,
		entries:     make(map[key]*entry),
	}
}

// AddServer connects to host and registers it for tenant, replacing (and
// closing) any previous session for the same host. On failure nothing
// changes and the AUTH or TRANSPORT error is returned.
func (r *Registry) AddServer(ctx context.Context, tenant, hostID, username, secret string) error {
	if err := validateKey(tenant, hostID); err != nil {
		return err
	}

	session, err := r.connect(ctx, hostID, username, secret)
	if err != nil {
		return err
	}

	k := key{tenant: tenant, host: hostID}
	r.mu.Lock()
	e, ok := r.entries[k]
	if !ok {
		e = &entry{}
		r.entries[k] = e
		r.order = append(r.order, k)
	}
	previous := e.session
	e.creds = Credentials{Username: username, Secret: secret}
	e.session = session
	r.mu.Unlock()

	if previous != nil {
		r.closeSession(hostID, previous)
	}
	r.log.Info("[registry] added %s for tenant %s", hostID, tenant)
	return nil
}

// RemoveServer closes the session for host and forgets it, whether live or
// dormant. Returns NOT_FOUND when tenant has no such host.
func (r *Registry) RemoveServer(tenant, hostID string) error {
	k := key{tenant: tenant, host: hostID}

	r.mu.Lock()
	e, ok := r.entries[k]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound(tenant, hostID)
	}
	delete(r.entries, k)
	r.order = removeKey(r.order, k)
	r.mu.Unlock()

	if e.session != nil {
		r.closeSession(hostID, e.session)
	}
	r.log.Info("[registry] removed %s for tenant %s", hostID, tenant)
	return nil
}

// ListServers returns the live hosts of tenant in insertion order.
func (r *Registry) ListServers(tenant string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	hosts := []string{}
	for _, k := range r.order {
		if k.tenant == tenant && r.entries[k].session != nil {
			hosts = append(hosts, k.host)
		}
	}
	return hosts
}

// Session returns the live session for host, or NOT_FOUND.
func (r *Registry) Session(tenant, hostID string) (sshutil.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key{tenant: tenant, host: hostID}]
	if !ok || e.session == nil {
		return nil, errors.NotFound(tenant, hostID)
	}
	return e.session, nil
}

// Known reports whether host is registered for tenant, live or dormant.
func (r *Registry) Known(tenant, hostID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key{tenant: tenant, host: hostID}]
	return ok
}

// Dormant returns the hosts of tenant whose credentials are known but that
// have no live session.
func (r *Registry) Dormant(tenant string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	hosts := []string{}
	for _, k := range r.order {
		if k.tenant == tenant && r.entries[k].session == nil {
			hosts = append(hosts, k.host)
		}
	}
	return hosts
}

// Adopt loads records as dormant entries without connecting. Records for
// hosts already registered are ignored.
func (r *Registry) Adopt(records []store.ServerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		if validateKey(rec.Tenant, rec.Host) != nil {
			r.log.Warn("[registry] skipping record with empty tenant or host")
			continue
		}
		k := key{tenant: rec.Tenant, host: rec.Host}
		if _, ok := r.entries[k]; ok {
			continue
		}
		r.entries[k] = &entry{creds: Credentials{Username: rec.Username, Secret: rec.Secret}}
		r.order = append(r.order, k)
	}
}

// Activate connects a dormant entry. It is a no-op for live entries and
// returns NOT_FOUND for unknown hosts. On failure the entry stays dormant.
func (r *Registry) Activate(ctx context.Context, tenant, hostID string) error {
	k := key{tenant: tenant, host: hostID}

	r.mu.Lock()
	e, ok := r.entries[k]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound(tenant, hostID)
	}
	if e.session != nil {
		r.mu.Unlock()
		return nil
	}
	creds := e.creds
	r.mu.Unlock()

	session, err := r.connect(ctx, hostID, creds.Username, creds.Secret)
	if err != nil {
		return err
	}

	r.mu.Lock()
	current, ok := r.entries[k]
	// The entry may have been removed, re-added or re-credentialed while
	// we were connecting.
	if !ok || current != e || current.session != nil || current.creds != creds {
		r.mu.Unlock()
		r.closeSession(hostID, session)
		return nil
	}
	current.session = session
	r.mu.Unlock()
	return nil
}

// RestoreResult is the outcome of restoring one record.
type RestoreResult struct {
	Tenant string
	Host   string
	Err    error
}

// RestoreReport lists one result per restored record, in record order.
type RestoreReport struct {
	Results []RestoreResult
}

// Restored counts successful results.
func (r RestoreReport) Restored() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the results that failed.
func (r RestoreReport) Failed() []RestoreResult {
	var failed []RestoreResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// RestoreAll adopts records and connects every dormant entry among them in
// parallel. A failure never aborts the batch: the entry stays dormant and
// the error is logged and reported.
func (r *Registry) RestoreAll(ctx context.Context, records []store.ServerRecord) RestoreReport {
	r.Adopt(records)

	keys := make([]key, 0, len(records))
	seen := make(map[key]bool, len(records))
	for _, rec := range records {
		k := key{tenant: rec.Tenant, host: rec.Host}
		if seen[k] || validateKey(k.tenant, k.host) != nil {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return r.activateAll(ctx, keys)
}

// ActivateTenant connects every dormant entry of tenant in parallel and
// leaves other tenants untouched.
func (r *Registry) ActivateTenant(ctx context.Context, tenant string) RestoreReport {
	r.mu.Lock()
	var keys []key
	for _, k := range r.order {
		if k.tenant == tenant && r.entries[k].session == nil {
			keys = append(keys, k)
		}
	}
	r.mu.Unlock()

	return r.activateAll(ctx, keys)
}

// Reconcile makes the registry match records: entries missing from records
// are closed and dropped, entries whose credentials changed are
// reconnected, and everything dormant is retried. Unchanged live sessions
// are kept.
func (r *Registry) Reconcile(ctx context.Context, records []store.ServerRecord) RestoreReport {
	desired := make(map[key]Credentials, len(records))
	order := make([]key, 0, len(records))
	for _, rec := range records {
		if validateKey(rec.Tenant, rec.Host) != nil {
			continue
		}
		k := key{tenant: rec.Tenant, host: rec.Host}
		if _, dup := desired[k]; !dup {
			order = append(order, k)
		}
		desired[k] = Credentials{Username: rec.Username, Secret: rec.Secret}
	}

	var stale []*lockedSession
	var staleHosts []string

	r.mu.Lock()
	for k, e := range r.entries {
		creds, keep := desired[k]
		if keep && creds == e.creds {
			continue
		}
		if e.session != nil {
			stale = append(stale, e.session)
			staleHosts = append(staleHosts, k.host)
		}
		if !keep {
			delete(r.entries, k)
			continue
		}
		r.entries[k] = &entry{creds: creds}
	}
	for _, k := range order {
		if _, ok := r.entries[k]; !ok {
			r.entries[k] = &entry{creds: desired[k]}
		}
	}
	r.order = order
	r.mu.Unlock()

	for i, s := range stale {
		r.closeSession(staleHosts[i], s)
	}

	return r.activateAll(ctx, order)
}

func (r *Registry) activateAll(ctx context.Context, keys []key) RestoreReport {
	results := make([]RestoreResult, len(keys))
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for i, k := range keys {
		results[i] = RestoreResult{Tenant: k.tenant, Host: k.host}
		wg.Add(1)
		go func(i int, k key) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = errors.WrapWithCode(ctx.Err(), errors.ErrTransport,
					fmt.Sprintf("Restore of %s was cancelled", k.host), "")
				return
			}
			defer func() { <-sem }()

			if err := r.Activate(ctx, k.tenant, k.host); err != nil {
				results[i].Err = err
				r.log.Warn("[registry] couldn't restore %s for tenant %s: %s", k.host, k.tenant, errors.Short(err))
			}
		}(i, k)
	}
	wg.Wait()

	report := RestoreReport{Results: results}
	if len(keys) > 0 {
		r.log.Info("[registry] restored %d of %d servers", report.Restored(), len(keys))
	}
	return report
}

// Snapshot returns the credentials of every entry, live and dormant, in
// insertion order. Sessions are never included.
func (r *Registry) Snapshot() []store.ServerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]store.ServerRecord, 0, len(r.order))
	for _, k := range r.order {
		e := r.entries[k]
		records = append(records, store.ServerRecord{
			Tenant:   k.tenant,
			Host:     k.host,
			Username: e.creds.Username,
			Secret:   e.creds.Secret,
		})
	}
	return records
}

// Targets returns a copy of every live (tenant, host, session) triple.
func (r *Registry) Targets() []monitor.Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]monitor.Target, 0, len(r.order))
	for _, k := range r.order {
		if e := r.entries[k]; e.session != nil {
			targets = append(targets, monitor.Target{Tenant: k.tenant, Host: k.host, Session: e.session})
		}
	}
	return targets
}

// Tenants returns every tenant with at least one entry, in first-seen order.
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var tenants []string
	for _, k := range r.order {
		if !seen[k.tenant] {
			seen[k.tenant] = true
			tenants = append(tenants, k.tenant)
		}
	}
	return tenants
}

// Counts returns the number of live and dormant entries.
func (r *Registry) Counts() (live, dormant int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.session != nil {
			live++
		} else {
			dormant++
		}
	}
	return live, dormant
}

// CloseAll closes every session. Entries become dormant so a later
// Snapshot still carries their credentials.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var sessions []*lockedSession
	var hosts []string
	for k, e := range r.entries {
		if e.session != nil {
			sessions = append(sessions, e.session)
			hosts = append(hosts, k.host)
			e.session = nil
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(host string, s *lockedSession) {
			defer wg.Done()
			r.closeSession(host, s)
		}(hosts[i], s)
	}
	wg.Wait()
}

func (r *Registry) connect(ctx context.Context, hostID, username, secret string) (*lockedSession, error) {
	session, err := r.connector.Connect(ctx, hostID, username, secret)
	if err != nil {
		var coded *errors.Error
		if !stderrors.As(err, &coded) {
			err = errors.WrapWithCode(err, errors.ErrTransport,
				fmt.Sprintf("Couldn't connect to %s", hostID),
				"Check that the host is reachable and SSH is running")
		}
		return nil, err
	}
	return newLockedSession(hostID, session), nil
}

func (r *Registry) closeSession(hostID string, s *lockedSession) {
	if err := s.Close(); err != nil {
		r.log.Debug("[registry] closing session to %s: %v", hostID, err)
	}
}

func validateKey(tenant, hostID string) error {
	if strings.TrimSpace(tenant) == "" {
		return errors.New(errors.ErrValidation, "Tenant is empty", "Pass --tenant or set LOADWATCH_TENANT")
	}
	if strings.TrimSpace(hostID) == "" {
		return errors.New(errors.ErrValidation, "Host is empty", "Pass the server address, e.g. 10.0.0.5 or host:port")
	}
	return nil
}

func removeKey(keys []key, k key) []key {
	out := keys[:0]
	for _, existing := range keys {
		if existing != k {
			out = append(out, existing)
		}
	}
	return out
}
