package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/logger"
	"github.com/rileyhilliard/loadwatch/internal/monitor"
	"github.com/rileyhilliard/loadwatch/internal/registry"
	"github.com/rileyhilliard/loadwatch/internal/store"
	sshtest "github.com/rileyhilliard/loadwatch/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memGateway keeps the last saved snapshot in memory.
type memGateway struct {
	mu      sync.Mutex
	snap    *store.Snapshot
	loadErr error
	saveErr error
	saves   int
	closed  bool
}

func (g *memGateway) Load(context.Context) (*store.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return nil, g.loadErr
	}
	if g.snap == nil {
		return &store.Snapshot{}, nil
	}
	cp := *g.snap
	return &cp, nil
}

func (g *memGateway) Save(_ context.Context, snap *store.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saves++
	if g.saveErr != nil {
		return g.saveErr
	}
	cp := *snap
	g.snap = &cp
	return nil
}

func (g *memGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *memGateway) setSaveErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saveErr = err
}

func (g *memGateway) saved() *store.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

type fixture struct {
	svc       *Service
	gateway   *memGateway
	connector *sshtest.MockConnector
}

func newFixture(t *testing.T, gateway *memGateway, mode OpenMode) *fixture {
	t.Helper()
	if gateway == nil {
		gateway = &memGateway{}
	}
	connector := sshtest.NewMockConnector()
	reg := registry.New(connector, registry.Options{Logger: logger.Noop()})
	svc := New(gateway, reg, monitor.NewThresholdStore(monitor.ScopeTenant, monitor.DefaultThreshold), Options{Logger: logger.Noop()})
	svc.Open(context.Background(), mode)
	return &fixture{svc: svc, gateway: gateway, connector: connector}
}

func (f *fixture) hostOutputs(host, cpuLine, ram string) {
	f.connector.SetSession(host, sshtest.WithOutputs(sshtest.NewMockSession(host), map[string]string{
		monitor.CPUCommand: cpuLine,
		monitor.RAMCommand: ram,
	}))
}

func TestAddServer_PersistsImmediately(t *testing.T) {
	f := newFixture(t, nil, OpenConnect)
	ctx := context.Background()

	require.NoError(t, f.svc.AddServer(ctx, "42", "10.0.0.5", "root", "pw"))

	assert.Equal(t, []string{"10.0.0.5"}, f.svc.ListServers("42"))
	saved := f.gateway.saved()
	require.NotNil(t, saved)
	assert.Equal(t, []store.ServerRecord{{Tenant: "42", Host: "10.0.0.5", Username: "root", Secret: "pw"}}, saved.Servers)
}

func TestAddServer_InvalidCredentials(t *testing.T) {
	f := newFixture(t, nil, OpenConnect)
	ctx := context.Background()
	require.NoError(t, f.svc.AddServer(ctx, "42", "good", "root", "pw"))
	f.connector.SetError("bad", errors.New(errors.ErrAuth, "Wrong username or password for 'bad'", ""))

	err := f.svc.AddServer(ctx, "42", "bad", "root", "nope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAuth))
	assert.Equal(t, []string{"good"}, f.svc.ListServers("42"))
	assert.Equal(t, 1, f.gateway.saves, "failed registration is not saved")
}

func TestRemoveServer_ThenGetCurrentLoadIsNotFound(t *testing.T) {
	f := newFixture(t, nil, OpenConnect)
	ctx := context.Background()
	f.hostOutputs("h", "%Cpu(s): 12.0 us", "40")

	require.NoError(t, f.svc.AddServer(ctx, "42", "h", "root", "pw"))
	load, err := f.svc.GetCurrentLoad(ctx, "42", "h")
	require.NoError(t, err)
	assert.Equal(t, monitor.Load{CPU: 12, RAM: 40}, load)

	session := f.connector.Session("h")
	require.NoError(t, f.svc.RemoveServer(ctx, "42", "h"))
	assert.True(t, session.IsClosed())

	_, err = f.svc.GetCurrentLoad(ctx, "42", "h")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
	assert.Empty(t, f.gateway.saved().Servers)
}

func TestGetCurrentLoad_Unknown(t *testing.T) {
	f := newFixture(t, nil, OpenConnect)

	_, err := f.svc.GetCurrentLoad(context.Background(), "42", "ghost")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestRemoveServer_Unknown(t *testing.T) {
	f := newFixture(t, nil, OpenConnect)

	err := f.svc.RemoveServer(context.Background(), "42", "ghost")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
	assert.Equal(t, 0, f.gateway.saves)
}

func TestThresholds(t *testing.T) {
	f := newFixture(t, nil, OpenConnect)
	ctx := context.Background()

	assert.Equal(t, monitor.Threshold{CPU: 80, RAM: 80}, f.svc.GetThresholds("42", "h"))

	require.NoError(t, f.svc.SetThreshold(ctx, "42", "h", monitor.ResourceRAM, 90))
	require.NoError(t, f.svc.SetThreshold(ctx, "42", "h", monitor.ResourceCPU, 60))
	assert.Equal(t, monitor.Threshold{CPU: 60, RAM: 90}, f.svc.GetThresholds("42", "h"))
	assert.Equal(t, []store.ThresholdRecord{{Tenant: "42", Host: "h", CPU: 60, RAM: 90}}, f.gateway.saved().Thresholds)

	err := f.svc.SetThreshold(ctx, "42", "h", monitor.ResourceCPU, 120)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
	err = f.svc.SetThreshold(ctx, "42", "", monitor.ResourceCPU, 20)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestOpen_RestoresState(t *testing.T) {
	gateway := &memGateway{snap: &store.Snapshot{
		Servers: []store.ServerRecord{
			{Tenant: "42", Host: "up", Username: "u", Secret: "p"},
			{Tenant: "42", Host: "down", Username: "u", Secret: "p"},
		},
		Thresholds: []store.ThresholdRecord{{Tenant: "42", Host: "up", CPU: 20, RAM: 40}},
	}}

	connector := sshtest.NewMockConnector()
	connector.SetError("down", errors.New(errors.ErrTransport, "No route to host", ""))
	reg := registry.New(connector, registry.Options{Logger: logger.Noop()})
	svc := New(gateway, reg, monitor.NewThresholdStore(monitor.ScopeTenant, monitor.DefaultThreshold), Options{Logger: logger.Noop()})

	report := svc.Open(context.Background(), OpenConnect)

	assert.Equal(t, 1, report.Restored())
	assert.Len(t, report.Failed(), 1)
	assert.Equal(t, []string{"up"}, svc.ListServers("42"))
	assert.Equal(t, monitor.Threshold{CPU: 20, RAM: 40}, svc.GetThresholds("42", "up"))

	require.NoError(t, svc.SetThreshold(context.Background(), "42", "up", monitor.ResourceCPU, 60))
	assert.Len(t, gateway.saved().Servers, 2, "unreachable servers are not dropped by a save")
}

func TestOpen_LoadFailureStartsEmpty(t *testing.T) {
	buf := logger.NewBufferLogger()
	gateway := &memGateway{loadErr: errors.New(errors.ErrPersist, "Couldn't parse servers.yaml", "")}
	reg := registry.New(sshtest.NewMockConnector(), registry.Options{Logger: logger.Noop()})
	svc := New(gateway, reg, monitor.NewThresholdStore(monitor.ScopeTenant, monitor.DefaultThreshold), Options{Logger: buf})

	report := svc.Open(context.Background(), OpenConnect)

	assert.Empty(t, report.Results)
	assert.Empty(t, svc.ListServers("42"))
	assert.True(t, buf.HasLevel("error"))
}

func TestOpenLazy_ConnectsOnDemand(t *testing.T) {
	gateway := &memGateway{snap: &store.Snapshot{
		Servers: []store.ServerRecord{{Tenant: "42", Host: "h", Username: "u", Secret: "p"}},
	}}
	f := newFixture(t, gateway, OpenLazy)

	assert.Empty(t, f.connector.Attempts(), "nothing connects at open")
	assert.Empty(t, f.svc.ListServers("42"))

	_, err := f.svc.GetCurrentLoad(context.Background(), "42", "h")
	require.NoError(t, err)
	assert.Len(t, f.connector.Attempts(), 1)
	assert.Equal(t, []string{"h"}, f.svc.ListServers("42"))
}

func TestSaveFailure_DirtyAndFlushedAtClose(t *testing.T) {
	f := newFixture(t, nil, OpenConnect)
	ctx := context.Background()
	f.gateway.setSaveErr(errors.New(errors.ErrPersist, "disk full", ""))

	err := f.svc.AddServer(ctx, "42", "h", "u", "p")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrPersist))
	assert.Equal(t, []string{"h"}, f.svc.ListServers("42"), "the change itself is applied")
	assert.True(t, f.svc.Dirty())

	f.gateway.setSaveErr(nil)
	require.NoError(t, f.svc.Close(ctx))

	assert.False(t, f.svc.Dirty())
	require.NotNil(t, f.gateway.saved())
	assert.Len(t, f.gateway.saved().Servers, 1)
	assert.True(t, f.gateway.closed)
	assert.True(t, f.connector.Session("h").IsClosed())
}

func TestClose_CleanSkipsSave(t *testing.T) {
	f := newFixture(t, nil, OpenConnect)
	require.NoError(t, f.svc.AddServer(context.Background(), "42", "h", "u", "p"))
	saves := f.gateway.saves

	require.NoError(t, f.svc.Close(context.Background()))
	assert.Equal(t, saves, f.gateway.saves)
}

func TestReload_PicksUpExternalChanges(t *testing.T) {
	f := newFixture(t, nil, OpenConnect)
	ctx := context.Background()
	require.NoError(t, f.svc.AddServer(ctx, "42", "a", "u", "p"))

	// Another process added a server and a threshold.
	f.gateway.mu.Lock()
	f.gateway.snap = &store.Snapshot{
		Servers: []store.ServerRecord{
			{Tenant: "42", Host: "a", Username: "u", Secret: "p"},
			{Tenant: "42", Host: "b", Username: "u", Secret: "p"},
		},
		Thresholds: []store.ThresholdRecord{{Tenant: "42", Host: "b", CPU: 40, RAM: 40}},
	}
	f.gateway.mu.Unlock()

	report := f.svc.Reload(ctx)

	assert.Equal(t, 2, report.Restored())
	assert.Equal(t, []string{"a", "b"}, f.svc.ListServers("42"))
	assert.Equal(t, 40, f.svc.GetThresholds("42", "b").CPU)
	assert.False(t, f.connector.Session("a").IsClosed(), "existing sessions survive a reload")
}

func TestFileGatewayIntegration(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")

	open := func() (*Service, *sshtest.MockConnector) {
		gw, err := store.NewFileGateway(dir, "yaml")
		require.NoError(t, err)
		connector := sshtest.NewMockConnector()
		reg := registry.New(connector, registry.Options{Logger: logger.Noop()})
		svc := New(gw, reg, monitor.NewThresholdStore(monitor.ScopeTenant, monitor.DefaultThreshold), Options{Logger: logger.Noop()})
		svc.Open(ctx, OpenConnect)
		return svc, connector
	}

	svc, _ := open()
	require.NoError(t, svc.AddServer(ctx, "42", "h1", "root", "pw"))
	require.NoError(t, svc.SetThreshold(ctx, "42", "h1", monitor.ResourceCPU, 40))
	require.NoError(t, svc.Close(ctx))

	restarted, connector := open()
	defer restarted.Close(ctx)

	assert.Equal(t, []string{"h1"}, restarted.ListServers("42"))
	assert.Equal(t, monitor.Threshold{CPU: 40, RAM: 80}, restarted.GetThresholds("42", "h1"))
	assert.Equal(t, []sshtest.ConnectAttempt{{Host: "h1", Username: "root", Secret: "pw"}}, connector.Attempts())
}

func TestCorruptThresholdsKeepSavedServers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	open := func() *Service {
		gw, err := store.NewFileGateway(dir, "yaml")
		require.NoError(t, err)
		reg := registry.New(sshtest.NewMockConnector(), registry.Options{Logger: logger.Noop()})
		svc := New(gw, reg, monitor.NewThresholdStore(monitor.ScopeTenant, monitor.DefaultThreshold), Options{Logger: logger.Noop()})
		svc.Open(ctx, OpenLazy)
		return svc
	}

	svc := open()
	require.NoError(t, svc.AddServer(ctx, "t1", "10.0.0.5", "root", "pw"))
	require.NoError(t, svc.AddServer(ctx, "t1", "10.0.0.6", "root", "pw"))
	require.NoError(t, svc.Close(ctx))

	thresholdsPath := filepath.Join(dir, "thresholds.yaml")
	require.NoError(t, os.WriteFile(thresholdsPath, []byte("thresholds: [unclosed"), 0o600))

	svc = open()
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, svc.Registry().Dormant("t1"))
	require.NoError(t, svc.SetThreshold(ctx, "t1", "10.0.0.5", monitor.ResourceCPU, 60))
	require.NoError(t, svc.Close(ctx))

	svc = open()
	defer svc.Close(ctx)
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, svc.Registry().Dormant("t1"), "credentials survive the next save")
	assert.Equal(t, monitor.Threshold{CPU: 60, RAM: 80}, svc.GetThresholds("t1", "10.0.0.5"))
	assert.FileExists(t, thresholdsPath+".corrupt")
}

func TestOpen_SkipsOutOfRangeThresholds(t *testing.T) {
	gateway := &memGateway{snap: &store.Snapshot{
		Thresholds: []store.ThresholdRecord{
			{Tenant: "t1", Host: "h", CPU: 150, RAM: 80},
			{Tenant: "t1", Host: "ok", CPU: 40, RAM: 40},
		},
	}}
	log := logger.NewBufferLogger()
	reg := registry.New(sshtest.NewMockConnector(), registry.Options{Logger: logger.Noop()})
	svc := New(gateway, reg, monitor.NewThresholdStore(monitor.ScopeTenant, monitor.DefaultThreshold), Options{Logger: log})
	svc.Open(context.Background(), OpenLazy)
	defer svc.Close(context.Background())

	assert.Equal(t, monitor.DefaultThreshold, svc.GetThresholds("t1", "h"))
	assert.Equal(t, monitor.Threshold{CPU: 40, RAM: 40}, svc.GetThresholds("t1", "ok"))
	assert.True(t, log.HasLevel("warn"))
}

func TestConnectTenant(t *testing.T) {
	gateway := &memGateway{snap: &store.Snapshot{
		Servers: []store.ServerRecord{
			{Tenant: "t1", Host: "a", Username: "u", Secret: "p"},
			{Tenant: "t2", Host: "b", Username: "u", Secret: "p"},
		},
	}}
	f := newFixture(t, gateway, OpenLazy)

	report := f.svc.ConnectTenant(context.Background(), "t1")
	assert.Equal(t, 1, report.Restored())
	assert.Equal(t, []string{"a"}, f.svc.ListServers("t1"))
	assert.Empty(t, f.svc.ListServers("t2"))
	assert.Len(t, f.connector.Attempts(), 1)
}
