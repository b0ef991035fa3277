package instances_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faradayfan/dedicated-server-manager/internal/instances"
	"github.com/faradayfan/dedicated-server-manager/internal/manager"
	"github.com/faradayfan/dedicated-server-manager/internal/procs"
	"github.com/faradayfan/dedicated-server-manager/internal/profiles"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

// host fakes the process table, launcher and killer.
type host struct {
	mu       sync.Mutex
	list     map[int32]procs.Process
	launched []manager.LaunchRequest
	killed   []int32
	next     int32
}

func newHost() *host { return &host{list: map[int32]procs.Process{}, next: 500} }

func (h *host) Current() *procs.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := make([]procs.Process, 0, len(h.list))
	for _, p := range h.list {
		list = append(list, p)
	}
	return procs.NewSnapshot(time.Now(), list)
}

func (h *host) run(exe string) int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	pid := h.next
	h.next++
	h.list[pid] = procs.Process{PID: pid, Exe: exe, StartedAt: time.Now()}
	return pid
}

func (h *host) Launch(ctx context.Context, req manager.LaunchRequest) (int32, error) {
	h.mu.Lock()
	h.launched = append(h.launched, req)
	h.mu.Unlock()
	return h.run(req.Command), nil
}

func (h *host) Kill(ctx context.Context, pid int32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = append(h.killed, pid)
	delete(h.list, pid)
	return nil
}

type env struct {
	root     string
	install  string
	host     *host
	mgr      *manager.Manager
	profiles *profiles.Store
	store    *instances.Store
	svc      *instances.Service
}

func templates() instances.Templates {
	return instances.Templates{
		ServerExe:     "{{.install_dir}}/bin/ArkAscendedServer",
		PluginHostExe: "{{.install_dir}}/bin/AsaApiLoader",
		RconHost:      "10.1.1.1",
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		root:     root,
		install:  filepath.Join(root, "install"),
		host:     newHost(),
		profiles: profiles.NewStore(settings.BuiltIn(), settings.Lenient, "", nil),
		store:    instances.NewStore(filepath.Join(root, "data", "instances.yaml")),
	}
	e.mgr = manager.New(manager.Deps{Snapshots: e.host, Launcher: e.host, Killer: e.host},
		manager.Options{WaitPoll: 5 * time.Millisecond, KillWait: 50 * time.Millisecond}, zap.NewNop())
	t.Cleanup(e.mgr.Shutdown)
	e.svc = e.service(t)
	return e
}

func (e *env) service(t *testing.T) *instances.Service {
	t.Helper()
	svc, err := instances.NewService(e.mgr, e.profiles, e.store, instances.Options{
		ProfilesDir: filepath.Join(e.root, "data", "profiles"),
		LogDir:      filepath.Join(e.root, "logs"),
		Templates:   templates(),
	}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "instances.yaml")
	s := instances.NewStore(path)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	want := map[string]instances.Record{
		"a": {Dir: "/srv/a", Enabled: true},
		"b": {Dir: "/srv/b"},
	}
	require.NoError(t, s.Save(want))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, os.WriteFile(path, []byte("instances:\n  x:\n    enabled: true\n"), 0o644))
	_, err = s.Load()
	assert.Error(t, err)
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	p, err := e.svc.Create("Island", e.install)
	require.NoError(t, err)
	id := p.ID.String()

	assert.FileExists(t, filepath.Join(p.Dir, profiles.ManifestFile))
	assert.FileExists(t, filepath.Join(p.Dir, profiles.DefaultConfigFile))

	records, err := e.store.Load()
	require.NoError(t, err)
	assert.Equal(t, instances.Record{Dir: p.Dir, Enabled: true}, records[id])

	list := e.svc.List()
	require.Len(t, list, 1)
	assert.Equal(t, "Island", list[0].Name)
	assert.Equal(t, manager.StateStopped, list[0].Status.State)

	// a fresh service reads the same records and profile
	other := e.service(t)
	sum, err := other.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Island", sum.Name)
	assert.Equal(t, e.install, sum.InstallDir)

	_, err = e.svc.Create("", e.install)
	assert.Error(t, err)
}

func TestResolveConfig(t *testing.T) {
	e := newEnv(t)
	p, err := e.svc.Create("Island", e.install)
	require.NoError(t, err)
	id := p.ID.String()

	cfg, err := e.svc.ResolveConfig(id)
	require.NoError(t, err)
	serverExe := filepath.Join(e.install, "bin", "ArkAscendedServer")
	assert.Equal(t, serverExe, cfg.Command)
	assert.Equal(t, serverExe, cfg.WatchExe)
	assert.Equal(t, filepath.Join(e.install, "bin"), cfg.Cwd)
	assert.Equal(t, []string{"TheIsland_WP"}, cfg.Args)
	assert.Nil(t, cfg.Rcon)
	assert.False(t, cfg.Independent)
	assert.Zero(t, cfg.MemoryLimit)
	assert.Equal(t, filepath.Join(e.root, "logs", id+".log"), cfg.LogPath)

	require.NoError(t, p.SetOverride("RCONEnabled", settings.Bool(true), false))
	require.NoError(t, p.SetOverride("RCONPort", settings.Int(27021), false))
	require.NoError(t, p.SetOverride("ServerAdminPassword", settings.Str("hunter2"), false))
	require.NoError(t, p.SetOverride("MaxPlayers", settings.Int(20), false))
	p.Runtime = profiles.Runtime{PluginHost: true, MemoryLimitMB: 1024}
	_, err = e.svc.SaveProfile(id)
	require.NoError(t, err)

	cfg, err = e.svc.ResolveConfig(id)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.install, "bin", "AsaApiLoader"), cfg.Command)
	assert.Equal(t, serverExe, cfg.WatchExe)
	assert.True(t, cfg.Independent)
	assert.Equal(t, []string{"TheIsland_WP?MaxPlayers=20"}, cfg.Args)
	assert.Equal(t, &manager.RconConfig{Host: "10.1.1.1", Port: 27021, Password: "hunter2"}, cfg.Rcon)
	assert.Equal(t, uint64(1<<30), cfg.MemoryLimit)

	p.Runtime.RconHost = "192.168.0.9"
	cfg, err = e.svc.ResolveConfig(id)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.9", cfg.Rcon.Host)
}

func TestResolveConfig_BadTemplate(t *testing.T) {
	e := newEnv(t)
	svc, err := instances.NewService(e.mgr, e.profiles, e.store, instances.Options{
		ProfilesDir: filepath.Join(e.root, "data", "profiles"),
		Templates:   instances.Templates{ServerExe: "{{.nope}}/server"},
	}, nil)
	require.NoError(t, err)
	p, err := svc.Create("x", e.install)
	require.NoError(t, err)

	_, err = svc.ResolveConfig(p.ID.String())
	assert.ErrorContains(t, err, "server_exe")
}

func TestImport(t *testing.T) {
	e := newEnv(t)
	dir := filepath.Join(e.root, "existing", "MyServer")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, profiles.DefaultConfigFile),
		[]byte("[ServerSettings]\nRCONEnabled=True\nRCONPort=27030\nServerAdminPassword=pw\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Game.ini"), []byte("junk"), 0o644))

	p, warns, err := e.svc.Import(dir, true)
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.Equal(t, "MyServer", p.Name)
	assert.FileExists(t, filepath.Join(dir, profiles.ManifestFile))

	cfg, err := e.svc.ResolveConfig(p.ID.String())
	require.NoError(t, err)
	require.NotNil(t, cfg.Rcon)
	assert.Equal(t, 27030, cfg.Rcon.Port)
	assert.Equal(t, "pw", cfg.Rcon.Password)

	_, _, err = e.svc.Import(dir, true)
	assert.ErrorIs(t, err, instances.ErrAlreadyManaged)
}

func TestImport_LeavesIniToUser(t *testing.T) {
	e := newEnv(t)
	dir := filepath.Join(e.root, "existing", "Hand")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	iniPath := filepath.Join(dir, profiles.DefaultConfigFile)
	original := "[ServerSettings]\nRCONEnabled=True\nServerAdminPassword=secret\nSomethingCustom=1\n"
	require.NoError(t, os.WriteFile(iniPath, []byte(original), 0o644))

	p, warns, err := e.svc.Import(dir, false)
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.FileExists(t, filepath.Join(dir, profiles.ManifestFile))

	after, err := os.ReadFile(iniPath)
	require.NoError(t, err)
	assert.Equal(t, original, string(after))

	_, err = e.svc.SaveProfile(p.ID.String())
	require.NoError(t, err)
	after, err = os.ReadFile(iniPath)
	require.NoError(t, err)
	assert.Equal(t, original, string(after))

	cfg, err := e.svc.ResolveConfig(p.ID.String())
	require.NoError(t, err)
	require.NotNil(t, cfg.Rcon)
	assert.Equal(t, "secret", cfg.Rcon.Password)
}

func TestForget(t *testing.T) {
	e := newEnv(t)
	p, err := e.svc.Create("x", e.install)
	require.NoError(t, err)
	id := p.ID.String()

	require.NoError(t, e.svc.Forget(id))
	assert.DirExists(t, p.Dir)
	_, err = e.svc.Profile(id)
	assert.ErrorIs(t, err, instances.ErrUnknownInstance)
	_, err = e.mgr.Status(id)
	assert.ErrorIs(t, err, manager.ErrUnknownServer)
	assert.ErrorIs(t, e.svc.Forget(id), instances.ErrUnknownInstance)
}

func TestStartAndObliterate(t *testing.T) {
	e := newEnv(t)
	p, err := e.svc.Create("x", e.install)
	require.NoError(t, err)
	id := p.ID.String()

	require.NoError(t, e.svc.SetEnabled(id, false))
	_, err = e.svc.Start(context.Background(), id)
	assert.ErrorIs(t, err, instances.ErrDisabled)

	require.NoError(t, e.svc.SetEnabled(id, true))
	st, err := e.svc.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, manager.StateStarting, st.State)
	require.Len(t, e.host.launched, 1)
	assert.Equal(t, []string{"TheIsland_WP"}, e.host.launched[0].Args)
	assert.DirExists(t, filepath.Join(e.root, "logs"))

	require.NoError(t, e.svc.Obliterate(context.Background(), id))
	assert.Equal(t, []int32{st.PID}, e.host.killed)
	assert.NoDirExists(t, p.Dir)
	assert.Empty(t, e.svc.List())
}

func TestRestore_AdoptsRunningServer(t *testing.T) {
	e := newEnv(t)
	p, err := e.svc.Create("x", e.install)
	require.NoError(t, err)
	id := p.ID.String()
	pid := e.host.run(filepath.Join(e.install, "bin", "ArkAscendedServer"))

	// a manager restart: nothing is registered until Restore
	mgr := manager.New(manager.Deps{Snapshots: e.host, Launcher: e.host, Killer: e.host}, manager.Options{}, zap.NewNop())
	t.Cleanup(mgr.Shutdown)
	svc, err := instances.NewService(mgr, e.profiles, e.store, instances.Options{Templates: templates()}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Restore())

	st, err := mgr.Status(id)
	require.NoError(t, err)
	assert.Equal(t, manager.StateRunning, st.State)
	assert.Equal(t, pid, st.PID)
}
