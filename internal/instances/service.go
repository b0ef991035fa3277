// Package instances keeps the set of servers under management: where each
// profile lives, whether it may start, and how its profile turns into a
// launchable server configuration.
package instances

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"text/template"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/faradayfan/dedicated-server-manager/internal/manager"
	"github.com/faradayfan/dedicated-server-manager/internal/profiles"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

var (
	ErrUnknownInstance = errors.New("unknown instance")
	ErrDisabled        = errors.New("instance is disabled")
	ErrAlreadyManaged  = errors.New("directory is already managed")
)

// Templates are text/template strings for server executables. They are
// rendered with install_dir, profile_dir, id and name.
type Templates struct {
	ServerExe     string
	PluginHostExe string
	// RconHost is used when a profile does not name its own.
	RconHost string
}

type Options struct {
	// ProfilesDir receives profiles created by the service.
	ProfilesDir string
	LogDir      string
	Templates   Templates
}

type Summary struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Dir        string         `json:"dir"`
	InstallDir string         `json:"install_dir,omitempty"`
	Enabled    bool           `json:"enabled"`
	Status     manager.Status `json:"status"`
	Error      string         `json:"error,omitempty"`
}

type Service struct {
	mgr      *manager.Manager
	profiles *profiles.Store
	store    *Store
	opts     Options
	log      *zap.Logger

	mu      sync.Mutex
	records map[string]Record
	loaded  map[string]*profiles.Profile
}

func NewService(mgr *manager.Manager, profileStore *profiles.Store, store *Store, opts Options, log *zap.Logger) (*Service, error) {
	if opts.ProfilesDir == "" {
		opts.ProfilesDir = "data/profiles"
	}
	if opts.LogDir == "" {
		opts.LogDir = "logs"
	}
	if opts.Templates.PluginHostExe == "" {
		opts.Templates.PluginHostExe = opts.Templates.ServerExe
	}
	if log == nil {
		log = zap.NewNop()
	}
	records, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Service{
		mgr:      mgr,
		profiles: profileStore,
		store:    store,
		opts:     opts,
		log:      log.With(zap.String("component", "instances")),
		records:  records,
		loaded:   map[string]*profiles.Profile{},
	}, nil
}

// Restore registers every managed server with the manager and adopts the
// enabled ones whose process is already running. A server whose profile
// cannot be loaded is skipped and reported.
func (s *Service) Restore() error {
	var errs error
	for _, id := range s.ids() {
		cfg, err := s.ResolveConfig(id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if err := s.mgr.Register(cfg); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if !s.enabled(id) {
			continue
		}
		if st, err := s.mgr.Attach(id); err == nil {
			s.log.Info("adopted running server", zap.String("server_id", id), zap.Int32("pid", st.PID))
		}
	}
	return errs
}

func (s *Service) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Service) enabled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Enabled
}

func (s *Service) record(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	return r, nil
}

// Create makes a new profile under the profiles directory and manages it.
func (s *Service) Create(name, installDir string) (*profiles.Profile, error) {
	if name == "" {
		return nil, fmt.Errorf("instance name is required")
	}
	p := s.profiles.New("", name, installDir)
	p.Dir = filepath.Join(s.opts.ProfilesDir, p.ID.String())
	if _, err := s.profiles.Save(p); err != nil {
		return nil, err
	}
	if err := s.add(p); err != nil {
		_ = os.RemoveAll(p.Dir)
		return nil, err
	}
	s.log.Info("instance created", zap.String("server_id", p.ID.String()), zap.String("dir", p.Dir))
	return p, nil
}

// Import takes over an existing server configuration directory. With
// includeIni the directory's INI file is rewritten in canonical form;
// otherwise it is left to the user and only the manifest is written.
func (s *Service) Import(dir string, includeIni bool) (*profiles.Profile, settings.Warnings, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, err
	}
	if s.managed(abs) {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyManaged, abs)
	}
	p, warns, err := s.profiles.ImportExisting(abs, includeIni)
	if err != nil {
		return nil, warns, err
	}
	saveWarns, err := s.profiles.Save(p)
	warns = append(warns, saveWarns...)
	if err != nil {
		return nil, warns, err
	}
	if err := s.add(p); err != nil {
		return nil, warns, err
	}
	s.log.Info("instance imported",
		zap.String("server_id", p.ID.String()),
		zap.String("dir", abs),
		zap.Int("warnings", len(warns)),
	)
	return p, warns, nil
}

func (s *Service) managed(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if abs, err := filepath.Abs(r.Dir); err == nil && abs == dir {
			return true
		}
	}
	return false
}

func (s *Service) add(p *profiles.Profile) error {
	id := p.ID.String()
	s.mu.Lock()
	s.records[id] = Record{Dir: p.Dir, Enabled: true}
	if err := s.store.Save(s.records); err != nil {
		// rollback in-memory on failure
		delete(s.records, id)
		s.mu.Unlock()
		return err
	}
	s.loaded[id] = p
	s.mu.Unlock()

	cfg, err := s.resolve(id, p)
	if err != nil {
		// the record stays; the config is resolved again on start
		s.log.Warn("instance not launchable yet", zap.String("server_id", id), zap.Error(err))
		return nil
	}
	return s.mgr.Register(cfg)
}

// Forget stops managing a server. Its directory is left untouched.
func (s *Service) Forget(id string) error {
	if _, err := s.record(id); err != nil {
		return err
	}
	if err := s.mgr.Unregister(id); err != nil && !errors.Is(err, manager.ErrUnknownServer) {
		return err
	}
	return s.remove(id)
}

// Obliterate kills the server if it runs, forgets it and deletes its
// profile directory.
func (s *Service) Obliterate(ctx context.Context, id string) error {
	r, err := s.record(id)
	if err != nil {
		return err
	}
	if st, err := s.mgr.Status(id); err == nil && st.State.Active() {
		if _, err := s.mgr.Kill(ctx, id); err != nil {
			return err
		}
	}
	if err := s.mgr.Unregister(id); err != nil && !errors.Is(err, manager.ErrUnknownServer) {
		return err
	}
	if err := s.remove(id); err != nil {
		return err
	}
	if err := os.RemoveAll(r.Dir); err != nil {
		return fmt.Errorf("remove %s: %w", r.Dir, err)
	}
	s.log.Info("instance obliterated", zap.String("server_id", id), zap.String("dir", r.Dir))
	return nil
}

func (s *Service) remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	delete(s.records, id)
	if err := s.store.Save(s.records); err != nil {
		s.records[id] = r
		return err
	}
	delete(s.loaded, id)
	return nil
}

func (s *Service) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	prev := r.Enabled
	r.Enabled = enabled
	s.records[id] = r
	if err := s.store.Save(s.records); err != nil {
		r.Enabled = prev
		s.records[id] = r
		return err
	}
	return nil
}

// Profile returns the loaded profile of a managed server. Profiles are read
// once and shared until the server is forgotten.
func (s *Service) Profile(id string) (*profiles.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	if p, ok := s.loaded[id]; ok {
		return p, nil
	}
	p, warns, err := s.profiles.Load(r.Dir)
	if err != nil {
		return nil, err
	}
	for _, w := range warns {
		s.log.Warn("profile warning", zap.String("server_id", id), zap.String("setting", w.Setting), zap.Error(w.Err))
	}
	s.loaded[id] = p
	return p, nil
}

// SaveProfile writes the profile and refreshes the server configuration the
// manager uses on its next start.
func (s *Service) SaveProfile(id string) (settings.Warnings, error) {
	p, err := s.Profile(id)
	if err != nil {
		return nil, err
	}
	warns, err := s.profiles.Save(p)
	if err != nil {
		return warns, err
	}
	cfg, err := s.resolve(id, p)
	if err != nil {
		return warns, err
	}
	return warns, s.mgr.Register(cfg)
}

func (s *Service) ResolveConfig(id string) (manager.ServerConfig, error) {
	p, err := s.Profile(id)
	if err != nil {
		return manager.ServerConfig{}, err
	}
	return s.resolve(id, p)
}

func (s *Service) resolve(id string, p *profiles.Profile) (manager.ServerConfig, error) {
	vars := map[string]string{
		"install_dir": p.InstallDir,
		"profile_dir": p.Dir,
		"id":          id,
		"name":        p.Name,
	}
	serverExe, err := render(s.opts.Templates.ServerExe, vars)
	if err != nil {
		return manager.ServerConfig{}, fmt.Errorf("render server_exe: %w", err)
	}
	command := serverExe
	if p.Runtime.PluginHost {
		if command, err = render(s.opts.Templates.PluginHostExe, vars); err != nil {
			return manager.ServerConfig{}, fmt.Errorf("render plugin_host_exe: %w", err)
		}
	}
	args, err := p.CommandLine()
	if err != nil {
		return manager.ServerConfig{}, fmt.Errorf("%s: %w", id, err)
	}

	command = filepath.Clean(command)
	return manager.ServerConfig{
		ID:          id,
		Name:        p.Name,
		Command:     command,
		Args:        args,
		Cwd:         filepath.Dir(command),
		WatchExe:    filepath.Clean(serverExe),
		Independent: p.Runtime.PluginHost,
		Rcon:        s.rconConfig(p),
		MemoryLimit: p.Runtime.MemoryLimitMB << 20,
		LogPath:     s.LogPath(id),
	}, nil
}

// rconConfig reads the administrative endpoint from the profile's settings.
func (s *Service) rconConfig(p *profiles.Profile) *manager.RconConfig {
	v, ok := p.Value("RCONEnabled")
	if enabled, _ := v.AsBool(); !ok || !enabled {
		return nil
	}
	v, _ = p.Value("RCONPort")
	port, ok := v.AsInt()
	if !ok || port <= 0 || port > 65535 {
		return nil
	}
	v, _ = p.Value("ServerAdminPassword")
	password, _ := v.AsString()

	host := p.Runtime.RconHost
	if host == "" {
		host = s.opts.Templates.RconHost
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return &manager.RconConfig{Host: host, Port: int(port), Password: password}
}

func (s *Service) LogPath(id string) string {
	return filepath.Join(s.opts.LogDir, fmt.Sprintf("%s.log", id))
}

// Start launches an enabled server with its current profile.
func (s *Service) Start(ctx context.Context, id string) (manager.Status, error) {
	r, err := s.record(id)
	if err != nil {
		return manager.Status{}, err
	}
	if !r.Enabled {
		return manager.Status{}, fmt.Errorf("%w: %s", ErrDisabled, id)
	}
	cfg, err := s.ResolveConfig(id)
	if err != nil {
		return manager.Status{}, err
	}
	if err := os.MkdirAll(s.opts.LogDir, 0o755); err != nil {
		return manager.Status{}, fmt.Errorf("ensure log dir: %w", err)
	}
	return s.mgr.Start(ctx, cfg)
}

func (s *Service) Stop(ctx context.Context, id string) (manager.Status, error) {
	if _, err := s.record(id); err != nil {
		return manager.Status{}, err
	}
	return s.mgr.Stop(ctx, id)
}

func (s *Service) Kill(ctx context.Context, id string) (manager.Status, error) {
	if _, err := s.record(id); err != nil {
		return manager.Status{}, err
	}
	return s.mgr.Kill(ctx, id)
}

// Restart stops the server and starts it with its current profile.
func (s *Service) Restart(ctx context.Context, id string) (manager.Status, error) {
	r, err := s.record(id)
	if err != nil {
		return manager.Status{}, err
	}
	if !r.Enabled {
		return manager.Status{}, fmt.Errorf("%w: %s", ErrDisabled, id)
	}
	cfg, err := s.ResolveConfig(id)
	if err != nil {
		return manager.Status{}, err
	}
	if err := s.mgr.Register(cfg); err != nil {
		return manager.Status{}, err
	}
	return s.mgr.Restart(ctx, id)
}

func (s *Service) Get(id string) (Summary, error) {
	r, err := s.record(id)
	if err != nil {
		return Summary{}, err
	}
	return s.summary(id, r), nil
}

// List summarizes every managed server, by name.
func (s *Service) List() []Summary {
	s.mu.Lock()
	records := make(map[string]Record, len(s.records))
	for id, r := range s.records {
		records[id] = r
	}
	s.mu.Unlock()

	out := make([]Summary, 0, len(records))
	for id, r := range records {
		out = append(out, s.summary(id, r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Service) summary(id string, r Record) Summary {
	sum := Summary{ID: id, Dir: r.Dir, Enabled: r.Enabled}
	if st, err := s.mgr.Status(id); err == nil {
		sum.Status = st
	} else {
		sum.Status = manager.Status{ID: id, State: manager.StateStopped}
	}
	p, err := s.Profile(id)
	if err != nil {
		sum.Error = err.Error()
		return sum
	}
	sum.Name = p.Name
	sum.InstallDir = p.InstallDir
	sum.Status.Name = p.Name
	return sum
}

func render(tmpl string, ctx map[string]string) (string, error) {
	t, err := template.New("x").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}
