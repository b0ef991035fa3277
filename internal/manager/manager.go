// Package manager supervises game server processes. It launches servers,
// follows them through the shared process snapshot, stops them through the
// administrative console and restarts them when they outgrow their memory
// limit.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/faradayfan/dedicated-server-manager/internal/procs"
	"github.com/faradayfan/dedicated-server-manager/internal/rcon"
)

var (
	errStopTimeout  = errors.New("timed out waiting for exit")
	errShuttingDown = errors.New("manager shutting down")
)

type server struct {
	mu     sync.Mutex
	cfg    ServerConfig
	status Status

	launchedAt     time.Time
	seen           int
	lastSnap       time.Time
	unknownSince   time.Time
	lastPlayerPoll time.Time
	polling        bool
	restarting     bool
}

type Manager struct {
	snaps    Snapshots
	launcher Launcher
	killer   Killer
	memory   MemorySampler
	rcon     rcon.Client
	opts     Options
	log      *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	servers map[string]*server

	// lifetime of background work; cancelled by Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	bgMu   sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(deps Deps, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		snaps:    deps.Snapshots,
		launcher: deps.Launcher,
		killer:   deps.Killer,
		memory:   deps.Memory,
		rcon:     deps.Rcon,
		opts:     opts.withDefaults(),
		log:      log.With(zap.String("component", "manager")),
		now:      time.Now,
		servers:  map[string]*server{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a server or replaces the configuration of a known one. A
// replaced configuration takes effect on the next start.
func (m *Manager) Register(cfg ServerConfig) error {
	if cfg.ID == "" {
		return errors.New("server id is required")
	}
	if cfg.Command == "" {
		return fmt.Errorf("%s: command is required", cfg.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.servers[cfg.ID]; ok {
		s.mu.Lock()
		s.cfg = cfg
		s.status.Name = cfg.Name
		s.mu.Unlock()
		return nil
	}
	m.servers[cfg.ID] = &server{
		cfg:    cfg,
		status: Status{ID: cfg.ID, Name: cfg.Name, State: StateStopped},
	}
	return nil
}

// Unregister forgets a server that is not running.
func (m *Manager) Unregister(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}
	s.mu.Lock()
	state := s.status.State
	s.mu.Unlock()
	if state.Active() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyRunning, id, state)
	}
	delete(m.servers, id)
	return nil
}

func (m *Manager) get(id string) (*server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.servers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}
	return s, nil
}

func (m *Manager) all() []*server {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*server, 0, len(m.servers))
	for _, s := range m.servers {
		out = append(out, s)
	}
	return out
}

func (m *Manager) Status(id string) (Status, error) {
	s, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (m *Manager) List() []Status {
	servers := m.all()
	out := make([]Status, 0, len(servers))
	for _, s := range servers {
		s.mu.Lock()
		out = append(out, s.snapshot())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *server) snapshot() Status {
	st := s.status
	st.Players = append([]rcon.Player(nil), s.status.Players...)
	return st
}

// Start registers cfg and launches the server.
func (m *Manager) Start(ctx context.Context, cfg ServerConfig) (Status, error) {
	if err := m.Register(cfg); err != nil {
		return Status{}, err
	}
	return m.start(ctx, cfg.ID)
}

func (m *Manager) start(ctx context.Context, id string) (Status, error) {
	s, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State.Active() {
		return s.snapshot(), fmt.Errorf("%w: %s is %s", ErrAlreadyRunning, id, s.status.State)
	}
	if ps := m.snaps.Current().FindByExe(s.cfg.watchExe()); len(ps) > 0 {
		return s.snapshot(), fmt.Errorf("%w: %s has pid %d", ErrAlreadyRunning, id, ps[0].PID)
	}

	log := m.log.With(zap.String("server_id", id))
	pid, err := m.launcher.Launch(ctx, LaunchRequest{
		Command:          s.cfg.Command,
		Args:             s.cfg.Args,
		Dir:              s.cfg.Cwd,
		DedicatedConsole: s.cfg.Independent,
		LogPath:          s.cfg.LogPath,
	})
	if err != nil {
		s.status.State = StateStopped
		s.status.PID = 0
		s.status.LastError = err.Error()
		log.Error("launch failed", zap.Error(err))
		return s.snapshot(), fmt.Errorf("%w: %s: %w", ErrLaunch, id, err)
	}

	now := m.now()
	s.launchedAt = now
	s.seen = 0
	s.unknownSince = time.Time{}
	s.lastPlayerPoll = time.Time{}
	s.status = Status{
		ID:        id,
		Name:      s.cfg.Name,
		State:     StateStarting,
		PID:       pid,
		StartedAt: now,
	}
	log.Info("server launched", zap.Int32("pid", pid), zap.String("command", s.cfg.Command))
	return s.snapshot(), nil
}

// Attach adopts a process already running from the server's executable.
func (m *Manager) Attach(id string) (Status, error) {
	s, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.State.Active() {
		return s.snapshot(), fmt.Errorf("%w: %s is %s", ErrAlreadyRunning, id, s.status.State)
	}
	snap := m.snaps.Current()
	ps := snap.FindByExe(s.cfg.watchExe())
	if len(ps) == 0 {
		return s.snapshot(), fmt.Errorf("%w: no process runs %s", ErrNotRunning, s.cfg.watchExe())
	}
	p := ps[0]
	s.launchedAt = p.StartedAt
	s.lastSnap = snap.TakenAt
	s.unknownSince = time.Time{}
	s.lastPlayerPoll = time.Time{}
	s.status = Status{
		ID:        id,
		Name:      s.cfg.Name,
		State:     StateRunning,
		PID:       p.PID,
		StartedAt: p.StartedAt,
	}
	m.log.Info("attached to running server", zap.String("server_id", id), zap.Int32("pid", p.PID))
	return s.snapshot(), nil
}

// Stop asks the server to save and exit, waits for the process to vanish and
// kills it when it does not.
func (m *Manager) Stop(ctx context.Context, id string) (Status, error) {
	s, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	switch s.status.State {
	case StateStarting, StateRunning, StateUnknown:
	default:
		st := s.snapshot()
		s.mu.Unlock()
		return st, fmt.Errorf("%w: %s is %s", ErrNotRunning, id, st.State)
	}
	s.status.State = StateStopping
	cfg := s.cfg
	pid := s.status.PID
	s.mu.Unlock()

	log := m.log.With(zap.String("server_id", id), zap.Int32("pid", pid))
	res := m.shutdown(ctx, cfg, pid, log)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.RconConnected = false
	s.status.Players = nil
	s.status.PlayerCount = 0
	s.status.MemoryBytes = 0
	s.status.ForcedStop = res.forced
	s.status.LastError = ""
	if res.err != nil {
		s.status.LastError = res.err.Error()
	}
	if res.killErr != nil {
		// the process may still be there; let evaluation decide
		s.status.State = StateUnknown
		s.unknownSince = m.now()
		return s.snapshot(), res.killErr
	}
	s.status.State = StateStopped
	s.status.PID = 0
	s.status.StoppedAt = m.now()
	if res.detached {
		s.status.LastError = "left running: manager shutting down"
	}
	return s.snapshot(), nil
}

type stopResult struct {
	forced   bool
	detached bool
	// err collects the failures that did not prevent the stop
	err     error
	killErr error
}

func (m *Manager) shutdown(ctx context.Context, cfg ServerConfig, pid int32, log *zap.Logger) stopResult {
	var res stopResult
	if cfg.Rcon != nil && m.rcon != nil {
		if err := m.requestExit(ctx, cfg, log); err != nil {
			log.Warn("graceful stop unavailable", zap.Error(err))
			res.err = multierr.Append(res.err, err)
		} else {
			err := m.waitGone(ctx, cfg, pid, m.opts.StopTimeout)
			if err == nil {
				log.Info("server stopped")
				return res
			}
			if !errors.Is(err, errStopTimeout) && cfg.Independent {
				log.Warn("leaving server running", zap.Error(err))
				res.detached = true
				return res
			}
			res.err = multierr.Append(res.err, err)
		}
	}

	res.forced = true
	kctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RconTimeout)
	defer cancel()
	if p, ok := correlate(cfg, pid, m.snaps.Current()); ok {
		pid = p.PID
	}
	if err := m.killer.Kill(kctx, pid); err != nil {
		log.Error("forced stop failed", zap.Error(err))
		res.killErr = multierr.Append(res.err, fmt.Errorf("kill pid %d: %w", pid, err))
		return res
	}
	log.Warn("server killed")
	_ = m.waitGone(kctx, cfg, pid, m.opts.KillWait)
	return res
}

// requestExit saves the world and asks the server to exit. Only a failure to
// connect is returned: the server drops the connection while exiting.
func (m *Manager) requestExit(ctx context.Context, cfg ServerConfig, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.RconTimeout)
	defer cancel()
	conn, err := m.rcon.Connect(ctx, cfg.Rcon.Host, cfg.Rcon.Port, cfg.Rcon.Password)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.Exec(ctx, rcon.CmdSaveWorld); err != nil {
		log.Warn("save before exit failed", zap.Error(err))
	}
	if _, err := conn.Exec(ctx, rcon.CmdDoExit); err != nil {
		log.Info("exit request not acknowledged", zap.Error(err))
	}
	return nil
}

// waitGone polls the snapshot until the server process is absent.
func (m *Manager) waitGone(ctx context.Context, cfg ServerConfig, pid int32, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	tick := time.NewTicker(m.opts.WaitPoll)
	defer tick.Stop()
	for {
		if _, alive := correlate(cfg, pid, m.snaps.Current()); !alive {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.ctx.Done():
			return errShuttingDown
		case <-timer.C:
			return errStopTimeout
		case <-tick.C:
		}
	}
}

// Kill terminates the server process without asking it to exit.
func (m *Manager) Kill(ctx context.Context, id string) (Status, error) {
	s, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.State.Active() {
		return s.snapshot(), fmt.Errorf("%w: %s is %s", ErrNotRunning, id, s.status.State)
	}
	pid := s.status.PID
	if p, ok := correlate(s.cfg, pid, m.snaps.Current()); ok {
		pid = p.PID
	}
	if err := m.killer.Kill(ctx, pid); err != nil {
		return s.snapshot(), fmt.Errorf("kill %s pid %d: %w", id, pid, err)
	}
	m.log.Warn("server killed", zap.String("server_id", id), zap.Int32("pid", pid))
	if s.status.State == StateStopping {
		// the pending stop observes the exit and settles the state
		return s.snapshot(), nil
	}
	s.status.State = StateStopped
	s.status.PID = 0
	s.status.ForcedStop = true
	s.status.StoppedAt = m.now()
	s.status.RconConnected = false
	s.status.Players = nil
	s.status.PlayerCount = 0
	return s.snapshot(), nil
}

// Restart stops the server when it runs and starts it again.
func (m *Manager) Restart(ctx context.Context, id string) (Status, error) {
	if _, err := m.Stop(ctx, id); err != nil && !errors.Is(err, ErrNotRunning) {
		return Status{}, err
	}
	return m.start(ctx, id)
}

// goBackground runs fn unless the manager is shutting down. Shutdown waits
// for every fn started here.
func (m *Manager) goBackground(fn func(ctx context.Context)) bool {
	m.bgMu.Lock()
	defer m.bgMu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
	return true
}

// Shutdown cancels background work and waits for it. Servers keep running.
func (m *Manager) Shutdown() {
	m.bgMu.Lock()
	m.closed = true
	m.bgMu.Unlock()
	m.cancel()
	m.wg.Wait()
}

var _ Snapshots = (*procs.Registry)(nil)
