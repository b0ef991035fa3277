package manager

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/faradayfan/dedicated-server-manager/internal/procs"
	"github.com/faradayfan/dedicated-server-manager/internal/rcon"
)

// Run evaluates all servers on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	t := time.NewTicker(m.opts.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := m.Evaluate(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn("evaluation failed", zap.Error(err))
			}
		}
	}
}

// Evaluate checks every server against the current snapshot. A snapshot is
// evaluated at most once per server.
func (m *Manager) Evaluate(ctx context.Context) error {
	snap := m.snaps.Current()
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range m.all() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m.evaluate(gctx, s, snap)
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) evaluate(ctx context.Context, s *server, snap *procs.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !snap.TakenAt.After(s.lastSnap) {
		return
	}
	s.lastSnap = snap.TakenAt
	now := m.now()
	log := m.log.With(zap.String("server_id", s.cfg.ID))

	switch s.status.State {
	case StateStarting:
		if snap.TakenAt.Before(s.launchedAt) {
			return
		}
		if p, ok := correlate(s.cfg, s.status.PID, snap); ok {
			s.status.PID = p.PID
			s.seen++
			if s.seen >= m.opts.ConfirmSnapshots {
				s.status.State = StateRunning
				log.Info("server running", zap.Int32("pid", p.PID))
			}
			return
		}
		s.seen = 0
		if now.Sub(s.launchedAt) > m.opts.StartGrace {
			s.status.State = StateCrashed
			s.status.LastError = "process exited during startup"
			s.status.StoppedAt = now
			log.Error("server crashed during startup", zap.Int32("pid", s.status.PID))
			s.status.PID = 0
		}

	case StateRunning:
		p, ok := correlate(s.cfg, s.status.PID, snap)
		if !ok {
			s.status.State = StateUnknown
			s.unknownSince = now
			log.Warn("server process lost", zap.Int32("pid", s.status.PID))
			return
		}
		s.status.PID = p.PID
		m.observe(ctx, s, log)

	case StateUnknown:
		if p, ok := correlate(s.cfg, s.status.PID, snap); ok {
			s.status.State = StateRunning
			s.status.PID = p.PID
			s.unknownSince = time.Time{}
			log.Info("server process found again", zap.Int32("pid", p.PID))
			return
		}
		if now.Sub(s.unknownSince) <= m.opts.UnknownGrace {
			return
		}
		s.status.StoppedAt = now
		s.status.PID = 0
		s.status.RconConnected = false
		s.status.Players = nil
		s.status.PlayerCount = 0
		s.status.State = StateCrashed
		s.status.LastError = "process exited unexpectedly"
		log.Error("server crashed")
	}
}

// correlate finds the server process in snap: the known pid when it still
// runs the watched executable, otherwise the newest process running it.
func correlate(cfg ServerConfig, pid int32, snap *procs.Snapshot) (procs.Process, bool) {
	exe := cfg.watchExe()
	if pid != 0 {
		if p, ok := snap.Get(pid); ok && (p.Exe == "" || procs.SameExe(p.Exe, exe)) {
			return p, true
		}
	}
	if ps := snap.FindByExe(exe); len(ps) > 0 {
		return ps[0], true
	}
	return procs.Process{}, false
}

// observe samples memory and polls players of a running server. Called with
// s.mu held.
func (m *Manager) observe(ctx context.Context, s *server, log *zap.Logger) {
	if m.memory != nil {
		mctx, cancel := context.WithTimeout(ctx, m.opts.RconTimeout)
		rss, err := m.memory.Memory(mctx, s.status.PID)
		cancel()
		if err != nil {
			log.Debug("memory sample failed", zap.Error(err))
		} else {
			s.status.MemoryBytes = rss
			if s.cfg.MemoryLimit > 0 && rss > s.cfg.MemoryLimit && !s.restarting {
				m.restartForMemory(s, rss, log)
				return
			}
		}
	}

	if s.cfg.Rcon == nil || m.rcon == nil || s.polling {
		return
	}
	now := m.now()
	if !s.lastPlayerPoll.IsZero() && now.Sub(s.lastPlayerPoll) < m.opts.PlayerPollInterval {
		return
	}
	s.lastPlayerPoll = now
	cfg := *s.cfg.Rcon
	s.polling = m.goBackground(func(ctx context.Context) {
		players, err := m.queryPlayers(ctx, cfg)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.polling = false
		if s.status.State != StateRunning {
			return
		}
		if err != nil {
			s.status.RconConnected = false
			log.Debug("player poll failed", zap.Error(err))
			return
		}
		s.status.RconConnected = true
		s.status.Players = players
		s.status.PlayerCount = len(players)
	})
}

func (m *Manager) restartForMemory(s *server, rss uint64, log *zap.Logger) {
	id := s.cfg.ID
	log.Warn("memory limit exceeded, restarting",
		zap.Uint64("rss", rss), zap.Uint64("limit", s.cfg.MemoryLimit))
	s.restarting = m.goBackground(func(ctx context.Context) {
		if _, err := m.Restart(ctx, id); err != nil {
			log.Error("restart failed", zap.Error(err))
		}
		s.mu.Lock()
		s.restarting = false
		s.mu.Unlock()
	})
}

func (m *Manager) queryPlayers(ctx context.Context, cfg RconConfig) ([]rcon.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.RconTimeout)
	defer cancel()
	conn, err := m.rcon.Connect(ctx, cfg.Host, cfg.Port, cfg.Password)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	out, err := conn.Exec(ctx, rcon.CmdListPlayers)
	if err != nil {
		return nil, err
	}
	return rcon.ParsePlayers(out), nil
}
