package manager

import (
	"context"
	"errors"
	"time"

	"github.com/faradayfan/dedicated-server-manager/internal/procs"
	"github.com/faradayfan/dedicated-server-manager/internal/rcon"
)

type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateUnknown  State = "unknown"
	StateCrashed  State = "crashed"
)

// Active reports whether a process is, or may be, running for the server.
func (s State) Active() bool {
	switch s {
	case StateStarting, StateRunning, StateStopping, StateUnknown:
		return true
	}
	return false
}

var (
	ErrLaunch         = errors.New("launch failed")
	ErrNotRunning     = errors.New("server is not running")
	ErrAlreadyRunning = errors.New("server is already running")
	ErrUnknownServer  = errors.New("unknown server")
)

type RconConfig struct {
	Host     string
	Port     int
	Password string
}

type ServerConfig struct {
	ID      string
	Name    string
	Command string
	Args    []string
	Cwd     string
	// WatchExe is the executable of the server process itself. It differs
	// from Command when a loader starts the server. Empty means Command.
	WatchExe string
	// Independent servers run in their own console and are left running
	// when the manager shuts down in the middle of stopping them.
	Independent bool
	Rcon        *RconConfig
	// MemoryLimit restarts the server when its resident memory exceeds this
	// many bytes. Zero disables the check.
	MemoryLimit uint64
	LogPath     string
}

func (c ServerConfig) watchExe() string {
	if c.WatchExe != "" {
		return c.WatchExe
	}
	return c.Command
}

type Status struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	State         State         `json:"state"`
	PID           int32         `json:"pid,omitempty"`
	RconConnected bool          `json:"rcon_connected"`
	Players       []rcon.Player `json:"players,omitempty"`
	PlayerCount   int           `json:"player_count"`
	MemoryBytes   uint64        `json:"memory_bytes,omitempty"`
	StartedAt     time.Time     `json:"started_at,omitempty"`
	StoppedAt     time.Time     `json:"stopped_at,omitempty"`
	ForcedStop    bool          `json:"forced_stop,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
}

type LaunchRequest struct {
	Command string
	Args    []string
	Dir     string
	// DedicatedConsole starts the process detached in its own console.
	DedicatedConsole bool
	LogPath          string
}

type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) (int32, error)
}

type Killer interface {
	Kill(ctx context.Context, pid int32) error
}

type MemorySampler interface {
	Memory(ctx context.Context, pid int32) (uint64, error)
}

// Snapshots provides the latest process table snapshot.
type Snapshots interface {
	Current() *procs.Snapshot
}

// Deps are the collaborators the manager drives. Memory and Rcon may be nil.
type Deps struct {
	Snapshots Snapshots
	Launcher  Launcher
	Killer    Killer
	Memory    MemorySampler
	Rcon      rcon.Client
}

type Options struct {
	// PollInterval is the evaluation tick of Run.
	PollInterval time.Duration
	// ConfirmSnapshots is how many consecutive post-launch snapshots must
	// show the process before a starting server counts as running.
	ConfirmSnapshots int
	// StartGrace is how long a starting server may go unseen.
	StartGrace time.Duration
	// UnknownGrace is how long a lost process may go unseen before the
	// server is considered gone.
	UnknownGrace       time.Duration
	StopTimeout        time.Duration
	KillWait           time.Duration
	RconTimeout        time.Duration
	PlayerPollInterval time.Duration
	// WaitPoll is how often a stop checks the snapshot for the process.
	WaitPoll time.Duration
}

func (o Options) withDefaults() Options {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&o.PollInterval, 5*time.Second)
	def(&o.StartGrace, 30*time.Second)
	def(&o.UnknownGrace, 30*time.Second)
	def(&o.StopTimeout, time.Minute)
	def(&o.KillWait, 10*time.Second)
	def(&o.RconTimeout, 10*time.Second)
	def(&o.PlayerPollInterval, 30*time.Second)
	def(&o.WaitPoll, time.Second)
	if o.ConfirmSnapshots <= 0 {
		o.ConfirmSnapshots = 2
	}
	return o
}
