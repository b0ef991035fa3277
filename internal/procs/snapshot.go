package procs

import (
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Process is what the registry knows about one running process.
type Process struct {
	PID       int32
	Exe       string
	Cwd       string
	StartedAt time.Time
}

// Snapshot is an immutable view of the process table at one instant.
type Snapshot struct {
	TakenAt time.Time
	byPID   map[int32]Process
}

func NewSnapshot(takenAt time.Time, list []Process) *Snapshot {
	m := make(map[int32]Process, len(list))
	for _, p := range list {
		m[p.PID] = p
	}
	return &Snapshot{TakenAt: takenAt, byPID: m}
}

func (s *Snapshot) Get(pid int32) (Process, bool) {
	p, ok := s.byPID[pid]
	return p, ok
}

func (s *Snapshot) Len() int { return len(s.byPID) }

// FindByExe returns the processes running the given executable, newest
// first.
func (s *Snapshot) FindByExe(exe string) []Process {
	if exe == "" {
		return nil
	}
	var out []Process
	for _, p := range s.byPID {
		if SameExe(p.Exe, exe) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].PID > out[j].PID
	})
	return out
}

// SameExe compares executable paths after cleaning, ignoring case on
// Windows.
func SameExe(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = filepath.Clean(a), filepath.Clean(b)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
