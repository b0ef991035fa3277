package procs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// GopsutilSource reads the host process table. It also samples memory and
// kills single processes for the supervisor.
type GopsutilSource struct{}

func (GopsutilSource) List(ctx context.Context) ([]Process, error) {
	ps, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(ps))
	for _, p := range ps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info := Process{PID: p.Pid}
		// processes owned by other users may hide their details
		if exe, err := p.ExeWithContext(ctx); err == nil {
			info.Exe = exe
		}
		if cwd, err := p.CwdWithContext(ctx); err == nil {
			info.Cwd = cwd
		}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			info.StartedAt = time.UnixMilli(ms)
		}
		out = append(out, info)
	}
	return out, nil
}

// Memory returns the resident set size of pid in bytes.
func (GopsutilSource) Memory(ctx context.Context, pid int32) (uint64, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return 0, err
	}
	mi, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("memory of pid %d: %w", pid, err)
	}
	return mi.RSS, nil
}

// Kill terminates pid. A process that is already gone is not an error.
func (GopsutilSource) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := p.KillWithContext(ctx); err != nil {
		if running, rerr := p.IsRunningWithContext(ctx); rerr == nil && !running {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}
