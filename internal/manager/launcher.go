package manager

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// ExecLauncher starts servers as child processes. The process is not tied
// to the launch context: servers outlive the request that started them.
type ExecLauncher struct {
	Log *zap.Logger
}

func (l ExecLauncher) Launch(ctx context.Context, req LaunchRequest) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}

	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = req.Dir
	cmd.SysProcAttr = sysProcAttr(req.DedicatedConsole)

	// a dedicated console owns the server output
	var logFile *os.File
	if req.LogPath != "" && !req.DedicatedConsole {
		if err := os.MkdirAll(filepath.Dir(req.LogPath), 0o755); err != nil {
			return 0, err
		}
		f, err := os.OpenFile(req.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, err
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return 0, err
	}
	pid := int32(cmd.Process.Pid)

	// reap the child; liveness is tracked through the process snapshot
	go func() {
		err := cmd.Wait()
		if logFile != nil {
			_ = logFile.Close()
		}
		code := 0
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		} else if err != nil {
			code = -1
		}
		log.Debug("child exited", zap.Int32("pid", pid), zap.Int("exit_code", code))
	}()
	return pid, nil
}
