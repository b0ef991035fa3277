//go:build !windows

package manager_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faradayfan/dedicated-server-manager/internal/manager"
)

func TestExecLauncher(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no shell available")
	}
	logPath := filepath.Join(t.TempDir(), "logs", "server.log")
	l := manager.ExecLauncher{Log: zap.NewNop()}

	pid, err := l.Launch(context.Background(), manager.LaunchRequest{
		Command: sh,
		Args:    []string{"-c", "echo started"},
		Dir:     t.TempDir(),
		LogPath: logPath,
	})
	require.NoError(t, err)
	assert.Positive(t, pid)
	assert.Eventually(t, func() bool {
		b, err := os.ReadFile(logPath)
		return err == nil && string(b) == "started\n"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestExecLauncher_MissingCommand(t *testing.T) {
	l := manager.ExecLauncher{}
	_, err := l.Launch(context.Background(), manager.LaunchRequest{
		Command: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	assert.Error(t, err)
}
