package procs_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faradayfan/dedicated-server-manager/internal/procs"
)

type fakeSource struct {
	mu    sync.Mutex
	list  []procs.Process
	err   error
	calls atomic.Int32
}

func (f *fakeSource) List(ctx context.Context) ([]procs.Process, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]procs.Process, len(f.list))
	copy(out, f.list)
	return out, nil
}

func (f *fakeSource) set(list []procs.Process, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list, f.err = list, err
}

func TestRegistry_Refresh(t *testing.T) {
	src := &fakeSource{}
	r := procs.NewRegistry(src, time.Second, zap.NewNop())

	empty := r.Current()
	require.NotNil(t, empty)
	assert.Zero(t, empty.Len())
	assert.True(t, empty.TakenAt.IsZero())

	src.set([]procs.Process{{PID: 10, Exe: "/opt/game/server"}, {PID: 11, Exe: "/bin/sh"}}, nil)
	require.NoError(t, r.Refresh(context.Background()))
	snap := r.Current()
	assert.Equal(t, 2, snap.Len())
	p, ok := snap.Get(10)
	require.True(t, ok)
	assert.Equal(t, "/opt/game/server", p.Exe)
	assert.False(t, snap.TakenAt.IsZero())

	src.set(nil, errors.New("boom"))
	assert.Error(t, r.Refresh(context.Background()))
	assert.Same(t, snap, r.Current())

	// a published snapshot is never modified by later refreshes
	src.set([]procs.Process{{PID: 12}}, nil)
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, 1, r.Current().Len())
}

func TestRegistry_Run(t *testing.T) {
	src := &fakeSource{}
	src.set([]procs.Process{{PID: 1}}, nil)
	r := procs.NewRegistry(src, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for j := 0; j < 200; j++ {
				assert.NotNil(t, r.Current())
			}
		}()
	}
	readers.Wait()

	assert.Eventually(t, func() bool { return src.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSnapshot_FindByExe(t *testing.T) {
	now := time.Now()
	snap := procs.NewSnapshot(now, []procs.Process{
		{PID: 1, Exe: "/srv/ark/ShooterGameServer", StartedAt: now.Add(-time.Hour)},
		{PID: 2, Exe: "/srv/ark/./ShooterGameServer", StartedAt: now.Add(-time.Minute)},
		{PID: 3, Exe: "/srv/other/ShooterGameServer", StartedAt: now},
		{PID: 4},
	})
	got := snap.FindByExe("/srv/ark/ShooterGameServer")
	require.Len(t, got, 2)
	assert.EqualValues(t, 2, got[0].PID)
	assert.EqualValues(t, 1, got[1].PID)
	assert.Empty(t, snap.FindByExe(""))
}

func TestGopsutilSource(t *testing.T) {
	src := procs.GopsutilSource{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := src.List(ctx)
	require.NoError(t, err)
	self := int32(os.Getpid())
	found := false
	for _, p := range list {
		if p.PID == self {
			found = true
			break
		}
	}
	assert.True(t, found, "own process not listed")

	rss, err := src.Memory(ctx, self)
	require.NoError(t, err)
	assert.Positive(t, rss)
}
