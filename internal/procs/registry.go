// Package procs keeps a periodically refreshed snapshot of the host process
// table that any number of readers can consult without blocking the refresh.
package procs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Source enumerates running processes.
type Source interface {
	List(ctx context.Context) ([]Process, error)
}

type Registry struct {
	src      Source
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger

	current atomic.Pointer[Snapshot]
}

func NewRegistry(src Source, interval time.Duration, log *zap.Logger) *Registry {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		src:      src,
		interval: interval,
		timeout:  interval,
		log:      log.With(zap.String("component", "procs")),
	}
	r.current.Store(NewSnapshot(time.Time{}, nil))
	return r
}

// Current returns the latest complete snapshot. Before the first refresh it
// is an empty snapshot taken at the zero time.
func (r *Registry) Current() *Snapshot { return r.current.Load() }

// Refresh enumerates processes and publishes the result. On failure the
// previous snapshot stays current.
func (r *Registry) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	list, err := r.src.List(ctx)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	r.current.Store(NewSnapshot(time.Now(), list))
	return nil
}

// Run refreshes immediately and then on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("process refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
