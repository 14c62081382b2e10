// Package runtime implements the Resource Registry (spec C3):
// process-wide lazy singletons for the worker pool, the event loop, and
// the config store, so every other component reaches them through one
// composition root instead of threading constructors everywhere.
//
// Grounded on project-tachyon's internal/core.TachyonEngine, which plays
// the same "one struct wires everything else" role for that repo's
// download engine.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"nekolauncher/internal/config"
	"nekolauncher/internal/eventloop"
	"nekolauncher/internal/pool"
)

// Registry lazily constructs and owns the pool, event loop, and config
// store. Each accessor is safe to call concurrently and constructs its
// resource at most once.
type Registry struct {
	logger *slog.Logger

	poolSize   int
	configPath string

	poolOnce sync.Once
	pool     *pool.Pool

	loopOnce sync.Once
	loop     *eventloop.Loop
	loopCtx  context.Context
	loopStop context.CancelFunc

	storeOnce sync.Once
	store     *config.Store
	storeErr  error
}

// New creates a Registry. Nothing is constructed until first accessed.
// poolSize <= 0 defers to the pool package's own CPU-count default.
func New(logger *slog.Logger, configPath string, poolSize int) *Registry {
	return &Registry{logger: logger, poolSize: poolSize, configPath: configPath}
}

// Pool returns the process-wide worker pool, constructing it on first
// call.
func (r *Registry) Pool() *pool.Pool {
	r.poolOnce.Do(func() {
		r.pool = pool.New(r.logger, r.poolSize)
	})
	return r.pool
}

// Loop returns the process-wide event loop, constructing it and starting
// its run goroutine on first call.
func (r *Registry) Loop() *eventloop.Loop {
	r.loopOnce.Do(func() {
		r.loop = eventloop.New(r.logger, 0)
		r.loopCtx, r.loopStop = context.WithCancel(context.Background())
		go r.loop.Run(r.loopCtx)
	})
	return r.loop
}

// ConfigStore returns the process-wide config store, loading or creating
// its backing INI file on first call. The error from that first load is
// cached and returned on every subsequent call too, since a registry
// singleton cannot retry on behalf of callers that already received the
// failed value.
func (r *Registry) ConfigStore() (*config.Store, error) {
	r.storeOnce.Do(func() {
		r.store, r.storeErr = config.NewStore(r.configPath)
	})
	return r.store, r.storeErr
}

// Shutdown stops the pool (draining in-flight work) and the event loop.
// Safe to call even if some resources were never constructed.
func (r *Registry) Shutdown() {
	if r.pool != nil {
		r.pool.Stop(true)
	}
	if r.loop != nil {
		r.loop.Stop()
	}
	if r.loopStop != nil {
		r.loopStop()
	}
}
