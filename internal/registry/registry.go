// Package registry caches one backend client per configuration identity.
//
// Construction can involve network round-trips (credential chains, token
// exchanges), so it runs outside the registry lock. Concurrent resolvers of
// the same identity wait for the single in-flight construction instead of
// starting their own. Entries live for the lifetime of the registry.
package registry

import (
	"context"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// Constructor builds the backend client for a configuration.
type Constructor func(ctx context.Context, cfg rftypes.BackendConfig) (backend.Backend, error)

// Stats tracks registry usage.
type Stats struct {
	Created int64
	Reused  int64
	Failed  int64
}

type entry struct {
	ready   chan struct{}
	backend backend.Backend
	err     error
}

// Registry maps cache keys to constructed backends.
type Registry struct {
	construct Constructor

	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats
}

// New creates an empty registry that builds clients with construct.
func New(construct Constructor) *Registry {
	return &Registry{
		construct: construct,
		entries:   make(map[string]*entry),
	}
}

// Resolve returns the backend for cfg, constructing it on first use.
// A failed construction is forgotten so a later call can try again.
//
// Construction is detached from the caller's cancellation: a caller that
// gives up returns ctx.Err() while the build carries on for other waiters.
func (r *Registry) Resolve(ctx context.Context, cfg rftypes.BackendConfig) (backend.Backend, error) {
	key := cfg.CacheKey()

	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return r.wait(ctx, e, true)
	}
	e := &entry{ready: make(chan struct{})}
	r.entries[key] = e
	r.mu.Unlock()

	go r.build(context.WithoutCancel(ctx), key, cfg, e)
	return r.wait(ctx, e, false)
}

func (r *Registry) build(ctx context.Context, key string, cfg rftypes.BackendConfig, e *entry) {
	e.backend, e.err = r.construct(ctx, cfg)

	r.mu.Lock()
	if e.err != nil {
		delete(r.entries, key)
		r.stats.Failed++
	} else {
		r.stats.Created++
	}
	r.mu.Unlock()
	close(e.ready)
}

func (r *Registry) wait(ctx context.Context, e *entry, reused bool) (backend.Backend, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}

	if reused {
		r.mu.Lock()
		r.stats.Reused++
		r.mu.Unlock()
	}
	return e.backend, nil
}

// Len returns the number of cached clients, including ones under construction.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stats returns registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
