package controller

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Factory builds a fresh controller for a session not yet in the registry.
type Factory func(ctx context.Context) (*Controller, error)

type registryEntry struct {
	useCount int
	handle   *Controller
}

// Registry is the process-wide, refcounted mapping from session id to
// controller: at-most-one controller exists per session while its refcount
// is positive. A second, higher-level mutex guards the map itself, kept
// separate from each controller's own serialization point.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*registryEntry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]*registryEntry)}
}

// GetOrCreate returns the existing controller for sessionID, incrementing
// its refcount, or builds one via factory when none exists yet.
func (r *Registry) GetOrCreate(ctx context.Context, sessionID uuid.UUID, factory Factory) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[sessionID]; ok {
		e.useCount++
		return e.handle, nil
	}
	c, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	r.entries[sessionID] = &registryEntry{useCount: 1, handle: c}
	return c, nil
}

// Release decrements sessionID's refcount, deleting the entry once it
// reaches zero.
func (r *Registry) Release(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return
	}
	e.useCount--
	if e.useCount <= 0 {
		delete(r.entries, sessionID)
	}
}

// Exists reports whether a controller is currently registered for sessionID.
func (r *Registry) Exists(sessionID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[sessionID]
	return ok
}

// SessionIDs returns every session id with a live controller, for the tick
// source's broadcast fan-out. Not exposed to connection endpoints.
func (r *Registry) SessionIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of active sessions, for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
