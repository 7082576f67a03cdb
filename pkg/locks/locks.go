// Package locks hands out the in-process locks serializing consolidation
// runs per space and writes to the shared token registry.
package locks

import "sync"

// Registry owns every advisory lock in the service. Locks are per process;
// deployments run a single instance per bucket.
type Registry struct {
	mu            sync.Mutex
	consolidation map[string]*sync.Mutex

	tokens sync.Mutex
}

// NewRegistry returns an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{consolidation: make(map[string]*sync.Mutex)}
}

// TryConsolidate attempts to take the consolidation lock for a space without
// blocking. On success it returns a release function and true. When another
// consolidation already holds the lock it returns false, and the caller
// reports a conflict instead of waiting.
func (r *Registry) TryConsolidate(spaceID string) (release func(), ok bool) {
	m := r.spaceLock(spaceID)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}

// Locked reports whether a consolidation currently holds the space lock.
func (r *Registry) Locked(spaceID string) bool {
	m := r.spaceLock(spaceID)
	if m.TryLock() {
		m.Unlock()
		return false
	}
	return true
}

// Tokens returns the process-wide lock serializing token registry updates.
func (r *Registry) Tokens() *sync.Mutex {
	return &r.tokens
}

func (r *Registry) spaceLock(spaceID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.consolidation[spaceID]
	if !ok {
		m = &sync.Mutex{}
		r.consolidation[spaceID] = m
	}
	return m
}
