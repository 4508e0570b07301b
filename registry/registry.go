// Package registry is the process-wide map from guid to array future
// (spec.md §4.1). spec.md documents a single-writer invariant (only the
// scheduler's worker goroutine mutates it); this implementation locks
// anyway, the same defensive habit the teacher applies to its own
// process-wide state (atExit's mutex guards fields only ever touched
// before RunAtExit's single pass, pb's buffer pools guard slices handed
// out to a single goroutine at a time) because tests construct and drain
// registries directly, off the worker goroutine.
package registry

import (
	"sync"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/future"
)

// Registry maps guid to future, process-wide.
type Registry struct {
	mu sync.Mutex
	m  map[ddpt.Guid]future.Future
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{m: make(map[ddpt.Guid]future.Future)}
}

// Put allocates nothing itself — it stores f under f.Guid(), which the
// caller is expected to have already allocated via ddpt.NextGuid() (the
// teacher's own pattern is to let the resource pick its own id: see
// distri's build graph nodes, each carrying the index they were created
// with, rather than minting one on insertion). Put returns f.Guid() for
// convenience at call sites that want to chain it.
func (r *Registry) Put(f future.Future) ddpt.Guid {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := f.Guid()
	r.m[g] = f
	return g
}

// Get returns the future registered under g, or ErrUnknownGuid if absent.
func (r *Registry) Get(g ddpt.Guid) (future.Future, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.m[g]
	if !ok {
		return nil, &ddpt.ErrUnknownGuid{Guid: g}
	}
	return f, nil
}

// Del removes g. Deleting an absent guid is a silent no-op (matches the
// depmgr double-drop policy recorded in DESIGN.md: Go map deletes are
// naturally idempotent, so there is no double-free to guard against).
func (r *Registry) Del(g ddpt.Guid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, g)
}

// Len reports the number of live entries. (internal/registryfs lists the
// registry through Snapshot, not Len.)
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Snapshot returns a point-in-time copy of the guid set, used by
// internal/registryfs for directory listings without holding the lock
// across a FUSE round trip.
func (r *Registry) Snapshot() []future.Future {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]future.Future, 0, len(r.m))
	for _, f := range r.m {
		out = append(out, f)
	}
	return out
}
