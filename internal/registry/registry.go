// Package registry holds the in-memory set of known bonding-curve
// contracts and notifies subscribed listeners synchronously when a new
// curve joins. The Chain Client does not subscribe; it reads Snapshot on
// every poll tick.
package registry

import (
	"sync"

	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

// Listener is invoked synchronously, in registration order, every time a
// new curve is added.
type Listener func(curve, token valuemodel.Address)

// Registry is the single owner of the set of known curve addresses and
// their curve-to-token mapping. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	curves    map[valuemodel.Address]valuemodel.Address // curve -> token
	listeners []Listener
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		curves: make(map[valuemodel.Address]valuemodel.Address),
	}
}

// Add registers curve as the contract backing token. Returns true if this
// call inserted a new entry, false if the curve was already known
// (idempotent; a repeat Add for the same curve never re-fires listeners).
func (r *Registry) Add(curve, token valuemodel.Address) bool {
	r.mu.Lock()
	if _, exists := r.curves[curve]; exists {
		r.mu.Unlock()
		return false
	}
	r.curves[curve] = token
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		l(curve, token)
	}
	return true
}

// Contains reports whether curve is a known bonding-curve contract.
func (r *Registry) Contains(curve valuemodel.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.curves[curve]
	return ok
}

// TokenFor returns the token backed by curve, if known.
func (r *Registry) TokenFor(curve valuemodel.Address) (valuemodel.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.curves[curve]
	return token, ok
}

// Snapshot returns the current set of known curve addresses. The returned
// slice is a copy and safe to range over without holding the lock.
func (r *Registry) Snapshot() []valuemodel.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]valuemodel.Address, 0, len(r.curves))
	for c := range r.curves {
		out = append(out, c)
	}
	return out
}

// Subscribe registers a listener invoked on every future successful Add.
// It is not retroactively invoked for curves already registered; callers
// that need the existing set should read Snapshot first.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Len reports the number of known curves.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.curves)
}
