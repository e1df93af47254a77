// Package handler holds the table of functions that remote calls may invoke.
//
// Functions are identified on the wire by their registration index, so every
// process must register the same handlers in the same order.
package handler

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/bft-labs/rpcagg/internal/domain"
)

// Func runs one remote call for a local worker.
type Func func(ctx context.Context, worker int, payload []byte) ([]byte, error)

type entry struct {
	name string
	fn   Func
}

// Registry maps handler names to wire IDs and runs calls by ID.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	byName  map[string]uint16
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]uint16)}
}

// Register adds fn under name and returns its wire ID.
func (r *Registry) Register(name string, fn Func) (uint16, error) {
	if name == "" || fn == nil {
		return 0, fmt.Errorf("%w: handler needs a name and a function", domain.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return 0, fmt.Errorf("%w: handler %q already registered", domain.ErrInvalidConfig, name)
	}
	if len(r.entries) > math.MaxUint16 {
		return 0, fmt.Errorf("%w: too many handlers", domain.ErrInvalidConfig)
	}
	id := uint16(len(r.entries))
	r.entries = append(r.entries, entry{name: name, fn: fn})
	r.byName[name] = id
	return id, nil
}

// Lookup returns the ID registered for name.
func (r *Registry) Lookup(name string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Name returns the name registered for id, or "" if unknown.
func (r *Registry) Name(id uint16) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.entries) {
		return ""
	}
	return r.entries[id].name
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Execute runs the handler registered under id.
func (r *Registry) Execute(ctx context.Context, id uint16, worker int, payload []byte) ([]byte, error) {
	r.mu.RLock()
	if int(id) >= len(r.entries) {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: id %d", domain.ErrUnknownHandler, id)
	}
	fn := r.entries[id].fn
	r.mu.RUnlock()

	return fn(ctx, worker, payload)
}
