// Registry of observation handlers
// An observation snapshots the supporting handlers when it is created
package observation

import (
	"slices"
	"sync"
)

// Registry holds the handlers that new observations are wired to.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
	noop     bool
}

// NoopRegistry creates only no-op observations and ignores added handlers.
var NoopRegistry = &Registry{noop: true}

// NewRegistry returns a registry holding the given handlers in order.
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: slices.Clone(handlers)}
}

// AddHandler appends a handler. Observations created earlier are not affected.
func (r *Registry) AddHandler(h Handler) {
	if r == nil || r.noop {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Handlers returns a copy of the registered handlers.
func (r *Registry) Handlers() []Handler {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.handlers)
}

// IsNoop reports whether observations created from r would do nothing:
// r is nil, the no-op registry, or has no handlers.
func (r *Registry) IsNoop() bool {
	if r == nil || r.noop {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers) == 0
}

// supporting returns the handlers that support ctx.
func (r *Registry) supporting(ctx *Context) []Handler {
	all := r.Handlers()
	out := all[:0]
	for _, h := range all {
		if h.Supports(ctx) {
			out = append(out, h)
		}
	}
	return out
}
