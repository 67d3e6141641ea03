// Scope: one activation window of an observation, bounded by the observation's lifetime
package observation

import (
	"context"
	"sync"
)

// Scope is an open activation of an observation.
type Scope interface {
	Observation() Observation
	// Close deactivates the scope. Every call is relayed to the handlers,
	// but only the first accepted one lowers the open scope count.
	Close() error
	// Reset re-activates the observation's context without closing the scope.
	Reset() error
	IsNoop() bool
}

type simpleScope struct {
	obs *simpleObservation

	mu     sync.Mutex
	closed bool
}

func (s *simpleScope) Observation() Observation { return s.obs }

func (s *simpleScope) IsNoop() bool { return false }

func (s *simpleScope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := !s.closed
	if open {
		s.obs.ctx.addScopes(-1)
	}
	if err := s.obs.notify(func(h Handler) error { return h.OnScopeClosed(s.obs.ctx) }); err != nil {
		if open {
			s.obs.ctx.addScopes(1)
		}
		return err
	}
	s.closed = true
	return nil
}

func (s *simpleScope) Reset() error {
	return s.obs.notify(func(h Handler) error { return h.OnScopeReset(s.obs.ctx) })
}

type observationKey struct{}

// ContextWithObservation returns a copy of ctx carrying obs.
func ContextWithObservation(ctx context.Context, obs Observation) context.Context {
	return context.WithValue(ctx, observationKey{}, obs)
}

// FromContext returns the observation carried by ctx, or Noop.
func FromContext(ctx context.Context) Observation {
	if obs, ok := ctx.Value(observationKey{}).(Observation); ok && obs != nil {
		return obs
	}
	return Noop
}
