// No-op observation used when observability is disabled
package observation

import "context"

// Noop accepts every signal in any order and records nothing.
var Noop Observation = noopObservation{}

var noopContext = &Context{Name: "noop", null: true, values: make(map[any]any)}

type noopObservation struct{}

func (noopObservation) Context() *Context         { return noopContext }
func (noopObservation) Start() error              { return nil }
func (noopObservation) Stop() error               { return nil }
func (noopObservation) Error(error) error         { return nil }
func (noopObservation) Event(Event) error         { return nil }
func (noopObservation) OpenScope() (Scope, error) { return noopScope{}, nil }
func (noopObservation) IsNoop() bool              { return true }

func (n noopObservation) Observe(ctx context.Context, fn func(context.Context) error) error {
	return fn(ContextWithObservation(ctx, n))
}

type noopScope struct{}

func (noopScope) Observation() Observation { return Noop }
func (noopScope) Close() error             { return nil }
func (noopScope) Reset() error             { return nil }
func (noopScope) IsNoop() bool             { return true }
