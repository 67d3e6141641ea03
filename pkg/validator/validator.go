// Observation lifecycle validator
// Checks every signal against the observation's state and rejects out-of-order use:
// NOT_STARTED -> STARTED -> STOPPED, with events, errors and scopes only while started
package validator

import (
	"sync"

	"github.com/andrewh/obscheck/pkg/observation"
)

// Listener is notified of each violation before it is returned to the caller.
type Listener interface {
	OnViolation(ctx *observation.Context, err *InvalidObservationError)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx *observation.Context, err *InvalidObservationError)

// OnViolation calls f.
func (f ListenerFunc) OnViolation(ctx *observation.Context, err *InvalidObservationError) {
	f(ctx, err)
}

// Option configures a Validator.
type Option func(*Validator)

// WithCallSites enables or disables call site capture. Enabled by default.
// When disabled every entry renders as "unknown".
func WithCallSites(enabled bool) Option {
	return func(v *Validator) { v.callSites = enabled }
}

// WithListener adds a violation listener.
func WithListener(l Listener) Option {
	return func(v *Validator) { v.listeners = append(v.listeners, l) }
}

// WithSupports replaces the predicate selecting which observations are validated.
// The default skips null contexts.
func WithSupports(fn func(*observation.Context) bool) Option {
	return func(v *Validator) { v.supports = fn }
}

// Validator is an observation.Handler enforcing the lifecycle.
// It holds no state of its own; each observation's log lives on its context.
type Validator struct {
	callSites bool
	listeners []Listener
	supports  func(*observation.Context) bool
}

var _ observation.Handler = (*Validator)(nil)

// New returns a Validator with the given options applied.
func New(opts ...Option) *Validator {
	v := &Validator{
		callSites: true,
		supports:  func(ctx *observation.Context) bool { return !ctx.IsNull() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewTestRegistry returns a registry whose first handler is a new Validator.
func NewTestRegistry(opts ...Option) *observation.Registry {
	return observation.NewRegistry(New(opts...))
}

// tracker is the validator state stored on an observation context.
type tracker struct {
	mu    sync.Mutex
	state State
	log   Log
}

type trackerKey struct{}

func trackerFor(ctx *observation.Context) *tracker {
	return ctx.GetOrPut(trackerKey{}, func() any { return &tracker{} }).(*tracker)
}

// Snapshot is a point-in-time view of an observation's validator state.
type Snapshot struct {
	State      State
	OpenScopes int
	History    []Entry
}

// Inspect returns the validator state recorded on ctx.
// ok is false when no signal has been validated for ctx yet.
func Inspect(ctx *observation.Context) (snap Snapshot, ok bool) {
	t, ok := ctx.Get(trackerKey{}).(*tracker)
	if !ok {
		return Snapshot{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{State: t.state, OpenScopes: ctx.OpenScopes(), History: t.log.Entries()}, true
}

func (v *Validator) Supports(ctx *observation.Context) bool { return v.supports(ctx) }

func (v *Validator) OnStart(ctx *observation.Context) error { return v.signal(ctx, SignalStart) }

func (v *Validator) OnStop(ctx *observation.Context) error { return v.signal(ctx, SignalStop) }

func (v *Validator) OnError(ctx *observation.Context) error { return v.signal(ctx, SignalError) }

func (v *Validator) OnEvent(_ observation.Event, ctx *observation.Context) error {
	return v.signal(ctx, SignalEvent)
}

func (v *Validator) OnScopeOpened(ctx *observation.Context) error {
	return v.signal(ctx, SignalScopeOpen)
}

func (v *Validator) OnScopeReset(ctx *observation.Context) error {
	return v.signal(ctx, SignalScopeReset)
}

func (v *Validator) OnScopeClosed(ctx *observation.Context) error {
	return v.signal(ctx, SignalScopeClose)
}

// signal records kind, then validates and applies it atomically.
// A rejected signal stays in the log but leaves the state unchanged.
func (v *Validator) signal(ctx *observation.Context, kind SignalKind) error {
	var site CallSite
	if v.callSites {
		site = Capture(1)
	}

	t := trackerFor(ctx)
	t.mu.Lock()
	t.log.append(Entry{Kind: kind, Site: site})
	pre, ok := check(t.state, kind)
	if ok {
		t.apply(kind)
		t.mu.Unlock()
		return nil
	}
	verr := &InvalidObservationError{
		Kind:         kind,
		Precondition: pre,
		Observation:  ctx.Name,
		History:      t.log.Entries(),
	}
	t.mu.Unlock()

	for _, l := range v.listeners {
		l.OnViolation(ctx, verr)
	}
	return verr
}

func (t *tracker) apply(kind SignalKind) {
	switch kind {
	case SignalStart:
		t.state = StateStarted
	case SignalStop:
		t.state = StateStopped
	}
}
