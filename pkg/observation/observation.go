// Observation: a handle for one measured unit of work with a start/stop lifecycle
// Each method relays a signal to the observation's handlers and returns the first rejection
package observation

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
)

// Observation is one measured unit of work.
type Observation interface {
	// Context returns the observation's context. Never nil.
	Context() *Context
	Start() error
	Stop() error
	// Error signals that the unit of work failed with err. May be called many times.
	Error(err error) error
	Event(event Event) error
	// OpenScope activates the observation on the caller's logical call stack.
	// The returned scope is nil when the signal is rejected.
	OpenScope() (Scope, error)
	// Observe starts the observation, opens a scope, runs fn with a context
	// carrying the observation, signals fn's error, closes the scope and stops.
	Observe(ctx context.Context, fn func(context.Context) error) error
	IsNoop() bool
}

// Option configures an observation at creation time.
type Option func(*Context)

// WithContextualName sets the display name used by handlers such as tracing.
func WithContextualName(name string) Option {
	return func(c *Context) { c.ContextualName = name }
}

// WithParent links the new observation to a parent observation.
func WithParent(parent Observation) Option {
	return func(c *Context) { c.Parent = parent }
}

// WithLowCardinality adds bounded key values at creation time.
func WithLowCardinality(kvs ...attribute.KeyValue) Option {
	return func(c *Context) { c.low = append(c.low, kvs...) }
}

// WithHighCardinality adds unbounded key values at creation time.
func WithHighCardinality(kvs ...attribute.KeyValue) Option {
	return func(c *Context) { c.high = append(c.high, kvs...) }
}

// CreateNotStarted returns a new observation that has not been started.
// The no-op observation is returned when reg would do nothing.
func CreateNotStarted(name string, reg *Registry, opts ...Option) Observation {
	if reg.IsNoop() {
		return Noop
	}
	return newSimple(newContext(name), reg, opts)
}

// Start creates an observation and starts it.
func Start(name string, reg *Registry, opts ...Option) (Observation, error) {
	obs := CreateNotStarted(name, reg, opts...)
	if err := obs.Start(); err != nil {
		return obs, err
	}
	return obs, nil
}

// NewNull returns an observation whose context is flagged null.
// It is wired to reg like any other observation, but handlers that skip
// null contexts (all handlers in this module) never see its signals.
func NewNull(reg *Registry) Observation {
	ctx := newContext("null")
	ctx.null = true
	if reg.IsNoop() {
		reg = nil
	}
	return newSimple(ctx, reg, nil)
}

type simpleObservation struct {
	ctx      *Context
	handlers []Handler
}

func newSimple(ctx *Context, reg *Registry, opts []Option) *simpleObservation {
	for _, opt := range opts {
		opt(ctx)
	}
	var handlers []Handler
	if reg != nil {
		handlers = reg.supporting(ctx)
	}
	return &simpleObservation{ctx: ctx, handlers: handlers}
}

func (o *simpleObservation) Context() *Context { return o.ctx }

func (o *simpleObservation) IsNoop() bool { return false }

func (o *simpleObservation) Start() error {
	return o.notify(func(h Handler) error { return h.OnStart(o.ctx) })
}

func (o *simpleObservation) Stop() error {
	return o.notify(func(h Handler) error { return h.OnStop(o.ctx) })
}

// Error stores err on the context for the handlers and restores the
// previous error if the signal is rejected.
func (o *simpleObservation) Error(err error) error {
	prev := o.ctx.Err()
	o.ctx.SetError(err)
	if nerr := o.notify(func(h Handler) error { return h.OnError(o.ctx) }); nerr != nil {
		o.ctx.SetError(prev)
		return nerr
	}
	return nil
}

func (o *simpleObservation) Event(event Event) error {
	return o.notify(func(h Handler) error { return h.OnEvent(event, o.ctx) })
}

func (o *simpleObservation) OpenScope() (Scope, error) {
	o.ctx.addScopes(1)
	if err := o.notify(func(h Handler) error { return h.OnScopeOpened(o.ctx) }); err != nil {
		o.ctx.addScopes(-1)
		return nil, err
	}
	return &simpleScope{obs: o}, nil
}

func (o *simpleObservation) Observe(ctx context.Context, fn func(context.Context) error) error {
	if err := o.Start(); err != nil {
		return err
	}
	scope, err := o.OpenScope()
	if err != nil {
		return errors.Join(err, o.Stop())
	}

	var errs []error
	if runErr := fn(ContextWithObservation(ctx, o)); runErr != nil {
		errs = append(errs, runErr)
		if err := o.Error(runErr); err != nil {
			errs = append(errs, err)
		}
	}
	if err := scope.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := o.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (o *simpleObservation) notify(fn func(Handler) error) error {
	for _, h := range o.handlers {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}
