// Handler interface for reacting to observation lifecycle signals.
// The registry notifies handlers in registration order; the first error stops delivery.
package observation

import "time"

// Event is a named point in time reported against a started observation.
type Event struct {
	Name           string
	ContextualName string
	Time           time.Time
}

// EventOf returns an event with the given name stamped with the current time.
func EventOf(name string) Event {
	return Event{Name: name, ContextualName: name, Time: time.Now()}
}

// Handler receives lifecycle signals for the observations it supports.
// A non-nil error rejects the signal and is returned to the caller unchanged.
type Handler interface {
	OnStart(ctx *Context) error
	OnStop(ctx *Context) error
	OnError(ctx *Context) error
	OnEvent(event Event, ctx *Context) error
	OnScopeOpened(ctx *Context) error
	OnScopeReset(ctx *Context) error
	OnScopeClosed(ctx *Context) error
	// Supports is consulted once, when the observation is created.
	Supports(ctx *Context) bool
}

// BaseHandler implements Handler with no-ops. Embed it to override selectively.
// It supports every non-null context.
type BaseHandler struct{}

func (BaseHandler) OnStart(*Context) error        { return nil }
func (BaseHandler) OnStop(*Context) error         { return nil }
func (BaseHandler) OnError(*Context) error        { return nil }
func (BaseHandler) OnEvent(Event, *Context) error { return nil }
func (BaseHandler) OnScopeOpened(*Context) error  { return nil }
func (BaseHandler) OnScopeReset(*Context) error   { return nil }
func (BaseHandler) OnScopeClosed(*Context) error  { return nil }
func (BaseHandler) Supports(ctx *Context) bool    { return !ctx.IsNull() }
