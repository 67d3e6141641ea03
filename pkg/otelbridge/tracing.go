// TracingHandler maps observations onto OpenTelemetry spans.
// Start opens a span, stop ends it; errors, events and scope changes are recorded on it.
package otelbridge

import (
	"context"

	"github.com/andrewh/obscheck/pkg/observation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/andrewh/obscheck"

// Span event names for scope signals.
const (
	EventScopeOpened = "observation.scope.opened"
	EventScopeReset  = "observation.scope.reset"
	EventScopeClosed = "observation.scope.closed"
)

type spanKey struct{}

// TracingHandler creates one span per observation.
type TracingHandler struct {
	observation.BaseHandler
	tracer trace.Tracer
}

// NewTracingHandler creates a TracingHandler backed by the given TracerProvider.
func NewTracingHandler(tp trace.TracerProvider) *TracingHandler {
	return &TracingHandler{tracer: tp.Tracer(instrumentationName)}
}

// SpanFromObservation returns the span started for obs, if any.
func SpanFromObservation(obs observation.Observation) (trace.Span, bool) {
	if obs == nil {
		return nil, false
	}
	span, ok := obs.Context().Get(spanKey{}).(trace.Span)
	return span, ok
}

// OnStart starts a span, parented to the parent observation's span when there is one.
func (h *TracingHandler) OnStart(ctx *observation.Context) error {
	parent := context.Background()
	if ps, ok := SpanFromObservation(ctx.Parent); ok {
		parent = trace.ContextWithSpan(parent, ps)
	}

	attrs := append(ctx.LowCardinality(), ctx.HighCardinality()...)
	attrs = append(attrs,
		attribute.String("observation.name", ctx.Name),
		attribute.String("observation.id", ctx.ID.String()),
	)
	_, span := h.tracer.Start(parent, ctx.DisplayName(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	ctx.Put(spanKey{}, span)
	return nil
}

// OnStop ends the span, copying key values added after start.
func (h *TracingHandler) OnStop(ctx *observation.Context) error {
	span, ok := ctx.Get(spanKey{}).(trace.Span)
	if !ok {
		return nil
	}
	span.SetAttributes(ctx.LowCardinality()...)
	span.SetAttributes(ctx.HighCardinality()...)
	span.End()
	return nil
}

// OnError records the context's error and marks the span as failed.
func (h *TracingHandler) OnError(ctx *observation.Context) error {
	span, ok := ctx.Get(spanKey{}).(trace.Span)
	if !ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return nil
}

func (h *TracingHandler) OnEvent(event observation.Event, ctx *observation.Context) error {
	h.addEvent(ctx, event.Name, event)
	return nil
}

func (h *TracingHandler) OnScopeOpened(ctx *observation.Context) error {
	h.addEvent(ctx, EventScopeOpened, observation.Event{})
	return nil
}

func (h *TracingHandler) OnScopeReset(ctx *observation.Context) error {
	h.addEvent(ctx, EventScopeReset, observation.Event{})
	return nil
}

func (h *TracingHandler) OnScopeClosed(ctx *observation.Context) error {
	h.addEvent(ctx, EventScopeClosed, observation.Event{})
	return nil
}

func (h *TracingHandler) addEvent(ctx *observation.Context, name string, event observation.Event) {
	span, ok := ctx.Get(spanKey{}).(trace.Span)
	if !ok {
		return
	}
	var opts []trace.EventOption
	if !event.Time.IsZero() {
		opts = append(opts, trace.WithTimestamp(event.Time))
	}
	if event.ContextualName != "" && event.ContextualName != event.Name {
		opts = append(opts, trace.WithAttributes(attribute.String("event.contextual_name", event.ContextualName)))
	}
	span.AddEvent(name, opts...)
}
