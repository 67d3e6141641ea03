// MetricsHandler derives duration, count, error and event metrics from observations.
// Uses the OTel Metrics API with the observation name and low cardinality key values as attributes.
package otelbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andrewh/obscheck/pkg/observation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names recorded by MetricsHandler.
const (
	MetricDuration     = "observation.duration"
	MetricCount        = "observation.count"
	MetricErrors       = "observation.error.count"
	MetricEvents       = "observation.event.count"
	MetricActiveScopes = "observation.scope.active"
)

type (
	startKey  struct{}
	scopesKey struct{}
)

// reportedScopes is the open scope count last added to the active scopes counter.
type reportedScopes struct {
	mu sync.Mutex
	n  int
}

// MetricsHandler records metrics for each observation.
type MetricsHandler struct {
	observation.BaseHandler
	duration metric.Float64Histogram
	count    metric.Int64Counter
	errors   metric.Int64Counter
	events   metric.Int64Counter
	scopes   metric.Int64UpDownCounter
	now      func() time.Time
}

// NewMetricsHandler creates a MetricsHandler backed by the given MeterProvider.
func NewMetricsHandler(mp metric.MeterProvider) (*MetricsHandler, error) {
	meter := mp.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(MetricDuration,
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of stopped observations in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	count, err := meter.Int64Counter(MetricCount,
		metric.WithDescription("Number of stopped observations"),
	)
	if err != nil {
		return nil, err
	}

	errors, err := meter.Int64Counter(MetricErrors,
		metric.WithDescription("Number of error signals"),
	)
	if err != nil {
		return nil, err
	}

	events, err := meter.Int64Counter(MetricEvents,
		metric.WithDescription("Number of event signals"),
	)
	if err != nil {
		return nil, err
	}

	scopes, err := meter.Int64UpDownCounter(MetricActiveScopes,
		metric.WithDescription("Number of currently open observation scopes"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		duration: duration,
		count:    count,
		errors:   errors,
		events:   events,
		scopes:   scopes,
		now:      time.Now,
	}, nil
}

func (h *MetricsHandler) OnStart(ctx *observation.Context) error {
	ctx.Put(startKey{}, h.now())
	return nil
}

// OnStop records duration and count, tagged with the error type if one was signalled.
func (h *MetricsHandler) OnStop(ctx *observation.Context) error {
	started, ok := ctx.Get(startKey{}).(time.Time)
	if !ok {
		return nil
	}
	status := "none"
	if err := ctx.Err(); err != nil {
		status = errorType(err)
	}
	attrs := metric.WithAttributes(append(baseAttrs(ctx), attribute.String("error", status))...)
	h.count.Add(context.Background(), 1, attrs)
	h.duration.Record(context.Background(), float64(h.now().Sub(started))/float64(time.Millisecond), attrs)
	return nil
}

func (h *MetricsHandler) OnError(ctx *observation.Context) error {
	attrs := append(baseAttrs(ctx), attribute.String("error", errorType(ctx.Err())))
	h.errors.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	return nil
}

func (h *MetricsHandler) OnEvent(event observation.Event, ctx *observation.Context) error {
	attrs := append(baseAttrs(ctx), attribute.String("event.name", event.Name))
	h.events.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	return nil
}

func (h *MetricsHandler) OnScopeOpened(ctx *observation.Context) error {
	h.syncScopes(ctx)
	return nil
}

// OnScopeClosed lowers the active count only for the first close of a scope.
func (h *MetricsHandler) OnScopeClosed(ctx *observation.Context) error {
	h.syncScopes(ctx)
	return nil
}

func (h *MetricsHandler) syncScopes(ctx *observation.Context) {
	r := ctx.GetOrPut(scopesKey{}, func() any { return &reportedScopes{} }).(*reportedScopes)
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := ctx.OpenScopes()
	if delta := cur - r.n; delta != 0 {
		h.scopes.Add(context.Background(), int64(delta), metric.WithAttributes(baseAttrs(ctx)...))
	}
	r.n = cur
}

func baseAttrs(ctx *observation.Context) []attribute.KeyValue {
	return append(ctx.LowCardinality(), attribute.String("observation.name", ctx.Name))
}

// errorType names the dynamic type of err, e.g. "*fs.PathError".
func errorType(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
