// Tests for MetricsHandler
// Uses the OTel SDK ManualReader to verify metric data points
package otelbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andrewh/obscheck/pkg/observation"
	"github.com/andrewh/obscheck/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func newTestMetrics(t *testing.T) (*MetricsHandler, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	h, err := NewMetricsHandler(mp)
	require.NoError(t, err)
	return h, reader
}

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestMetricsHandlerDurationAndCount(t *testing.T) {
	t.Parallel()

	h, reader := newTestMetrics(t)
	h.now = fakeClock(25 * time.Millisecond)
	reg := observation.NewRegistry(h)

	for range 2 {
		obs, err := observation.Start("db.query", reg,
			observation.WithLowCardinality(attribute.String("db.system", "sqlite")))
		require.NoError(t, err)
		require.NoError(t, obs.Stop())
	}

	rm := collectMetrics(t, reader)

	count := findMetric(rm, MetricCount)
	require.NotNil(t, count)
	sum, ok := count.Data.(metricdata.Sum[int64])
	require.True(t, ok, "count should be a Sum[int64]")
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	system, _ := sum.DataPoints[0].Attributes.Value("db.system")
	assert.Equal(t, "sqlite", system.AsString())
	status, _ := sum.DataPoints[0].Attributes.Value("error")
	assert.Equal(t, "none", status.AsString())

	duration := findMetric(rm, MetricDuration)
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "duration should be a Histogram[float64]")
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 50.0, hist.DataPoints[0].Sum, 0.001)
}

func TestMetricsHandlerErrorsAndEvents(t *testing.T) {
	t.Parallel()

	h, reader := newTestMetrics(t)
	reg := observation.NewRegistry(h)

	obs, err := observation.Start("job", reg)
	require.NoError(t, err)
	require.NoError(t, obs.Error(errors.New("boom")))
	require.NoError(t, obs.Error(errors.New("boom again")))
	require.NoError(t, obs.Event(observation.EventOf("retry")))
	require.NoError(t, obs.Stop())

	rm := collectMetrics(t, reader)

	errs := findMetric(rm, MetricErrors)
	require.NotNil(t, errs)
	errSum := errs.Data.(metricdata.Sum[int64])
	require.Len(t, errSum.DataPoints, 1)
	assert.Equal(t, int64(2), errSum.DataPoints[0].Value)

	events := findMetric(rm, MetricEvents)
	require.NotNil(t, events)
	evSum := events.Data.(metricdata.Sum[int64])
	require.Len(t, evSum.DataPoints, 1)
	assert.Equal(t, int64(1), evSum.DataPoints[0].Value)
	name, _ := evSum.DataPoints[0].Attributes.Value("event.name")
	assert.Equal(t, "retry", name.AsString())

	count := findMetric(rm, MetricCount)
	require.NotNil(t, count)
	status, _ := count.Data.(metricdata.Sum[int64]).DataPoints[0].Attributes.Value("error")
	assert.Equal(t, "*errors.errorString", status.AsString())
}

func TestMetricsHandlerActiveScopes(t *testing.T) {
	t.Parallel()

	h, reader := newTestMetrics(t)
	obs, err := observation.Start("job", observation.NewRegistry(h))
	require.NoError(t, err)

	first, err := obs.OpenScope()
	require.NoError(t, err)
	_, err = obs.OpenScope()
	require.NoError(t, err)
	require.NoError(t, first.Close())
	require.NoError(t, first.Close(), "a repeated close is relayed")

	rm := collectMetrics(t, reader)
	active := findMetric(rm, MetricActiveScopes)
	require.NotNil(t, active)
	sum, ok := active.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	assert.False(t, sum.IsMonotonic)
}

func TestMetricsHandlerIgnoresRejectedError(t *testing.T) {
	t.Parallel()

	h, reader := newTestMetrics(t)
	obs := observation.CreateNotStarted("job", observation.NewRegistry(validator.New(validator.WithCallSites(false)), h))
	require.ErrorIs(t, obs.Error(errors.New("early")), validator.ErrNotStarted)
	require.NoError(t, obs.Start())
	require.NoError(t, obs.Stop())

	rm := collectMetrics(t, reader)
	assert.Nil(t, findMetric(rm, MetricErrors))
	count := findMetric(rm, MetricCount)
	require.NotNil(t, count)
	status, _ := count.Data.(metricdata.Sum[int64]).DataPoints[0].Attributes.Value("error")
	assert.Equal(t, "none", status.AsString())
}

func TestMetricsHandlerStopWithoutStart(t *testing.T) {
	t.Parallel()

	h, reader := newTestMetrics(t)
	obs := observation.CreateNotStarted("job", observation.NewRegistry(h))
	require.NoError(t, obs.Stop())

	rm := collectMetrics(t, reader)
	assert.Nil(t, findMetric(rm, MetricCount))
}
