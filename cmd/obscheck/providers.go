// Telemetry for replay runs: where validated signals are exported and how the providers are torn down
// A run exports to one target, either a writer (JSON) or an OTLP collector over http/protobuf or grpc
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	flushTimeout = 5 * time.Second
	dialTimeout  = 2 * time.Second
)

// Signal names accepted by --signals.
const (
	signalTraces  = "traces"
	signalMetrics = "metrics"
	signalLogs    = "logs"
)

var knownSignals = []string{signalTraces, signalMetrics, signalLogs}

// collectorPorts are the OTLP default ports per protocol.
var collectorPorts = map[string]string{
	"http/protobuf": "4318",
	"grpc":          "4317",
}

func validateProtocol(p string) error {
	if _, ok := collectorPorts[p]; !ok {
		return fmt.Errorf("unsupported protocol %q, supported: http/protobuf, grpc", p)
	}
	return nil
}

// signalSet is the set of signals a run exports.
type signalSet map[string]bool

func parseSignals(s string) (signalSet, error) {
	set := signalSet{}
	for name := range strings.SplitSeq(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !slices.Contains(knownSignals, name) {
			return nil, fmt.Errorf("unknown signal %q, valid signals: %s", name, strings.Join(knownSignals, ", "))
		}
		set[name] = true
	}
	return set, nil
}

// exportTarget says where a run's signals go. A non-nil out prints them as JSON.
type exportTarget struct {
	out      io.Writer
	grpc     bool
	endpoint string
}

func newExportTarget(s settings, out io.Writer) exportTarget {
	t := exportTarget{grpc: s.Protocol == "grpc", endpoint: s.Endpoint}
	if s.Stdout {
		t.out = out
	}
	return t
}

// collectorAddr is the host:port dialled for the collector, defaulting the port by protocol.
func (t exportTarget) collectorAddr() string {
	port := collectorPorts["http/protobuf"]
	if t.grpc {
		port = collectorPorts["grpc"]
	}
	switch {
	case t.endpoint == "":
		return net.JoinHostPort("localhost", port)
	case hasPort(t.endpoint):
		return t.endpoint
	default:
		return net.JoinHostPort(t.endpoint, port)
	}
}

func hasPort(addr string) bool {
	_, _, err := net.SplitHostPort(addr)
	return err == nil
}

// reachCollector fails fast with usage hints when no collector is listening.
func (t exportTarget) reachCollector(scriptPath string) error {
	addr := t.collectorAddr()
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("cannot reach OTLP collector at %s\n\n"+
			"To print the replayed signals as JSON instead, add --stdout:\n"+
			"  obscheck run --stdout --signals traces %s\n\n"+
			"To replay against another collector, set --endpoint:\n"+
			"  obscheck run --endpoint collector.example.com:4318 --signals traces %s", addr, scriptPath, scriptPath)
	}
	return conn.Close()
}

func (t exportTarget) spanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch {
	case t.out != nil:
		return stdouttrace.New(stdouttrace.WithWriter(t.out))
	case t.grpc && t.endpoint != "":
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(t.endpoint), otlptracegrpc.WithInsecure())
	case t.grpc:
		return otlptracegrpc.New(ctx)
	case t.endpoint != "":
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(t.endpoint), otlptracehttp.WithInsecure())
	default:
		return otlptracehttp.New(ctx)
	}
}

func (t exportTarget) metricExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	switch {
	case t.out != nil:
		return stdoutmetric.New(stdoutmetric.WithWriter(t.out))
	case t.grpc && t.endpoint != "":
		return otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(t.endpoint), otlpmetricgrpc.WithInsecure())
	case t.grpc:
		return otlpmetricgrpc.New(ctx)
	case t.endpoint != "":
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(t.endpoint), otlpmetrichttp.WithInsecure())
	default:
		return otlpmetrichttp.New(ctx)
	}
}

func (t exportTarget) logExporter(ctx context.Context) (sdklog.Exporter, error) {
	switch {
	case t.out != nil:
		return stdoutlog.New(stdoutlog.WithWriter(t.out))
	case t.grpc && t.endpoint != "":
		return otlploggrpc.New(ctx, otlploggrpc.WithEndpoint(t.endpoint), otlploggrpc.WithInsecure())
	case t.grpc:
		return otlploggrpc.New(ctx)
	case t.endpoint != "":
		return otlploghttp.New(ctx, otlploghttp.WithEndpoint(t.endpoint), otlploghttp.WithInsecure())
	default:
		return otlploghttp.New(ctx)
	}
}

// telemetry holds a provider per exported signal. Providers for other signals are nil,
// so the registry gets only the handlers that have somewhere to send their data.
type telemetry struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	logger *sdklog.LoggerProvider
}

func checkerResource() (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", "obscheck"),
		attribute.String("obscheck.version", version),
	))
}

// newTelemetry builds providers for the signals in enabled. Printed signals are
// exported synchronously so they appear next to the step that produced them.
func newTelemetry(ctx context.Context, target exportTarget, enabled signalSet) (*telemetry, error) {
	res, err := checkerResource()
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	printed := target.out != nil
	tel := &telemetry{}

	if enabled[signalTraces] {
		exp, err := target.spanExporter(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		sp := sdktrace.NewBatchSpanProcessor(exp)
		if printed {
			sp = sdktrace.NewSimpleSpanProcessor(exp)
		}
		tel.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sp), sdktrace.WithResource(res))
	}

	if enabled[signalMetrics] {
		exp, err := target.metricExporter(ctx)
		if err != nil {
			tel.close()
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		tel.meter = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
			sdkmetric.WithResource(res),
		)
	}

	if enabled[signalLogs] {
		exp, err := target.logExporter(ctx)
		if err != nil {
			tel.close()
			return nil, fmt.Errorf("creating log exporter: %w", err)
		}
		var proc sdklog.Processor = sdklog.NewBatchProcessor(exp)
		if printed {
			proc = sdklog.NewSimpleProcessor(exp)
		}
		tel.logger = sdklog.NewLoggerProvider(sdklog.WithProcessor(proc), sdklog.WithResource(res))
	}

	return tel, nil
}

// close flushes every provider in parallel and reports failures on stderr.
func (t *telemetry) close() {
	var providers []interface{ Shutdown(context.Context) error }
	if t.tracer != nil {
		providers = append(providers, t.tracer)
	}
	if t.meter != nil {
		providers = append(providers, t.meter)
	}
	if t.logger != nil {
		providers = append(providers, t.logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, p := range providers {
		wg.Go(func() {
			if err := p.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(os.Stderr, "error flushing telemetry: %v\n", err)
	}
}
