// Package telemetry wires OpenTelemetry tracing and metrics the way the
// rest of the pack does: an OTLP gRPC exporter behind an Init function
// that degrades to a no-op shutdown when it can't dial a collector.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// Instruments holds the counters and histograms the tag advancement
// loop and dispatch path record against.
type Instruments struct {
	ReactionsDispatched metric.Int64Counter
	DeadlineMisses      metric.Int64Counter
	STPViolations       metric.Int64Counter
	TagsAdvanced        metric.Int64Counter
	TagLatency          metric.Float64Histogram
	WorkerQueueDepth    metric.Int64Counter
}

func endpoint() string {
	if e := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); e != "" {
		return e
	}
	return "localhost:4317"
}

// InitTracer configures a global tracer provider with an OTLP gRPC
// exporter, returning a shutdown func. Exporter dial failure is
// non-fatal: the engine runs standalone without a collector.
func InitTracer(ctx context.Context, service string) func(context.Context) error {
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint()),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel trace exporter init failed", "error", err)
		return func(context.Context) error { return nil }
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	slog.Info("otel tracer initialized", "endpoint", endpoint())
	return tp.Shutdown
}

// InitMetrics configures a global meter provider with an OTLP gRPC
// exporter and returns the common Instruments plus a shutdown func.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, instr *Instruments) {
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(dialCtx,
		otlpmetricgrpc.WithEndpoint(endpoint()),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel metric exporter init failed", "error", err)
		return func(context.Context) error { return nil }, newInstruments()
	}

	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("otel metrics initialized", "endpoint", endpoint())
	return mp.Shutdown, newInstruments()
}

func newInstruments() *Instruments {
	meter := otel.Meter("reactorcore/engine")
	dispatched, _ := meter.Int64Counter("reactorcore_reactions_dispatched_total")
	deadlines, _ := meter.Int64Counter("reactorcore_deadline_misses_total")
	stp, _ := meter.Int64Counter("reactorcore_stp_violations_total")
	tags, _ := meter.Int64Counter("reactorcore_tags_advanced_total")
	latency, _ := meter.Float64Histogram("reactorcore_tag_latency_ms")
	depth, _ := meter.Int64Counter("reactorcore_worker_queue_depth_total")
	return &Instruments{
		ReactionsDispatched: dispatched,
		DeadlineMisses:      deadlines,
		STPViolations:       stp,
		TagsAdvanced:        tags,
		TagLatency:          latency,
		WorkerQueueDepth:    depth,
	}
}

// Flush runs shutdown with a bounded timeout, for graceful exit.
func Flush(ctx context.Context, shutdown func(context.Context) error) {
	fctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = shutdown(fctx)
}
