package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names, one per instrumented package
const (
	TracerAgent      = "conduit.agent"
	TracerGateway    = "conduit.llmgateway"
	TracerToolClient = "conduit.toolclient"
	TracerToolbox    = "conduit.toolexecutor"
	TracerFrontend   = "conduit.gateway"
)

// Options configures the process tracer provider
type Options struct {
	ServiceName    string
	ServiceVersion string
	// SampleRatio is the fraction of root spans kept, in [0, 1]
	SampleRatio float64
}

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// InitOpenTelemetry installs a process-wide tracer provider.
// A provider that is already installed is kept.
func InitOpenTelemetry(opts Options) error {
	mu.Lock()
	defer mu.Unlock()
	if provider != nil {
		return nil
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.ServiceVersion))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return err
	}

	ratio := opts.SampleRatio
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}
	provider = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return nil
}

// ShutdownOpenTelemetry flushes and removes the installed provider
func ShutdownOpenTelemetry(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span. When ctx has no trace id yet, the span's id is recorded.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	if sc := span.SpanContext(); sc.IsValid() && GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, sc.TraceID().String())
	}
	return ctx, span
}

// RecordError marks the span failed when err is non-nil
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
