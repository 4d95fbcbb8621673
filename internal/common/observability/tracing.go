package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type tracer interface {
	Tracer(name string, opts ...trace.TracerOption) trace.Tracer
}

// newTracer exports spans to Jaeger when an endpoint is configured and
// falls back to a no-op provider otherwise.
func newTracer(opts Options) tracer {
	if opts.JaegerEndpoint == "" {
		return noop.NewTracerProvider()
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.JaegerEndpoint)))
	if err != nil {
		if opts.Logger != nil {
			opts.Logger.Warn("Failed to create Jaeger exporter", map[string]interface{}{"error": err.Error()})
		}
		return noop.NewTracerProvider()
	}

	ratio := opts.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// StartSpan starts a span named after a dialogue stage.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Tracer("dialog-manager").Start(ctx, name, trace.WithAttributes(attrs...))
}
