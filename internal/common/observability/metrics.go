package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

// Observability owns the otel meter and tracer providers of the process.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider shutdowner
	meter          otelmetric.Meter
	turnCounter    otelmetric.Int64Counter
	turnDuration   otelmetric.Float64Histogram
	tracer         tracer
}

type Options struct {
	ServiceName    string
	JaegerEndpoint string
	SampleRatio    float64
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	Logger     Logger
}

func New(opts Options) *Observability {
	o := &Observability{tracer: newTracer(opts)}
	if tp, ok := o.tracer.(shutdowner); ok {
		o.tracerProvider = tp
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		if opts.Logger != nil {
			opts.Logger.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err.Error()})
		}
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(opts.ServiceName)

	turnCounter, _ := meter.Int64Counter(
		"dialogue.turns",
		otelmetric.WithDescription("Number of dialogue turns processed"),
	)
	turnDuration, _ := meter.Float64Histogram(
		"dialogue.turn.duration",
		otelmetric.WithDescription("Dialogue turn processing duration"),
		otelmetric.WithUnit("ms"),
	)

	o.meterProvider = provider
	o.meter = meter
	o.turnCounter = turnCounter
	o.turnDuration = turnDuration
	return o
}

func (o *Observability) RecordTurn(ctx context.Context, kind string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("kind", kind))
	if o.turnCounter != nil {
		o.turnCounter.Add(ctx, 1, attrs)
	}
	if o.turnDuration != nil {
		o.turnDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
