// Package observability provides OpenTelemetry instrumentation for the
// validator: one span per validation plus RED metrics (rate, errors,
// duration). It uses the global providers unless others are supplied, so it
// is a no-op until the host process installs an SDK.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/bazodiac/bafe"

// Metric names.
const (
	MetricValidations = "bafe.validations.total"
	MetricErrors      = "bafe.validation.errors.total"
	MetricDuration    = "bafe.validation.duration"
	MetricActive      = "bafe.validations.active"
)

// Provider holds the tracer, meter and RED instruments.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger *slog.Logger

	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeOperations metric.Int64UpDownCounter
}

// Option configures a Provider.
type Option func(*options)

type options struct {
	tp      trace.TracerProvider
	mp      metric.MeterProvider
	version string
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// WithVersion sets the instrumentation version.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// New creates a provider.
func New(opts ...Option) (*Provider, error) {
	o := options{tp: otel.GetTracerProvider(), mp: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Provider{
		tracer: o.tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(o.version)),
		meter:  o.mp.Meter(instrumentationName, metric.WithInstrumentationVersion(o.version)),
		logger: slog.Default().With("component", "observability"),
	}
	if err := p.initREDMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init RED metrics: %w", err)
	}
	return p, nil
}

// Noop returns a provider backed by the global providers. It never fails
// against the default no-op globals.
func Noop() *Provider {
	p, err := New()
	if err != nil {
		return &Provider{
			tracer: otel.Tracer(instrumentationName),
			meter:  otel.Meter(instrumentationName),
			logger: slog.Default().With("component", "observability"),
		}
	}
	return p
}

func (p *Provider) initREDMetrics() error {
	var err error

	p.requestCounter, err = p.meter.Int64Counter(MetricValidations,
		metric.WithDescription("Validations completed, by compliance status"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return err
	}

	p.errorCounter, err = p.meter.Int64Counter(MetricErrors,
		metric.WithDescription("Validations that returned an error instead of a response"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	p.durationHist, err = p.meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Validation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	if err != nil {
		return err
	}

	p.activeOperations, err = p.meter.Int64UpDownCounter(MetricActive,
		metric.WithDescription("Validations in flight"),
		metric.WithUnit("{validation}"),
	)
	return err
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter { return p.meter }

// TrackValidation starts a span for one validation. The returned function
// must be called exactly once with the resulting compliance status ("" when
// none was produced) and error.
func (p *Provider) TrackValidation(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, func(status string, err error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "bafe.validate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	if p.activeOperations != nil {
		p.activeOperations.Add(ctx, 1)
	}

	return ctx, func(status string, err error) {
		if p.activeOperations != nil {
			p.activeOperations.Add(ctx, -1)
		}
		if p.durationHist != nil {
			p.durationHist.Record(ctx, time.Since(start).Seconds())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if p.errorCounter != nil {
				p.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("error.type", fmt.Sprintf("%T", err))))
			}
		} else {
			span.SetAttributes(attribute.String("bafe.compliance_status", status))
			if p.requestCounter != nil {
				p.requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("compliance_status", status)))
			}
		}
		span.End()
	}
}
