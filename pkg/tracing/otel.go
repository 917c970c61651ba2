package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracer
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Config holds tracing configuration
type Config struct {
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	JaegerEndpoint string  `yaml:"jaeger_endpoint"`
	Environment    string  `yaml:"environment"`
	SampleRatio    float64 `yaml:"sample_ratio"`
}

// NewTracer creates a Jaeger-backed tracer, or a no-op tracer when no
// endpoint is configured.
func NewTracer(config Config) (*Tracer, error) {
	if config.JaegerEndpoint == "" {
		return NewNoop(), nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if config.SampleRatio > 0 && config.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := NewWithProvider(tp, config.ServiceName)
	t.provider = tp
	return t, nil
}

// NewNoop returns a tracer that records nothing.
func NewNoop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("dilemma")}
}

// NewWithProvider builds a tracer on an existing provider. Shutdown is the
// caller's business.
func NewWithProvider(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

// StartSpan starts a new span
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartTournamentSpan starts a span covering a whole tournament
func (t *Tracer) StartTournamentSpan(ctx context.Context, id string, players, matches int) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "tournament", trace.WithAttributes(
		attribute.String("tournament.id", id),
		attribute.Int("tournament.players", players),
		attribute.Int("tournament.matches", matches),
	))
}

// StartMatchSpan starts a span for one match
func (t *Tracer) StartMatchSpan(ctx context.Context, a, b string, seed uint64) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "match", trace.WithAttributes(
		attribute.String("match.a", a),
		attribute.String("match.b", b),
		attribute.Int64("match.seed", int64(seed)),
	))
}

// StartSearchSpan starts a span for a config search
func (t *Tracer) StartSearchSpan(ctx context.Context, baseline string, iterations int) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "search", trace.WithAttributes(
		attribute.String("search.baseline", baseline),
		attribute.Int("search.iterations", iterations),
	))
}

// StartCandidateSpan starts a span for evaluating one candidate
func (t *Tracer) StartCandidateSpan(ctx context.Context, name, source string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "search.candidate", trace.WithAttributes(
		attribute.String("candidate.name", name),
		attribute.String("candidate.source", source),
	))
}

// StartDecideSpan starts a span for a decision request
func (t *Tracer) StartDecideSpan(ctx context.Context, session, strategy string, round int) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "decide", trace.WithAttributes(
		attribute.String("decide.session", session),
		attribute.String("decide.strategy", strategy),
		attribute.Int("decide.round", round),
	))
}

// AddSpanAttributes adds attributes to a span
func AddSpanAttributes(span trace.Span, attrs map[string]interface{}) {
	for key, value := range attrs {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		case []string:
			span.SetAttributes(attribute.StringSlice(key, v))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
}

// RecordSpanError records an error in a span
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSpanSuccess records success in a span
func RecordSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// RecordSpanDuration records duration in a span
func RecordSpanDuration(span trace.Span, duration time.Duration) {
	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Nanoseconds())/1e6))
}

// RecordSpanScores records a match outcome in a span
func RecordSpanScores(span trace.Span, scoreA, scoreB float64) {
	span.SetAttributes(
		attribute.Float64("score.a", scoreA),
		attribute.Float64("score.b", scoreB),
	)
}

// Shutdown flushes and stops the provider this tracer created, if any.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// GetTraceID extracts trace ID from context
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID extracts span ID from context
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasSpanID() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
