package observability

import (
	"context"
	"time"

	"github.com/snow-ghost/dilemma/match"
	"github.com/snow-ghost/dilemma/pkg/cache"
	"github.com/snow-ghost/dilemma/pkg/limiter"
	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/pkg/metrics"
	"github.com/snow-ghost/dilemma/pkg/tracing"
	"go.opentelemetry.io/otel/trace"
)

// Manager manages all observability components
type Manager struct {
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
	logger  *logging.Logger
}

// Config holds observability configuration
type Config struct {
	ServiceName    string         `yaml:"service_name"`
	ServiceVersion string         `yaml:"service_version"`
	Environment    string         `yaml:"environment"`
	JaegerEndpoint string         `yaml:"jaeger_endpoint"`
	Logging        logging.Config `yaml:"logging"`
}

// NewManager creates a new observability manager
func NewManager(config Config) (*Manager, error) {
	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		JaegerEndpoint: config.JaegerEndpoint,
		Environment:    config.Environment,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(config.Logging)
	if err != nil {
		return nil, err
	}

	return New(metrics.NewPrometheusMetrics(), tracer, logger.Named(config.ServiceName)), nil
}

// New assembles a manager from parts; nil parts get no-op defaults.
func New(m *metrics.PrometheusMetrics, t *tracing.Tracer, l *logging.Logger) *Manager {
	if m == nil {
		m = metrics.NewPrometheusMetrics()
	}
	if t == nil {
		t = tracing.NewNoop()
	}
	if l == nil {
		l = logging.NewNop()
	}
	return &Manager{metrics: m, tracer: t, logger: l}
}

// NewNop returns a manager that logs and traces nothing.
func NewNop() *Manager { return New(nil, nil, nil) }

// GetMetrics returns the metrics instance
func (m *Manager) GetMetrics() *metrics.PrometheusMetrics {
	return m.metrics
}

// GetTracer returns the tracer instance
func (m *Manager) GetTracer() *tracing.Tracer {
	return m.tracer
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() *logging.Logger {
	return m.logger
}

// StartMatchSpan starts a span for a match
func (m *Manager) StartMatchSpan(ctx context.Context, a, b string, seed uint64) (context.Context, trace.Span) {
	return m.tracer.StartMatchSpan(ctx, a, b, seed)
}

// RecordMatch records metrics and a debug log line for a finished match.
// Mode breakdowns are only counted for played matches.
func (m *Manager) RecordMatch(ctx context.Context, res match.Result, cached bool) {
	m.metrics.RecordMatch(cached, res.Duration)
	if cached {
		return
	}
	names := [2]string{res.A, res.B}
	for i, name := range names {
		for mode, n := range res.ModeRounds[i] {
			m.metrics.RecordModeRounds(name, string(mode), n)
		}
		m.metrics.RecordTransitions(name, res.Transitions[i])
	}
	m.logger.LogMatch(ctx, res.ID, res.A, res.B, res.Scores[0], res.Scores[1], res.Duration)
}

// RecordTournament records a finished tournament
func (m *Manager) RecordTournament(ctx context.Context, id string, players, matches int, winner string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.logger.Error("tournament failed", "tournament_id", id, "error", err)
	} else {
		m.logger.LogTournament(ctx, id, players, matches, winner, duration)
	}
	m.metrics.RecordTournament(status, duration)
}

// RecordCandidate records a search candidate outcome
func (m *Manager) RecordCandidate(ctx context.Context, name, source string, score float64, accepted bool, reason string) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.metrics.RecordCandidate(source, outcome)
	m.logger.LogCandidate(ctx, name, source, score, accepted, reason)
}

// RecordDecide records a decision request
func (m *Manager) RecordDecide(strategy, status string, duration time.Duration) {
	m.metrics.RecordDecide(strategy, status, duration)
}

// CacheHook returns a lookup hook feeding cache metrics and debug logs.
func (m *Manager) CacheHook() cache.LookupHook {
	return func(ctx context.Context, key cache.CacheKey, hit bool) {
		if hit {
			m.metrics.RecordCacheHit()
		} else {
			m.metrics.RecordCacheMiss()
		}
		m.logger.LogCacheOperation(ctx, "match", hit, string(key))
	}
}

// Instrument wires retry and breaker events of p into metrics.
func (m *Manager) Instrument(p *limiter.Protector) {
	p.OnRetry(m.metrics.RecordRetry)
	p.Breakers().OnStateChange(func(name, _, to string) {
		m.metrics.RecordCircuitState(name, to)
	})
}

// Shutdown shuts down all observability components
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.tracer.Shutdown(ctx); err != nil {
		return err
	}
	// stdout/stderr sync fails on some terminals; nothing to do about it
	_ = m.logger.Sync()
	return nil
}

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	callerKey    ctxKey = "caller"
)

// GetRequestIDFromContext extracts request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithCaller adds caller to context
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetCallerFromContext extracts caller from context
func GetCallerFromContext(ctx context.Context) string {
	if caller, ok := ctx.Value(callerKey).(string); ok {
		return caller
	}
	return "unknown"
}
