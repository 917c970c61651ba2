package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds all Prometheus metrics. Each instance owns its
// registry so tests and multiple servers in one process do not collide.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Match metrics
	MatchesTotal  *prometheus.CounterVec
	MatchDuration prometheus.Histogram
	ModeRounds    *prometheus.CounterVec
	Transitions   *prometheus.CounterVec

	// Tournament metrics
	TournamentsTotal   *prometheus.CounterVec
	TournamentDuration prometheus.Histogram

	// Search metrics
	CandidatesTotal *prometheus.CounterVec
	BestFitness     prometheus.Gauge

	// Decision service metrics
	DecideRequestsTotal *prometheus.CounterVec
	DecideLatency       prometheus.Histogram
	SessionsActive      prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Retry metrics
	RetriesTotal *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitStateTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		MatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilemma_matches_total",
				Help: "Total number of matches played or served from cache",
			},
			[]string{"source"},
		),

		MatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dilemma_match_duration_seconds",
				Help:    "Wall time of a played match",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),

		ModeRounds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilemma_mode_rounds_total",
				Help: "Rounds decided per strategy and active mode",
			},
			[]string{"strategy", "mode"},
		),

		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilemma_mode_transitions_total",
				Help: "Mode transitions per strategy",
			},
			[]string{"strategy"},
		),

		TournamentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilemma_tournaments_total",
				Help: "Total number of tournaments run",
			},
			[]string{"status"},
		),

		TournamentDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dilemma_tournament_duration_seconds",
				Help:    "Wall time of a tournament",
				Buckets: prometheus.DefBuckets,
			},
		),

		CandidatesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilemma_search_candidates_total",
				Help: "Candidates evaluated by the search loop",
			},
			[]string{"source", "outcome"},
		),

		BestFitness: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "dilemma_search_best_fitness",
				Help: "Fitness of the best candidate found by the last search",
			},
		),

		DecideRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilemma_decide_requests_total",
				Help: "Decision requests served",
			},
			[]string{"strategy", "status"},
		),

		DecideLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dilemma_decide_latency_seconds",
				Help:    "Decision request latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
		),

		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "dilemma_sessions_active",
				Help: "Match sessions held by the decision service",
			},
		),

		CacheHitsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dilemma_cache_hits_total",
				Help: "Total number of match cache hits",
			},
		),

		CacheMissesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dilemma_cache_misses_total",
				Help: "Total number of match cache misses",
			},
		),

		RetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilemma_retries_total",
				Help: "Total number of retried remote calls",
			},
			[]string{"target"},
		),

		CircuitStateTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilemma_circuit_state_changes_total",
				Help: "Circuit breaker state changes by target and new state",
			},
			[]string{"target", "state"},
		),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *PrometheusMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordMatch records a match; cached matches carry no duration.
func (m *PrometheusMetrics) RecordMatch(cached bool, duration time.Duration) {
	if cached {
		m.MatchesTotal.WithLabelValues("cache").Inc()
		return
	}
	m.MatchesTotal.WithLabelValues("played").Inc()
	m.MatchDuration.Observe(duration.Seconds())
}

// RecordModeRounds adds rounds spent in a mode.
func (m *PrometheusMetrics) RecordModeRounds(strategy, mode string, rounds int) {
	m.ModeRounds.WithLabelValues(strategy, mode).Add(float64(rounds))
}

// RecordTransitions adds mode transitions for a strategy.
func (m *PrometheusMetrics) RecordTransitions(strategy string, n int) {
	m.Transitions.WithLabelValues(strategy).Add(float64(n))
}

// RecordTournament records a finished tournament
func (m *PrometheusMetrics) RecordTournament(status string, duration time.Duration) {
	m.TournamentsTotal.WithLabelValues(status).Inc()
	m.TournamentDuration.Observe(duration.Seconds())
}

// RecordCandidate records a search candidate outcome
func (m *PrometheusMetrics) RecordCandidate(source, outcome string) {
	m.CandidatesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordBestFitness sets the best fitness of the last search.
func (m *PrometheusMetrics) RecordBestFitness(score float64) {
	m.BestFitness.Set(score)
}

// SetActiveSessions sets the number of open decision sessions.
func (m *PrometheusMetrics) SetActiveSessions(n int) {
	m.SessionsActive.Set(float64(n))
}

// RecordDecide records a decision request
func (m *PrometheusMetrics) RecordDecide(strategy, status string, duration time.Duration) {
	m.DecideRequestsTotal.WithLabelValues(strategy, status).Inc()
	m.DecideLatency.Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit
func (m *PrometheusMetrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func (m *PrometheusMetrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

// RecordRetry records a retry metric
func (m *PrometheusMetrics) RecordRetry(target string) {
	m.RetriesTotal.WithLabelValues(target).Inc()
}

// RecordCircuitState records a circuit breaker state change
func (m *PrometheusMetrics) RecordCircuitState(target, state string) {
	m.CircuitStateTotal.WithLabelValues(target, state).Inc()
}
