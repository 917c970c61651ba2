package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/snow-ghost/dilemma/match"
	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/pkg/observability"
	"github.com/snow-ghost/dilemma/store"
)

// Telemetry feeds worker events into the observability stack and keeps a
// few running totals for run summaries.
type Telemetry struct {
	mu sync.RWMutex

	obs     *observability.Manager
	logger  *logging.Logger
	service string

	tournaments int
	failed      int
	searches    int
	candidates  int
	accepted    int
	totalTests  int
	passedTests int
}

// Snapshot is a point-in-time copy of the running totals.
type Snapshot struct {
	Tournaments  int     `json:"tournaments"`
	Failed       int     `json:"failed"`
	Searches     int     `json:"searches"`
	Candidates   int     `json:"candidates"`
	Accepted     int     `json:"accepted"`
	TestPassRate float64 `json:"test_pass_rate"`
}

// NewTelemetry creates a telemetry instance; a nil manager gets a no-op one.
func NewTelemetry(obs *observability.Manager, service string) *Telemetry {
	if obs == nil {
		obs = observability.NewNop()
	}
	return &Telemetry{
		obs:     obs,
		logger:  obs.GetLogger().Named("worker"),
		service: service,
	}
}

// Observability returns the underlying manager
func (t *Telemetry) Observability() *observability.Manager {
	return t.obs
}

func (t *Telemetry) Logger() *logging.Logger {
	return t.logger
}

// LogTournamentStart logs the start of a tournament
func (t *Telemetry) LogTournamentStart(ctx context.Context, id string, players, matches int) {
	t.logger.Info("Tournament started",
		"tournament_id", id,
		"players", players,
		"matches", matches,
	)
}

// LogTournamentEnd records a finished (or failed) tournament.
func (t *Telemetry) LogTournamentEnd(ctx context.Context, tr *store.Tournament, err error) {
	t.mu.Lock()
	t.tournaments++
	if err != nil {
		t.failed++
	}
	t.mu.Unlock()

	t.obs.RecordTournament(ctx, tr.ID, len(tr.Players), tr.Matches, tr.Winner(), tr.Duration, err)
}

// LogMatch records one match result.
func (t *Telemetry) LogMatch(ctx context.Context, res match.Result, cached bool) {
	t.obs.RecordMatch(ctx, res, cached)
}

// LogTestResults logs property check results for a candidate
func (t *Telemetry) LogTestResults(ctx context.Context, name string, metrics map[string]float64) {
	t.mu.Lock()
	t.totalTests += int(metrics["cases_total"] - metrics["cases_skipped"])
	t.passedTests += int(metrics["cases_passed"])
	t.mu.Unlock()

	t.logger.Debug("Property checks finished",
		"candidate", name,
		"passed", metrics["cases_passed"],
		"failed", metrics["cases_failed"],
		"skipped", metrics["cases_skipped"],
	)
}

// LogCandidate records a candidate verdict.
func (t *Telemetry) LogCandidate(ctx context.Context, name, source string, score float64, accepted bool, reason string) {
	t.mu.Lock()
	t.candidates++
	if accepted {
		t.accepted++
	}
	t.mu.Unlock()

	t.obs.RecordCandidate(ctx, name, source, score, accepted, reason)
}

// LogIteration logs a search iteration
func (t *Telemetry) LogIteration(ctx context.Context, iteration int, best string, bestScore float64, candidates int) {
	t.logger.Debug("Search iteration",
		"iteration", iteration,
		"best", best,
		"best_score", bestScore,
		"candidates", candidates,
	)
}

// LogSearchEnd logs the outcome of a search
func (t *Telemetry) LogSearchEnd(ctx context.Context, baseline, best string, baselineScore, bestScore float64, duration time.Duration, iterations int) {
	t.mu.Lock()
	t.searches++
	t.mu.Unlock()

	t.obs.GetMetrics().RecordBestFitness(bestScore)
	t.logger.Info("Search finished",
		"baseline", baseline,
		"best", best,
		"baseline_score", baselineScore,
		"best_score", bestScore,
		"iterations", iterations,
		"duration_ms", duration.Milliseconds(),
	)
}

// Snapshot returns the running totals.
func (t *Telemetry) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Snapshot{
		Tournaments: t.tournaments,
		Failed:      t.failed,
		Searches:    t.searches,
		Candidates:  t.candidates,
		Accepted:    t.accepted,
	}
	if t.totalTests > 0 {
		s.TestPassRate = float64(t.passedTests) / float64(t.totalTests)
	}
	return s
}
