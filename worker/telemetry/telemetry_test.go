package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/snow-ghost/dilemma/store"
)

func TestSnapshotTotals(t *testing.T) {
	tel := NewTelemetry(nil, "test")
	ctx := context.Background()

	tel.LogTestResults(ctx, "a", map[string]float64{"cases_total": 6, "cases_passed": 5, "cases_skipped": 1})
	tel.LogTestResults(ctx, "b", map[string]float64{"cases_total": 5, "cases_passed": 2})
	tel.LogCandidate(ctx, "a", "mutation", 2.5, true, "")
	tel.LogCandidate(ctx, "b", "llm", 1.0, false, "property checks failed")
	tel.LogTournamentEnd(ctx, &store.Tournament{ID: "t1"}, nil)
	tel.LogTournamentEnd(ctx, &store.Tournament{ID: "t2"}, errors.New("cancelled"))
	tel.LogSearchEnd(ctx, "tit_for_tat", "a", 2.0, 2.5, time.Second, 3)

	s := tel.Snapshot()
	assert.Equal(t, 2, s.Tournaments)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Searches)
	assert.Equal(t, 2, s.Candidates)
	assert.Equal(t, 1, s.Accepted)
	assert.InDelta(t, 0.7, s.TestPassRate, 1e-9)
}
