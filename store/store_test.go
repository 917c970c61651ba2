package store

import (
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "dilemma.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func sampleTournament(id string, at time.Time) *Tournament {
	return &Tournament{
		ID:          id,
		CreatedAt:   at,
		Rounds:      200,
		Noise:       0.05,
		Repetitions: 3,
		Seeds:       []uint64{1, 42},
		Players:     []string{"tit_for_tat", "always_defect"},
		Matches:     6,
		Duration:    1500 * time.Millisecond,
		Standings: []Standing{
			{Rank: 1, Name: "tit_for_tat", Matches: 6, Wins: 0, Draws: 3, Losses: 3, Total: 1200, Mean: 200, CooperationRate: 0.5},
			{Rank: 2, Name: "always_defect", Matches: 6, Wins: 3, Draws: 3, Total: 1100, Mean: 183.3, Transitions: 0},
		},
	}
}

func TestStore_TournamentRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, s.SaveTournament(ctx, sampleTournament("t1", at)))

			got, err := s.GetTournament(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, "tit_for_tat", got.Winner())
			assert.Equal(t, []uint64{1, 42}, got.Seeds)
			assert.Equal(t, []string{"tit_for_tat", "always_defect"}, got.Players)
			assert.Equal(t, 1500*time.Millisecond, got.Duration)
			assert.True(t, got.CreatedAt.Equal(at))
			require.Len(t, got.Standings, 2)

			st, ok := got.Standing("always_defect")
			require.True(t, ok)
			assert.Equal(t, 3, st.Wins)
			assert.InDelta(t, 183.3, st.Mean, 1e-9)

			_, err = s.GetTournament(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_SaveAssignsID(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			tr := sampleTournament("", time.Time{})
			require.NoError(t, s.SaveTournament(ctx, tr))
			assert.NotEmpty(t, tr.ID)
			assert.False(t, tr.CreatedAt.IsZero())

			_, err := s.GetTournament(ctx, tr.ID)
			require.NoError(t, err)
		})
	}
}

func TestStore_ListTournaments(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"a", "b", "c"} {
				require.NoError(t, s.SaveTournament(ctx, sampleTournament(id, base.Add(time.Duration(i)*time.Hour))))
			}

			all, err := s.ListTournaments(ctx, Filter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "c", all[0].ID)
			assert.Len(t, all[0].Standings, 2)

			from := base.Add(30 * time.Minute)
			recent, err := s.ListTournaments(ctx, Filter{From: &from, Limit: 1})
			require.NoError(t, err)
			require.Len(t, recent, 1)
			assert.Equal(t, "c", recent[0].ID)

			skipped, err := s.ListTournaments(ctx, Filter{Offset: 2})
			require.NoError(t, err)
			require.Len(t, skipped, 1)
			assert.Equal(t, "a", skipped[0].ID)
		})
	}
}

func TestStore_TopCandidates(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			cands := []Candidate{
				{Name: "tft~forgiving", Baseline: "tit_for_tat", Source: "llm:mock", Score: 2.9, Accepted: true, Config: "name: tft~forgiving\n"},
				{Name: "tft~prober", Baseline: "tit_for_tat", Source: "mutate", Score: 3.1, Accepted: true},
				{Name: "tft~broken", Baseline: "tit_for_tat", Source: "mutate", Score: 9, Accepted: false, Reason: "some property checks failed"},
				{Name: "pavlov~strict", Baseline: "pavlov", Source: "mutate", Score: 2.0, Accepted: true},
			}
			for _, c := range cands {
				require.NoError(t, s.SaveCandidate(ctx, c))
			}

			top, err := s.TopCandidates(ctx, "tit_for_tat", 10)
			require.NoError(t, err)
			require.Len(t, top, 2)
			assert.Equal(t, "tft~prober", top[0].Name)
			assert.Equal(t, "name: tft~forgiving\n", top[1].Config)

			all, err := s.TopCandidates(ctx, "", 1)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "tft~prober", all[0].Name)
		})
	}
}

func TestStore_ExportCSV(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveTournament(ctx, sampleTournament("csv", time.Now())))

			data, err := s.ExportCSV(ctx, "csv")
			require.NoError(t, err)
			records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, "Rank", records[0][1])
			assert.Equal(t, []string{"csv", "1", "tit_for_tat"}, records[1][:3])

			_, err = s.ExportCSV(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Config{Driver: "sqlite"})
	assert.Error(t, err)
	_, err = Open(Config{Driver: "postgres"})
	assert.Error(t, err)
}
