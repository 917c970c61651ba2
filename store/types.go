// Package store persists tournament standings and search candidates.
package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snow-ghost/dilemma/match"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Standing is one player's aggregate over a tournament.
type Standing struct {
	Rank            int     `json:"rank"`
	Name            string  `json:"name"`
	Matches         int     `json:"matches"`
	Wins            int     `json:"wins"`
	Draws           int     `json:"draws"`
	Losses          int     `json:"losses"`
	Total           float64 `json:"total"`
	Mean            float64 `json:"mean"`
	CooperationRate float64 `json:"cooperation_rate"`
	Transitions     int     `json:"transitions"`
}

// Tournament is the record of one round robin run. Results are kept in
// memory only when requested and are never persisted.
type Tournament struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Rounds      int            `json:"rounds"`
	Noise       float64        `json:"noise"`
	Repetitions int            `json:"repetitions"`
	Seeds       []uint64       `json:"seeds"`
	Players     []string       `json:"players"`
	Matches     int            `json:"matches"`
	Cached      int            `json:"cached"`
	Duration    time.Duration  `json:"duration"`
	Standings   []Standing     `json:"standings"`
	Results     []match.Result `json:"results,omitempty"`
}

// Winner returns the top ranked player, or "" for an empty tournament.
func (t *Tournament) Winner() string {
	if len(t.Standings) == 0 {
		return ""
	}
	return t.Standings[0].Name
}

// Standing returns the named player's standing.
func (t *Tournament) Standing(name string) (Standing, bool) {
	for _, s := range t.Standings {
		if s.Name == name {
			return s, true
		}
	}
	return Standing{}, false
}

// Candidate is one evaluated search candidate.
type Candidate struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	Baseline  string    `json:"baseline"`
	Source    string    `json:"source"`
	Score     float64   `json:"score"`
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason,omitempty"`
	// Config is the candidate's YAML document.
	Config string `json:"config,omitempty"`
}

// Filter narrows ListTournaments.
type Filter struct {
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

func (f Filter) matches(t *Tournament) bool {
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && t.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// Store is the persistence port.
type Store interface {
	SaveTournament(ctx context.Context, t *Tournament) error
	GetTournament(ctx context.Context, id string) (*Tournament, error)
	// ListTournaments returns the newest tournaments first.
	ListTournaments(ctx context.Context, filter Filter) ([]*Tournament, error)
	SaveCandidate(ctx context.Context, c Candidate) error
	// TopCandidates returns accepted candidates by descending score. An empty
	// baseline matches every baseline.
	TopCandidates(ctx context.Context, baseline string, limit int) ([]Candidate, error)
	// ExportCSV renders a tournament's standings as CSV.
	ExportCSV(ctx context.Context, id string) ([]byte, error)
	Close() error
}

// exportCSV exports standings as CSV
func exportCSV(t *Tournament) ([]byte, error) {
	var buf strings.Builder
	writer := csv.NewWriter(&buf)

	header := []string{
		"Tournament", "Rank", "Name", "Matches", "Wins", "Draws", "Losses",
		"Total", "Mean", "Cooperation Rate", "Transitions",
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, s := range t.Standings {
		row := []string{
			t.ID,
			fmt.Sprintf("%d", s.Rank),
			s.Name,
			fmt.Sprintf("%d", s.Matches),
			fmt.Sprintf("%d", s.Wins),
			fmt.Sprintf("%d", s.Draws),
			fmt.Sprintf("%d", s.Losses),
			fmt.Sprintf("%.3f", s.Total),
			fmt.Sprintf("%.4f", s.Mean),
			fmt.Sprintf("%.4f", s.CooperationRate),
			fmt.Sprintf("%d", s.Transitions),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return []byte(buf.String()), writer.Error()
}
