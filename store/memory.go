package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	tournaments map[string]*Tournament
	candidates  []Candidate
	mu          sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tournaments: make(map[string]*Tournament),
	}
}

// SaveTournament stores a copy of t, assigning an ID and timestamp when unset.
func (m *MemoryStore) SaveTournament(ctx context.Context, t *Tournament) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tournaments[t.ID] = cloneTournament(t)
	return nil
}

func (m *MemoryStore) GetTournament(ctx context.Context, id string) (*Tournament, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tournaments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTournament(t), nil
}

func (m *MemoryStore) ListTournaments(ctx context.Context, filter Filter) ([]*Tournament, error) {
	m.mu.RLock()
	var out []*Tournament
	for _, t := range m.tournaments {
		if filter.matches(t) {
			out = append(out, cloneTournament(t))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (m *MemoryStore) SaveCandidate(ctx context.Context, c Candidate) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append(m.candidates, c)
	return nil
}

func (m *MemoryStore) TopCandidates(ctx context.Context, baseline string, limit int) ([]Candidate, error) {
	m.mu.RLock()
	var out []Candidate
	for _, c := range m.candidates {
		if c.Accepted && (baseline == "" || c.Baseline == baseline) {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return page(out, 0, limit), nil
}

func (m *MemoryStore) ExportCSV(ctx context.Context, id string) ([]byte, error) {
	t, err := m.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	return exportCSV(t)
}

// Close closes the store
func (m *MemoryStore) Close() error {
	return nil
}

func cloneTournament(t *Tournament) *Tournament {
	c := *t
	c.Seeds = append([]uint64(nil), t.Seeds...)
	c.Players = append([]string(nil), t.Players...)
	c.Standings = append([]Standing(nil), t.Standings...)
	c.Results = nil
	return &c
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
