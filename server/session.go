package server

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/match"
	"github.com/snow-ghost/dilemma/rng"
	"github.com/snow-ghost/dilemma/server/api"
)

// session is one match a hosted strategy is playing for a client.
type session struct {
	mu       sync.Mutex
	id       string
	name     string
	strategy core.Strategy
	seed     uint64
	rand     *rng.Source
	state    core.ModeState
	// next is the round index the session expects to decide next.
	next int
}

func newSession(id, name string, strategy core.Strategy, seed uint64) *session {
	return &session{
		id:       id,
		name:     name,
		strategy: strategy,
		seed:     seed,
		rand:     rng.New(seed),
		state:    core.NewModeState(),
	}
}

// replay rebuilds the mode state by deciding every earlier round again on
// the history prefixes. Deciding is deterministic given the seed, so the
// rebuilt session matches the one that was lost.
func (s *session) replay(own, opponent []core.Action, total int, noise float64, payoff match.Payoff) {
	var score core.ScoreState
	for i := 0; i < len(own); i++ {
		snap := core.Snapshot{
			Own:       own[:i],
			Opponent:  opponent[:i],
			Score:     score,
			Total:     total,
			NoiseRate: noise,
			Source:    s.rand,
		}
		_, s.state = s.strategy.Decide(snap, s.state)
		score.Own += payoff.Score(own[i], opponent[i])
		score.Opponent += payoff.Score(opponent[i], own[i])
	}
	s.next = len(own)
}

// decide plays round len(own) and advances the session.
func (s *session) decide(req api.DecideRequest, own, opponent []core.Action) api.DecideResponse {
	snap := core.Snapshot{
		Own:       own,
		Opponent:  opponent,
		Score:     core.ScoreState{Own: req.OwnScore, Opponent: req.OpponentScore},
		Total:     req.TotalRounds,
		NoiseRate: req.Noise,
		Source:    s.rand,
	}
	action, st := s.strategy.Decide(snap, s.state)
	s.state = st
	s.next = len(own) + 1
	return api.DecideResponse{
		Action:      action,
		Mode:        st.Current(),
		Remaining:   st.Remaining,
		Round:       len(own),
		Reason:      st.LastReason,
		Transitions: st.Transitions,
		Done:        req.TotalRounds > 0 && s.next >= req.TotalRounds,
	}
}

// SessionTable holds live sessions. The least recently used session is
// dropped when the table is full; a dropped session is rebuilt by replay.
type SessionTable struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *session]
}

func NewSessionTable(size int) (*SessionTable, error) {
	if size <= 0 {
		return nil, fmt.Errorf("session table size must be positive, got %d", size)
	}
	c, err := lru.New[string, *session](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create session table: %w", err)
	}
	return &SessionTable{sessions: c}, nil
}

// Acquire returns the session able to decide round len(own) for req,
// creating or rebuilding it when needed. The session is returned locked.
// The table lock covers lookup and insert only; resolving and replaying
// happen outside it, and a session already deciding reports errSessionBusy.
func (t *SessionTable) Acquire(ctx context.Context, req api.DecideRequest, own, opponent []core.Action, resolve func(context.Context, string) (core.Strategy, error), payoff match.Payoff) (*session, bool, error) {
	round := len(own)
	if s, ok := t.get(req.SessionID); ok && round > 0 {
		if s.name != req.Strategy {
			return nil, false, fmt.Errorf("%w: session %s plays %s, not %s", errSessionConflict, req.SessionID, s.name, req.Strategy)
		}
		if !s.mu.TryLock() {
			return nil, false, fmt.Errorf("%w: session %s", errSessionBusy, req.SessionID)
		}
		if s.next == round && s.seed == req.Seed {
			return s, false, nil
		}
		s.mu.Unlock()
	}

	strategy, err := resolve(ctx, req.Strategy)
	if err != nil {
		return nil, false, err
	}
	s := newSession(req.SessionID, req.Strategy, strategy, req.Seed)
	s.mu.Lock()
	rebuilt := round > 0
	if rebuilt {
		s.replay(own, opponent, req.TotalRounds, req.Noise, payoff)
	}
	t.mu.Lock()
	t.sessions.Add(req.SessionID, s)
	t.mu.Unlock()
	return s, rebuilt, nil
}

func (t *SessionTable) get(id string) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions.Get(id)
}

// Release drops a finished session unless a newer match has replaced it.
func (t *SessionTable) Release(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.sessions.Peek(s.id); ok && cur == s {
		t.sessions.Remove(s.id)
	}
}

func (t *SessionTable) Len() int {
	return t.sessions.Len()
}
