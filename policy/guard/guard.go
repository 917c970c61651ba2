// Package guard wraps untrusted strategies (generated or remote) in a time
// budget and restricts which rule kinds a catalog may load.
package guard

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/rng"
)

// DefaultBudget is used when no per-decision budget is configured.
const DefaultBudget = 50 * time.Millisecond

// Guard enforces a per-decision time budget and a rule kind allowlist.
type Guard struct {
	allow  map[string]bool
	budget time.Duration
}

// NewGuard creates a guard. An empty allowlist permits every kind.
func NewGuard(allowlist []string, budget time.Duration) *Guard {
	m := make(map[string]bool, len(allowlist))
	for _, n := range allowlist {
		m[strings.ToLower(strings.TrimSpace(n))] = true
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Guard{allow: m, budget: budget}
}

// Run executes fn under the budget and returns its error, or
// context.DeadlineExceeded when it runs over.
func (g *Guard) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	execCtx, cancel := context.WithTimeout(ctx, g.budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(execCtx)
	}()

	select {
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return context.DeadlineExceeded
		}
		return execCtx.Err()
	case err := <-done:
		return err
	}
}

// AllowRule reports whether a config using this rule kind may be loaded.
func (g *Guard) AllowRule(kind policy.RuleKind) bool {
	if len(g.allow) == 0 {
		return true
	}
	return g.allow[strings.ToLower(string(kind))]
}

// Check rejects configs whose rule kind is not allowlisted.
func (g *Guard) Check(cfg policy.Config) error {
	if !g.AllowRule(cfg.Rule.Kind) {
		return &DeniedError{Name: cfg.Name, Kind: cfg.Rule.Kind}
	}
	return nil
}

type DeniedError struct {
	Name string
	Kind policy.RuleKind
}

func (e *DeniedError) Error() string {
	return "strategy " + e.Name + ": rule kind " + string(e.Kind) + " is not allowed"
}

// Wrap returns a strategy that falls back to fallback, leaving the state
// untouched, whenever inner overruns the budget.
func (g *Guard) Wrap(inner core.Strategy, fallback core.Action) core.Strategy {
	return &guarded{g: g, inner: inner, fallback: fallback}
}

type guarded struct {
	g        *Guard
	inner    core.Strategy
	fallback core.Action
}

func (s *guarded) Name() string { return s.inner.Name() }

func (s *guarded) Decide(rc core.RoundContext, st core.ModeState) (core.Action, core.ModeState) {
	type out struct {
		a  core.Action
		st core.ModeState
	}
	// An overrun call is abandoned, not stopped, so it must only see a copy.
	detached := Detach(rc)
	res := make(chan out, 1)
	err := s.g.Run(context.Background(), func(ctx context.Context) error {
		a, next := s.inner.Decide(detached, st)
		res <- out{a, next}
		return nil
	})
	if err != nil {
		return s.fallback, st
	}
	r := <-res
	return r.a, r.st
}

// Detach copies rc into a Snapshot that shares nothing with the caller.
// The copy gets a private source seeded by one draw from rc's source.
func Detach(rc core.RoundContext) core.Snapshot {
	snap := core.Snapshot{
		Own:       slices.Clone(rc.OwnHistory()),
		Opponent:  slices.Clone(rc.OpponentHistory()),
		Score:     rc.Scores(),
		NoiseRate: rc.Noise(),
	}
	if total, ok := rc.TotalRounds(); ok {
		snap.Total = total
	}
	if r := rc.Rand(); r != nil {
		snap.Source = rng.New(uint64(r.RandInt(0, math.MaxInt32)))
	}
	return snap
}
