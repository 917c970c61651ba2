package mock

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/interp/wasm"
	"github.com/snow-ghost/dilemma/llm"
	"github.com/snow-ghost/dilemma/policy"
)

// WASMRule is the module reference of the canned wasm candidate.
const WASMRule = "mock/wasm_tft"

// MockLLM is a deterministic llm.Generator cycling through canned edits of
// the baseline.
type MockLLM struct {
	mode string

	mu   sync.Mutex
	next int
}

var _ llm.Generator = (*MockLLM)(nil)

// NewMockLLM creates a new mock generator; LLM_MODE other than "mock"
// makes it propose nothing.
func NewMockLLM() *MockLLM {
	mode := os.Getenv("LLM_MODE")
	if mode == "" {
		mode = "mock"
	}
	return &MockLLM{mode: mode}
}

type edit struct {
	suffix string
	apply  func(*policy.Config)
}

var edits = []edit{
	{"forgiving", func(c *policy.Config) {
		c.Noise.ForgiveIsolated = true
	}},
	{"prober", func(c *policy.Config) {
		c.Periodic = policy.PeriodicTrigger{Period: 25, Action: core.Cooperate}
	}},
	{"endgame", func(c *policy.Config) {
		c.Endgame = policy.EndgameConfig{Window: 5, Action: core.Defect, Probability: 1}
	}},
	{"retaliator", func(c *policy.Config) {
		c.Streak = policy.StreakTrigger{Action: core.Defect, Length: 2, Mode: core.ModePunish, Duration: 2}
	}},
	{"wasm", func(c *policy.Config) {
		c.Rule = policy.RuleConfig{Kind: policy.RuleExternal, Module: WASMRule, Fallback: core.Cooperate}
	}},
}

// Propose returns brief.Count (default 3) variants of the baseline, rotating
// through the canned edits across calls.
func (m *MockLLM) Propose(ctx context.Context, brief llm.Brief) (llm.Proposal, error) {
	if m.mode != "mock" {
		return llm.Proposal{Source: "llm:" + m.mode}, nil
	}
	if err := ctx.Err(); err != nil {
		return llm.Proposal{}, err
	}
	n := brief.Count
	if n <= 0 {
		n = 3
	}

	m.mu.Lock()
	start := m.next
	m.next += n
	m.mu.Unlock()

	p := llm.Proposal{Source: "llm:mock"}
	for i := 0; i < n; i++ {
		e := edits[(start+i)%len(edits)]
		cfg := brief.Baseline
		cfg.Name = fmt.Sprintf("%s~%s", brief.Baseline.Name, e.suffix)
		e.apply(&cfg)
		p.Configs = append(p.Configs, cfg)
		if cfg.Rule.Kind == policy.RuleExternal {
			if p.Modules == nil {
				p.Modules = make(map[string][]byte)
			}
			p.Modules[WASMRule] = wasm.TitForTatModule()
		}
	}
	return p, nil
}
