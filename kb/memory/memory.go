package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb"
	"github.com/snow-ghost/dilemma/policy"
)

// Registry is an in-memory strategy catalog, seeded with the built-in variants.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]policy.Config
	scores  map[string]float64
}

var _ kb.Catalog = (*Registry)(nil)

// NewRegistry creates a registry holding every built-in variant.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for _, cfg := range Builtins() {
		r.configs[cfg.Name] = cfg
	}
	return r
}

// NewEmptyRegistry creates a registry with no strategies.
func NewEmptyRegistry() *Registry {
	return &Registry{
		configs: make(map[string]policy.Config),
		scores:  make(map[string]float64),
	}
}

// Get returns the named config or kb.ErrNotFound.
func (r *Registry) Get(name string) (policy.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	if !ok {
		return policy.Config{}, fmt.Errorf("%w: %s", kb.ErrNotFound, name)
	}
	return cfg, nil
}

// List returns all configs sorted by name.
func (r *Registry) List() []policy.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]policy.Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindByTag returns the configs carrying tag, sorted by name.
func (r *Registry) FindByTag(tag string) []policy.Config {
	var out []policy.Config
	for _, cfg := range r.List() {
		for _, t := range cfg.Tags {
			if t == tag {
				out = append(out, cfg)
				break
			}
		}
	}
	return out
}

// Register validates and adds (or replaces) a config.
func (r *Registry) Register(cfg policy.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	return nil
}

// SaveCandidate keeps cfg only if it beats the best score recorded under its name.
func (r *Registry) SaveCandidate(ctx context.Context, cfg policy.Config, score float64) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if best, ok := r.scores[cfg.Name]; ok && best >= score {
		return nil
	}
	r.configs[cfg.Name] = cfg
	r.scores[cfg.Name] = score
	return nil
}

// Score returns the best candidate score saved under name.
func (r *Registry) Score(name string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scores[name]
	return s, ok
}

// Strategy builds a runnable engine for the named config.
func (r *Registry) Strategy(name string) (core.Strategy, error) {
	cfg, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return policy.New(cfg)
}
