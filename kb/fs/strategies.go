package fs

import (
	"context"
	"fmt"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/policy/guard"
)

// Builder turns catalog entries into runnable strategies. Rule modules are
// compiled through Loader and run under Guard's time budget.
type Builder struct {
	Loader kb.RuleLoader
	Guard  *guard.Guard
}

// Strategy builds the named strategy ("id" or "id@version").
func (c *Catalog) Strategy(ctx context.Context, name string, b Builder) (core.Strategy, error) {
	e, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return b.build(ctx, e)
}

// Strategies builds the newest version of every strategy in the catalog.
func (c *Catalog) Strategies(ctx context.Context, b Builder) ([]core.Strategy, error) {
	var out []core.Strategy
	for _, cfg := range c.List() {
		s, err := c.Strategy(ctx, cfg.Name, b)
		if err != nil {
			return nil, fmt.Errorf("failed to build strategy %s: %w", cfg.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (b Builder) build(ctx context.Context, e *entry) (core.Strategy, error) {
	if b.Guard != nil {
		if err := b.Guard.Check(e.config); err != nil {
			return nil, err
		}
	}
	if e.config.Rule.Kind != policy.RuleExternal {
		return policy.New(e.config)
	}
	if b.Loader == nil {
		return nil, fmt.Errorf("strategy %s needs a rule loader", e.config.Name)
	}
	if len(e.code) == 0 {
		return nil, fmt.Errorf("strategy %s has no rule module", e.config.Name)
	}
	rule, err := b.Loader.Load(ctx, e.manifest.Key(), e.code, e.config.Rule.Fallback)
	if err != nil {
		return nil, err
	}
	engine, err := policy.New(e.config, policy.WithRule(rule))
	if err != nil {
		return nil, err
	}
	if b.Guard != nil {
		return b.Guard.Wrap(engine, e.config.Rule.Fallback), nil
	}
	return engine, nil
}
