package common

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb"
	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/worker/telemetry"
)

// Resolver turns a strategy name into a runnable player.
type Resolver interface {
	Resolve(ctx context.Context, name string) (core.Strategy, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name string) (core.Strategy, error)

func (f ResolverFunc) Resolve(ctx context.Context, name string) (core.Strategy, error) {
	return f(ctx, name)
}

// CatalogResolver builds engines straight from catalog configs. External
// rules are not supported here; use the fs catalog's builder for those.
func CatalogResolver(c kb.Catalog) Resolver {
	return ResolverFunc(func(ctx context.Context, name string) (core.Strategy, error) {
		cfg, err := c.Get(name)
		if err != nil {
			return nil, err
		}
		return policy.New(cfg)
	})
}

// Static resolves a fixed set of players, e.g. remote strategies.
type Static struct {
	mu      sync.RWMutex
	players map[string]core.Strategy
}

func NewStatic(players ...core.Strategy) *Static {
	s := &Static{players: make(map[string]core.Strategy, len(players))}
	for _, p := range players {
		s.players[p.Name()] = p
	}
	return s
}

// Add registers or replaces a player
func (s *Static) Add(p core.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.Name()] = p
}

func (s *Static) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.players))
	for n := range s.players {
		out = append(out, n)
	}
	return out
}

func (s *Static) Resolve(ctx context.Context, name string) (core.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.players[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", kb.ErrNotFound, name)
}

// Chain tries each resolver in order, moving on only on kb.ErrNotFound.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, name string) (core.Strategy, error) {
		for _, r := range resolvers {
			s, err := r.Resolve(ctx, name)
			if err == nil {
				return s, nil
			}
			if !errors.Is(err, kb.ErrNotFound) {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: %s", kb.ErrNotFound, name)
	})
}

// BaseWorker provides common functionality for all worker types
type BaseWorker struct {
	catalog    kb.Catalog
	resolver   Resolver
	telemetry  *telemetry.Telemetry
	workerType string
}

// NewBaseWorker creates a new base worker; a nil resolver builds from the catalog.
func NewBaseWorker(catalog kb.Catalog, resolver Resolver, t *telemetry.Telemetry, workerType string) *BaseWorker {
	if resolver == nil {
		resolver = CatalogResolver(catalog)
	}
	if t == nil {
		t = telemetry.NewTelemetry(nil, workerType)
	}
	return &BaseWorker{
		catalog:    catalog,
		resolver:   resolver,
		telemetry:  t,
		workerType: workerType,
	}
}

// Type returns the worker type
func (b *BaseWorker) Type() string {
	return b.workerType
}

// Players resolves names into strategies. An empty list means every
// catalog entry.
func (b *BaseWorker) Players(ctx context.Context, names []string) ([]core.Strategy, error) {
	if len(names) == 0 {
		for _, cfg := range b.catalog.List() {
			names = append(names, cfg.Name)
		}
	}
	seen := make(map[string]bool, len(names))
	out := make([]core.Strategy, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("duplicate player %s", name)
		}
		seen[name] = true
		s, err := b.resolver.Resolve(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// GetTelemetry returns the telemetry instance
func (b *BaseWorker) GetTelemetry() *telemetry.Telemetry {
	return b.telemetry
}

// Logger returns the worker logger
func (b *BaseWorker) Logger() *logging.Logger {
	return b.telemetry.Logger()
}

// GetKB returns the strategy catalog
func (b *BaseWorker) GetKB() kb.Catalog {
	return b.catalog
}
