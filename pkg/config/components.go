package config

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/interp/wasm"
	"github.com/snow-ghost/dilemma/kb"
	kbfs "github.com/snow-ghost/dilemma/kb/fs"
	kbmem "github.com/snow-ghost/dilemma/kb/memory"
	"github.com/snow-ghost/dilemma/llm"
	llmmock "github.com/snow-ghost/dilemma/llm/mock"
	"github.com/snow-ghost/dilemma/llm/openai"
	"github.com/snow-ghost/dilemma/pkg/cache"
	"github.com/snow-ghost/dilemma/pkg/limiter"
	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/pkg/observability"
	"github.com/snow-ghost/dilemma/policy"
	"github.com/snow-ghost/dilemma/policy/guard"
	"github.com/snow-ghost/dilemma/remote"
	"github.com/snow-ghost/dilemma/store"
	"github.com/snow-ghost/dilemma/worker"
	"github.com/snow-ghost/dilemma/worker/common"
	"github.com/snow-ghost/dilemma/worker/telemetry"
	"github.com/snow-ghost/dilemma/worker/tools"
)

// Components are the collaborators a binary is assembled from.
type Components struct {
	Config    *Config
	Obs       *observability.Manager
	Logger    *logging.Logger
	Catalog   kb.Catalog
	Resolver  common.Resolver
	Interp    *wasm.Interpreter
	Guard     *guard.Guard
	Store     store.Store
	Cache     *cache.ResultCache
	Protector *limiter.Protector
	Generator llm.Generator
	Remote    []*remote.Strategy
	Telemetry *telemetry.Telemetry

	// extra holds remote and fetched players ahead of the catalog.
	extra *common.Static
}

// Build wires the components for service. Partially built components are
// closed when a later step fails.
func (c *Config) Build(ctx context.Context, service string) (_ *Components, err error) {
	obsConfig := c.Observability
	if service != "" {
		obsConfig.ServiceName = service
	}
	obs, err := observability.NewManager(obsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability: %w", err)
	}
	comp := &Components{
		Config:    c,
		Obs:       obs,
		Logger:    obs.GetLogger(),
		Telemetry: telemetry.NewTelemetry(obs, obsConfig.ServiceName),
		Interp:    wasm.NewInterpreterWithConfig(c.WASM),
		Guard:     guard.NewGuard(c.Catalog.AllowRules, c.Catalog.RuleBudget),
	}
	defer func() {
		if err != nil {
			_ = comp.Close(context.Background())
		}
	}()

	if comp.Store, err = store.Open(c.Store); err != nil {
		return nil, err
	}
	cacheConfig := c.Cache
	if comp.Cache, err = cache.NewResultCache(&cacheConfig); err != nil {
		return nil, err
	}
	comp.Cache.OnLookup(obs.CacheHook())

	retry := c.Limits.Retry
	comp.Protector = limiter.NewProtector(&retry, limiter.NewBreakerSet(c.Limits.Breaker, comp.Logger), comp.Logger)
	obs.Instrument(comp.Protector)

	switch c.LLM.Mode {
	case LLMModeMock:
		comp.Generator = llmmock.NewMockLLM()
	case LLMModeOpenAI:
		comp.Generator = openai.NewGenerator(c.LLM.OpenAI,
			openai.WithProtector(comp.Protector),
			openai.WithLogger(comp.Logger.Named("openai")))
	}

	local, err := comp.buildCatalog(ctx)
	if err != nil {
		return nil, err
	}

	comp.extra = common.NewStatic()
	for _, rc := range c.Remote {
		client, err := remote.NewClient(remote.ClientConfig{BaseURL: rc.BaseURL, Timeout: rc.Timeout, Caller: obsConfig.ServiceName}, comp.Protector)
		if err != nil {
			return nil, fmt.Errorf("remote %s: %w", rc.Name, err)
		}
		s, err := remote.New(rc, client, comp.Logger)
		if err != nil {
			return nil, err
		}
		comp.Remote = append(comp.Remote, s)
		comp.extra.Add(s)
	}
	comp.Resolver = common.Chain(comp.extra, local)
	return comp, nil
}

// buildCatalog opens the configured catalog and returns the resolver that
// builds its strategies.
func (comp *Components) buildCatalog(ctx context.Context) (common.Resolver, error) {
	c := comp.Config
	builtins := kbmem.NewRegistry()
	if c.Catalog.Dir == "" {
		comp.Catalog = builtins
		return common.ResolverFunc(func(ctx context.Context, name string) (core.Strategy, error) {
			cfg, err := builtins.Get(name)
			if err != nil {
				return nil, err
			}
			if err := comp.Guard.Check(cfg); err != nil {
				return nil, err
			}
			return policy.New(cfg)
		}), nil
	}

	catalog, err := kbfs.NewCatalog(c.Catalog.Dir, comp.Logger.Named("catalog"))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", c.Catalog.Dir, err)
	}
	if c.Catalog.SeedBuiltins {
		n, err := catalog.Import(ctx, builtins)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			comp.Logger.Info("seeded catalog with built-in strategies", "dir", c.Catalog.Dir, "count", n)
		}
	}
	comp.Catalog = catalog
	builder := kbfs.Builder{Loader: comp.Interp, Guard: comp.Guard}
	return common.ResolverFunc(func(ctx context.Context, name string) (core.Strategy, error) {
		return catalog.Strategy(ctx, name, builder)
	}), nil
}

// Fetch downloads strategy documents from url and makes them playable by
// name. Fetched strategies are not written to the catalog.
func (comp *Components) Fetch(ctx context.Context, url string) ([]string, error) {
	configs, err := tools.NewAdapter(comp.Config.Catalog.FetchHosts).FetchConfigs(ctx, url)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(configs))
	for _, cfg := range configs {
		if err := comp.Guard.Check(cfg); err != nil {
			return nil, err
		}
		if cfg.Rule.Kind == policy.RuleExternal {
			return nil, fmt.Errorf("fetched strategy %s: external rules need a catalog artifact", cfg.Name)
		}
		engine, err := policy.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("fetched strategy %s: %w", cfg.Name, err)
		}
		comp.extra.Add(engine)
		names = append(names, cfg.Name)
	}
	comp.Logger.Info("fetched strategies", "url", url, "count", len(names))
	return names, nil
}

// PlayerNames lists every catalog strategy followed by the remote players.
func (comp *Components) PlayerNames() []string {
	var names []string
	for _, cfg := range comp.Catalog.List() {
		names = append(names, cfg.Name)
	}
	sort.Strings(names)
	for _, r := range comp.Remote {
		names = append(names, r.Name())
	}
	return names
}

// WorkerConfig returns the collaborators for a worker of type t.
func (comp *Components) WorkerConfig(t worker.WorkerType) worker.WorkerConfig {
	return worker.WorkerConfig{
		Type:      t,
		Config:    comp.Config.Worker,
		Catalog:   comp.Catalog,
		Resolver:  comp.Resolver,
		Generator: comp.Generator,
		Loader:    comp.Interp,
		Guard:     comp.Guard,
		Cache:     comp.Cache,
		Store:     comp.Store,
		Telemetry: comp.Telemetry,
	}
}

// Close releases everything Build opened.
func (comp *Components) Close(ctx context.Context) error {
	var errs []error
	if comp.Cache != nil {
		comp.Cache.Close()
	}
	if comp.Store != nil {
		if err := comp.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if comp.Interp != nil {
		if err := comp.Interp.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("interpreter: %w", err))
		}
	}
	if comp.Obs != nil {
		if err := comp.Obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}
	}
	return errors.Join(errs...)
}
