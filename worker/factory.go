package worker

import (
	"errors"
	"fmt"

	"github.com/snow-ghost/dilemma/worker/heavy"
	"github.com/snow-ghost/dilemma/worker/light"
	"github.com/snow-ghost/dilemma/worker/mutate"
)

// NewTournamentWorker builds the light worker from wc.
func NewTournamentWorker(wc WorkerConfig) *light.TournamentWorker {
	caps := DefaultCapabilities(WorkerTypeLight)
	caps.UseWASM = wc.Loader != nil
	opts := []light.Option{light.WithCapabilities(caps)}
	if wc.Cache != nil {
		opts = append(opts, light.WithCache(wc.Cache))
	}
	if wc.Store != nil {
		opts = append(opts, light.WithStore(wc.Store))
	}
	return light.NewTournamentWorker(wc.Catalog, wc.Resolver, wc.Telemetry, wc.Config.Tournament, opts...)
}

// NewSearchWorker builds the heavy worker from wc.
func NewSearchWorker(wc WorkerConfig) *heavy.SearchWorker {
	var opts []heavy.Option
	if wc.Generator != nil {
		opts = append(opts, heavy.WithGenerator(wc.Generator))
	}
	if wc.Loader != nil {
		opts = append(opts, heavy.WithRuleLoader(wc.Loader))
	}
	if wc.Guard != nil {
		opts = append(opts, heavy.WithGuard(wc.Guard))
	}
	if wc.Cache != nil {
		opts = append(opts, heavy.WithCache(wc.Cache))
	}
	if wc.Store != nil {
		opts = append(opts, heavy.WithStore(wc.Store))
	}
	if wc.Critic != nil {
		opts = append(opts, heavy.WithCritic(wc.Critic))
	}
	if len(wc.Checks) > 0 {
		opts = append(opts, heavy.WithChecks(wc.Checks...))
	}
	return heavy.NewSearchWorker(wc.Catalog, wc.Resolver, wc.Telemetry, mutate.NewSimpleMutator(), wc.Config.Search, opts...)
}

// NewWorker creates a worker of wc.Type; an empty type means heavy.
func NewWorker(wc WorkerConfig) (Worker, error) {
	if wc.Catalog == nil {
		return nil, errors.New("worker needs a strategy catalog")
	}
	switch wc.Type {
	case WorkerTypeLight:
		return NewTournamentWorker(wc), nil
	case WorkerTypeHeavy, "":
		return NewSearchWorker(wc), nil
	default:
		return nil, fmt.Errorf("unknown worker type %q", wc.Type)
	}
}
