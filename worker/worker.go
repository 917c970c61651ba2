package worker

import (
	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb"
	"github.com/snow-ghost/dilemma/llm"
	"github.com/snow-ghost/dilemma/pkg/cache"
	"github.com/snow-ghost/dilemma/policy/guard"
	"github.com/snow-ghost/dilemma/store"
	"github.com/snow-ghost/dilemma/testkit"
	"github.com/snow-ghost/dilemma/worker/common"
	"github.com/snow-ghost/dilemma/worker/telemetry"
)

// Worker is the contract shared by all worker types
type Worker interface {
	// Type returns the worker type (e.g., "heavy", "light")
	Type() string
	Caps() Capabilities
}

// WorkerType represents the type of worker
type WorkerType string

const (
	// WorkerTypeHeavy searches for improved strategies.
	WorkerTypeHeavy WorkerType = "heavy"
	// WorkerTypeLight runs tournaments.
	WorkerTypeLight WorkerType = "light"
)

// WorkerConfig holds the collaborators for worker creation. Only Catalog is
// required.
type WorkerConfig struct {
	Type      WorkerType
	Config    Config
	Catalog   kb.Catalog
	Resolver  common.Resolver
	Generator llm.Generator
	Loader    kb.RuleLoader
	Guard     *guard.Guard
	Cache     *cache.ResultCache
	Store     store.Store
	Checks    []testkit.Option
	Critic    core.Critic
	Telemetry *telemetry.Telemetry
}
