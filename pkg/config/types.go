// Package config loads the settings shared by the dilemma binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snow-ghost/dilemma/interp/wasm"
	"github.com/snow-ghost/dilemma/llm/openai"
	"github.com/snow-ghost/dilemma/pkg/cache"
	"github.com/snow-ghost/dilemma/pkg/limiter"
	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/pkg/observability"
	"github.com/snow-ghost/dilemma/remote"
	"github.com/snow-ghost/dilemma/server"
	"github.com/snow-ghost/dilemma/store"
	"github.com/snow-ghost/dilemma/worker"
)

// Config is the whole configuration document.
type Config struct {
	Worker        worker.Config        `yaml:"worker" json:"worker"`
	Server        server.Config        `yaml:"server" json:"server"`
	Catalog       CatalogConfig        `yaml:"catalog" json:"catalog"`
	Store         store.Config         `yaml:"store" json:"store"`
	LLM           LLMConfig            `yaml:"llm" json:"llm"`
	Cache         cache.CacheConfig    `yaml:"cache" json:"cache"`
	Limits        LimitsConfig         `yaml:"limits" json:"limits"`
	Observability observability.Config `yaml:"observability" json:"observability"`
	WASM          wasm.Config          `yaml:"wasm" json:"wasm"`
	Remote        []remote.Config      `yaml:"remote" json:"remote"`
}

// CatalogConfig selects where strategies come from.
type CatalogConfig struct {
	// Dir is an on-disk artifact catalog; empty uses the built-in variants only.
	Dir string `yaml:"dir" json:"dir"`
	// SeedBuiltins copies the built-in variants into Dir when missing.
	SeedBuiltins bool `yaml:"seed_builtins" json:"seed_builtins"`
	// AllowRules restricts the rule kinds strategies may use; empty allows all.
	AllowRules []string `yaml:"allow_rules" json:"allow_rules"`
	// RuleBudget is the time a single external rule decision may take.
	RuleBudget time.Duration `yaml:"rule_budget" json:"rule_budget"`
	// FetchHosts may serve strategy documents; empty denies every host.
	FetchHosts []string `yaml:"fetch_hosts" json:"fetch_hosts"`
}

// LLM modes
const (
	LLMModeOff    = "off"
	LLMModeMock   = "mock"
	LLMModeOpenAI = "openai"
)

// LLMConfig selects the strategy generator used by search.
type LLMConfig struct {
	Mode   string        `yaml:"mode" json:"mode"`
	OpenAI openai.Config `yaml:"openai" json:"openai"`
}

// LimitsConfig holds retry and breaker settings for remote calls.
type LimitsConfig struct {
	Retry   limiter.RetryConfig   `yaml:"retry" json:"retry"`
	Breaker limiter.BreakerConfig `yaml:"breaker" json:"breaker"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Worker: worker.DefaultConfig(),
		Server: server.DefaultConfig(),
		Catalog: CatalogConfig{
			SeedBuiltins: true,
			RuleBudget:   50 * time.Millisecond,
		},
		Store:  store.DefaultConfig(),
		LLM:    LLMConfig{Mode: LLMModeMock, OpenAI: openai.DefaultConfig()},
		Cache:  *cache.DefaultCacheConfig(),
		Limits: LimitsConfig{Retry: *limiter.DefaultRetryConfig(), Breaker: limiter.DefaultBreakerConfig()},
		Observability: observability.Config{
			ServiceName:    "dilemma",
			ServiceVersion: "0.1.0",
			Environment:    "development",
			Logging:        logging.DefaultConfig(),
		},
		WASM: wasm.DefaultConfig(),
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Worker.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("worker: %w", err))
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	switch strings.ToLower(c.Store.Driver) {
	case "", "memory":
	case "sqlite", "sqlite3":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store: sqlite needs a dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown driver %q", c.Store.Driver))
	}
	switch c.LLM.Mode {
	case LLMModeOff, LLMModeMock:
	case LLMModeOpenAI:
		if c.LLM.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("llm: openai mode needs OPENAI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm: unknown mode %q", c.LLM.Mode))
	}
	if c.Cache.MaxSize < 0 {
		errs = append(errs, errors.New("cache: max_size must not be negative"))
	}
	if c.Limits.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("limits: retry.max_retries must not be negative"))
	}
	seen := make(map[string]bool, len(c.Remote))
	for i, r := range c.Remote {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("remote[%d]: %w", i, err))
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("remote[%d]: duplicate name %s", i, r.Name))
		}
		seen[r.Name] = true
	}
	return errors.Join(errs...)
}
