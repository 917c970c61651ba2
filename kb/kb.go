// Package kb holds the strategy catalogs: built-in variants in kb/memory and
// on-disk artifacts in kb/fs.
package kb

import (
	"context"
	"errors"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/policy"
)

// ErrNotFound is returned when a catalog has no strategy by that name.
var ErrNotFound = errors.New("strategy not found")

// Catalog is a named collection of strategy configs.
type Catalog interface {
	Get(name string) (policy.Config, error)
	List() []policy.Config
	FindByTag(tag string) []policy.Config
	// SaveCandidate records a searched config with its fitness.
	SaveCandidate(ctx context.Context, cfg policy.Config, score float64) error
}

// RuleLoader compiles an external reactive rule from module bytes.
type RuleLoader interface {
	Load(ctx context.Context, name string, code []byte, fallback core.Action) (policy.Rule, error)
}
