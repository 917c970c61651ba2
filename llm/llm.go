// Package llm defines the strategy generator port used by the search loop.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/snow-ghost/dilemma/policy"
)

// Brief describes what the generator should improve on.
type Brief struct {
	Baseline  policy.Config
	Opponents []string
	Rounds    int
	Noise     float64
	// Standings is a human readable summary of the last tournament.
	Standings string
	// Count is how many variants to ask for.
	Count int
}

// Proposal is a batch of candidate configs. Modules holds compiled rule
// modules keyed by the rule.module reference of external-rule candidates.
type Proposal struct {
	Configs []policy.Config
	Modules map[string][]byte
	Source  string
	Raw     string
}

// Generator proposes candidate strategies.
type Generator interface {
	Propose(ctx context.Context, brief Brief) (Proposal, error)
}

// ErrNoConfigs is returned when a response holds no usable config.
var ErrNoConfigs = errors.New("no strategy configs in response")

var fenced = regexp.MustCompile("(?s)```(?:ya?ml)?\\s*\\n(.*?)```")

// ParseConfigs extracts YAML documents from a model response. Fenced blocks
// are preferred; otherwise the whole text is used. Documents are separated
// by "---". Invalid documents are skipped and reported in the error only
// when nothing usable remains.
func ParseConfigs(text string) ([]policy.Config, error) {
	var blocks []string
	for _, m := range fenced.FindAllStringSubmatch(text, -1) {
		blocks = append(blocks, m[1])
	}
	if len(blocks) == 0 {
		blocks = []string{text}
	}

	var out []policy.Config
	var errs []error
	for _, block := range blocks {
		for _, doc := range strings.Split(block, "\n---") {
			doc = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(doc), "---"))
			if doc == "" {
				continue
			}
			cfg, err := policy.ParseConfig([]byte(doc))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, cfg)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoConfigs, errors.Join(errs...))
	}
	return out, nil
}
