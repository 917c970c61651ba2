package fs

import (
	"context"
	"fmt"

	"github.com/snow-ghost/dilemma/artifact"
	"github.com/snow-ghost/dilemma/kb"
)

// Import copies every strategy of src that the catalog does not have yet,
// as version 1. It returns how many were written.
func (c *Catalog) Import(ctx context.Context, src kb.Catalog) (int, error) {
	n := 0
	for _, cfg := range src.List() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := c.Get(cfg.Name); err == nil {
			continue
		}
		m := artifact.NewManifest(cfg.Name, "1", cfg.Description)
		for _, tag := range cfg.Tags {
			m.AddTag(tag)
		}
		if err := c.Save(m, cfg, nil); err != nil {
			return n, fmt.Errorf("failed to import %s: %w", cfg.Name, err)
		}
		n++
	}
	return n, nil
}
