package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/snow-ghost/dilemma/artifact"
	"github.com/snow-ghost/dilemma/kb"
	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/policy"
)

// Catalog is a file-system strategy catalog. Each artifact lives in
// <dir>/<id>@<version>/ with manifest.json, strategy.yaml and, for wasm
// artifacts, the rule module.
type Catalog struct {
	artifactsDir string
	logger       *logging.Logger

	mu       sync.RWMutex
	entries  map[string]*entry   // id@version -> entry
	tagIndex map[string][]string // tag -> keys
}

type entry struct {
	manifest *artifact.Manifest
	config   policy.Config
	code     []byte
}

var _ kb.Catalog = (*Catalog)(nil)

// NewCatalog opens (creating if needed) the catalog at dir and loads it.
func NewCatalog(dir string, logger *logging.Logger) (*Catalog, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Catalog{artifactsDir: dir, logger: logger}
	if err := c.LoadArtifacts(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the catalog root.
func (c *Catalog) Dir() string { return c.artifactsDir }

// LoadArtifacts rescans the directory. Artifacts that fail to load or verify
// are skipped with a warning.
func (c *Catalog) LoadArtifacts() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.tagIndex = make(map[string][]string)

	if err := os.MkdirAll(c.artifactsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	return filepath.WalkDir(c.artifactsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "manifest.json" {
			return nil
		}
		e, err := c.loadEntry(path)
		if err != nil {
			c.logger.Warn("Skipping artifact", "path", path, "error", err)
			return nil
		}
		c.index(e)
		return nil
	})
}

// loadEntry reads one artifact and verifies its checksum.
func (c *Catalog) loadEntry(manifestPath string) (*entry, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := artifact.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	doc, err := os.ReadFile(m.GetConfigPath(c.artifactsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy: %w", err)
	}
	e := &entry{manifest: m}
	switch m.Kind {
	case artifact.KindConfig:
		if err := m.Verify(doc); err != nil {
			return nil, err
		}
	case artifact.KindWASM:
		code, err := os.ReadFile(m.GetCodePath(c.artifactsDir))
		if err != nil {
			return nil, fmt.Errorf("failed to read rule module: %w", err)
		}
		if err := m.Verify(code); err != nil {
			return nil, err
		}
		e.code = code
	}

	cfg, err := policy.ParseConfig(doc)
	if err != nil {
		return nil, err
	}
	cfg.Name = m.ID
	e.config = cfg
	return e, nil
}

func (c *Catalog) index(e *entry) {
	key := e.manifest.Key()
	c.entries[key] = e
	for _, tag := range e.manifest.Tags {
		c.tagIndex[tag] = append(c.tagIndex[tag], key)
	}
}

func (c *Catalog) unindex(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, tag := range e.manifest.Tags {
		keys := c.tagIndex[tag]
		for i, k := range keys {
			if k == key {
				c.tagIndex[tag] = append(keys[:i], keys[i+1:]...)
				break
			}
		}
	}
}

// Save writes an artifact. cfg is stored as strategy.yaml; code, when
// given, is stored as the rule module and makes it a wasm artifact.
func (c *Catalog) Save(m *artifact.Manifest, cfg policy.Config, code []byte) error {
	cfg.Name = m.ID
	if len(code) > 0 && cfg.Rule.Kind != policy.RuleExternal {
		return fmt.Errorf("%w: a rule module needs rule.kind external", policy.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	doc, err := policy.MarshalConfig(cfg)
	if err != nil {
		return err
	}
	if len(code) > 0 {
		m.SetWASM(artifact.RuleFile, code)
	} else {
		m.SetConfig(doc)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dir := m.GetArtifactPath(c.artifactsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	manifestData, err := m.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(m.GetConfigPath(c.artifactsDir), doc, 0o644); err != nil {
		return fmt.Errorf("failed to write strategy: %w", err)
	}
	if len(code) > 0 {
		if err := os.WriteFile(m.GetCodePath(c.artifactsDir), code, 0o644); err != nil {
			return fmt.Errorf("failed to write rule module: %w", err)
		}
	}
	if err := os.WriteFile(m.GetManifestPath(c.artifactsDir), manifestData, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	c.unindex(m.Key())
	c.index(&entry{manifest: m, config: cfg, code: code})
	return nil
}

// Delete removes an artifact from disk and from the index.
func (c *Catalog) Delete(id, version string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id + "@" + version
	e, ok := c.entries[key]
	if !ok {
		return fmt.Errorf("%w: %s", kb.ErrNotFound, key)
	}
	if err := os.RemoveAll(e.manifest.GetArtifactPath(c.artifactsDir)); err != nil {
		return fmt.Errorf("failed to remove artifact directory: %w", err)
	}
	c.unindex(key)
	return nil
}

// ListArtifacts returns every manifest sorted by key.
func (c *Catalog) ListArtifacts() []*artifact.Manifest {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*artifact.Manifest, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.manifest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Search matches query against id, description and tags.
func (c *Catalog) Search(query string) []*artifact.Manifest {
	query = strings.ToLower(query)
	var results []*artifact.Manifest
	for _, m := range c.ListArtifacts() {
		if strings.Contains(strings.ToLower(m.ID), query) ||
			strings.Contains(strings.ToLower(m.Description), query) {
			results = append(results, m)
			continue
		}
		for _, tag := range m.Tags {
			if strings.Contains(strings.ToLower(tag), query) {
				results = append(results, m)
				break
			}
		}
	}
	return results
}

// latest returns the newest version of id. Caller holds the lock.
func (c *Catalog) latest(id string) *entry {
	var best *entry
	for _, e := range c.entries {
		if e.manifest.ID != id {
			continue
		}
		if best == nil || newer(e.manifest, best.manifest) {
			best = e
		}
	}
	return best
}

// newer orders versions numerically when both are numbers, else lexically.
func newer(a, b *artifact.Manifest) bool {
	av, aerr := strconv.Atoi(a.Version)
	bv, berr := strconv.Atoi(b.Version)
	if aerr == nil && berr == nil {
		return av > bv
	}
	return a.Version > b.Version
}

func (c *Catalog) lookup(name string) (*entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var e *entry
	if strings.Contains(name, "@") {
		e = c.entries[name]
	} else {
		e = c.latest(name)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", kb.ErrNotFound, name)
	}
	return e, nil
}

// Get returns the config for "id" (newest version) or "id@version".
func (c *Catalog) Get(name string) (policy.Config, error) {
	e, err := c.lookup(name)
	if err != nil {
		return policy.Config{}, err
	}
	return e.config, nil
}

// List returns the newest version of every strategy, sorted by name.
func (c *Catalog) List() []policy.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var out []policy.Config
	for _, e := range c.entries {
		if seen[e.manifest.ID] {
			continue
		}
		seen[e.manifest.ID] = true
		out = append(out, c.latest(e.manifest.ID).config)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindByTag returns the newest version of each strategy tagged tag.
func (c *Catalog) FindByTag(tag string) []policy.Config {
	c.mu.RLock()
	keys := append([]string(nil), c.tagIndex[tag]...)
	c.mu.RUnlock()

	seen := make(map[string]bool)
	var out []policy.Config
	for _, key := range keys {
		id := key[:strings.LastIndexByte(key, '@')]
		if seen[id] {
			continue
		}
		seen[id] = true
		if cfg, err := c.Get(id); err == nil {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SaveCandidate stores cfg as the next numeric version of its name.
func (c *Catalog) SaveCandidate(ctx context.Context, cfg policy.Config, score float64) error {
	version := 1
	if e, err := c.lookup(cfg.Name); err == nil {
		if v, err := strconv.Atoi(e.manifest.Version); err == nil {
			version = v + 1
		}
	} else if !errors.Is(err, kb.ErrNotFound) {
		return err
	}
	m := artifact.NewManifest(cfg.Name, strconv.Itoa(version), cfg.Description)
	m.Score = score
	for _, tag := range cfg.Tags {
		m.AddTag(tag)
	}
	m.AddTag("candidate")
	return c.Save(m, cfg, nil)
}
