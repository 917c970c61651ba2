package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// Kinds of strategy artifact.
const (
	KindConfig = "config" // strategy.yaml holding a policy config
	KindWASM   = "wasm"   // policy config whose reactive rule is a wasm module
)

// Default file names inside an artifact directory.
const (
	ConfigFile = "strategy.yaml"
	RuleFile   = "rule.wasm"
)

// Manifest represents the metadata for a strategy artifact
type Manifest struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Kind        string   `json:"kind"`
	Entry       string   `json:"entry"`     // strategy.yaml, or the wasm export name
	CodePath    string   `json:"code_path"` // rule.wasm for wasm artifacts
	SHA256      string   `json:"sha256"`
	// Score is the fitness the artifact had when it was saved, if any.
	Score     float64 `json:"score,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// NewManifest creates a new manifest with default values
func NewManifest(id, version, description string) *Manifest {
	return &Manifest{
		ID:          id,
		Version:     version,
		Description: description,
		Tags:        []string{},
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

// SetConfig marks the artifact as a plain config and records its checksum.
func (m *Manifest) SetConfig(doc []byte) {
	m.Kind = KindConfig
	m.Entry = ConfigFile
	m.CodePath = ""
	m.SHA256 = Checksum(doc)
}

// SetWASM marks the artifact as a config plus wasm rule. The checksum
// covers the module bytes.
func (m *Manifest) SetWASM(codePath string, code []byte) {
	m.Kind = KindWASM
	m.Entry = "decide"
	m.CodePath = codePath
	m.SHA256 = Checksum(code)
}

// AddTag adds a tag to the manifest
func (m *Manifest) AddTag(tag string) {
	for _, t := range m.Tags {
		if t == tag {
			return
		}
	}
	m.Tags = append(m.Tags, tag)
}

// HasTag reports whether the manifest carries tag.
func (m *Manifest) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks if the manifest is valid
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("manifest ID is required")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest version is required")
	}
	switch m.Kind {
	case KindConfig:
	case KindWASM:
		if m.CodePath == "" {
			return fmt.Errorf("wasm artifacts require code_path")
		}
	case "":
		return fmt.Errorf("manifest kind is required")
	default:
		return fmt.Errorf("unknown manifest kind %q", m.Kind)
	}
	if m.SHA256 == "" {
		return fmt.Errorf("manifest sha256 is required")
	}
	return nil
}

// Verify compares data against the recorded checksum.
func (m *Manifest) Verify(data []byte) error {
	if got := Checksum(data); got != m.SHA256 {
		return fmt.Errorf("checksum mismatch for %s@%s: want %s, got %s", m.ID, m.Version, m.SHA256, got)
	}
	return nil
}

// Key is the catalog key, id@version.
func (m *Manifest) Key() string {
	return m.ID + "@" + m.Version
}

// ToJSON converts the manifest to JSON
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON creates a manifest from JSON
func FromJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetArtifactPath returns the path to the artifact directory
func (m *Manifest) GetArtifactPath(baseDir string) string {
	return filepath.Join(baseDir, m.Key())
}

// GetManifestPath returns the path to the manifest file
func (m *Manifest) GetManifestPath(baseDir string) string {
	return filepath.Join(m.GetArtifactPath(baseDir), "manifest.json")
}

// GetConfigPath returns the path to the strategy document
func (m *Manifest) GetConfigPath(baseDir string) string {
	return filepath.Join(m.GetArtifactPath(baseDir), ConfigFile)
}

// GetCodePath returns the path to the code file
func (m *Manifest) GetCodePath(baseDir string) string {
	if m.CodePath == "" {
		return ""
	}
	return filepath.Join(m.GetArtifactPath(baseDir), m.CodePath)
}

// Checksum is the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
