package artifact

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestValidate(t *testing.T) {
	m := NewManifest("grudger", "1.0.0", "never forgives")
	require.Error(t, m.Validate(), "kind missing")

	m.SetConfig([]byte("name: grudger\n"))
	require.NoError(t, m.Validate())
	assert.Equal(t, ConfigFile, m.Entry)

	m.SetWASM(RuleFile, []byte{0x00, 0x61, 0x73, 0x6d})
	require.NoError(t, m.Validate())
	assert.Equal(t, KindWASM, m.Kind)

	m.Kind = "python"
	require.Error(t, m.Validate())
}

func TestManifestVerify(t *testing.T) {
	m := NewManifest("tft", "1", "")
	doc := []byte("name: tft\n")
	m.SetConfig(doc)
	require.NoError(t, m.Verify(doc))
	require.Error(t, m.Verify([]byte("name: other\n")))
}

func TestManifestJSONAndPaths(t *testing.T) {
	m := NewManifest("tft", "2", "mirror")
	m.AddTag("classic")
	m.AddTag("classic")
	m.SetWASM(RuleFile, []byte("x"))

	b, err := m.ToJSON()
	require.NoError(t, err)
	got, err := FromJSON(b)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, []string{"classic"}, got.Tags)
	assert.True(t, got.HasTag("classic"))

	base := filepath.Join("var", "kb")
	assert.Equal(t, filepath.Join(base, "tft@2"), m.GetArtifactPath(base))
	assert.Equal(t, filepath.Join(base, "tft@2", "manifest.json"), m.GetManifestPath(base))
	assert.Equal(t, filepath.Join(base, "tft@2", RuleFile), m.GetCodePath(base))
	assert.Equal(t, filepath.Join(base, "tft@2", ConfigFile), m.GetConfigPath(base))
}
