package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigJSON = `{
  "lattice": ["Public", "Internal", "Confidential", "Secret"],
  "user_output_max": {"level": "Secret"},
  "external_llm_allowed": [{"level": "Internal"}],
  "tools": {
    "storage_path": "./state.json",
    "trusted_domains": ["example.com"],
    "blocked_domains": ["spam.test"],
    "user_agent": "ifcagent/1.0"
  },
  "ollama": {"model": "llama3", "base_url": "http://localhost:11434"},
  "openai_compatible": {"model": "gpt-4o-mini", "base_url": "https://api.openai.com/v1"}
}`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, validConfigJSON)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Public", "Internal", "Confidential", "Secret"}, cfg.Lattice)
	assert.Equal(t, "Secret", cfg.UserOutputMax.Level)
	assert.Equal(t, "file", cfg.Storage.Backend, "defaults to the file backend")
	assert.Equal(t, "./state.json", cfg.Tools.StoragePath)

	lt := cfg.BuildLattice()
	assert.True(t, lt.IsValidLevel("Internal"))
}

func TestLoad_MissingRequiredFieldFailsSchema(t *testing.T) {
	path := writeConfig(t, `{"lattice": ["Public"]}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidStorageBackendFailsSchema(t *testing.T) {
	path := writeConfig(t, `{
		"lattice": ["Public"],
		"user_output_max": {"level": "Public"},
		"external_llm_allowed": [],
		"tools": {"storage_path": "./x.json"},
		"storage": {"backend": "mongodb"}
	}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	assert.Error(t, err)
}

func TestExternalLLMAllowedLabels(t *testing.T) {
	path := writeConfig(t, validConfigJSON)
	cfg, err := Load(path)
	require.NoError(t, err)

	labels := cfg.ExternalLLMAllowedLabels()
	require.Len(t, labels, 1)
	assert.Equal(t, "Internal", labels[0].Level())
}
