package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, EmbedderAuto, cfg.Embedding.Backend)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 0.3, cfg.Search.FTSWeight)
	assert.Equal(t, 0.7, cfg.Search.VectorWeight)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesProjectConfigOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "embedding:\n  backend: neural\n  dimensions: 256\nsearch:\n  fts_weight: 0.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docsearch.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, EmbedderNeural, cfg.Embedding.Backend)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	assert.Equal(t, 0.5, cfg.Search.FTSWeight)
	// unset fields retain built-in defaults
	assert.Equal(t, 0.7, cfg.Search.VectorWeight)
}

func TestEnvOverridesWinOverProjectConfig(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "embedding:\n  backend: neural\nfetch:\n  max_retries: 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docsearch.yaml"), []byte(yamlContent), 0o644))
	t.Setenv("DOCSEARCH_EMBEDDER", "tfidf")
	t.Setenv("DOCSEARCH_MAX_RETRIES", "7")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, EmbedderTFIDF, cfg.Embedding.Backend)
	assert.Equal(t, 7, cfg.Fetch.MaxRetries)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := NewConfig()
	cfg.Embedding.Backend = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDimensions(t *testing.T) {
	cfg := NewConfig()
	cfg.Embedding.Dimensions = 0
	assert.Error(t, cfg.Validate())
}
