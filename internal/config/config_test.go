package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docqerrors "github.com/docq/docq/internal/errors"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "cos", cfg.Index.Metric)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Chunking.Size)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
chunking:
  size: 800
  overlap: 100
retrieval:
  top_k: 10
  min_score: 0.25
embeddings:
  provider: static
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docq.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 0.25, cfg.Retrieval.MinScore)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	// Untouched values keep their defaults.
	assert.Equal(t, 200, cfg.Chunking.MinChunk)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "retrieval:\n  top_k: 10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docq.yaml"), []byte(yaml), 0o644))

	t.Setenv("DOCQ_TOP_K", "3")
	t.Setenv("DOCQ_EMBED_PROVIDER", "static")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestValidate_OverlapGreaterThanSize(t *testing.T) {
	cfg := New()
	cfg.Chunking.Size = 100
	cfg.Chunking.Overlap = 100

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, docqerrors.ErrConfigInvalid))
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Chunking.Size = 0 }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"min chunk above size", func(c *Config) { c.Chunking.MinChunk = c.Chunking.Size + 1 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "llamafile" }},
		{"zero concurrency", func(c *Config) { c.Embeddings.Concurrency = -2 }},
		{"unknown metric", func(c *Config) { c.Index.Metric = "dot" }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"min_score out of range", func(c *Config) { c.Retrieval.MinScore = 1.5 }},
		{"multiplier below one", func(c *Config) { c.Retry.Multiplier = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, docqerrors.ErrConfigInvalid))
		})
	}
}

func TestValidate_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docq.yaml"), []byte("chunking: [not a map"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, docqerrors.ErrConfigInvalid))
}

func TestRetryPolicy_Conversion(t *testing.T) {
	cfg := New()
	cfg.Retry.MaxRetries = 5
	cfg.Retry.InitialDelay = 2 * time.Second

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxRetries)
	assert.Equal(t, 2*time.Second, policy.InitialDelay)
	assert.True(t, policy.Jitter)
}
