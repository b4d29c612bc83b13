// Package config loads and validates docq configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Project config (.docq.yaml in the working directory)
//  3. Environment variables (DOCQ_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docq/docq/internal/errors"
)

// Config represents the complete docq configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Index      IndexConfig      `yaml:"index"`
	Retry      RetryConfig      `yaml:"retry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig configures where documents and index data live.
type PathsConfig struct {
	// DocsDir is the directory scanned for source documents.
	DocsDir string `yaml:"docs_dir"`
	// DataDir holds the manifest and vector store.
	DataDir string `yaml:"data_dir"`
	// Extensions are the file extensions considered for indexing.
	Extensions []string `yaml:"extensions"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	// Size is the target chunk size in characters.
	Size int `yaml:"size"`
	// Overlap is the number of characters shared by adjacent chunks.
	Overlap int `yaml:"overlap"`
	// MinChunk is the minimum chunk size; a shorter tail is merged into
	// the previous chunk unless it is the only chunk of the document.
	MinChunk int `yaml:"min_chunk"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "ollama", "openai" or "static".
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Host is the Ollama API endpoint (ollama provider only).
	Host string `yaml:"host"`
	// Dimensions is the embedding dimension. 0 auto-detects from the provider.
	Dimensions int `yaml:"dimensions"`
	// Concurrency bounds parallel embedding calls during indexing.
	Concurrency int `yaml:"concurrency"`
	// Timeout is the per-request embedding timeout.
	Timeout time.Duration `yaml:"timeout"`
	// CacheSize is the number of query embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size"`
}

// RetrievalConfig configures query-time behavior.
type RetrievalConfig struct {
	// TopK is the default number of passages returned.
	TopK int `yaml:"top_k"`
	// MinScore drops results below this similarity. 0 disables the threshold.
	MinScore float64 `yaml:"min_score"`
	// PerDocument limits results to one chunk per document when true.
	PerDocument bool `yaml:"per_document"`
}

// IndexConfig configures the vector index.
type IndexConfig struct {
	// Metric is the similarity metric: "cos" (default) or "l2".
	Metric string `yaml:"metric"`
}

// RetryConfig configures the embedding gateway retry policy.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Chunker and retrieval defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 50
	DefaultMinChunk     = 200
	DefaultTopK         = 5
)

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Paths: PathsConfig{
			DocsDir:    "docs",
			DataDir:    ".docq",
			Extensions: []string{".pdf", ".md", ".txt"},
		},
		Chunking: ChunkingConfig{
			Size:     DefaultChunkSize,
			Overlap:  DefaultChunkOverlap,
			MinChunk: DefaultMinChunk,
		},
		Embeddings: EmbeddingsConfig{
			Provider:    "ollama",
			Model:       "nomic-embed-text",
			Host:        "", // empty uses the provider default
			Dimensions:  0,  // auto-detect
			Concurrency: runtime.NumCPU(),
			Timeout:     60 * time.Second,
			CacheSize:   1000,
		},
		Retrieval: RetrievalConfig{
			TopK:        DefaultTopK,
			MinScore:    0,
			PerDocument: false,
		},
		Index: IndexConfig{
			Metric: "cos",
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     16 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from dir, applying file and env overrides on
// top of defaults, and validates the result.
func Load(dir string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .docq.yaml or .docq.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".docq.yaml", ".docq.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	// No config file is fine - use defaults.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeConfigInvalid, err, "failed to read config file %s", path)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errors.Wrapf(errors.ErrCodeConfigInvalid, err, "failed to parse config file %s", path)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Paths.DocsDir != "" {
		c.Paths.DocsDir = other.Paths.DocsDir
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if len(other.Paths.Extensions) > 0 {
		c.Paths.Extensions = other.Paths.Extensions
	}

	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}
	if other.Chunking.MinChunk != 0 {
		c.Chunking.MinChunk = other.Chunking.MinChunk
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Host != "" {
		c.Embeddings.Host = other.Embeddings.Host
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.Concurrency != 0 {
		c.Embeddings.Concurrency = other.Embeddings.Concurrency
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.MinScore != 0 {
		c.Retrieval.MinScore = other.Retrieval.MinScore
	}
	if other.Retrieval.PerDocument {
		c.Retrieval.PerDocument = true
	}

	if other.Index.Metric != "" {
		c.Index.Metric = other.Index.Metric
	}

	if other.Retry.MaxRetries != 0 {
		c.Retry.MaxRetries = other.Retry.MaxRetries
	}
	if other.Retry.InitialDelay != 0 {
		c.Retry.InitialDelay = other.Retry.InitialDelay
	}
	if other.Retry.MaxDelay != 0 {
		c.Retry.MaxDelay = other.Retry.MaxDelay
	}
	if other.Retry.Multiplier != 0 {
		c.Retry.Multiplier = other.Retry.Multiplier
	}
	if other.Retry.Jitter {
		c.Retry.Jitter = true
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies DOCQ_* environment variables (highest precedence).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCQ_DOCS_DIR"); v != "" {
		c.Paths.DocsDir = v
	}
	if v := os.Getenv("DOCQ_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("DOCQ_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.Size = n
		}
	}
	if v := os.Getenv("DOCQ_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.Overlap = n
		}
	}
	if v := os.Getenv("DOCQ_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCQ_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCQ_OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("DOCQ_EMBED_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.Concurrency = n
		}
	}
	if v := os.Getenv("DOCQ_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("DOCQ_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.MinScore = f
		}
	}
	if v := os.Getenv("DOCQ_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for invalid combinations. It fails
// fast with ErrConfigInvalid before any indexing work begins.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunk size must be positive, got %d", c.Chunking.Size), nil)
	}
	if c.Chunking.Overlap < 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunk overlap must be non-negative, got %d", c.Chunking.Overlap), nil)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunk overlap (%d) must be smaller than chunk size (%d)",
				c.Chunking.Overlap, c.Chunking.Size), nil)
	}
	if c.Chunking.MinChunk < 0 || c.Chunking.MinChunk > c.Chunking.Size {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("min chunk (%d) must be between 0 and chunk size (%d)",
				c.Chunking.MinChunk, c.Chunking.Size), nil)
	}

	switch c.Embeddings.Provider {
	case "ollama", "openai", "static":
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embedding provider %q (want ollama, openai or static)",
				c.Embeddings.Provider), nil)
	}
	if c.Embeddings.Concurrency <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("embedding concurrency must be positive, got %d", c.Embeddings.Concurrency), nil)
	}

	switch c.Index.Metric {
	case "cos", "l2":
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown similarity metric %q (want cos or l2)", c.Index.Metric), nil)
	}

	if c.Retrieval.TopK <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("top_k must be positive, got %d", c.Retrieval.TopK), nil)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("min_score must be in [0, 1], got %g", c.Retrieval.MinScore), nil)
	}

	if c.Retry.MaxRetries < 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("max_retries must be non-negative, got %d", c.Retry.MaxRetries), nil)
	}
	if c.Retry.Multiplier < 1 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("retry multiplier must be >= 1, got %g", c.Retry.Multiplier), nil)
	}

	return nil
}

// RetryPolicy converts the retry section into the policy object passed
// to the embedding gateway adapter.
func (c *Config) RetryPolicy() errors.RetryPolicy {
	return errors.RetryPolicy{
		MaxRetries:   c.Retry.MaxRetries,
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   c.Retry.Multiplier,
		Jitter:       c.Retry.Jitter,
	}
}
