package embed

import (
	"context"
	"fmt"
	"os"

	"github.com/docq/docq/internal/config"
	docqerrors "github.com/docq/docq/internal/errors"
)

// New builds the configured embedder stack: provider, wrapped with
// retries, wrapped with an LRU cache.
func New(ctx context.Context, cfg *config.Config) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Embeddings.Provider {
	case "ollama":
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Embeddings.Host,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			Timeout:    cfg.Embeddings.Timeout,
		})
	case "openai":
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BaseURL:    cfg.Embeddings.Host,
		})
	case "static":
		inner = NewStaticEmbedder()
	default:
		return nil, docqerrors.New(docqerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embedding provider %q", cfg.Embeddings.Provider), nil)
	}
	if err != nil {
		return nil, docqerrors.Wrap(docqerrors.ErrCodeEmbeddingUnavailable, err)
	}

	retried := NewRetryingEmbedder(inner, cfg.RetryPolicy())
	return NewCachedEmbedder(retried, cfg.Embeddings.CacheSize), nil
}
