package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docq/docq/internal/chunk"
	"github.com/docq/docq/internal/config"
	"github.com/docq/docq/internal/embed"
	docqerrors "github.com/docq/docq/internal/errors"
	"github.com/docq/docq/internal/loader"
	"github.com/docq/docq/internal/manifest"
	"github.com/docq/docq/internal/scanner"
	"github.com/docq/docq/internal/store"
)

// Engine bundles a wired Manager with the stores it owns, so commands
// can open everything in one call and close it in another.
type Engine struct {
	Manager  *Manager
	Manifest *manifest.Store
	Vectors  store.VectorStore
	Embedder embed.Embedder

	IndexPath    string
	ManifestPath string
}

// Open wires a full engine from configuration: manifest database,
// vector index, embedder and manager.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	manifestPath := filepath.Join(cfg.Paths.DataDir, "manifest.db")
	indexPath := filepath.Join(cfg.Paths.DataDir, "vectors.hnsw")

	man, err := manifest.Open(manifestPath)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.New(ctx, cfg)
	if err != nil {
		_ = man.Close()
		return nil, err
	}

	dims := embedder.Dimensions()
	storedDims, err := store.ReadStoredDimensions(indexPath)
	if err != nil {
		_ = man.Close()
		_ = embedder.Close()
		return nil, err
	}
	if storedDims != 0 && storedDims != dims {
		_ = man.Close()
		_ = embedder.Close()
		return nil, docqerrors.New(docqerrors.ErrCodeStateInconsistent,
			fmt.Sprintf("existing index has %d dimensions but embedder produces %d; rebuild required",
				storedDims, dims), nil)
	}

	storeCfg := store.Config{Dimensions: dims, Metric: cfg.Index.Metric}
	vectors, err := store.NewHNSWStore(storeCfg)
	if err != nil {
		_ = man.Close()
		_ = embedder.Close()
		return nil, err
	}
	if _, statErr := os.Stat(indexPath); statErr == nil {
		if err := vectors.Load(indexPath); err != nil {
			_ = man.Close()
			_ = embedder.Close()
			_ = vectors.Close()
			return nil, err
		}
	}

	registry := loader.DefaultRegistry()
	mgr := NewManager(Deps{
		Logger:      logger,
		Registry:    registry,
		Scanner:     scanner.New(registry, logger),
		Splitter:    chunk.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Chunking.MinChunk),
		Embedder:    embedder,
		Vectors:     vectors,
		Manifest:    man,
		Lock:        NewRunLock(cfg.Paths.DataDir),
		IndexPath:   indexPath,
		DocsDir:     cfg.Paths.DocsDir,
		Extensions:  cfg.Paths.Extensions,
		Concurrency: cfg.Embeddings.Concurrency,
		NewStore: func() (store.VectorStore, error) {
			return store.NewHNSWStore(storeCfg)
		},
	})

	return &Engine{
		Manager:      mgr,
		Manifest:     man,
		Vectors:      vectors,
		Embedder:     embedder,
		IndexPath:    indexPath,
		ManifestPath: manifestPath,
	}, nil
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.Embedder.Close(); err != nil {
		firstErr = err
	}
	// The manager may have swapped the vector store during a rebuild.
	if v := e.Manager.deps.Vectors; v != nil {
		if err := v.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.Manifest.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
