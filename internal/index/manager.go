// Package index orchestrates indexing runs: scanning documents, diffing
// fingerprints against the manifest, embedding changed content and
// keeping the vector index and manifest in step.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/docq/docq/internal/chunk"
	docqerrors "github.com/docq/docq/internal/errors"
	"github.com/docq/docq/internal/loader"
	"github.com/docq/docq/internal/manifest"
	"github.com/docq/docq/internal/scanner"
	"github.com/docq/docq/internal/store"
)

// Embedder is the subset of the embedding gateway the manager needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Deps carries the manager's collaborators.
type Deps struct {
	Logger    *slog.Logger
	Registry  *loader.Registry
	Scanner   *scanner.Scanner
	Splitter  *chunk.Splitter
	Embedder  Embedder
	Vectors   store.VectorStore
	Manifest  *manifest.Store
	Lock      *RunLock
	IndexPath string

	// DocsDir is the directory scanned for documents.
	DocsDir string
	// Extensions restricts scanning; empty means all supported.
	Extensions []string
	// Concurrency bounds parallel extraction and embedding. Zero means 1.
	Concurrency int

	// NewStore produces a fresh empty vector store for rebuilds.
	NewStore func() (store.VectorStore, error)
}

// Manager runs the indexing state machine. At most one run is active at
// a time; concurrent Run calls and concurrent processes are rejected.
type Manager struct {
	deps Deps
	mu   sync.Mutex
}

// DocFailure records a document skipped during a run.
type DocFailure struct {
	DocID string
	Err   error
}

// RunResult summarizes one indexing run.
type RunResult struct {
	RunID         string
	Added         int
	Changed       int
	Removed       int
	Unchanged     int
	ChunksIndexed int
	Failed        []DocFailure
	Duration      time.Duration
}

// NewManager creates a Manager.
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 1
	}
	return &Manager{deps: deps}
}

// extracted is a document with its text and fingerprint resolved.
type extracted struct {
	doc         loader.Document
	text        string
	fingerprint string
}

// Run performs one incremental indexing pass. Per-document failures are
// collected in the result rather than aborting the run; the returned
// error covers infrastructure failures only.
func (m *Manager) Run(ctx context.Context) (*RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acquired, err := m.deps.Lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("another indexing run is in progress")
	}
	defer func() { _ = m.deps.Lock.Unlock() }()

	started := time.Now()
	result := &RunResult{RunID: uuid.NewString()}
	logger := m.deps.Logger.With("run_id", result.RunID)
	logger.Info("indexing run started", "docs_dir", m.deps.DocsDir)

	docs, err := m.deps.Scanner.Scan(ctx, scanner.Options{
		RootDir:    m.deps.DocsDir,
		Extensions: m.deps.Extensions,
	})
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}

	byID, failed := m.extractAll(ctx, docs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Failed = failed

	current := make(map[string]string, len(byID))
	for id, e := range byID {
		current[id] = e.fingerprint
	}

	delta, err := m.deps.Manifest.Diff(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("diff manifest: %w", err)
	}

	// A document whose extraction failed is skipped, not removed: its
	// previously indexed content stays live.
	failedSet := make(map[string]bool, len(failed))
	for _, f := range failed {
		failedSet[f.DocID] = true
	}
	removed := delta.Removed[:0:0]
	for _, id := range delta.Removed {
		if !failedSet[id] {
			removed = append(removed, id)
		}
	}

	result.Unchanged = len(delta.Unchanged)
	result.Removed = len(removed)

	if err := m.removeDocuments(ctx, removed, logger); err != nil {
		return nil, err
	}

	toIndex := make([]string, 0, len(delta.Added)+len(delta.Changed))
	toIndex = append(toIndex, delta.Added...)
	toIndex = append(toIndex, delta.Changed...)

	indexed, indexFailed, err := m.indexDocuments(ctx, toIndex, byID, logger)
	if err != nil {
		return nil, err
	}
	result.Failed = append(result.Failed, indexFailed...)
	failedIndexSet := make(map[string]bool, len(indexFailed))
	for _, f := range indexFailed {
		failedIndexSet[f.DocID] = true
	}
	for _, id := range delta.Added {
		if !failedIndexSet[id] {
			result.Added++
		}
	}
	for _, id := range delta.Changed {
		if !failedIndexSet[id] {
			result.Changed++
		}
	}
	result.ChunksIndexed = indexed

	if err := m.deps.Vectors.Save(m.deps.IndexPath); err != nil {
		return nil, fmt.Errorf("save vector index: %w", err)
	}
	if err := m.deps.Manifest.SetState(ctx, "last_run_id", result.RunID); err != nil {
		return nil, err
	}
	if err := m.deps.Manifest.SetState(ctx, "last_run_at", started.UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}

	result.Duration = time.Since(started)
	logger.Info("indexing run finished",
		"added", result.Added,
		"changed", result.Changed,
		"removed", result.Removed,
		"unchanged", result.Unchanged,
		"chunks_indexed", result.ChunksIndexed,
		"failed", len(result.Failed),
		"duration", result.Duration)
	return result, nil
}

// extractAll extracts text and fingerprints for every document, bounded
// by the configured concurrency. Failures are collected per document.
func (m *Manager) extractAll(ctx context.Context, docs []loader.Document) (map[string]extracted, []DocFailure) {
	var (
		mu     sync.Mutex
		byID   = make(map[string]extracted, len(docs))
		failed []DocFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(m.deps.Concurrency))
	for _, doc := range docs {
		doc := doc
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			text, err := m.deps.Registry.ExtractText(gctx, doc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				m.deps.Logger.Warn("extraction failed", "doc", doc.ID, "error", err)
				failed = append(failed, DocFailure{DocID: doc.ID, Err: err})
				return nil
			}
			byID[doc.ID] = extracted{
				doc:         doc,
				text:        text,
				fingerprint: manifest.Fingerprint(text),
			}
			return nil
		})
	}
	_ = g.Wait()
	return byID, failed
}

// removeDocuments deletes vectors and manifest rows for removed docs.
func (m *Manager) removeDocuments(ctx context.Context, docIDs []string, logger *slog.Logger) error {
	for _, id := range docIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunkIDs, err := m.deps.Manifest.ChunkIDs(ctx, id)
		if err != nil {
			return fmt.Errorf("load chunks for %s: %w", id, err)
		}
		if err := m.deps.Vectors.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("delete vectors for %s: %w", id, err)
		}
		if err := m.deps.Manifest.DeleteDocuments(ctx, []string{id}); err != nil {
			return fmt.Errorf("delete manifest entry for %s: %w", id, err)
		}
		logger.Info("document removed", "doc", id, "chunks", len(chunkIDs))
	}
	return nil
}

// indexDocuments chunks, embeds and commits added or changed documents.
// Embedding runs in parallel per document; commits are serialized so the
// vector upsert always lands before the manifest row.
func (m *Manager) indexDocuments(ctx context.Context, docIDs []string, byID map[string]extracted, logger *slog.Logger) (int, []DocFailure, error) {
	var (
		commitMu sync.Mutex
		failed   []DocFailure
		indexed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(m.deps.Concurrency))
	for _, docID := range docIDs {
		docID := docID
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			e := byID[docID]
			chunks := m.deps.Splitter.Split(docID, e.text)
			texts := make([]string, len(chunks))
			ids := make([]string, len(chunks))
			for i, c := range chunks {
				texts[i] = c.Text
				ids[i] = c.ID
			}

			var vectors [][]float32
			if len(texts) > 0 {
				var err error
				vectors, err = m.deps.Embedder.EmbedBatch(gctx, texts)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return err
					}
					logger.Warn("embedding failed, skipping document", "doc", docID, "error", err)
					commitMu.Lock()
					failed = append(failed, DocFailure{DocID: docID, Err: err})
					commitMu.Unlock()
					return nil
				}
			}

			commitMu.Lock()
			defer commitMu.Unlock()

			// Vectors land before the manifest row: a crash in between
			// leaves orphan vectors, never unsearchable committed docs.
			// New chunk IDs go in before stale ones come out, so the old
			// version stays searchable until the swap completes.
			oldChunkIDs, err := m.deps.Manifest.ChunkIDs(gctx, docID)
			if err != nil {
				return fmt.Errorf("load previous chunks for %s: %w", docID, err)
			}
			if err := m.deps.Vectors.Upsert(gctx, ids, vectors); err != nil {
				return fmt.Errorf("upsert vectors for %s: %w", docID, err)
			}
			newSet := make(map[string]bool, len(ids))
			for _, id := range ids {
				newSet[id] = true
			}
			var stale []string
			for _, id := range oldChunkIDs {
				if !newSet[id] {
					stale = append(stale, id)
				}
			}
			if err := m.deps.Vectors.Delete(gctx, stale); err != nil {
				return fmt.Errorf("delete stale vectors for %s: %w", docID, err)
			}
			if err := m.deps.Manifest.CommitDocument(gctx, docID, e.fingerprint, chunks); err != nil {
				return fmt.Errorf("commit manifest for %s: %w", docID, err)
			}
			indexed += len(chunks)
			logger.Info("document indexed", "doc", docID, "chunks", len(chunks))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return indexed, failed, err
	}
	return indexed, failed, nil
}

// VerifyResult reports manifest / vector index agreement.
type VerifyResult struct {
	// ManifestChunks is the number of chunks the manifest records.
	ManifestChunks int
	// VectorChunks is the number of vectors in the index.
	VectorChunks int
	// MissingVectors lists chunk IDs in the manifest with no vector.
	MissingVectors []string
	// OrphanVectors lists vectors with no manifest chunk.
	OrphanVectors []string
}

// Consistent reports whether both stores agree.
func (r *VerifyResult) Consistent() bool {
	return len(r.MissingVectors) == 0 && len(r.OrphanVectors) == 0
}

// Verify cross-checks the manifest against the vector index in both
// directions. A populated result is returned alongside a state
// inconsistency error when the stores disagree.
func (m *Manager) Verify(ctx context.Context) (*VerifyResult, error) {
	manifestIDs, err := m.deps.Manifest.AllChunkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load manifest chunk ids: %w", err)
	}
	vectorIDs := m.deps.Vectors.AllIDs()

	inVectors := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		inVectors[id] = true
	}
	inManifest := make(map[string]bool, len(manifestIDs))
	for _, id := range manifestIDs {
		inManifest[id] = true
	}

	result := &VerifyResult{
		ManifestChunks: len(manifestIDs),
		VectorChunks:   len(vectorIDs),
	}
	for _, id := range manifestIDs {
		if !inVectors[id] {
			result.MissingVectors = append(result.MissingVectors, id)
		}
	}
	for _, id := range vectorIDs {
		if !inManifest[id] {
			result.OrphanVectors = append(result.OrphanVectors, id)
		}
	}

	if !result.Consistent() {
		return result, docqerrors.New(docqerrors.ErrCodeStateInconsistent,
			fmt.Sprintf("manifest and vector index disagree: %d missing vectors, %d orphan vectors",
				len(result.MissingVectors), len(result.OrphanVectors)), nil)
	}
	return result, nil
}

// Repair deletes orphan vectors and re-marks documents with missing
// vectors as changed by dropping them from the manifest, so the next
// run re-indexes them.
func (m *Manager) Repair(ctx context.Context) error {
	result, err := m.Verify(ctx)
	if err != nil && result == nil {
		return err
	}
	if result.Consistent() {
		return nil
	}

	if err := m.deps.Vectors.Delete(ctx, result.OrphanVectors); err != nil {
		return fmt.Errorf("delete orphan vectors: %w", err)
	}

	if len(result.MissingVectors) > 0 {
		hydrated, err := m.deps.Manifest.Hydrate(ctx, result.MissingVectors)
		if err != nil {
			return fmt.Errorf("hydrate missing chunks: %w", err)
		}
		docSet := make(map[string]bool)
		for _, hc := range hydrated {
			docSet[hc.DocID] = true
		}
		docIDs := make([]string, 0, len(docSet))
		for id := range docSet {
			docIDs = append(docIDs, id)
		}
		if err := m.deps.Manifest.DeleteDocuments(ctx, docIDs); err != nil {
			return fmt.Errorf("drop documents with missing vectors: %w", err)
		}
	}

	if err := m.deps.Vectors.Save(m.deps.IndexPath); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	m.deps.Logger.Info("repair complete",
		"orphans_deleted", len(result.OrphanVectors),
		"docs_requeued", len(result.MissingVectors))
	return nil
}

// Rebuild discards the manifest and vector index and runs a full
// indexing pass from scratch.
func (m *Manager) Rebuild(ctx context.Context) (*RunResult, error) {
	if m.deps.NewStore == nil {
		return nil, fmt.Errorf("rebuild requires a store factory")
	}

	m.mu.Lock()
	if err := m.deps.Manifest.Reset(ctx); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("reset manifest: %w", err)
	}
	fresh, err := m.deps.NewStore()
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("create fresh vector store: %w", err)
	}
	_ = m.deps.Vectors.Close()
	m.deps.Vectors = fresh
	m.mu.Unlock()

	m.deps.Logger.Info("rebuilding index from scratch")
	return m.Run(ctx)
}
