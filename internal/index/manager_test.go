package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docq/docq/internal/chunk"
	"github.com/docq/docq/internal/embed"
	docqerrors "github.com/docq/docq/internal/errors"
	"github.com/docq/docq/internal/loader"
	"github.com/docq/docq/internal/manifest"
	"github.com/docq/docq/internal/scanner"
	"github.com/docq/docq/internal/store"
)

// countingEmbedder tracks how many texts were actually embedded.
type countingEmbedder struct {
	inner embed.Embedder
	calls int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls += len(texts)
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

type testEnv struct {
	docsDir  string
	manager  *Manager
	manifest *manifest.Store
	vectors  store.VectorStore
	embedder *countingEmbedder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	docsDir := t.TempDir()
	dataDir := t.TempDir()

	man, err := manifest.Open(filepath.Join(dataDir, "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = man.Close() })

	storeCfg := store.Config{Dimensions: embed.StaticDimensions}
	vectors, err := store.NewHNSWStore(storeCfg)
	require.NoError(t, err)

	embedder := &countingEmbedder{inner: embed.NewStaticEmbedder()}
	registry := loader.DefaultRegistry()

	mgr := NewManager(Deps{
		Registry:    registry,
		Scanner:     scanner.New(registry, nil),
		Splitter:    chunk.NewSplitter(100, 20, 30),
		Embedder:    embedder,
		Vectors:     vectors,
		Manifest:    man,
		Lock:        NewRunLock(dataDir),
		IndexPath:   filepath.Join(dataDir, "vectors.hnsw"),
		DocsDir:     docsDir,
		Concurrency: 2,
		NewStore: func() (store.VectorStore, error) {
			return store.NewHNSWStore(storeCfg)
		},
	})

	return &testEnv{
		docsDir:  docsDir,
		manager:  mgr,
		manifest: man,
		vectors:  vectors,
		embedder: embedder,
	}
}

func (env *testEnv) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(env.docsDir, name), []byte(content), 0o644))
}

func (env *testEnv) remove(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(env.docsDir, name)))
}

func TestRun_InitialIndexing(t *testing.T) {
	// Given two fresh documents
	env := newTestEnv(t)
	env.write(t, "a.txt", "alpha document content")
	env.write(t, "b.txt", "beta document content")

	// When running the first indexing pass
	result, err := env.manager.Run(context.Background())

	// Then both documents are added and their chunks land in both stores
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Zero(t, result.Changed)
	assert.Zero(t, result.Removed)
	assert.Zero(t, result.Unchanged)
	assert.Empty(t, result.Failed)
	assert.NotEmpty(t, result.RunID)

	ctx := context.Background()
	docs, chunks, err := env.manifest.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, docs)
	assert.Equal(t, chunks, env.manager.deps.Vectors.Count())
	assert.Equal(t, result.ChunksIndexed, chunks)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	// Given an already indexed corpus
	env := newTestEnv(t)
	env.write(t, "a.txt", "alpha document content")
	env.write(t, "b.txt", "beta document content")
	_, err := env.manager.Run(context.Background())
	require.NoError(t, err)
	embedsAfterFirst := env.embedder.calls

	// When running again without any file changes
	result, err := env.manager.Run(context.Background())

	// Then nothing is re-embedded
	require.NoError(t, err)
	assert.Zero(t, result.Added)
	assert.Zero(t, result.Changed)
	assert.Zero(t, result.Removed)
	assert.Equal(t, 2, result.Unchanged)
	assert.Equal(t, embedsAfterFirst, env.embedder.calls)
}

func TestRun_TouchWithoutContentChange(t *testing.T) {
	// Given an indexed document rewritten with identical content
	env := newTestEnv(t)
	env.write(t, "a.txt", "same content")
	_, err := env.manager.Run(context.Background())
	require.NoError(t, err)
	before := env.embedder.calls

	env.write(t, "a.txt", "same content") // new mtime, same bytes

	// When running again
	result, err := env.manager.Run(context.Background())

	// Then fingerprints match and nothing is re-embedded
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Zero(t, result.Changed)
	assert.Equal(t, before, env.embedder.calls)
}

func TestRun_IncrementalChange(t *testing.T) {
	// Given two indexed documents
	env := newTestEnv(t)
	env.write(t, "a.txt", "alpha original")
	env.write(t, "b.txt", "beta original")
	_, err := env.manager.Run(context.Background())
	require.NoError(t, err)

	// When one changes
	env.write(t, "a.txt", "alpha revised content")
	result, err := env.manager.Run(context.Background())

	// Then only the changed document is re-indexed
	require.NoError(t, err)
	assert.Zero(t, result.Added)
	assert.Equal(t, 1, result.Changed)
	assert.Equal(t, 1, result.Unchanged)

	// And the stores stay consistent
	verify, err := env.manager.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, verify.Consistent())
}

func TestRun_RemovedDocument(t *testing.T) {
	// Given two indexed documents
	env := newTestEnv(t)
	env.write(t, "a.txt", "alpha content")
	env.write(t, "b.txt", "beta content")
	_, err := env.manager.Run(context.Background())
	require.NoError(t, err)

	// When one is deleted from disk
	env.remove(t, "a.txt")
	result, err := env.manager.Run(context.Background())

	// Then its chunks disappear from both stores
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Unchanged)

	ctx := context.Background()
	docs, _, err := env.manifest.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, docs)

	ids, err := env.manifest.ChunkIDs(ctx, "a.txt")
	require.NoError(t, err)
	assert.Empty(t, ids)

	verify, err := env.manager.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, verify.Consistent())
}

func TestRun_MultiChunkDocument(t *testing.T) {
	// Given a document long enough to split into several chunks
	env := newTestEnv(t)
	env.write(t, "long.txt", strings.Repeat("lorem ipsum dolor sit amet ", 20))

	result, err := env.manager.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Greater(t, result.ChunksIndexed, 1)

	ids, err := env.manifest.ChunkIDs(context.Background(), "long.txt")
	require.NoError(t, err)
	assert.Len(t, ids, result.ChunksIndexed)
}

type failingRunner struct{}

func (failingRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, errors.New("pdftotext exploded")
}

func TestRun_PartialFailureSkipsDocument(t *testing.T) {
	// Given one healthy text file and one PDF whose extraction fails
	env := newTestEnv(t)
	registry := loader.NewRegistry(loader.NewPlainText(), loader.NewPDFWithRunner(failingRunner{}))
	env.manager.deps.Registry = registry
	env.manager.deps.Scanner = scanner.New(registry, nil)

	env.write(t, "good.txt", "healthy content")
	env.write(t, "bad.pdf", "%PDF-fake")

	// When running
	result, err := env.manager.Run(context.Background())

	// Then the run succeeds, the good doc is indexed and the failure is reported
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "bad.pdf", result.Failed[0].DocID)
	assert.Error(t, result.Failed[0].Err)
}

func TestRun_ExtractionFailureDoesNotRemoveIndexedDoc(t *testing.T) {
	// Given a PDF indexed successfully via a working runner
	env := newTestEnv(t)
	okRunner := stubRunner{out: []byte("extracted pdf text")}
	registry := loader.NewRegistry(loader.NewPlainText(), loader.NewPDFWithRunner(okRunner))
	env.manager.deps.Registry = registry
	env.manager.deps.Scanner = scanner.New(registry, nil)
	env.write(t, "doc.pdf", "%PDF-fake")
	_, err := env.manager.Run(context.Background())
	require.NoError(t, err)

	// When the next run's extraction fails for that document
	registry = loader.NewRegistry(loader.NewPlainText(), loader.NewPDFWithRunner(failingRunner{}))
	env.manager.deps.Registry = registry
	env.manager.deps.Scanner = scanner.New(registry, nil)
	result, err := env.manager.Run(context.Background())

	// Then the document is skipped, not removed
	require.NoError(t, err)
	assert.Zero(t, result.Removed)
	require.Len(t, result.Failed, 1)

	docs, _, err := env.manifest.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
}

type stubRunner struct{ out []byte }

func (s stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return s.out, nil
}

func TestVerify_DetectsOrphanVectors(t *testing.T) {
	// Given a consistent index with one rogue vector added behind the
	// manager's back
	env := newTestEnv(t)
	env.write(t, "a.txt", "content")
	_, err := env.manager.Run(context.Background())
	require.NoError(t, err)

	rogue := make([]float32, embed.StaticDimensions)
	rogue[0] = 1
	require.NoError(t, env.vectors.Upsert(context.Background(), []string{"rogue-chunk"}, [][]float32{rogue}))

	// When verifying
	result, err := env.manager.Verify(context.Background())

	// Then the orphan is reported as state inconsistency
	require.Error(t, err)
	assert.Equal(t, docqerrors.ErrCodeStateInconsistent, docqerrors.GetCode(err))
	require.NotNil(t, result)
	assert.False(t, result.Consistent())
	assert.Equal(t, []string{"rogue-chunk"}, result.OrphanVectors)
}

func TestRun_ReindexesDocWithUncommittedVectors(t *testing.T) {
	// Given a document whose chunk vectors landed but whose manifest
	// commit never did, as after a crash mid-run
	env := newTestEnv(t)
	content := "gamma document content for crash recovery"
	env.write(t, "c.txt", content)

	ctx := context.Background()
	chunks := chunk.NewSplitter(100, 20, 30).Split("c.txt", content)
	require.NotEmpty(t, chunks)
	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		texts[i] = c.Text
	}
	vecs, err := embed.NewStaticEmbedder().EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.NoError(t, env.vectors.Upsert(ctx, ids, vecs))

	// When the next run picks the document up
	result, err := env.manager.Run(ctx)

	// Then it is re-embedded as a fresh addition and both stores agree
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Empty(t, result.Failed)
	assert.Equal(t, len(chunks), env.embedder.calls)

	verify, err := env.manager.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, verify.Consistent())
	assert.Equal(t, len(chunks), env.vectors.Count())
}

func TestRepair_RestoresConsistency(t *testing.T) {
	// Given an index with an orphan vector and a manifest-only chunk
	env := newTestEnv(t)
	env.write(t, "a.txt", "alpha content")
	env.write(t, "b.txt", "beta content")
	ctx := context.Background()
	_, err := env.manager.Run(ctx)
	require.NoError(t, err)

	rogue := make([]float32, embed.StaticDimensions)
	rogue[0] = 1
	require.NoError(t, env.vectors.Upsert(ctx, []string{"rogue-chunk"}, [][]float32{rogue}))

	bChunks, err := env.manifest.ChunkIDs(ctx, "b.txt")
	require.NoError(t, err)
	require.NoError(t, env.vectors.Delete(ctx, bChunks))

	// When repairing and re-running
	require.NoError(t, env.manager.Repair(ctx))
	result, err := env.manager.Run(ctx)
	require.NoError(t, err)

	// Then the dropped document is re-indexed and stores agree again
	assert.Equal(t, 1, result.Added)
	verify, err := env.manager.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, verify.Consistent())
}

func TestRebuild(t *testing.T) {
	// Given an indexed corpus
	env := newTestEnv(t)
	env.write(t, "a.txt", "alpha content")
	env.write(t, "b.txt", "beta content")
	ctx := context.Background()
	_, err := env.manager.Run(ctx)
	require.NoError(t, err)

	// When rebuilding
	result, err := env.manager.Rebuild(ctx)

	// Then everything is re-indexed from scratch into consistent stores
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Zero(t, result.Unchanged)

	verify, err := env.manager.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, verify.Consistent())
}

func TestRun_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.txt", "content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.manager.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_PersistsStateAcrossReopen(t *testing.T) {
	// Given a completed run whose index was saved
	env := newTestEnv(t)
	env.write(t, "a.txt", "persistent content")
	ctx := context.Background()
	result, err := env.manager.Run(ctx)
	require.NoError(t, err)

	// When loading the saved index into a fresh store
	loaded, err := store.NewHNSWStore(store.Config{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	defer func() { _ = loaded.Close() }()
	require.NoError(t, loaded.Load(env.manager.deps.IndexPath))

	// Then the vectors and run state survived
	assert.Equal(t, result.ChunksIndexed, loaded.Count())

	runID, err := env.manifest.GetState(ctx, "last_run_id")
	require.NoError(t, err)
	assert.Equal(t, result.RunID, runID)
}
