package retrieve

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docq/docq/internal/chunk"
	"github.com/docq/docq/internal/embed"
	docqerrors "github.com/docq/docq/internal/errors"
	"github.com/docq/docq/internal/manifest"
	"github.com/docq/docq/internal/store"
)

type fixture struct {
	retriever *Retriever
	manifest  *manifest.Store
	vectors   *store.HNSWStore
	embedder  embed.Embedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	man, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = man.Close() })

	vectors, err := store.NewHNSWStore(store.Config{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	embedder := embed.NewStaticEmbedder()
	return &fixture{
		retriever: New(embedder, vectors, man, Config{K: 5}),
		manifest:  man,
		vectors:   vectors,
		embedder:  embedder,
	}
}

// index commits a document's chunks to the manifest and vector store.
func (f *fixture) index(t *testing.T, docID string, texts ...string) []chunk.Chunk {
	t.Helper()
	ctx := context.Background()

	chunks := make([]chunk.Chunk, len(texts))
	ids := make([]string, len(texts))
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = chunk.Chunk{
			ID:    chunk.ChunkID(docID, i, text),
			DocID: docID,
			Seq:   i,
			Text:  text,
		}
		ids[i] = chunks[i].ID
		vec, err := f.embedder.Embed(ctx, text)
		require.NoError(t, err)
		vecs[i] = vec
	}

	require.NoError(t, f.vectors.Upsert(ctx, ids, vecs))
	require.NoError(t, f.manifest.CommitDocument(ctx, docID, manifest.Fingerprint(docID), chunks))
	return chunks
}

func TestRetrieve_RanksExactMatchFirst(t *testing.T) {
	// Given two documents with distinct content
	f := newFixture(t)
	f.index(t, "cooking.md", "how to bake sourdough bread at home")
	f.index(t, "astronomy.md", "observing jupiter through a telescope")

	// When querying with one document's exact text
	result, err := f.retriever.Retrieve(context.Background(), "how to bake sourdough bread at home")

	// Then that document's chunk ranks first with the top score
	require.NoError(t, err)
	require.NotEmpty(t, result.Passages)
	first := result.Passages[0]
	assert.Equal(t, "cooking.md", first.DocID)
	assert.Equal(t, "how to bake sourdough bread at home", first.Text)
	assert.InDelta(t, 1.0, float64(first.Score), 0.001)
	for _, p := range result.Passages[1:] {
		assert.LessOrEqual(t, p.Score, first.Score)
	}
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	f := newFixture(t)

	result, err := f.retriever.Retrieve(context.Background(), "anything")

	require.NoError(t, err)
	assert.Empty(t, result.Passages)
	assert.Equal(t, "anything", result.Query)
}

func TestRetrieve_KLimitsResults(t *testing.T) {
	// Given five indexed chunks
	f := newFixture(t)
	f.index(t, "doc.md",
		"first section about gophers",
		"second section about gophers",
		"third section about gophers",
		"fourth section about gophers",
		"fifth section about gophers")

	// When retrieving with k=2
	result, err := f.retriever.Retrieve(context.Background(), "gophers", WithK(2))

	require.NoError(t, err)
	assert.Len(t, result.Passages, 2)
}

func TestRetrieve_DeletedChunksNeverSurface(t *testing.T) {
	// Given document A with three chunks and document B with two, then A deleted
	f := newFixture(t)
	aChunks := f.index(t, "a.md",
		"shared topic passage one",
		"shared topic passage two",
		"shared topic passage three")
	f.index(t, "b.md",
		"shared topic passage four",
		"shared topic passage five")

	ctx := context.Background()
	ids := make([]string, len(aChunks))
	for i, c := range aChunks {
		ids[i] = c.ID
	}
	require.NoError(t, f.vectors.Delete(ctx, ids))
	require.NoError(t, f.manifest.DeleteDocuments(ctx, []string{"a.md"}))

	// When retrieving
	result, err := f.retriever.Retrieve(ctx, "shared topic passage", WithK(2))

	// Then only document B's chunks appear
	require.NoError(t, err)
	require.Len(t, result.Passages, 2)
	for _, p := range result.Passages {
		assert.Equal(t, "b.md", p.DocID)
	}
}

func TestRetrieve_MinScoreFiltersEverything(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc.md", "completely unrelated content about knitting")

	result, err := f.retriever.Retrieve(context.Background(),
		"quantum chromodynamics lattice simulations", WithMinScore(0.99))

	require.NoError(t, err)
	assert.Empty(t, result.Passages)
}

func TestRetrieve_PerDocumentDedupe(t *testing.T) {
	// Given one document dominating the topic and another touching it
	f := newFixture(t)
	f.index(t, "dominant.md",
		"gopher burrow habits in detail",
		"more gopher burrow habits",
		"even more gopher burrow habits")
	f.index(t, "other.md", "a single note on gopher burrow habits")

	// When retrieving with per-document dedupe
	result, err := f.retriever.Retrieve(context.Background(),
		"gopher burrow habits", WithK(3), WithPerDocument(true))

	// Then each document contributes at most one passage
	require.NoError(t, err)
	seen := make(map[string]int)
	for _, p := range result.Passages {
		seen[p.DocID]++
	}
	for docID, n := range seen {
		assert.Equal(t, 1, n, "document %s appeared %d times", docID, n)
	}
	assert.Len(t, result.Passages, 2)
}

func TestRetrieve_TieOrdering(t *testing.T) {
	// Given identical text indexed under two documents (identical vectors)
	f := newFixture(t)
	f.index(t, "b.md", "identical passage text")
	f.index(t, "a.md", "identical passage text")

	result, err := f.retriever.Retrieve(context.Background(), "identical passage text", WithK(2))

	// Then equal scores break ties by document ID
	require.NoError(t, err)
	require.Len(t, result.Passages, 2)
	assert.Equal(t, result.Passages[0].Score, result.Passages[1].Score)
	assert.Equal(t, "a.md", result.Passages[0].DocID)
	assert.Equal(t, "b.md", result.Passages[1].DocID)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("provider down")
}

func TestRetrieve_EmbedderFailure(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc.md", "some content")
	f.retriever.embedder = failingEmbedder{}

	_, err := f.retriever.Retrieve(context.Background(), "query")

	require.Error(t, err)
	assert.Equal(t, docqerrors.ErrCodeRetrievalUnavailable, docqerrors.GetCode(err))
}

func TestRetrieve_WarnsOnHitWithoutManifestChunk(t *testing.T) {
	// Given an indexed document plus a vector the manifest knows nothing
	// about
	f := newFixture(t)
	f.index(t, "notes.md", "release checklist for the gateway service")

	ctx := context.Background()
	orphanVec, err := f.embedder.Embed(ctx, "release checklist for the gateway service")
	require.NoError(t, err)
	require.NoError(t, f.vectors.Upsert(ctx, []string{"orphan-chunk"}, [][]float32{orphanVec}))

	var logs bytes.Buffer
	retriever := New(f.embedder, f.vectors, f.manifest, Config{
		K:      5,
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	})

	// When querying
	result, err := retriever.Retrieve(ctx, "release checklist for the gateway service")

	// Then the stray vector is skipped and the skip is logged
	require.NoError(t, err)
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "notes.md", result.Passages[0].DocID)
	assert.Contains(t, logs.String(), "WARN")
	assert.Contains(t, logs.String(), "orphan-chunk")
}
