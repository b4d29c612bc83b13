// Package retrieve answers semantic queries over the vector index,
// returning ranked passages hydrated from the manifest.
package retrieve

import (
	"context"
	"log/slog"
	"sort"
	"time"

	docqerrors "github.com/docq/docq/internal/errors"
	"github.com/docq/docq/internal/manifest"
	"github.com/docq/docq/internal/store"
)

// DefaultK is the default number of passages returned.
const DefaultK = 5

// Embedder is the subset of the embedding gateway retrieval needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Passage is one retrieved chunk with provenance and similarity score.
type Passage struct {
	ChunkID string
	DocID   string
	Seq     int
	Text    string
	Score   float32
}

// Result is a ranked retrieval outcome.
type Result struct {
	Query    string
	Passages []Passage
	Duration time.Duration
}

// Option adjusts a single retrieval call.
type Option func(*options)

type options struct {
	k           int
	minScore    float32
	perDocument bool
}

// WithK sets the number of passages to return.
func WithK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.k = k
		}
	}
}

// WithMinScore drops passages scoring below the threshold.
func WithMinScore(min float32) Option {
	return func(o *options) { o.minScore = min }
}

// WithPerDocument keeps only the best passage per document.
func WithPerDocument(enabled bool) Option {
	return func(o *options) { o.perDocument = enabled }
}

// Retriever executes semantic queries.
type Retriever struct {
	embedder Embedder
	vectors  store.VectorStore
	manifest *manifest.Store
	logger   *slog.Logger

	defaultK        int
	defaultMinScore float32
	defaultPerDoc   bool
}

// Config sets retriever defaults, overridable per call.
type Config struct {
	K           int
	MinScore    float32
	PerDocument bool
	Logger      *slog.Logger
}

// New creates a Retriever.
func New(embedder Embedder, vectors store.VectorStore, man *manifest.Store, cfg Config) *Retriever {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retriever{
		embedder:        embedder,
		vectors:         vectors,
		manifest:        man,
		logger:          cfg.Logger,
		defaultK:        cfg.K,
		defaultMinScore: cfg.MinScore,
		defaultPerDoc:   cfg.PerDocument,
	}
}

// Retrieve embeds the query, searches the vector index and hydrates the
// winning chunks. An empty index yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) (*Result, error) {
	started := time.Now()

	o := options{
		k:           r.defaultK,
		minScore:    r.defaultMinScore,
		perDocument: r.defaultPerDoc,
	}
	for _, opt := range opts {
		opt(&o)
	}

	result := &Result{Query: query, Passages: []Passage{}}
	if r.vectors.Count() == 0 {
		result.Duration = time.Since(started)
		return result, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, docqerrors.Wrapf(docqerrors.ErrCodeRetrievalUnavailable, err,
			"embed query")
	}

	// Overfetch when deduplicating so one chatty document cannot crowd
	// out the rest before the per-document filter runs.
	fetch := o.k
	if o.perDocument {
		fetch = o.k * 4
	}
	hits, err := r.vectors.Search(ctx, queryVec, fetch)
	if err != nil {
		return nil, docqerrors.Wrapf(docqerrors.ErrCodeRetrievalUnavailable, err,
			"search vector index")
	}
	if len(hits) == 0 {
		result.Duration = time.Since(started)
		return result, nil
	}

	chunkIDs := make([]string, len(hits))
	for i, h := range hits {
		chunkIDs[i] = h.ChunkID
	}
	hydrated, err := r.manifest.Hydrate(ctx, chunkIDs)
	if err != nil {
		return nil, docqerrors.Wrapf(docqerrors.ErrCodeRetrievalUnavailable, err,
			"hydrate chunks")
	}

	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		if h.Score < o.minScore {
			continue
		}
		hc, ok := hydrated[h.ChunkID]
		if !ok {
			// Vector without a manifest chunk; verify/repair can clear it.
			r.logger.Warn("search hit has no manifest chunk, skipping",
				"chunk_id", h.ChunkID)
			continue
		}
		passages = append(passages, Passage{
			ChunkID: h.ChunkID,
			DocID:   hc.DocID,
			Seq:     hc.Seq,
			Text:    hc.Text,
			Score:   h.Score,
		})
	}

	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		if passages[i].DocID != passages[j].DocID {
			return passages[i].DocID < passages[j].DocID
		}
		return passages[i].Seq < passages[j].Seq
	})

	if o.perDocument {
		seen := make(map[string]bool)
		deduped := passages[:0]
		for _, p := range passages {
			if seen[p.DocID] {
				continue
			}
			seen[p.DocID] = true
			deduped = append(deduped, p)
		}
		passages = deduped
	}

	if len(passages) > o.k {
		passages = passages[:o.k]
	}

	result.Passages = passages
	result.Duration = time.Since(started)
	return result, nil
}
