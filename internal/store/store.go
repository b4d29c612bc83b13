// Package store provides the approximate nearest neighbor index holding
// chunk embedding vectors.
package store

import (
	"context"
	"fmt"
)

// Config configures a vector store.
type Config struct {
	// Dimensions is the embedding vector size. Required.
	Dimensions int
	// Metric is the distance metric: "cos" (default) or "l2".
	Metric string
	// M is the HNSW connectivity parameter. Zero applies the default.
	M int
	// EfSearch is the HNSW search breadth. Zero applies the default.
	EfSearch int
}

// Result is a single nearest neighbor hit.
type Result struct {
	// ChunkID identifies the matched chunk.
	ChunkID string
	// Distance is the raw metric distance to the query.
	Distance float32
	// Score is the normalized similarity in [0, 1], higher is better.
	Score float32
}

// VectorStore stores chunk vectors keyed by chunk ID and answers
// k-nearest-neighbor queries.
type VectorStore interface {
	// Upsert inserts or replaces vectors under their chunk IDs.
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error

	// Delete removes vectors by chunk ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Search returns up to k nearest neighbors ordered by score descending.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)

	// AllIDs returns every chunk ID currently stored.
	AllIDs() []string

	// Contains reports whether a chunk ID is stored.
	Contains(id string) bool

	// Count returns the number of stored vectors.
	Count() int

	// Save persists the index to path atomically.
	Save(path string) error

	// Load restores the index from path.
	Load(path string) error

	// Close releases resources. The store is unusable afterwards.
	Close() error
}

// DimensionMismatchError reports a vector whose size does not match the
// store's configured dimensionality.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
