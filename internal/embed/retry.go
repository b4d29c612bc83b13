package embed

import (
	"context"
	"errors"

	docqerrors "github.com/docq/docq/internal/errors"
)

// RetryingEmbedder wraps an Embedder with retry-on-failure. Provider
// errors are classified as transient embedding unavailability and
// retried under the policy's backoff schedule.
type RetryingEmbedder struct {
	inner  Embedder
	policy docqerrors.RetryPolicy
}

var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps inner with the given retry policy.
func NewRetryingEmbedder(inner Embedder, policy docqerrors.RetryPolicy) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, policy: policy}
}

func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	// Preserve caller cancellation so retries stop immediately, even
	// when the HTTP layer has wrapped the context error. A per-request
	// deadline on a still-live parent stays retryable.
	if ctx.Err() != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctx.Err()
	}
	return docqerrors.Wrap(docqerrors.ErrCodeEmbeddingUnavailable, err)
}

// Embed retries Embed failures under the policy.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return docqerrors.RetryWithResult(ctx, r.policy, func() ([]float32, error) {
		vec, err := r.inner.Embed(ctx, text)
		return vec, classify(ctx, err)
	})
}

// EmbedBatch retries EmbedBatch failures under the policy.
func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return docqerrors.RetryWithResult(ctx, r.policy, func() ([][]float32, error) {
		vecs, err := r.inner.EmbedBatch(ctx, texts)
		return vecs, classify(ctx, err)
	})
}

// Dimensions returns the inner embedder's vector size.
func (r *RetryingEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the inner embedder's model identifier.
func (r *RetryingEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Available delegates to the inner embedder.
func (r *RetryingEmbedder) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}

// Close closes the inner embedder.
func (r *RetryingEmbedder) Close() error {
	return r.inner.Close()
}
