// Package embedder provides interfaces and implementations for text
// embedding, including a provider-backed client and a content-addressed
// caching wrapper.
package embedder

import (
	"context"
	"errors"
)

// ErrProviderUnavailable indicates the embedding provider could not be
// reached after bounded retries.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Result is the outcome of embedding one text.
type Result struct {
	// Text is the embedded input.
	Text string

	// Vector is the embedding. Identical (model, text) pairs always
	// yield the identical vector; downstream fusion depends on this.
	Vector []float32

	// Model is the embedding model name.
	Model string

	// TokenCount is the (approximate) token usage attributed to this text.
	TokenCount int

	// FromCache reports whether the vector came from the cache.
	FromCache bool

	// Cost is the provider cost in dollars attributed to this text.
	Cost float64
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed generates a vector embedding for a single text.
	Embed(ctx context.Context, text string) (Result, error)

	// EmbedBatch generates vector embeddings for multiple texts,
	// preserving input order. A provider failure fails the whole batch;
	// items are never silently given zero vectors.
	EmbedBatch(ctx context.Context, texts []string) ([]Result, error)

	// Dimensions returns the dimensionality of the embeddings.
	Dimensions() int

	// Model returns the name of the embedding model being used.
	Model() string
}
