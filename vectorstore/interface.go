// Package vectorstore defines a technology-agnostic abstraction over an
// external vector index: collection lifecycle, point upsert, filtered
// similarity search, and deletion.
package vectorstore

import (
	"context"
	"fmt"
)

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceDot       Distance = "dot"
	DistanceEuclidean Distance = "euclidean"
)

// CollectionConfig describes a named, dimension-typed collection.
type CollectionConfig struct {
	// Name is the collection name.
	Name string

	// Dim is the fixed vector dimension; every inserted vector must match it.
	Dim int

	// Distance is the similarity metric.
	Distance Distance
}

// Vector is a point stored in (or returned from) a collection.
type Vector struct {
	// ID is the unique point identifier (the chunk ID).
	ID string

	// Vector is the embedding. Omitted in search results.
	Vector []float32

	// Text is the chunk text carried in the payload.
	Text string

	// Metadata contains additional key-value pairs.
	Metadata map[string]any

	// Score is the similarity score on search results (higher is more similar).
	Score float32
}

// SearchFilter defines filtering options for similarity search.
type SearchFilter struct {
	// Metadata filters results by exact-match conjunction over key-value pairs.
	Metadata map[string]any

	// ScoreThreshold drops results scoring below it, even inside the top-k.
	ScoreThreshold float32
}

// CollectionStats reports the state of a collection.
type CollectionStats struct {
	Name       string
	PointCount int64
	Dim        int
}

// VectorStore is a technology-agnostic interface for an external vector index.
// Implementations can use Qdrant, Pinecone, Weaviate, or an in-process store.
type VectorStore interface {
	// CreateCollection creates the collection if missing. With recreate
	// set, an existing collection is destroyed and rebuilt.
	CreateCollection(ctx context.Context, cfg CollectionConfig, recreate bool) error

	// Upsert inserts or replaces points by ID. A vector whose length does
	// not match the collection dimension fails with *DimensionMismatchError.
	Upsert(ctx context.Context, collection string, vectors []Vector) error

	// Search performs similarity search with optional filtering.
	Search(ctx context.Context, collection string, vector []float32, k int, filter SearchFilter) ([]Vector, error)

	// Fetch retrieves points by ID, including their stored vectors.
	// Unknown IDs are skipped, not an error.
	Fetch(ctx context.Context, collection string, ids []string) ([]Vector, error)

	// Delete removes points by ID.
	Delete(ctx context.Context, collection string, ids []string) error

	// Stats returns collection statistics.
	Stats(ctx context.Context, collection string) (CollectionStats, error)

	// Health probes the underlying index. An error means callers should
	// degrade to lexical-only search, not crash.
	Health(ctx context.Context) error

	// Close releases any resources held by the vector store.
	Close() error
}

// DimensionMismatchError reports a vector whose length does not match the
// collection dimension. This is fatal for the offending ingest; vectors
// are never silently truncated or padded.
type DimensionMismatchError struct {
	ID   string
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector %s: dimension %d does not match collection dimension %d", e.ID, e.Got, e.Want)
}
