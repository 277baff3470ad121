package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory implements VectorStore with an in-process exact-scan index. It
// serves tests and deployments without an external index engine.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	cfg    CollectionConfig
	points map[string]Vector
}

// NewMemory creates an empty in-memory vector store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

// CreateCollection implements VectorStore.
func (m *Memory) CreateCollection(ctx context.Context, cfg CollectionConfig, recreate bool) error {
	if cfg.Name == "" || cfg.Dim <= 0 {
		return fmt.Errorf("invalid collection config: name=%q dim=%d", cfg.Name, cfg.Dim)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.collections[cfg.Name]; exists && !recreate {
		return nil
	}
	m.collections[cfg.Name] = &memoryCollection{
		cfg:    cfg,
		points: make(map[string]Vector),
	}
	return nil
}

// Upsert implements VectorStore. Re-upserting an ID replaces the point.
func (m *Memory) Upsert(ctx context.Context, collection string, vectors []Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, v := range vectors {
		if len(v.Vector) != col.cfg.Dim {
			return &DimensionMismatchError{ID: v.ID, Got: len(v.Vector), Want: col.cfg.Dim}
		}
	}
	for _, v := range vectors {
		col.points[v.ID] = v
	}
	return nil
}

// Search implements VectorStore.
func (m *Memory) Search(ctx context.Context, collection string, vector []float32, k int, filter SearchFilter) ([]Vector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != col.cfg.Dim {
		return nil, &DimensionMismatchError{ID: "query", Got: len(vector), Want: col.cfg.Dim}
	}

	results := make([]Vector, 0, len(col.points))
	for _, p := range col.points {
		if !matchesFilter(p.Metadata, filter.Metadata) {
			continue
		}
		score := similarity(col.cfg.Distance, vector, p.Vector)
		if filter.ScoreThreshold > 0 && score < filter.ScoreThreshold {
			continue
		}
		results = append(results, Vector{
			ID:       p.ID,
			Text:     p.Text,
			Metadata: p.Metadata,
			Score:    score,
		})
	}

	// Sort by score descending, ID ascending for deterministic ordering.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Fetch implements VectorStore.
func (m *Memory) Fetch(ctx context.Context, collection string, ids []string) ([]Vector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	points := make([]Vector, 0, len(ids))
	for _, id := range ids {
		if p, exists := col.points[id]; exists {
			points = append(points, p)
		}
	}
	return points, nil
}

// Delete implements VectorStore.
func (m *Memory) Delete(ctx context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(col.points, id)
	}
	return nil
}

// Stats implements VectorStore.
func (m *Memory) Stats(ctx context.Context, collection string) (CollectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, err := m.collection(collection)
	if err != nil {
		return CollectionStats{}, err
	}
	return CollectionStats{
		Name:       collection,
		PointCount: int64(len(col.points)),
		Dim:        col.cfg.Dim,
	}, nil
}

// Health implements VectorStore.
func (m *Memory) Health(ctx context.Context) error {
	return nil
}

// Close implements VectorStore.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.collections = nil
	return nil
}

// collection must be called with the lock held.
func (m *Memory) collection(name string) (*memoryCollection, error) {
	if m.collections == nil {
		return nil, fmt.Errorf("vector store is closed")
	}
	col, exists := m.collections[name]
	if !exists {
		return nil, fmt.Errorf("collection %s does not exist", name)
	}
	return col, nil
}

func matchesFilter(metadata, want map[string]any) bool {
	for k, v := range want {
		got, exists := metadata[k]
		if !exists || got != v {
			return false
		}
	}
	return true
}

func similarity(distance Distance, a, b []float32) float32 {
	switch distance {
	case DistanceDot:
		return dotProduct(a, b)
	case DistanceEuclidean:
		// Reported as 1/(1+d) so higher is better across all metrics.
		return 1 / (1 + euclideanDistance(a, b))
	default:
		return cosineSimilarity(a, b)
	}
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

func dotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

func euclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// Compile-time check that Memory implements VectorStore.
var _ VectorStore = (*Memory)(nil)
