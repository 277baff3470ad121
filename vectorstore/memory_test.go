package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollection(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	require.NoError(t, m.CreateCollection(context.Background(), CollectionConfig{
		Name:     "test",
		Dim:      3,
		Distance: DistanceCosine,
	}, false))
	return m
}

func TestCreateCollection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t.Run("rejects invalid config", func(t *testing.T) {
		assert.Error(t, m.CreateCollection(ctx, CollectionConfig{Name: "", Dim: 3}, false))
		assert.Error(t, m.CreateCollection(ctx, CollectionConfig{Name: "c", Dim: 0}, false))
	})

	t.Run("existing collection is kept without recreate", func(t *testing.T) {
		require.NoError(t, m.CreateCollection(ctx, CollectionConfig{Name: "c", Dim: 3}, false))
		require.NoError(t, m.Upsert(ctx, "c", []Vector{{ID: "p1", Vector: []float32{1, 0, 0}}}))

		require.NoError(t, m.CreateCollection(ctx, CollectionConfig{Name: "c", Dim: 3}, false))
		stats, err := m.Stats(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.PointCount)
	})

	t.Run("recreate drops points", func(t *testing.T) {
		require.NoError(t, m.CreateCollection(ctx, CollectionConfig{Name: "c", Dim: 3}, true))
		stats, err := m.Stats(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.PointCount)
	})
}

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	require.NoError(t, m.Upsert(ctx, "test", []Vector{
		{ID: "p1", Vector: []float32{1, 0, 0}, Text: "east", Metadata: map[string]any{"axis": "x"}},
		{ID: "p2", Vector: []float32{0, 1, 0}, Text: "north", Metadata: map[string]any{"axis": "y"}},
		{ID: "p3", Vector: []float32{0.9, 0.1, 0}, Text: "mostly east", Metadata: map[string]any{"axis": "x"}},
	}))

	results, err := m.Search(ctx, "test", []float32{1, 0, 0}, 10, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "p1", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6,
		"exact match scores ~1.0 under cosine")
	assert.Equal(t, "p3", results[1].ID)
	assert.Equal(t, "east", results[0].Text)
}

func TestSearchTopK(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	require.NoError(t, m.Upsert(ctx, "test", []Vector{
		{ID: "p1", Vector: []float32{1, 0, 0}},
		{ID: "p2", Vector: []float32{0.9, 0.1, 0}},
		{ID: "p3", Vector: []float32{0.8, 0.2, 0}},
	}))

	results, err := m.Search(ctx, "test", []float32{1, 0, 0}, 2, SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchMetadataFilter(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	require.NoError(t, m.Upsert(ctx, "test", []Vector{
		{ID: "p1", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"lang": "go", "tier": "a"}},
		{ID: "p2", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"lang": "go", "tier": "b"}},
		{ID: "p3", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"lang": "rust", "tier": "a"}},
	}))

	results, err := m.Search(ctx, "test", []float32{1, 0, 0}, 10, SearchFilter{
		Metadata: map[string]any{"lang": "go", "tier": "a"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1, "filter is an exact-match conjunction")
	assert.Equal(t, "p1", results[0].ID)
}

func TestSearchScoreThreshold(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	require.NoError(t, m.Upsert(ctx, "test", []Vector{
		{ID: "near", Vector: []float32{1, 0, 0}},
		{ID: "far", Vector: []float32{0, 1, 0}},
	}))

	results, err := m.Search(ctx, "test", []float32{1, 0, 0}, 10, SearchFilter{
		ScoreThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].ID)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	err := m.Upsert(ctx, "test", []Vector{
		{ID: "ok", Vector: []float32{1, 0, 0}},
		{ID: "bad", Vector: []float32{1, 0}},
	})

	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "bad", mismatch.ID)
	assert.Equal(t, 2, mismatch.Got)
	assert.Equal(t, 3, mismatch.Want)

	// Validation happens before any write.
	stats, statErr := m.Stats(ctx, "test")
	require.NoError(t, statErr)
	assert.Equal(t, int64(0), stats.PointCount)
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	_, err := m.Search(ctx, "test", []float32{1, 0}, 10, SearchFilter{})
	var mismatch *DimensionMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	require.NoError(t, m.Upsert(ctx, "test", []Vector{
		{ID: "p1", Vector: []float32{1, 0, 0}, Text: "old"},
	}))
	require.NoError(t, m.Upsert(ctx, "test", []Vector{
		{ID: "p1", Vector: []float32{0, 1, 0}, Text: "new"},
	}))

	stats, err := m.Stats(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PointCount)

	results, err := m.Search(ctx, "test", []float32{0, 1, 0}, 1, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Text)
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	require.NoError(t, m.Upsert(ctx, "test", []Vector{
		{ID: "p1", Vector: []float32{1, 0, 0}, Text: "one", Metadata: map[string]any{"k": "v"}},
		{ID: "p2", Vector: []float32{0, 1, 0}, Text: "two"},
	}))

	points, err := m.Fetch(ctx, "test", []string{"p2", "ghost"})
	require.NoError(t, err)
	require.Len(t, points, 1, "unknown IDs are skipped")

	assert.Equal(t, "p2", points[0].ID)
	assert.Equal(t, []float32{0, 1, 0}, points[0].Vector, "fetch must return stored vectors")
	assert.Equal(t, "two", points[0].Text)

	_, err = m.Fetch(ctx, "nope", []string{"p1"})
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	require.NoError(t, m.Upsert(ctx, "test", []Vector{
		{ID: "p1", Vector: []float32{1, 0, 0}},
		{ID: "p2", Vector: []float32{0, 1, 0}},
	}))

	require.NoError(t, m.Delete(ctx, "test", []string{"p1", "ghost"}))

	stats, err := m.Stats(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PointCount, "deleting an absent ID is a no-op")
}

func TestMissingCollection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.Error(t, m.Upsert(ctx, "nope", nil))
	_, err := m.Search(ctx, "nope", []float32{1}, 1, SearchFilter{})
	assert.Error(t, err)
	assert.Error(t, m.Delete(ctx, "nope", nil))
	_, err = m.Stats(ctx, "nope")
	assert.Error(t, err)
}

func TestEuclideanSimilarity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateCollection(ctx, CollectionConfig{
		Name:     "euclid",
		Dim:      2,
		Distance: DistanceEuclidean,
	}, false))

	require.NoError(t, m.Upsert(ctx, "euclid", []Vector{
		{ID: "same", Vector: []float32{1, 1}},
		{ID: "away", Vector: []float32{4, 5}},
	}))

	results, err := m.Search(ctx, "euclid", []float32{1, 1}, 10, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "same", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6,
		"zero distance maps to similarity 1")
	assert.InDelta(t, 1.0/6.0, float64(results[1].Score), 1e-6,
		"distance 5 maps to 1/(1+5)")
}

func TestHealthAndClose(t *testing.T) {
	ctx := context.Background()
	m := newTestCollection(t)

	assert.NoError(t, m.Health(ctx))
	assert.NoError(t, m.Close())
	assert.Error(t, m.Upsert(ctx, "test", nil))
}
