package lexical

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks() []Chunk {
	return []Chunk{
		{ID: "c1", DocumentID: "d1", Text: "qdrant is a vector database for similarity search"},
		{ID: "c2", DocumentID: "d1", Text: "redis is an in memory key value store"},
		{ID: "c3", DocumentID: "d2", Text: "bm25 ranks documents by term frequency and rarity"},
		{ID: "c4", DocumentID: "d2", Text: "the vector database stores embeddings as points"},
	}
}

func TestIndexSearchRanksByRelevance(t *testing.T) {
	idx := NewIndex(testChunks(), nil)

	results := idx.Search("vector database", 10)
	require.Len(t, results, 2)

	ids := []string{results[0].ID, results[1].ID}
	assert.ElementsMatch(t, []string{"c1", "c4"}, ids)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
	}
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestIndexSearchRareTermsWeighMore(t *testing.T) {
	idx := NewIndex(testChunks(), nil)

	// "bm25" appears in exactly one chunk; that chunk must win a query
	// mixing it with a common term.
	results := idx.Search("bm25 database", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "c3", results[0].ID)
}

func TestIndexSearchNoMatches(t *testing.T) {
	idx := NewIndex(testChunks(), nil)
	assert.Empty(t, idx.Search("zebra xylophone", 10))
}

func TestIndexSearchEmptyQuery(t *testing.T) {
	idx := NewIndex(testChunks(), nil)
	assert.Nil(t, idx.Search("", 10))
	assert.Nil(t, idx.Search("   ", 10))
}

func TestIndexSearchTopK(t *testing.T) {
	idx := NewIndex(testChunks(), nil)

	results := idx.Search("the a is", 1)
	assert.LessOrEqual(t, len(results), 1)
}

func TestIndexSearchTieBreaksByID(t *testing.T) {
	chunks := []Chunk{
		{ID: "b", DocumentID: "d", Text: "identical text"},
		{ID: "a", DocumentID: "d", Text: "identical text"},
	}
	idx := NewIndex(chunks, nil)

	results := idx.Search("identical", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestEmptyIndex(t *testing.T) {
	idx := NewIndex(nil, nil)
	assert.Equal(t, 0, idx.Len())
	assert.Nil(t, idx.Search("anything", 10))
}

func TestCorpusAddReplacesDocument(t *testing.T) {
	c := NewCorpus()

	c.Add("d1", []Chunk{
		{ID: "c1", DocumentID: "d1", Text: "original content about rust"},
		{ID: "c2", DocumentID: "d1", Text: "more original content"},
	})
	assert.Equal(t, 2, c.Len())
	assert.NotEmpty(t, c.Search("rust", 10))

	c.Add("d1", []Chunk{
		{ID: "c1", DocumentID: "d1", Text: "rewritten content about go"},
	})
	assert.Equal(t, 1, c.Len())
	assert.Empty(t, c.Search("rust", 10), "replaced chunks must leave the index")
	assert.NotEmpty(t, c.Search("go", 10))
}

func TestCorpusRemove(t *testing.T) {
	c := NewCorpus()
	c.Add("d1", []Chunk{{ID: "c1", DocumentID: "d1", Text: "alpha"}})
	c.Add("d2", []Chunk{{ID: "c2", DocumentID: "d2", Text: "beta"}})

	c.Remove("d1")
	assert.Equal(t, 1, c.Len())
	assert.Empty(t, c.Search("alpha", 10))
	assert.NotEmpty(t, c.Search("beta", 10))

	// Removing an absent document is a no-op.
	c.Remove("d9")
	assert.Equal(t, 1, c.Len())
}

func TestCorpusReset(t *testing.T) {
	c := NewCorpus()
	c.Add("d1", []Chunk{{ID: "c1", DocumentID: "d1", Text: "alpha"}})

	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Search("alpha", 10))
	assert.Empty(t, c.ChunkIDs("d1"))
}

func TestCorpusChunkIDs(t *testing.T) {
	c := NewCorpus()
	c.Add("d1", []Chunk{
		{ID: "c1", DocumentID: "d1", Text: "one"},
		{ID: "c2", DocumentID: "d1", Text: "two"},
	})

	assert.Equal(t, []string{"c1", "c2"}, c.ChunkIDs("d1"))
	assert.Empty(t, c.ChunkIDs("missing"))
}

func TestCorpusConcurrentSearchDuringMutation(t *testing.T) {
	c := NewCorpus()
	c.Add("seed", []Chunk{{ID: "s1", DocumentID: "seed", Text: "stable seed text"}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			docID := fmt.Sprintf("d%d", i)
			c.Add(docID, []Chunk{{ID: docID + "-c", DocumentID: docID, Text: "concurrent text"}})
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every snapshot must be internally consistent.
			results := c.Search("seed", 10)
			for _, r := range results {
				assert.NotEmpty(t, r.ID)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, c.Len())
}

func TestCorpusCustomTokenizer(t *testing.T) {
	c := NewCorpus(WithTokenizer(func(text string) []string {
		// Index character bigrams instead of words.
		var out []string
		runes := []rune(text)
		for i := 0; i+1 < len(runes); i++ {
			out = append(out, string(runes[i:i+2]))
		}
		return out
	}))

	c.Add("d1", []Chunk{{ID: "c1", DocumentID: "d1", Text: "abcd"}})
	assert.NotEmpty(t, c.Search("bc", 10))
}
