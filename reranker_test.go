package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCohereRerankerReordersCandidates(t *testing.T) {
	var gotRequest map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		// Reverse the candidate order with descending scores.
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.99},
				{"index": 0, "relevance_score": 0.42},
			},
		})
	}))
	defer server.Close()

	reranker := NewCohereReranker("test-key", WithRerankEndpoint(server.URL))
	candidates := []ScoredChunk{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
		{ID: "c", Text: "third"},
	}

	reranked, err := reranker.Rerank(context.Background(), "query", candidates, 2)
	require.NoError(t, err)
	require.Len(t, reranked, 2)

	assert.Equal(t, "c", reranked[0].ID)
	assert.InDelta(t, 0.99, reranked[0].Score, 1e-9)
	assert.Equal(t, "a", reranked[1].ID)

	assert.Equal(t, "query", gotRequest["query"])
	assert.Equal(t, float64(2), gotRequest["top_n"])
	assert.Equal(t, false, gotRequest["return_documents"])
	docs := gotRequest["documents"].([]any)
	assert.Len(t, docs, 3)
}

func TestCohereRerankerEmptyCandidates(t *testing.T) {
	reranker := NewCohereReranker("test-key")
	reranked, err := reranker.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, reranked)
}

func TestCohereRerankerServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	reranker := NewCohereReranker("test-key", WithRerankEndpoint(server.URL))
	_, err := reranker.Rerank(context.Background(), "query", []ScoredChunk{{ID: "a", Text: "x"}}, 1)
	assert.ErrorContains(t, err, "429")
}

func TestCohereRerankerOutOfRangeIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 7, "relevance_score": 0.5},
			},
		})
	}))
	defer server.Close()

	reranker := NewCohereReranker("test-key", WithRerankEndpoint(server.URL))
	_, err := reranker.Rerank(context.Background(), "query", []ScoredChunk{{ID: "a", Text: "x"}}, 1)
	assert.ErrorContains(t, err, "out-of-range")
}
