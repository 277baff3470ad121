package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Reranker re-scores a small candidate set with higher precision than
// first-pass retrieval.
type Reranker interface {
	// Rerank reorders candidates by relevance to the query and returns
	// at most topN of them with reranker scores.
	Rerank(ctx context.Context, query string, candidates []ScoredChunk, topN int) ([]ScoredChunk, error)
}

// CohereOption configures a CohereReranker.
type CohereOption func(*CohereReranker)

// WithRerankModel sets the rerank model (default rerank-english-v3.0).
func WithRerankModel(model string) CohereOption {
	return func(r *CohereReranker) { r.model = model }
}

// WithRerankEndpoint overrides the API endpoint.
func WithRerankEndpoint(endpoint string) CohereOption {
	return func(r *CohereReranker) { r.endpoint = endpoint }
}

// WithRerankTimeout sets the HTTP timeout (default 30s).
func WithRerankTimeout(timeout time.Duration) CohereOption {
	return func(r *CohereReranker) { r.httpClient.Timeout = timeout }
}

// CohereReranker calls Cohere's rerank API.
type CohereReranker struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// NewCohereReranker creates a Cohere reranker.
func NewCohereReranker(apiKey string, opts ...CohereOption) *CohereReranker {
	r := &CohereReranker{
		apiKey:   apiKey,
		model:    "rerank-english-v3.0",
		endpoint: "https://api.cohere.ai/v1/rerank",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank implements Reranker.
func (r *CohereReranker) Rerank(ctx context.Context, query string, candidates []ScoredChunk, topN int) ([]ScoredChunk, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Text
	}

	reqBody := map[string]any{
		"model":            r.model,
		"query":            query,
		"documents":        documents,
		"top_n":            topN,
		"return_documents": false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	reranked := make([]ScoredChunk, 0, len(response.Results))
	for _, res := range response.Results {
		if res.Index < 0 || res.Index >= len(candidates) {
			return nil, fmt.Errorf("reranker returned out-of-range index %d", res.Index)
		}
		c := candidates[res.Index]
		c.Score = res.RelevanceScore
		reranked = append(reranked, c)
	}

	return reranked, nil
}

// Compile-time check that CohereReranker implements Reranker.
var _ Reranker = (*CohereReranker)(nil)
