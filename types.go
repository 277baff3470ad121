// Package retrieval is the retrieval core of the assistant platform:
// it indexes documents into a lexical and a vector index and answers
// queries with fused, optionally reranked, ranked text fragments.
package retrieval

// Strategy tags how a retrieval result was produced.
type Strategy string

const (
	// StrategyVector means only the vector index contributed (the
	// lexical index was empty or its leg failed).
	StrategyVector Strategy = "vector"

	// StrategyHybrid means lexical and vector scores were fused.
	StrategyHybrid Strategy = "hybrid"

	// StrategyHybridRerank means the fused candidates were re-scored by
	// the precision reranker.
	StrategyHybridRerank Strategy = "hybrid+rerank"
)

// ScoredChunk is a retrieved text fragment with its relevance score.
type ScoredChunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RetrievalResult is the outcome of one query.
type RetrievalResult struct {
	Query              string        `json:"query"`
	Chunks             []ScoredChunk `json:"chunks"`
	ElapsedMS          float64       `json:"elapsed_ms"`
	Strategy           Strategy      `json:"strategy"`
	CandidatesExamined int           `json:"candidates_examined"`
}

// PipelineStats is a snapshot of pipeline counters.
type PipelineStats struct {
	TotalQueries       int64   `json:"total_queries"`
	AvgLatencyMS       float64 `json:"avg_latency_ms"`
	IndexedChunkCount  int     `json:"indexed_chunk_count"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	TotalEmbeddingCost float64 `json:"total_embedding_cost"`
}
