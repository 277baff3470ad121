package retrieval

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/creastat/retrieval/chunker"
	"github.com/creastat/retrieval/vectorstore"
)

// PipelineOption is a functional option for configuring a Pipeline.
type PipelineOption func(*Pipeline)

// WithCollection sets the vector collection name (default "knowledge").
func WithCollection(name string) PipelineOption {
	return func(p *Pipeline) { p.collection = name }
}

// WithDistance sets the collection similarity metric (default cosine).
func WithDistance(d vectorstore.Distance) PipelineOption {
	return func(p *Pipeline) { p.distance = d }
}

// WithChunker sets the chunking engine.
func WithChunker(c *chunker.Chunker) PipelineOption {
	return func(p *Pipeline) { p.chunker = c }
}

// WithReranker sets the precision reranker. Without one, rerank requests
// fall back to the fused ranking.
func WithReranker(r Reranker) PipelineOption {
	return func(p *Pipeline) { p.reranker = r }
}

// WithMaxRerankCandidates caps how many fused candidates are sent to the
// reranker (default 50).
func WithMaxRerankCandidates(n int) PipelineOption {
	return func(p *Pipeline) { p.maxRerank = n }
}

// WithSideTimeout sets the independent timeout applied to each retrieval
// leg and to the rerank call (default 10s).
func WithSideTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.sideTimeout = d }
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger *logrus.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// RetrieveOptions configures one query. A nil options pointer means
// DefaultRetrieveOptions.
type RetrieveOptions struct {
	// K is the number of results to return (default 10).
	K int

	// UseHybrid enables lexical+vector fusion. With it off (or an empty
	// lexical index) retrieval is vector-only.
	UseHybrid bool

	// UseRerank sends the top fused candidates through the reranker.
	UseRerank bool

	// Filter restricts vector search by exact-match metadata conjunction.
	Filter map[string]any

	// ScoreThreshold drops vector results scoring below it.
	ScoreThreshold float32

	// Alpha weights the lexical side of fusion: 1 is pure lexical,
	// 0 is pure vector. The zero value means pure vector, not the 0.5
	// default — callers building RetrieveOptions literals must set it;
	// start from DefaultRetrieveOptions to get the balanced default.
	Alpha float64
}

// DefaultRetrieveOptions returns the default query options.
func DefaultRetrieveOptions() *RetrieveOptions {
	return &RetrieveOptions{
		K:         10,
		UseHybrid: true,
		UseRerank: false,
		Alpha:     0.5,
	}
}
