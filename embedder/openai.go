package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/creastat/retrieval/chunker"
)

// Supported models and their dimensions.
var modelDims = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
}

// Pricing in dollars per 1M tokens.
var modelPricing = map[string]float64{
	"text-embedding-3-large": 0.13,
	"text-embedding-3-small": 0.02,
}

// OpenAIOption configures the OpenAI embedder.
type OpenAIOption func(*OpenAI)

// WithModel sets the embedding model (default text-embedding-3-small).
func WithModel(model string) OpenAIOption {
	return func(e *OpenAI) { e.model = model }
}

// WithMaxBatchSize bounds the number of texts per provider call.
func WithMaxBatchSize(n int) OpenAIOption {
	return func(e *OpenAI) { e.maxBatchSize = n }
}

// WithMaxRetries bounds retry attempts on provider failure.
func WithMaxRetries(n int) OpenAIOption {
	return func(e *OpenAI) { e.maxRetries = n }
}

// OpenAI embeds text through the OpenAI embeddings API.
type OpenAI struct {
	client       *openai.Client
	model        string
	dim          int
	maxBatchSize int
	maxRetries   int
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	e := &OpenAI{
		client:       openai.NewClient(apiKey),
		model:        "text-embedding-3-small",
		maxBatchSize: 100,
		maxRetries:   3,
	}
	for _, opt := range opts {
		opt(e)
	}

	dim, ok := modelDims[e.model]
	if !ok {
		return nil, fmt.Errorf("unsupported embedding model: %s", e.model)
	}
	e.dim = dim

	return e, nil
}

// Embed implements Embedder.
func (e *OpenAI) Embed(ctx context.Context, text string) (Result, error) {
	vectors, usage, err := e.call(ctx, []string{text})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text:       text,
		Vector:     vectors[0],
		Model:      e.model,
		TokenCount: usage,
		Cost:       e.cost(usage),
	}, nil
}

// EmbedBatch implements Embedder. Input is partitioned into provider
// calls of at most the max batch size, issued sequentially to respect
// provider quotas. Any sub-batch failure fails the whole call.
func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	results := make([]Result, 0, len(texts))

	for start := 0; start < len(texts); start += e.maxBatchSize {
		end := start + e.maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, usage, err := e.call(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}

		for i, tokens := range apportion(usage, batch) {
			results = append(results, Result{
				Text:       batch[i],
				Vector:     vectors[i],
				Model:      e.model,
				TokenCount: tokens,
				Cost:       e.cost(tokens),
			})
		}
	}
	return results, nil
}

// Dimensions implements Embedder.
func (e *OpenAI) Dimensions() int {
	return e.dim
}

// Model implements Embedder.
func (e *OpenAI) Model() string {
	return e.model
}

// call issues one provider request with bounded exponential retry.
func (e *OpenAI) call(ctx context.Context, texts []string) ([][]float32, int, error) {
	var resp openai.EmbeddingResponse

	op := func() error {
		var err error
		resp, err = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: texts,
		})
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, 0, fmt.Errorf("provider returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != e.dim {
			return nil, 0, fmt.Errorf("provider returned %d-dimensional vector, want %d", len(data.Embedding), e.dim)
		}
		vectors[i] = data.Embedding
	}
	return vectors, resp.Usage.TotalTokens, nil
}

func (e *OpenAI) cost(tokens int) float64 {
	return float64(tokens) / 1_000_000 * modelPricing[e.model]
}

// apportion distributes the call's token usage over the batch items,
// proportional to each item's estimated size.
func apportion(usage int, texts []string) []int {
	estimates := make([]int, len(texts))
	total := 0
	for i, t := range texts {
		n, _ := chunker.EstimateTokens(t)
		estimates[i] = n
		total += n
	}

	tokens := make([]int, len(texts))
	if total == 0 {
		return tokens
	}
	assigned := 0
	for i, est := range estimates {
		tokens[i] = usage * est / total
		assigned += tokens[i]
	}
	tokens[len(tokens)-1] += usage - assigned
	return tokens
}

// Compile-time check that OpenAI implements Embedder.
var _ Embedder = (*OpenAI)(nil)
