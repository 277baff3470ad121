package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/creastat/retrieval/chunker"
	"github.com/creastat/retrieval/kvcache"
)

// Stats is a snapshot of caching embedder counters.
type Stats struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
}

// CachingOption configures a CachingEmbedder.
type CachingOption func(*CachingEmbedder)

// WithTTL sets the cache entry TTL (default 30 days).
func WithTTL(ttl time.Duration) CachingOption {
	return func(c *CachingEmbedder) { c.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) CachingOption {
	return func(c *CachingEmbedder) { c.logger = logger }
}

// CachingEmbedder wraps any Embedder with a content-addressed cache.
// The cache key is derived from (model, sha256(text)), so identical
// inputs always resolve to the identical stored vector. Cache failures
// degrade to provider calls; they never fail an embed.
type CachingEmbedder struct {
	inner  Embedder
	cache  kvcache.Store
	ttl    time.Duration
	logger *logrus.Logger

	mu            sync.Mutex
	totalRequests int64
	cacheHits     int64
	cacheMisses   int64
	totalTokens   int64
	totalCost     float64
}

// NewCaching wraps inner with the given cache store.
func NewCaching(inner Embedder, cache kvcache.Store, opts ...CachingOption) *CachingEmbedder {
	c := &CachingEmbedder{
		inner:  inner,
		cache:  cache,
		ttl:    30 * 24 * time.Hour,
		logger: logrus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed implements Embedder.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) (Result, error) {
	if vector, ok := c.lookup(ctx, text); ok {
		c.record(1, 1, 0, nil)
		tokens, _ := chunker.EstimateTokens(text)
		return Result{
			Text:       text,
			Vector:     vector,
			Model:      c.inner.Model(),
			TokenCount: tokens,
			FromCache:  true,
		}, nil
	}

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return Result{}, err
	}
	c.store(ctx, text, result.Vector)
	c.record(1, 0, 1, []Result{result})
	return result, nil
}

// EmbedBatch implements Embedder. Inputs are partitioned into cached and
// uncached; only uncached texts reach the provider. A provider failure
// fails the whole call rather than poisoning results with zero vectors.
func (c *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	cached := make(map[string][]float32, len(texts))
	var uncached []string
	seen := make(map[string]bool, len(texts))

	// Hits, misses, tokens and cost are counted per unique text so
	// duplicate inputs do not inflate the counters.
	var hits, misses int64
	for _, text := range texts {
		if seen[text] {
			continue
		}
		seen[text] = true
		if vector, ok := c.lookup(ctx, text); ok {
			cached[text] = vector
			hits++
		} else {
			uncached = append(uncached, text)
			misses++
		}
	}

	fresh := make(map[string]Result, len(uncached))
	var newResults []Result
	if len(uncached) > 0 {
		results, err := c.inner.EmbedBatch(ctx, uncached)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			c.store(ctx, r.Text, r.Vector)
			fresh[r.Text] = r
		}
		newResults = results
	}

	out := make([]Result, 0, len(texts))
	for _, text := range texts {
		if vector, ok := cached[text]; ok {
			tokens, _ := chunker.EstimateTokens(text)
			out = append(out, Result{
				Text:       text,
				Vector:     vector,
				Model:      c.inner.Model(),
				TokenCount: tokens,
				FromCache:  true,
			})
			continue
		}
		r, ok := fresh[text]
		if !ok {
			return nil, fmt.Errorf("provider returned no embedding for text %q", truncate(text, 50))
		}
		out = append(out, r)
	}

	c.record(int64(len(texts)), hits, misses, newResults)
	c.logger.WithFields(logrus.Fields{
		"texts":  len(texts),
		"hits":   hits,
		"misses": misses,
	}).Debug("embedded batch")
	return out, nil
}

// Dimensions implements Embedder.
func (c *CachingEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Model implements Embedder.
func (c *CachingEmbedder) Model() string {
	return c.inner.Model()
}

// Stats returns a snapshot of the running counters.
func (c *CachingEmbedder) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		TotalRequests: c.totalRequests,
		CacheHits:     c.cacheHits,
		CacheMisses:   c.cacheMisses,
		TotalTokens:   c.totalTokens,
		TotalCost:     c.totalCost,
	}
	if lookups := c.cacheHits + c.cacheMisses; lookups > 0 {
		s.CacheHitRate = float64(c.cacheHits) / float64(lookups)
	}
	return s
}

func (c *CachingEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	data, err := c.cache.Get(ctx, c.key(text))
	if err != nil {
		c.logger.WithError(err).Warn("embedding cache read failed")
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		c.logger.WithError(err).Warn("embedding cache entry corrupt")
		return nil, false
	}
	return vector, true
}

func (c *CachingEmbedder) store(ctx context.Context, text string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		c.logger.WithError(err).Warn("embedding cache encode failed")
		return
	}
	if err := c.cache.Set(ctx, c.key(text), data, c.ttl); err != nil {
		c.logger.WithError(err).Warn("embedding cache write failed")
	}
}

func (c *CachingEmbedder) key(text string) string {
	return fmt.Sprintf("emb:%s:%x", c.inner.Model(), sha256.Sum256([]byte(text)))
}

func (c *CachingEmbedder) record(requests, hits, misses int64, newResults []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests += requests
	c.cacheHits += hits
	c.cacheMisses += misses
	for _, r := range newResults {
		c.totalTokens += int64(r.TokenCount)
		c.totalCost += r.Cost
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Compile-time check that CachingEmbedder implements Embedder.
var _ Embedder = (*CachingEmbedder)(nil)
