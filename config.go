package retrieval

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/creastat/retrieval/embedder"
	"github.com/creastat/retrieval/kvcache"
	"github.com/creastat/retrieval/lexical"
	"github.com/creastat/retrieval/vectorstore/qdrant"
)

// Config holds the settings needed to assemble a full pipeline against
// live backends.
type Config struct {
	// QdrantURL is the Qdrant endpoint, e.g. "localhost:6334" or
	// "https://cluster.qdrant.io:6334".
	QdrantURL    string
	QdrantAPIKey string

	// RedisURL enables the Redis embedding cache when set, e.g.
	// "redis://localhost:6379/0". Empty means an in-process cache.
	RedisURL string

	// OpenAIAPIKey authenticates the embedding provider.
	OpenAIAPIKey string

	// EmbeddingModel overrides the default embedding model.
	EmbeddingModel string

	// CohereAPIKey enables the precision reranker when set.
	CohereAPIKey string

	// Collection is the vector collection name (default "knowledge").
	Collection string
}

// LoadConfig reads configuration from the environment, loading a .env
// file first if one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		QdrantURL:      os.Getenv("QDRANT_URL"),
		QdrantAPIKey:   os.Getenv("QDRANT_API_KEY"),
		RedisURL:       os.Getenv("REDIS_URL"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
		CohereAPIKey:   os.Getenv("COHERE_API_KEY"),
		Collection:     os.Getenv("RETRIEVAL_COLLECTION"),
	}
	if cfg.QdrantURL == "" {
		cfg.QdrantURL = "localhost:6334"
	}
	if cfg.Collection == "" {
		cfg.Collection = "knowledge"
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	return cfg, nil
}

// New assembles a pipeline from the config: a Qdrant-backed vector
// store, an OpenAI embedder behind a Redis or in-process cache, a fresh
// lexical corpus, and a Cohere reranker when a key is configured. The
// collection is created if missing.
func New(ctx context.Context, cfg *Config, opts ...PipelineOption) (*Pipeline, error) {
	store, err := qdrant.New(qdrant.Config{
		URL:    cfg.QdrantURL,
		APIKey: cfg.QdrantAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	cache, err := newCacheStore(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	var embOpts []embedder.OpenAIOption
	if cfg.EmbeddingModel != "" {
		embOpts = append(embOpts, embedder.WithModel(cfg.EmbeddingModel))
	}
	base, err := embedder.NewOpenAI(cfg.OpenAIAPIKey, embOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	emb := embedder.NewCaching(base, cache)

	pipelineOpts := []PipelineOption{WithCollection(cfg.Collection)}
	if cfg.CohereAPIKey != "" {
		pipelineOpts = append(pipelineOpts, WithReranker(NewCohereReranker(cfg.CohereAPIKey)))
	}
	pipelineOpts = append(pipelineOpts, opts...)

	p := NewPipeline(emb, store, lexical.NewCorpus(), pipelineOpts...)
	if err := p.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing collection: %w", err)
	}
	return p, nil
}

func newCacheStore(redisURL string) (kvcache.Store, error) {
	if redisURL == "" {
		return kvcache.New(kvcache.StoreTypeMemory)
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return kvcache.New(kvcache.StoreTypeRedis,
		kvcache.WithRedisClient(redis.NewClient(redisOpts)))
}
