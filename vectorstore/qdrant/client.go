package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/creastat/retrieval/vectorstore"
	"github.com/qdrant/go-client/qdrant"
)

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant server address (e.g., "https://example.qdrant.io:6334").
	URL string

	// APIKey is optional API key for authentication.
	APIKey string
}

// Client implements vectorstore.VectorStore for Qdrant.
type Client struct {
	client *qdrant.Client

	// dims caches the dimension of collections this client created or
	// inspected, for client-side validation before upsert.
	dimsMu sync.RWMutex
	dims   map[string]int
}

// New creates a new Qdrant client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	// Parse the URL to extract host, port, and scheme
	parsedURL := cfg.URL
	if !strings.HasPrefix(parsedURL, "http://") && !strings.HasPrefix(parsedURL, "https://") {
		parsedURL = "https://" + parsedURL
	}

	u, err := url.Parse(parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	// Extract host and port
	host := u.Hostname()
	port := 6334 // default gRPC port
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		port = p
	}

	useTLS := u.Scheme == "https"

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Client{
		client: qdrantClient,
		dims:   make(map[string]int),
	}, nil
}

// CreateCollection implements vectorstore.VectorStore.
func (c *Client) CreateCollection(ctx context.Context, cfg vectorstore.CollectionConfig, recreate bool) error {
	exists, err := c.client.CollectionExists(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("qdrant collection check failed: %w", err)
	}

	if exists && recreate {
		if err := c.client.DeleteCollection(ctx, cfg.Name); err != nil {
			return fmt.Errorf("qdrant collection delete failed: %w", err)
		}
		exists = false
	}

	if !exists {
		err := c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(cfg.Dim),
				Distance: toQdrantDistance(cfg.Distance),
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant collection create failed: %w", err)
		}
	}

	c.dimsMu.Lock()
	c.dims[cfg.Name] = cfg.Dim
	c.dimsMu.Unlock()
	return nil
}

// Upsert implements vectorstore.VectorStore.
func (c *Client) Upsert(ctx context.Context, collection string, vectors []vectorstore.Vector) error {
	c.dimsMu.RLock()
	dim, ok := c.dims[collection]
	c.dimsMu.RUnlock()
	if ok {
		for _, v := range vectors {
			if len(v.Vector) != dim {
				return &vectorstore.DimensionMismatchError{ID: v.ID, Got: len(v.Vector), Want: dim}
			}
		}
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		payload := make(map[string]any, len(v.Metadata)+1)
		for k, val := range v.Metadata {
			payload[k] = val
		}
		payload["text"] = v.Text

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(v.ID),
			Vectors: qdrant.NewVectors(v.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// Search implements vectorstore.VectorStore.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, k int, filter vectorstore.SearchFilter) ([]vectorstore.Vector, error) {
	qdrantFilter := buildQdrantFilter(filter)

	limit := uint64(k)
	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         qdrantFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if filter.ScoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(filter.ScoreThreshold)
	}

	points, err := c.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	results := make([]vectorstore.Vector, 0, len(points))
	for _, point := range points {
		result := vectorstore.Vector{
			Score:    point.Score,
			Metadata: make(map[string]any),
		}

		if point.Id != nil {
			if uuid := point.Id.GetUuid(); uuid != "" {
				result.ID = uuid
			} else if num := point.Id.GetNum(); num != 0 {
				result.ID = fmt.Sprintf("%d", num)
			}
		}

		for key, v := range point.Payload {
			if key == "text" {
				result.Text = v.GetStringValue()
				continue
			}
			result.Metadata[key] = extractValue(v)
		}

		results = append(results, result)
	}

	return results, nil
}

// Fetch implements vectorstore.VectorStore.
func (c *Client) Fetch(ctx context.Context, collection string, ids []string) ([]vectorstore.Vector, error) {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	points, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant fetch failed: %w", err)
	}

	results := make([]vectorstore.Vector, 0, len(points))
	for _, point := range points {
		result := vectorstore.Vector{
			Metadata: make(map[string]any),
		}

		if point.Id != nil {
			if uuid := point.Id.GetUuid(); uuid != "" {
				result.ID = uuid
			} else if num := point.Id.GetNum(); num != 0 {
				result.ID = fmt.Sprintf("%d", num)
			}
		}

		if out := point.GetVectors().GetVector(); out != nil {
			result.Vector = out.GetData()
			if len(result.Vector) == 0 {
				result.Vector = out.GetDense().GetData()
			}
		}

		for key, v := range point.Payload {
			if key == "text" {
				result.Text = v.GetStringValue()
				continue
			}
			result.Metadata[key] = extractValue(v)
		}

		results = append(results, result)
	}

	return results, nil
}

// Delete implements vectorstore.VectorStore.
func (c *Client) Delete(ctx context.Context, collection string, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

// Stats implements vectorstore.VectorStore.
func (c *Client) Stats(ctx context.Context, collection string) (vectorstore.CollectionStats, error) {
	info, err := c.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return vectorstore.CollectionStats{}, fmt.Errorf("qdrant collection info failed: %w", err)
	}

	stats := vectorstore.CollectionStats{
		Name:       collection,
		PointCount: int64(info.GetPointsCount()),
	}
	if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		stats.Dim = int(params.GetSize())
		c.dimsMu.Lock()
		c.dims[collection] = stats.Dim
		c.dimsMu.Unlock()
	}
	return stats, nil
}

// Health implements vectorstore.VectorStore.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Close implements vectorstore.VectorStore.
func (c *Client) Close() error {
	return c.client.Close()
}

// buildQdrantFilter converts SearchFilter metadata to a Qdrant Filter.
func buildQdrantFilter(filter vectorstore.SearchFilter) *qdrant.Filter {
	var conditions []*qdrant.Condition

	for key, value := range filter.Metadata {
		conditions = append(conditions, buildMatchCondition(key, value))
	}

	if len(conditions) == 0 {
		return nil
	}

	return &qdrant.Filter{Must: conditions}
}

// buildMatchCondition creates a match condition for a key-value pair.
func buildMatchCondition(key string, value any) *qdrant.Condition {
	var match *qdrant.Match

	switch v := value.(type) {
	case string:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case int:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case bool:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	default:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}}
	}

	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: match,
			},
		},
	}
}

// extractValue extracts a Go value from a Qdrant Value.
func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

func toQdrantDistance(d vectorstore.Distance) qdrant.Distance {
	switch d {
	case vectorstore.DistanceDot:
		return qdrant.Distance_Dot
	case vectorstore.DistanceEuclidean:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

// Compile-time check that Client implements VectorStore.
var _ vectorstore.VectorStore = (*Client)(nil)
