package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig configures the Qdrant-backed index.
type QdrantConfig struct {
	Host       string
	Port       int // gRPC port, not the HTTP REST port
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions uint64
	Timeout    time.Duration
}

// QdrantIndex implements Index against a Qdrant collection. Article ids are
// point UUIDs; title, source and published_at travel in the payload so
// queries need no relational lookups.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	timeout    time.Duration
	log        *zap.SugaredLogger
}

// NewQdrantIndex connects to Qdrant and ensures the article collection
// exists with cosine distance.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, log *zap.SugaredLogger) (*QdrantIndex, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if cfg.Dimensions == 0 {
		return nil, fmt.Errorf("vector dimensions are required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		timeout:    cfg.Timeout,
		log:        log,
	}

	if err := idx.ensureCollection(ctx, cfg.Dimensions); err != nil {
		_ = client.Close()
		return nil, err
	}

	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, dimensions uint64) error {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	exists, err := q.collectionExists(ctx)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	q.log.Infow("creating vector collection", "collection", q.collection, "dimensions", dimensions)

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (q *QdrantIndex) collectionExists(ctx context.Context) (bool, error) {
	_, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Upsert stores article vectors.
func (q *QdrantIndex) Upsert(ctx context.Context, vectors []ArticleVector) error {
	if len(vectors) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	points := make([]*qdrant.PointStruct, len(vectors))
	for i, v := range vectors {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(v.ID),
			Vectors: qdrant.NewVectors(v.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"title":        v.Title,
				"source":       v.Source,
				"published_at": v.PublishedAt.UTC().Format(time.RFC3339),
			}),
		}
	}

	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upsert %d vectors: %w", len(vectors), err)
	}
	return nil
}

// Exists reports whether an article id is already indexed.
func (q *QdrantIndex) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
	})
	if err != nil {
		return false, fmt.Errorf("get point %s: %w", id, err)
	}
	return len(points) > 0, nil
}

// Query returns up to k nearest articles with similarity >= minSimilarity.
func (q *QdrantIndex) Query(ctx context.Context, embedding []float32, k int, minSimilarity float64) ([]Match, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		ScoreThreshold: qdrant.PtrOf(float32(minSimilarity)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{
			ID:         r.GetId().GetUuid(),
			Similarity: r.GetScore(),
		}
		payload := r.GetPayload()
		if v, ok := payload["title"]; ok {
			m.Title = v.GetStringValue()
		}
		if v, ok := payload["source"]; ok {
			m.Source = v.GetStringValue()
		}
		if v, ok := payload["published_at"]; ok {
			if t, err := time.Parse(time.RFC3339, v.GetStringValue()); err == nil {
				m.PublishedAt = t
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Vector returns an article's stored embedding, or nil if the id is unknown.
func (q *QdrantIndex) Vector(ctx context.Context, id string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get vector %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return points[0].GetVectors().GetVector().GetData(), nil
}

// Count returns the number of indexed articles.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return int(count), nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
