// Package vectorindex provides nearest-neighbor lookup over article
// embeddings, backed by Qdrant in production and an in-memory index for
// tests and small local runs.
package vectorindex

import (
	"context"
	"time"
)

// ArticleVector is one article's embedding plus the metadata the cluster
// engine needs without a store round-trip.
type ArticleVector struct {
	ID          string
	Title       string
	Source      string
	PublishedAt time.Time
	Embedding   []float32
}

// Match is a similarity search hit, nearest first.
type Match struct {
	ID          string
	Title       string
	Source      string
	PublishedAt time.Time
	Similarity  float32 // Cosine similarity in [0, 1] for normalized vectors
}

// Index is the nearest-neighbor collaborator consumed by the cluster engine.
type Index interface {
	// Upsert stores article vectors, replacing any existing entries with the
	// same ids.
	Upsert(ctx context.Context, vectors []ArticleVector) error

	// Exists reports whether an article id is already indexed.
	Exists(ctx context.Context, id string) (bool, error)

	// Query returns up to k articles most similar to the given embedding,
	// nearest first, filtered to similarity >= minSimilarity.
	Query(ctx context.Context, embedding []float32, k int, minSimilarity float64) ([]Match, error)

	// Vector returns a stored article's embedding, or nil if unknown.
	Vector(ctx context.Context, id string) ([]float32, error)

	// Count returns the number of indexed articles.
	Count(ctx context.Context) (int, error)
}
