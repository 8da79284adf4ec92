package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is a brute-force in-memory Index. Used by tests and small
// local runs where a Qdrant instance is not worth the trouble.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string]ArticleVector
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string]ArticleVector)}
}

// Upsert stores article vectors, replacing entries with the same id.
func (m *MemoryIndex) Upsert(_ context.Context, vectors []ArticleVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		m.vectors[v.ID] = v
	}
	return nil
}

// Exists reports whether an article id is indexed.
func (m *MemoryIndex) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vectors[id]
	return ok, nil
}

// Query scans all stored vectors and returns the k most cosine-similar,
// nearest first, filtered to similarity >= minSimilarity.
func (m *MemoryIndex) Query(_ context.Context, embedding []float32, k int, minSimilarity float64) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, v := range m.vectors {
		sim := CosineSimilarity(embedding, v.Embedding)
		if float64(sim) < minSimilarity {
			continue
		}
		matches = append(matches, Match{
			ID:          v.ID,
			Title:       v.Title,
			Source:      v.Source,
			PublishedAt: v.PublishedAt,
			Similarity:  sim,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Vector returns a stored embedding, or nil if the id is unknown.
func (m *MemoryIndex) Vector(_ context.Context, id string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vectors[id]
	if !ok {
		return nil, nil
	}
	return v.Embedding, nil
}

// Count returns the number of indexed articles.
func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors), nil
}

// CosineSimilarity computes cosine similarity between two vectors. Returns 0
// for zero-norm vectors or mismatched lengths.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	na := float32(math.Sqrt(float64(normA)))
	nb := float32(math.Sqrt(float64(normB)))
	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (na * nb)
}
