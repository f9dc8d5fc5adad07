// Package memory implements the per-table facade over the storage
// collaborator, with optional embedding and vector search support.
package memory

import "context"

// Embedder converts text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Point is a vector with an ID and arbitrary payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// SearchResult is a scored point returned by a vector search.
type SearchResult struct {
	ID    string
	Score float32
	Point Point
}

// VectorStore is an external vector index used to accelerate similarity
// search. When present, the manager mirrors embeddings into it and routes
// searches through it instead of scanning the storage collaborator.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	Delete(ctx context.Context, collection string, ids []string) error
}
