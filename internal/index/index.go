// Package index persists chunk embeddings and answers nearest-neighbour
// queries. All backends validate that stored vectors share the configured
// model identity and dimensionality before serving.
package index

import (
	"context"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// Entry pairs a chunk with its embedding vector for storage.
type Entry struct {
	Chunk  models.Chunk
	Vector []float32
}

// Hit is a single similarity search result. Chunk text and metadata are stored
// alongside the vector so no second lookup is needed at query time.
type Hit struct {
	Chunk models.Chunk
	Score float64
}

// Store is the vector index contract.
//
// Upsert inserts or replaces entries by chunk ID, atomically per batch: either
// every entry in the batch becomes visible to subsequent searches or none do.
//
// Delete removes all chunks belonging to a document and reports how many were
// removed.
//
// Search returns the topK nearest entries by cosine similarity, descending,
// ties broken by insertion order. Filters restrict candidates by metadata
// equality before ranking.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, documentID string) (int, error)
	Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) ([]Hit, error)
	Close() error
}
