package models

import (
	"fmt"
	"time"
)

// Document is a source unit handed to the ingestion pipeline. It is immutable
// once ingested; re-ingesting the same ID replaces all derived chunks.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a contiguous span of a document's text, the unit of retrieval.
// ChunkID is derived from the document ID and start offset, so re-chunking
// the same document yields the same IDs.
type Chunk struct {
	ChunkID     string            `json:"chunk_id"`
	DocumentID  string            `json:"document_id"`
	Text        string            `json:"text"`
	StartOffset int               `json:"start_offset"`
	EndOffset   int               `json:"end_offset"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewChunkID builds the deterministic chunk identifier.
func NewChunkID(documentID string, startOffset int) string {
	return fmt.Sprintf("%s-%d", documentID, startOffset)
}

// ModelIdentity names the embedding model that produced a vector. Vectors from
// different identities are never comparable.
type ModelIdentity struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (m ModelIdentity) String() string {
	if m.Version == "" {
		return m.Name
	}
	return m.Name + "@" + m.Version
}

// Embedding pairs a chunk with its vector representation.
type Embedding struct {
	ChunkID string        `json:"chunk_id"`
	Vector  []float32     `json:"vector"`
	Model   ModelIdentity `json:"model"`
}

// Query carries the user text plus retrieval parameters. Zero values fall back
// to the configured defaults.
type Query struct {
	Text            string            `json:"text"`
	TopK            int               `json:"top_k,omitempty"`
	Filters         map[string]string `json:"filters,omitempty"`
	MaxContextChars int               `json:"max_context_chars,omitempty"`
}

// ScoredChunk is one retrieval hit. Score is cosine similarity in [-1, 1].
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// ContextBundle is the terminal artifact of the retrieval pipeline: the ranked,
// budget-bounded chunks selected for generation, plus the prompt skeleton the
// external generator is called with.
type ContextBundle struct {
	Query      string        `json:"query"`
	Chunks     []ScoredChunk `json:"chunks"`
	TotalChars int           `json:"total_chars"`
	Prompt     string        `json:"prompt"`
}

// Ingestion outcome statuses.
const (
	OutcomeIngested = "ingested"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// IngestionOutcome reports the fate of one document in an ingestion batch.
type IngestionOutcome struct {
	DocumentID string    `json:"document_id"`
	Status     string    `json:"status"`
	Chunks     int       `json:"chunks"`
	Reason     string    `json:"reason,omitempty"`
	Err        error     `json:"-"`
	FinishedAt time.Time `json:"finished_at"`
}
