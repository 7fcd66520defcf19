package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// Reserved metadata keys carrying chunk identity through chromem documents.
const (
	metaDocumentID  = "_document_id"
	metaStartOffset = "_start_offset"
	metaEndOffset   = "_end_offset"
)

// ChromemStore backs the vector index with an embedded chromem-go database.
// Chunk offsets travel in reserved metadata keys; the model identity lives in
// a sidecar file next to the database so a mismatched embedder is caught on
// open. Unlike the SQLite backend, equal-score ties are ordered by chunk ID,
// not insertion order, and upsert batches are written document by document
// rather than in one transaction; the ingestion journal flags documents whose
// batch was interrupted.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	model      models.ModelIdentity
	dimensions int
	path       string
}

type chromemMeta struct {
	ModelName    string `json:"model_name"`
	ModelVersion string `json:"model_version"`
	Dimensions   int    `json:"dimensions"`
}

// NewChromemStore opens a persistent chromem database at path, or an
// in-memory one when path is empty.
func NewChromemStore(path, collectionName string, model models.ModelIdentity, dimensions int) (*ChromemStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrInvalidConfig)
	}

	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		if err := checkSidecarMeta(path, collectionName, model, dimensions); err != nil {
			return nil, err
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
		model:      model,
		dimensions: dimensions,
		path:       path,
	}, nil
}

func checkSidecarMeta(path, collectionName string, model models.ModelIdentity, dimensions int) error {
	metaPath := filepath.Join(path, collectionName+".model.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		meta := chromemMeta{ModelName: model.Name, ModelVersion: model.Version, Dimensions: dimensions}
		encoded, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode index meta: %w", err)
		}
		if err := os.WriteFile(metaPath, encoded, 0o644); err != nil {
			return fmt.Errorf("failed to write index meta: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index meta: %w", err)
	}
	var meta chromemMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to decode index meta: %w", err)
	}
	if meta.ModelName != model.Name || meta.ModelVersion != model.Version || meta.Dimensions != dimensions {
		return fmt.Errorf("%w: index built with %s@%s (%d dims), configured for %s (%d dims)",
			models.ErrIndexModelMismatch,
			meta.ModelName, meta.ModelVersion, meta.Dimensions, model, dimensions)
	}
	return nil
}

// Upsert adds or replaces chunk documents by ID. All vectors are validated
// before any write, so a bad vector rejects the whole batch.
func (s *ChromemStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		if err := ValidateVector(e.Vector, s.dimensions); err != nil {
			return fmt.Errorf("chunk %s: %w", e.Chunk.ChunkID, err)
		}
		meta := make(map[string]string, len(e.Chunk.Metadata)+3)
		for k, v := range e.Chunk.Metadata {
			meta[k] = v
		}
		meta[metaDocumentID] = e.Chunk.DocumentID
		meta[metaStartOffset] = strconv.Itoa(e.Chunk.StartOffset)
		meta[metaEndOffset] = strconv.Itoa(e.Chunk.EndOffset)
		docs = append(docs, chromem.Document{
			ID:        e.Chunk.ChunkID,
			Content:   e.Chunk.Text,
			Metadata:  meta,
			Embedding: e.Vector,
		})
	}
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Delete removes all chunks belonging to a document.
func (s *ChromemStore) Delete(ctx context.Context, documentID string) (int, error) {
	before := s.collection.Count()
	err := s.collection.Delete(ctx, map[string]string{metaDocumentID: documentID}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return before - s.collection.Count(), nil
}

// Search queries the collection by embedding. chromem computes cosine
// similarity for normalized vectors, matching the reference metric.
func (s *ChromemStore) Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := ValidateVector(queryVector, s.dimensions); err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	n := topK
	if count := s.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, queryVector, n, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, Hit{Chunk: chunkFromResult(res), Score: float64(res.Similarity)})
	}
	return hits, nil
}

func chunkFromResult(res chromem.Result) models.Chunk {
	chunk := models.Chunk{
		ChunkID:    res.ID,
		DocumentID: res.Metadata[metaDocumentID],
		Text:       res.Content,
	}
	chunk.StartOffset, _ = strconv.Atoi(res.Metadata[metaStartOffset])
	chunk.EndOffset, _ = strconv.Atoi(res.Metadata[metaEndOffset])
	meta := make(map[string]string)
	for k, v := range res.Metadata {
		if k == metaDocumentID || k == metaStartOffset || k == metaEndOffset {
			continue
		}
		meta[k] = v
	}
	if len(meta) > 0 {
		chunk.Metadata = meta
	}
	return chunk
}

func (s *ChromemStore) Close() error {
	return nil
}
