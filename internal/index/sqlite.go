package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// SQLiteStore is the default vector index backend. Vectors and chunk payloads
// live in a single SQLite file; similarity is computed in-process with exact
// cosine over the candidate set. Upserts run in one transaction, so a batch is
// either fully visible to searches or not at all.
type SQLiteStore struct {
	db         *sql.DB
	model      models.ModelIdentity
	dimensions int

	mu sync.Mutex // write path only; reads go through SQLite's own locking
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id     TEXT NOT NULL UNIQUE,
	document_id  TEXT NOT NULL,
	content      TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	metadata     TEXT NOT NULL,
	vector       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

// NewSQLiteStore opens (or creates) the index file at path. On open it
// validates that the stored model identity and dimensionality match the
// configured embedder, failing with ErrIndexModelMismatch otherwise.
func NewSQLiteStore(path string, model models.ModelIdentity, dimensions int) (*SQLiteStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrInvalidConfig)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	// Serialize access through one connection; SQLite write locks make
	// additional pooled connections a source of busy errors, not speed.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}

	s := &SQLiteStore{db: db, model: model, dimensions: dimensions}
	if err := s.checkMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// checkMeta compares persisted model identity against the configured one,
// writing it on first use.
func (s *SQLiteStore) checkMeta() error {
	stored := map[string]string{}
	rows, err := s.db.Query(`SELECT key, value FROM index_meta`)
	if err != nil {
		return fmt.Errorf("failed to read index meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("failed to scan index meta: %w", err)
		}
		stored[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read index meta: %w", err)
	}

	if len(stored) == 0 {
		_, err := s.db.Exec(
			`INSERT INTO index_meta(key, value) VALUES ('model_name', ?), ('model_version', ?), ('dimensions', ?)`,
			s.model.Name, s.model.Version, fmt.Sprintf("%d", s.dimensions),
		)
		if err != nil {
			return fmt.Errorf("failed to write index meta: %w", err)
		}
		return nil
	}

	want := fmt.Sprintf("%d", s.dimensions)
	if stored["model_name"] != s.model.Name || stored["model_version"] != s.model.Version || stored["dimensions"] != want {
		return fmt.Errorf("%w: index built with %s@%s (%s dims), configured for %s (%d dims)",
			models.ErrIndexModelMismatch,
			stored["model_name"], stored["model_version"], stored["dimensions"],
			s.model, s.dimensions)
	}
	return nil
}

// Upsert inserts or replaces entries by chunk ID in a single transaction.
// Replaced entries take a fresh insertion sequence. Every vector is validated
// before any row is touched, so a bad vector rejects the whole batch.
func (s *SQLiteStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := ValidateVector(e.Vector, s.dimensions); err != nil {
			return fmt.Errorf("chunk %s: %w", e.Chunk.ChunkID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		meta, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", e.Chunk.ChunkID, err)
		}
		vec, err := json.Marshal(e.Vector)
		if err != nil {
			return fmt.Errorf("failed to encode vector for %s: %w", e.Chunk.ChunkID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE chunk_id = ?`, e.Chunk.ChunkID); err != nil {
			return fmt.Errorf("failed to replace chunk %s: %w", e.Chunk.ChunkID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks(chunk_id, document_id, content, start_offset, end_offset, metadata, vector)
			 VALUES(?, ?, ?, ?, ?, ?, ?)`,
			e.Chunk.ChunkID, e.Chunk.DocumentID, e.Chunk.Text,
			e.Chunk.StartOffset, e.Chunk.EndOffset, string(meta), string(vec),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", e.Chunk.ChunkID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Delete removes all chunks of a document and returns how many were removed.
func (s *SQLiteStore) Delete(ctx context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted chunks: %w", err)
	}
	return int(n), nil
}

// Search scans all candidates matching the metadata filters, scores them with
// exact cosine similarity and returns the topK, descending by score with ties
// broken by insertion order.
func (s *SQLiteStore) Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := ValidateVector(queryVector, s.dimensions); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, document_id, content, start_offset, end_offset, metadata, vector FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var chunk models.Chunk
		var metaJSON, vecJSON string
		if err := rows.Scan(&chunk.ChunkID, &chunk.DocumentID, &chunk.Text,
			&chunk.StartOffset, &chunk.EndOffset, &metaJSON, &vecJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", chunk.ChunkID, err)
		}
		if !matchesFilters(chunk.Metadata, filters) {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			return nil, fmt.Errorf("failed to decode vector for %s: %w", chunk.ChunkID, err)
		}
		score, err := CosineSimilarity(queryVector, vec)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.ChunkID, err)
		}
		hits = append(hits, Hit{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index rows: %w", err)
	}

	// Rows arrive in insertion order; a stable sort keeps that order for
	// equal scores.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func matchesFilters(meta, filters map[string]string) bool {
	for k, want := range filters {
		if meta[k] != want {
			return false
		}
	}
	return true
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
