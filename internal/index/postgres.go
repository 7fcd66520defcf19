package index

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// PostgresStore backs the vector index with Postgres + pgvector. Similarity is
// computed server-side with the cosine distance operator; the score returned
// is 1 - distance, matching the reference cosine similarity.
type PostgresStore struct {
	db         *bun.DB
	model      models.ModelIdentity
	dimensions int

	mu sync.Mutex
}

type chunkRow struct {
	bun.BaseModel `bun:"table:chunk_embeddings,alias:ce"`
	Seq           int64             `bun:"seq,pk,autoincrement"`
	ChunkID       string            `bun:"chunk_id,notnull,unique"`
	DocumentID    string            `bun:"document_id,notnull"`
	Content       string            `bun:"content,notnull"`
	StartOffset   int               `bun:"start_offset,notnull"`
	EndOffset     int               `bun:"end_offset,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Vector        []float32         `bun:"vector,notnull"`
	Score         float64           `bun:"score,scanonly"`
}

type metaRow struct {
	bun.BaseModel `bun:"table:index_meta,alias:im"`
	Key           string `bun:"key,pk"`
	Value         string `bun:"value,notnull"`
}

// ConnectPostgres opens a bun handle against the configured DSN, with query
// logging when debug is on.
func ConnectPostgres(dsn, password string, debug bool) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(password)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// NewPostgresStore initializes the schema and validates the persisted model
// identity against the configured embedder.
func NewPostgresStore(ctx context.Context, db *bun.DB, model models.ModelIdentity, dimensions int) (*PostgresStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrInvalidConfig)
	}
	ddl := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
			seq BIGSERIAL PRIMARY KEY,
			chunk_id TEXT NOT NULL UNIQUE,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL,
			start_offset INT NOT NULL,
			end_offset INT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			vector vector(%d) NOT NULL
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_document ON chunk_embeddings(document_id)`,
		`CREATE TABLE IF NOT EXISTS index_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to initialize index schema: %w", err)
		}
	}

	s := &PostgresStore{db: db, model: model, dimensions: dimensions}
	if err := s.checkMeta(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) checkMeta(ctx context.Context) error {
	var rows []metaRow
	if err := s.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return fmt.Errorf("failed to read index meta: %w", err)
	}
	if len(rows) == 0 {
		seed := []metaRow{
			{Key: "model_name", Value: s.model.Name},
			{Key: "model_version", Value: s.model.Version},
			{Key: "dimensions", Value: strconv.Itoa(s.dimensions)},
		}
		if _, err := s.db.NewInsert().Model(&seed).Exec(ctx); err != nil {
			return fmt.Errorf("failed to write index meta: %w", err)
		}
		return nil
	}
	stored := map[string]string{}
	for _, r := range rows {
		stored[r.Key] = r.Value
	}
	if stored["model_name"] != s.model.Name || stored["model_version"] != s.model.Version || stored["dimensions"] != strconv.Itoa(s.dimensions) {
		return fmt.Errorf("%w: index built with %s@%s (%s dims), configured for %s (%d dims)",
			models.ErrIndexModelMismatch,
			stored["model_name"], stored["model_version"], stored["dimensions"],
			s.model, s.dimensions)
	}
	return nil
}

// Upsert replaces entries by chunk ID inside one transaction.
func (s *PostgresStore) Upsert(ctx context.Context, entries []Entry) error {
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

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, e := range entries {
			if _, err := tx.NewDelete().Model((*chunkRow)(nil)).Where("chunk_id = ?", e.Chunk.ChunkID).Exec(ctx); err != nil {
				return fmt.Errorf("failed to replace chunk %s: %w", e.Chunk.ChunkID, err)
			}
			row := &chunkRow{
				ChunkID:     e.Chunk.ChunkID,
				DocumentID:  e.Chunk.DocumentID,
				Content:     e.Chunk.Text,
				StartOffset: e.Chunk.StartOffset,
				EndOffset:   e.Chunk.EndOffset,
				Metadata:    e.Chunk.Metadata,
				Vector:      e.Vector,
			}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert chunk %s: %w", e.Chunk.ChunkID, err)
			}
		}
		return nil
	})
}

// Delete removes all chunks of a document.
func (s *PostgresStore) Delete(ctx context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.NewDelete().Model((*chunkRow)(nil)).Where("document_id = ?", documentID).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted chunks: %w", err)
	}
	return int(n), nil
}

// Search ranks candidates with the pgvector cosine distance operator, ties
// broken by insertion sequence.
func (s *PostgresStore) Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := ValidateVector(queryVector, s.dimensions); err != nil {
		return nil, err
	}

	literal := vectorLiteral(queryVector)
	var rows []chunkRow
	q := s.db.NewSelect().Model(&rows).
		Column("chunk_id", "document_id", "content", "start_offset", "end_offset", "metadata").
		ColumnExpr("1 - (ce.vector <=> ?::vector) AS score", literal).
		OrderExpr("ce.vector <=> ?::vector ASC, ce.seq ASC", literal).
		Limit(topK)
	for k, v := range filters {
		q = q.Where("ce.metadata->>? = ?", k, v)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{
			Chunk: models.Chunk{
				ChunkID:     r.ChunkID,
				DocumentID:  r.DocumentID,
				Text:        r.Content,
				StartOffset: r.StartOffset,
				EndOffset:   r.EndOffset,
				Metadata:    r.Metadata,
			},
			Score: r.Score,
		})
	}
	return hits, nil
}

// vectorLiteral renders a []float32 as a pgvector input literal.
func vectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
