// Package ingest drives Chunker → Embedder → Vector Index for batches of
// documents, isolating per-document failures and keeping re-ingestion
// idempotent.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/FKhadivpour/RAG-Application/internal/chunker"
	"github.com/FKhadivpour/RAG-Application/internal/embedding"
	"github.com/FKhadivpour/RAG-Application/internal/index"
	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// Pipeline orchestrates one ingestion run. Construct it once and reuse it;
// the ingestion log carries crash-recovery state between runs.
type Pipeline struct {
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	store     index.Store
	journal   *Log
	retry     RetryPolicy
	batchSize int
	workers   int
}

func New(ck *chunker.Chunker, embedder embedding.Embedder, store index.Store, journal *Log, retry RetryPolicy, batchSize, workers int) *Pipeline {
	return &Pipeline{
		chunker:   ck,
		embedder:  embedder,
		store:     store,
		journal:   journal,
		retry:     retry,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Pending reports documents whose previous ingestion was interrupted between
// delete and upsert; they should be re-ingested.
func (p *Pipeline) Pending() []string {
	return p.journal.Pending()
}

// Ingest processes each document independently and reports a per-document
// outcome. One bad document never fails the batch.
func (p *Pipeline) Ingest(ctx context.Context, docs []models.Document) []models.IngestionOutcome {
	outcomes := make([]models.IngestionOutcome, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, failed(doc.ID, 0, err))
			continue
		}
		outcome := p.ingestOne(ctx, doc)
		switch outcome.Status {
		case models.OutcomeIngested:
			log.Info().Str("document", doc.ID).Int("chunks", outcome.Chunks).Msg("Ingested document")
		case models.OutcomeSkipped:
			log.Info().Str("document", doc.ID).Str("reason", outcome.Reason).Msg("Skipped document")
		case models.OutcomeFailed:
			log.Warn().Err(outcome.Err).Str("document", doc.ID).Msg("Failed to ingest document")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// ingestOne replaces a document's chunks in the index. The journal entry is
// written before the delete and cleared only after the upsert commits, so a
// crash in between leaves a visible open entry.
func (p *Pipeline) ingestOne(ctx context.Context, doc models.Document) models.IngestionOutcome {
	if doc.ID == "" {
		return skipped(doc.ID, "missing document id")
	}
	if strings.TrimSpace(doc.Text) == "" {
		return skipped(doc.ID, "empty document")
	}

	chunks := p.chunker.Split(doc)
	if len(chunks) == 0 {
		return skipped(doc.ID, "no chunks produced")
	}

	var embs []models.Embedding
	err := p.retry.Do(ctx, func() error {
		var embedErr error
		embs, embedErr = embedding.EmbedChunks(ctx, p.embedder, chunks, p.batchSize, p.workers)
		return embedErr
	})
	if err != nil {
		return failed(doc.ID, 0, fmt.Errorf("embed chunks: %w", err))
	}

	entries := make([]index.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = index.Entry{Chunk: ch, Vector: embs[i].Vector}
	}

	if err := p.journal.Begin(doc.ID); err != nil {
		return failed(doc.ID, 0, fmt.Errorf("open ingestion log entry: %w", err))
	}
	if _, err := p.store.Delete(ctx, doc.ID); err != nil {
		return failed(doc.ID, 0, fmt.Errorf("delete previous chunks: %w", err))
	}
	if err := p.store.Upsert(ctx, entries); err != nil {
		// The journal entry stays open; Pending will flag this document.
		return failed(doc.ID, 0, fmt.Errorf("upsert chunks: %w", err))
	}
	if err := p.journal.Clear(doc.ID); err != nil {
		return failed(doc.ID, len(entries), fmt.Errorf("clear ingestion log entry: %w", err))
	}

	return models.IngestionOutcome{
		DocumentID: doc.ID,
		Status:     models.OutcomeIngested,
		Chunks:     len(entries),
		FinishedAt: time.Now().UTC(),
	}
}

func skipped(docID, reason string) models.IngestionOutcome {
	return models.IngestionOutcome{
		DocumentID: docID,
		Status:     models.OutcomeSkipped,
		Reason:     reason,
		FinishedAt: time.Now().UTC(),
	}
}

func failed(docID string, chunks int, err error) models.IngestionOutcome {
	return models.IngestionOutcome{
		DocumentID: docID,
		Status:     models.OutcomeFailed,
		Chunks:     chunks,
		Reason:     err.Error(),
		Err:        err,
		FinishedAt: time.Now().UTC(),
	}
}
