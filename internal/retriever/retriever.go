// Package retriever turns a raw query into a bounded, ordered set of
// supporting passages: embed, search, rank, assemble.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/FKhadivpour/RAG-Application/internal/config"
	"github.com/FKhadivpour/RAG-Application/internal/embedding"
	"github.com/FKhadivpour/RAG-Application/internal/index"
	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// Options tune ranking and assembly. Zero values take the package defaults.
type Options struct {
	TopK                 int
	OversampleFactor     int
	MaxChunksPerDocument int // 0 = unlimited
	ContextBudget        int // characters
	BoostField           string
	BoostWeight          float64
}

// OptionsFromConfig lifts the retrieval knobs out of the file config.
func OptionsFromConfig(cfg *config.RAGConfig) Options {
	return Options{
		TopK:                 cfg.TopK,
		OversampleFactor:     cfg.OversampleFactor,
		MaxChunksPerDocument: cfg.MaxChunksPerDocument,
		ContextBudget:        cfg.ContextBudget,
		BoostField:           cfg.BoostField,
		BoostWeight:          cfg.BoostWeight,
	}
}

// Retriever orchestrates the per-query pipeline against an embedder and a
// vector index. It never mutates the index; concurrent queries are safe.
type Retriever struct {
	embedder embedding.Embedder
	store    index.Store
	opts     Options
}

func New(embedder embedding.Embedder, store index.Store, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = config.DefaultTopK
	}
	if opts.OversampleFactor <= 0 {
		opts.OversampleFactor = config.DefaultOversampleFactor
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = config.DefaultContextBudget
	}
	return &Retriever{embedder: embedder, store: store, opts: opts}
}

// Retrieve runs the query pipeline and returns the assembled context bundle.
// No partial bundle is ever returned on failure.
func (r *Retriever) Retrieve(ctx context.Context, query models.Query) (*models.ContextBundle, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: query text is empty", models.ErrInvalidQuery)
	}

	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: %w", models.ErrEmbeddingUnavailable)
	}

	topK := query.TopK
	if topK <= 0 {
		topK = r.opts.TopK
	}
	// Oversample so deduplication and filtering don't starve the final
	// result set.
	oversampled := r.opts.OversampleFactor * topK
	if oversampled < topK {
		oversampled = topK
	}

	hits, err := r.store.Search(ctx, vectors[0], oversampled, query.Filters)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	ranked := r.rank(hits, topK)

	budget := query.MaxContextChars
	if budget <= 0 {
		budget = r.opts.ContextBudget
	}
	selected, total := assemble(ranked, budget)

	return &models.ContextBundle{
		Query:      text,
		Chunks:     selected,
		TotalChars: total,
		Prompt:     BuildPrompt(text, selected),
	}, nil
}

// rank deduplicates candidates per document, applies the deterministic
// metadata boost and cuts the list to topK. The incoming hits are already
// ordered by raw similarity with stable ties; both the per-document cap and
// the boost re-sort keep that order for equal scores.
func (r *Retriever) rank(hits []index.Hit, topK int) []models.ScoredChunk {
	perDoc := make(map[string]int)
	ranked := make([]models.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		if limit := r.opts.MaxChunksPerDocument; limit > 0 {
			if perDoc[hit.Chunk.DocumentID] >= limit {
				continue
			}
			perDoc[hit.Chunk.DocumentID]++
		}
		score := hit.Score
		if r.opts.BoostField != "" && r.opts.BoostWeight != 0 {
			score += r.opts.BoostWeight * boostSignal(hit.Chunk.Metadata, r.opts.BoostField)
		}
		ranked = append(ranked, models.ScoredChunk{Chunk: hit.Chunk, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// boostSignal reads a numeric metadata field; absent or unparseable values
// contribute nothing.
func boostSignal(meta map[string]string, field string) float64 {
	raw, ok := meta[field]
	if !ok {
		return 0
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return val
}

// assemble appends chunks in ranked order until the character budget would be
// exceeded. The chunk that would overflow is dropped whole and assembly stops,
// so every selected chunk stays intact for citation.
func assemble(ranked []models.ScoredChunk, budget int) ([]models.ScoredChunk, int) {
	selected := make([]models.ScoredChunk, 0, len(ranked))
	total := 0
	for _, sc := range ranked {
		if total+len(sc.Chunk.Text) > budget {
			break
		}
		selected = append(selected, sc)
		total += len(sc.Chunk.Text)
	}
	return selected, total
}

// BuildPrompt renders the prompt skeleton handed to the external generator:
// numbered, cited context followed by the user query.
func BuildPrompt(query string, chunks []models.ScoredChunk) string {
	return fmt.Sprintf(models.AnswerPromptTemplate, FormatContext(chunks), query)
}

// FormatContext renders chunks as numbered citations with title and source
// pulled from metadata.
func FormatContext(chunks []models.ScoredChunk) string {
	if len(chunks) == 0 {
		return "No relevant context found."
	}
	parts := make([]string, 0, len(chunks))
	for i, sc := range chunks {
		title := sc.Chunk.Metadata["title"]
		if title == "" {
			title = "Untitled"
		}
		source := sc.Chunk.Metadata["source"]
		if source == "" {
			source = "Unknown source"
		}
		parts = append(parts, fmt.Sprintf(models.ContextChunkTemplate, i+1, title, source, sc.Chunk.Text))
	}
	return strings.Join(parts, "\n")
}
