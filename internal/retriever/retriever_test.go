package retriever

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FKhadivpour/RAG-Application/internal/index"
	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// wordbagEmbedder is a deterministic term-frequency embedder over a small
// vocabulary, good enough to make related texts measurably closer than
// unrelated ones.
type wordbagEmbedder struct {
	vocab []string
	err   error
}

func newWordbagEmbedder(vocab ...string) *wordbagEmbedder {
	return &wordbagEmbedder{vocab: vocab}
}

func (w *wordbagEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if w.err != nil {
		return nil, w.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(w.vocab)+1)
		lowered := strings.ToLower(text)
		for j, word := range w.vocab {
			vec[j] = float32(strings.Count(lowered, word))
		}
		vec[len(w.vocab)] = 1 // bias term keeps vectors non-zero
		out[i] = vec
	}
	return out, nil
}

func (w *wordbagEmbedder) Model() models.ModelIdentity {
	return models.ModelIdentity{Name: "wordbag", Version: "1"}
}

func (w *wordbagEmbedder) Dimensions() int { return len(w.vocab) + 1 }

// fakeStore returns canned hits and records the search arguments.
type fakeStore struct {
	hits      []index.Hit
	err       error
	lastTopK  int
	lastQuery []float32
}

func (f *fakeStore) Upsert(context.Context, []index.Entry) error { return nil }

func (f *fakeStore) Delete(context.Context, string) (int, error) { return 0, nil }

func (f *fakeStore) Search(_ context.Context, query []float32, topK int, _ map[string]string) ([]index.Hit, error) {
	f.lastQuery = query
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func (f *fakeStore) Close() error { return nil }

func hit(chunkID, docID, text string, score float64, meta map[string]string) index.Hit {
	return index.Hit{
		Chunk: models.Chunk{ChunkID: chunkID, DocumentID: docID, Text: text, Metadata: meta},
		Score: score,
	}
}

func TestRetrieveRejectsBlankQuery(t *testing.T) {
	r := New(newWordbagEmbedder("a"), &fakeStore{}, Options{})
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := r.Retrieve(context.Background(), models.Query{Text: q})
		assert.ErrorIs(t, err, models.ErrInvalidQuery)
	}
}

func TestRetrieveSurfacesEmbeddingFailure(t *testing.T) {
	emb := newWordbagEmbedder("a")
	emb.err = fmt.Errorf("%w: model offline", models.ErrEmbeddingUnavailable)
	r := New(emb, &fakeStore{}, Options{})

	bundle, err := r.Retrieve(context.Background(), models.Query{Text: "anything"})
	require.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
	assert.Nil(t, bundle, "no partial bundle on failure")
}

func TestRetrieveSurfacesIndexFailure(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("index unavailable")}
	r := New(newWordbagEmbedder("a"), store, Options{})

	bundle, err := r.Retrieve(context.Background(), models.Query{Text: "anything"})
	require.Error(t, err)
	assert.Nil(t, bundle)
}

func TestRetrieveOversamplesSearch(t *testing.T) {
	store := &fakeStore{}
	r := New(newWordbagEmbedder("a"), store, Options{TopK: 4, OversampleFactor: 3})

	_, err := r.Retrieve(context.Background(), models.Query{Text: "anything"})
	require.NoError(t, err)
	assert.Equal(t, 12, store.lastTopK)
}

func TestRetrieveDedupPerDocument(t *testing.T) {
	store := &fakeStore{hits: []index.Hit{
		hit("d1-0", "d1", "one", 0.95, nil),
		hit("d1-100", "d1", "two", 0.94, nil),
		hit("d1-200", "d1", "three", 0.93, nil),
		hit("d1-300", "d1", "four", 0.92, nil),
		hit("d1-400", "d1", "five", 0.91, nil),
		hit("d2-0", "d2", "other", 0.50, nil),
	}}
	r := New(newWordbagEmbedder("a"), store, Options{TopK: 5, MaxChunksPerDocument: 1})

	bundle, err := r.Retrieve(context.Background(), models.Query{Text: "anything"})
	require.NoError(t, err)

	fromD1 := 0
	for _, sc := range bundle.Chunks {
		if sc.Chunk.DocumentID == "d1" {
			fromD1++
		}
	}
	assert.Equal(t, 1, fromD1)
	require.Len(t, bundle.Chunks, 2)
	assert.Equal(t, "d1-0", bundle.Chunks[0].Chunk.ChunkID, "highest-ranked chunk of the document survives")
}

func TestRetrieveBudgetRespected(t *testing.T) {
	store := &fakeStore{hits: []index.Hit{
		hit("d1-0", "d1", strings.Repeat("a", 40), 0.9, nil),
		hit("d2-0", "d2", strings.Repeat("b", 40), 0.8, nil),
		hit("d3-0", "d3", strings.Repeat("c", 40), 0.7, nil),
	}}
	r := New(newWordbagEmbedder("a"), store, Options{TopK: 3, ContextBudget: 100})

	bundle, err := r.Retrieve(context.Background(), models.Query{Text: "anything"})
	require.NoError(t, err)

	// Two 40-char chunks fit in 100; the third would overflow and is
	// dropped whole, not truncated.
	require.Len(t, bundle.Chunks, 2)
	assert.Equal(t, 80, bundle.TotalChars)
	assert.LessOrEqual(t, bundle.TotalChars, 100)
}

func TestRetrieveEmptyOnlyWhenTopChunkOverflows(t *testing.T) {
	store := &fakeStore{hits: []index.Hit{
		hit("d1-0", "d1", strings.Repeat("a", 500), 0.9, nil),
	}}
	r := New(newWordbagEmbedder("a"), store, Options{TopK: 3, ContextBudget: 100})

	bundle, err := r.Retrieve(context.Background(), models.Query{Text: "anything"})
	require.NoError(t, err)
	assert.Empty(t, bundle.Chunks)
	assert.Zero(t, bundle.TotalChars)
}

func TestRetrievePerQueryBudgetOverride(t *testing.T) {
	store := &fakeStore{hits: []index.Hit{
		hit("d1-0", "d1", strings.Repeat("a", 40), 0.9, nil),
		hit("d2-0", "d2", strings.Repeat("b", 40), 0.8, nil),
	}}
	r := New(newWordbagEmbedder("a"), store, Options{TopK: 3, ContextBudget: 1000})

	bundle, err := r.Retrieve(context.Background(), models.Query{Text: "anything", MaxContextChars: 50})
	require.NoError(t, err)
	require.Len(t, bundle.Chunks, 1)
}

func TestRetrieveMetadataBoost(t *testing.T) {
	store := &fakeStore{hits: []index.Hit{
		hit("old-0", "old", "older chunk", 0.80, map[string]string{"recency": "0"}),
		hit("new-0", "new", "newer chunk", 0.78, map[string]string{"recency": "1"}),
	}}
	r := New(newWordbagEmbedder("a"), store, Options{TopK: 2, BoostField: "recency", BoostWeight: 0.1})

	bundle, err := r.Retrieve(context.Background(), models.Query{Text: "anything"})
	require.NoError(t, err)
	require.Len(t, bundle.Chunks, 2)

	// 0.78 + 0.1*1 = 0.88 beats 0.80 + 0.
	assert.Equal(t, "new-0", bundle.Chunks[0].Chunk.ChunkID)
	assert.InDelta(t, 0.88, bundle.Chunks[0].Score, 1e-9)
}

func TestRetrievePromptSkeleton(t *testing.T) {
	store := &fakeStore{hits: []index.Hit{
		hit("d1-0", "d1", "Transformers use attention.", 0.9,
			map[string]string{"title": "Attention Is All You Need", "source": "arxiv:1706.03762"}),
	}}
	r := New(newWordbagEmbedder("a"), store, Options{TopK: 1})

	bundle, err := r.Retrieve(context.Background(), models.Query{Text: "What mechanism do transformers use?"})
	require.NoError(t, err)

	assert.Contains(t, bundle.Prompt, "[Document 1] Attention Is All You Need")
	assert.Contains(t, bundle.Prompt, "arxiv:1706.03762")
	assert.Contains(t, bundle.Prompt, "Transformers use attention.")
	assert.Contains(t, bundle.Prompt, "What mechanism do transformers use?")
}

func TestRetrieveEndToEndRanking(t *testing.T) {
	emb := newWordbagEmbedder("transformers", "attention", "lstms", "recurrence", "mechanism", "use")
	store, err := index.NewSQLiteStore(
		filepath.Join(t.TempDir(), "index.db"),
		emb.Model(), emb.Dimensions(),
	)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	docs := []models.Chunk{
		{ChunkID: "paper1-0", DocumentID: "paper1", Text: "Transformers use attention."},
		{ChunkID: "paper2-0", DocumentID: "paper2", Text: "LSTMs use recurrence."},
	}
	for _, ch := range docs {
		vecs, err := emb.Embed(ctx, []string{ch.Text})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, []index.Entry{{Chunk: ch, Vector: vecs[0]}}))
	}

	r := New(emb, store, Options{TopK: 2})
	bundle, err := r.Retrieve(ctx, models.Query{Text: "What mechanism do transformers use?"})
	require.NoError(t, err)
	require.Len(t, bundle.Chunks, 2)

	assert.Equal(t, "paper1", bundle.Chunks[0].Chunk.DocumentID)
	assert.Equal(t, "paper2", bundle.Chunks[1].Chunk.DocumentID)
	assert.Greater(t, bundle.Chunks[0].Score, bundle.Chunks[1].Score)
}
