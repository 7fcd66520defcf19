package index

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

var testModel = models.ModelIdentity{Name: "test-embed", Version: "1"}

func newTestStore(t *testing.T, dimensions int) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := NewSQLiteStore(path, testModel, dimensions)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(chunkID, docID string, vec []float32, meta map[string]string) Entry {
	return Entry{
		Chunk: models.Chunk{
			ChunkID:    chunkID,
			DocumentID: docID,
			Text:       "text of " + chunkID,
			Metadata:   meta,
		},
		Vector: vec,
	}
}

func TestSQLiteSearchOrdering(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Entry{
		entry("d1-0", "d1", []float32{1, 0}, nil),
		entry("d2-0", "d2", []float32{0, 1}, nil),
		entry("d3-0", "d3", []float32{1, 1}, nil),
	}))

	hits, err := s.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// Non-increasing scores, closed-form values.
	assert.Equal(t, "d1-0", hits[0].Chunk.ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "d3-0", hits[1].Chunk.ChunkID)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)
	assert.Equal(t, "d2-0", hits[2].Chunk.ChunkID)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestSQLiteSearchTieBreakByInsertionOrder(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	// Same vector, so identical scores; insertion order must decide.
	require.NoError(t, s.Upsert(ctx, []Entry{
		entry("b-0", "b", []float32{1, 1}, nil),
		entry("a-0", "a", []float32{1, 1}, nil),
		entry("c-0", "c", []float32{1, 1}, nil),
	}))

	hits, err := s.Search(ctx, []float32{1, 1}, 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "b-0", hits[0].Chunk.ChunkID)
	assert.Equal(t, "a-0", hits[1].Chunk.ChunkID)
	assert.Equal(t, "c-0", hits[2].Chunk.ChunkID)
}

func TestSQLiteUpsertReplacesByChunkID(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Entry{entry("d1-0", "d1", []float32{1, 0}, nil)}))
	require.NoError(t, s.Upsert(ctx, []Entry{entry("d1-0", "d1", []float32{0, 1}, nil)}))

	hits, err := s.Search(ctx, []float32{0, 1}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestSQLiteUpsertRejectsZeroVectorBatch(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	err := s.Upsert(ctx, []Entry{
		entry("d1-0", "d1", []float32{1, 0}, nil),
		entry("d1-1", "d1", []float32{0, 0}, nil),
	})
	require.ErrorIs(t, err, models.ErrInvalidEmbedding)

	// The batch is atomic: the valid entry must not have been stored either.
	hits, err := s.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSQLiteDeleteByDocument(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Entry{
		entry("d1-0", "d1", []float32{1, 0}, nil),
		entry("d1-1", "d1", []float32{0, 1}, nil),
		entry("d2-0", "d2", []float32{1, 1}, nil),
	}))

	removed, err := s.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	hits, err := s.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d2-0", hits[0].Chunk.ChunkID)

	removed, err = s.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSQLiteMetadataFilters(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Entry{
		entry("d1-0", "d1", []float32{1, 0}, map[string]string{"source": "arxiv"}),
		entry("d2-0", "d2", []float32{1, 0}, map[string]string{"source": "web"}),
	}))

	hits, err := s.Search(ctx, []float32{1, 0}, 10, map[string]string{"source": "arxiv"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1-0", hits[0].Chunk.ChunkID)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, testModel, 2)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, []Entry{
		entry("d1-0", "d1", []float32{1, 0}, map[string]string{"title": "Attention"}),
	}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, testModel, 2)
	require.NoError(t, err)
	defer reopened.Close()

	hits, err := reopened.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1-0", hits[0].Chunk.ChunkID)
	assert.Equal(t, "Attention", hits[0].Chunk.Metadata["title"])
}

func TestSQLiteModelMismatchOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := NewSQLiteStore(path, models.ModelIdentity{Name: "all-minilm", Version: "1"}, 384)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = NewSQLiteStore(path, models.ModelIdentity{Name: "nomic-embed-text", Version: "1"}, 768)
	require.ErrorIs(t, err, models.ErrIndexModelMismatch)

	// Same model name, different dimensionality is still a mismatch.
	_, err = NewSQLiteStore(path, models.ModelIdentity{Name: "all-minilm", Version: "1"}, 768)
	require.ErrorIs(t, err, models.ErrIndexModelMismatch)
}

func TestSQLiteSearchRejectsZeroQueryVector(t *testing.T) {
	s := newTestStore(t, 2)
	_, err := s.Search(context.Background(), []float32{0, 0}, 5, nil)
	assert.ErrorIs(t, err, models.ErrInvalidEmbedding)
}

func TestSQLiteConcurrentReadsDuringWrites(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Entry{entry("seed-0", "seed", []float32{1, 0}, nil)}))

	done := make(chan error, 2)
	go func() {
		for i := 0; i < 20; i++ {
			docID := fmt.Sprintf("w%d", i)
			if err := s.Upsert(ctx, []Entry{entry(docID+"-0", docID, []float32{1, 1}, nil)}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	go func() {
		for i := 0; i < 20; i++ {
			if _, err := s.Search(ctx, []float32{1, 0}, 5, nil); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
}
