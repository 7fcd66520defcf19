package embedding

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// fakeEmbedder encodes the numeric suffix of each text into the vector, so
// tests can verify order preservation.
type fakeEmbedder struct {
	calls   atomic.Int32
	failOn  string
	failErr error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, f.failErr
		}
		n, _ := strconv.Atoi(strings.TrimPrefix(text, "text-"))
		out[i] = []float32{float32(n), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() models.ModelIdentity {
	return models.ModelIdentity{Name: "fake", Version: "1"}
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

func makeChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ChunkID:    fmt.Sprintf("doc-%d", i),
			DocumentID: "doc",
			Text:       fmt.Sprintf("text-%d", i),
		}
	}
	return chunks
}

func TestEmbedChunksPreservesOrder(t *testing.T) {
	fake := &fakeEmbedder{}
	chunks := makeChunks(25)

	embs, err := EmbedChunks(context.Background(), fake, chunks, 4, 3)
	require.NoError(t, err)
	require.Len(t, embs, 25)

	for i, emb := range embs {
		assert.Equal(t, chunks[i].ChunkID, emb.ChunkID)
		assert.Equal(t, float32(i), emb.Vector[0])
		assert.Equal(t, "fake", emb.Model.Name)
	}
}

func TestEmbedChunksBatches(t *testing.T) {
	fake := &fakeEmbedder{}
	chunks := makeChunks(10)

	_, err := EmbedChunks(context.Background(), fake, chunks, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestEmbedChunksPropagatesFirstError(t *testing.T) {
	fake := &fakeEmbedder{
		failOn:  "text-7",
		failErr: fmt.Errorf("%w: connection refused", models.ErrEmbeddingUnavailable),
	}
	chunks := makeChunks(20)

	_, err := EmbedChunks(context.Background(), fake, chunks, 4, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

// cancellingEmbedder cancels the caller's context after its first batch.
type cancellingEmbedder struct {
	fakeEmbedder
	cancel context.CancelFunc
}

func (c *cancellingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.calls.Load() == 0 {
		defer c.cancel()
	}
	return c.fakeEmbedder.Embed(ctx, texts)
}

func TestEmbedChunksMidRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &cancellingEmbedder{cancel: cancel}
	chunks := makeChunks(8)

	embs, err := EmbedChunks(ctx, fake, chunks, 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, embs)
}

func TestEmbedChunksEmptyInput(t *testing.T) {
	embs, err := EmbedChunks(context.Background(), &fakeEmbedder{}, nil, 4, 2)
	require.NoError(t, err)
	assert.Nil(t, embs)
}
