package embedding

import (
	"context"
	"sync"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// EmbedChunks embeds chunk texts in batches across a bounded worker pool and
// returns one Embedding per chunk in the original order. Batch requests beat
// per-chunk calls because the model round-trip dominates throughput. The
// first failure cancels outstanding work and is returned.
func EmbedChunks(ctx context.Context, embedder Embedder, chunks []models.Chunk, batchSize, workers int) ([]models.Embedding, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if workers <= 0 {
		workers = 1
	}

	type job struct {
		start int
		texts []string
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job)
	vectors := make([][]float32, len(chunks))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					// Cancellation counts as a failure for unprocessed
					// jobs, never a silent gap in the results.
					fail(err)
					continue
				}
				vecs, err := embedder.Embed(ctx, j.texts)
				if err != nil {
					fail(err)
					continue
				}
				for i, v := range vecs {
					vectors[j.start+i] = v
				}
			}
		}()
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}
		jobs <- job{start: start, texts: texts}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	out := make([]models.Embedding, len(chunks))
	model := embedder.Model()
	for i, ch := range chunks {
		out[i] = models.Embedding{ChunkID: ch.ChunkID, Vector: vectors[i], Model: model}
	}
	return out, nil
}
