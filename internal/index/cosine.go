package index

import (
	"fmt"
	"math"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// CosineSimilarity computes dot(a,b) / (norm(a) * norm(b)) in [-1, 1].
// Zero vectors and dimension mismatches are rejected rather than producing
// NaN scores.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("%w: empty vector", models.ErrInvalidEmbedding)
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: dimension mismatch %d vs %d", models.ErrInvalidEmbedding, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("%w: zero vector", models.ErrInvalidEmbedding)
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// ValidateVector rejects vectors that must never enter the index: wrong
// dimensionality, zero magnitude, or non-finite components.
func ValidateVector(vec []float32, dimensions int) error {
	if len(vec) != dimensions {
		return fmt.Errorf("%w: got %d dimensions, index expects %d", models.ErrInvalidEmbedding, len(vec), dimensions)
	}
	var norm float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component", models.ErrInvalidEmbedding)
		}
		norm += f * f
	}
	if norm == 0 {
		return fmt.Errorf("%w: zero vector", models.ErrInvalidEmbedding)
	}
	return nil
}
