package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

func TestCosineSimilarityClosedForm(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"scaled", []float32{1, 1}, []float32{5, 5}, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineSimilarity(tc.a, tc.b)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-6)
		})
	}
}

func TestCosineSimilarityRejectsZeroVector(t *testing.T) {
	_, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, models.ErrInvalidEmbedding)

	_, err = CosineSimilarity([]float32{1, 2, 3}, []float32{0, 0, 0})
	assert.ErrorIs(t, err, models.ErrInvalidEmbedding)
}

func TestCosineSimilarityRejectsDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, models.ErrInvalidEmbedding)
}

func TestValidateVector(t *testing.T) {
	assert.NoError(t, ValidateVector([]float32{1, 0, 0}, 3))
	assert.ErrorIs(t, ValidateVector([]float32{1, 0}, 3), models.ErrInvalidEmbedding)
	assert.ErrorIs(t, ValidateVector([]float32{0, 0, 0}, 3), models.ErrInvalidEmbedding)
	assert.ErrorIs(t, ValidateVector([]float32{float32(math.NaN()), 1, 1}, 3), models.ErrInvalidEmbedding)
}
