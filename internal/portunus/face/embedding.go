package face

import "math"

// EmbeddingSize is the dimension of the deep-model face embeddings.
const EmbeddingSize = 128

// EmbeddingDistance is the Euclidean distance between two embeddings.
// Mismatched or empty vectors are maximally distant (1.0).
func EmbeddingDistance(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	d := math.Sqrt(sum)
	if math.IsNaN(d) {
		return 1
	}
	return d
}

// EmbeddingSimilarity maps a distance into [0, 1] as 1 - min(d, 1).
func EmbeddingSimilarity(a, b []float64) float64 {
	return 1 - math.Min(EmbeddingDistance(a, b), 1)
}

// ValidateEmbedding checks the vector is EmbeddingSize long and finite.
func ValidateEmbedding(v []float64) error {
	if len(v) != EmbeddingSize {
		return ErrDegenerateInput
	}
	for _, x := range v {
		if !finite(x) {
			return ErrDegenerateInput
		}
	}
	return nil
}
