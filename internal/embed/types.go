// Package embed turns text into fixed-length vectors for the hybrid search
// index: a trainable TF-IDF backend that is always available, and an
// optional neural backend that falls back to TF-IDF whenever its runtime,
// model, or tokenizer is missing.
package embed

import (
	"context"
	"math"
)

// DefaultDimensions is the embedding dimension used when a config leaves it
// unset.
const DefaultDimensions = 384

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text. Non-empty input is
	// L2-normalized; the empty string maps to the zero vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension D.
	Dimensions() int

	// Name returns the backend identifier ("tfidf" or "neural").
	Name() string

	// Available reports whether the backend can currently serve embeddings.
	Available(ctx context.Context) bool

	// Close releases resources held by the backend.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
