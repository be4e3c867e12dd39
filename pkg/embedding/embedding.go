// Package embedding provides the text-to-vector capability used by the indexer and the search path.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrModelUnavailable is returned when the backing model cannot be reached.
	ErrModelUnavailable = errors.New("embedding model unavailable")
	// ErrEmptyInput is returned for text without any embeddable token.
	ErrEmptyInput = errors.New("embedding input is empty")
	// ErrDimensionMismatch is returned when the model answers with an unexpected vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrZeroVector is returned when the word vectors of a text cancel out.
	ErrZeroVector = errors.New("embedding vector has zero norm")
)

// Provider converts text into fixed-dimension vectors.
// Implementations must be deterministic for identical input and model version,
// and must return an error instead of a zero vector on failure.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedMany preserves input order; one failed item does not abort the batch.
	EmbedMany(ctx context.Context, texts []string) []Result
	Dimensions() int
	Model() string
}

// Result is the outcome for one item of a batch.
type Result struct {
	Vector []float32
	Err    error
}

// embedEach is the per-item fallback shared by providers without a native batch path.
func embedEach(ctx context.Context, p Provider, texts []string) []Result {
	results := make([]Result, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Err: err}
			continue
		}
		vec, err := p.Embed(ctx, text)
		results[i] = Result{Vector: vec, Err: err}
	}
	return results
}
