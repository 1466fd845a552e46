// Package embedding defines the text embedding contract consumed by
// text-based search.
//
// The store does not know or care how a vector was produced; any provider
// that satisfies Embedder can back SearchText.
package embedding

import "context"

// Embedder converts text into fixed-dimension vectors.
type Embedder interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension this embedder produces,
	// or 0 if unknown.
	Dimensions() int
}

// Func adapts a plain function to the Embedder interface. Dimensions
// reports 0 and EmbedBatch calls the function per text.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// EmbedBatch implements Embedder.
func (f Func) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Dimensions implements Embedder.
func (Func) Dimensions() int { return 0 }
