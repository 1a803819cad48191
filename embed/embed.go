// Package embed turns document and query text into vectors.
//
// # Implementations
//
//   - [OpenAI]: OpenAI or any OpenAI-compatible embeddings endpoint
//   - [Hash]: offline feature-hashing bag of words, for tests and demos
//   - [Func]: adapts a plain function
//
// # Quick Start
//
//	e := embed.NewOpenAI("sk-xxx", embed.WithModel(embed.ModelOpenAI3Small), embed.WithDimension(384))
//	vec, err := e.Embed(ctx, "a gripping thriller")
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors, or 0 when
	// it is only known after the first call.
	Dimension() int
}

// Common errors.
var (
	// ErrEmptyInput is returned when the input text is empty.
	ErrEmptyInput = errors.New("embed: empty input")
)
