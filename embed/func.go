package embed

import (
	"context"
	"fmt"
)

// Func adapts a function to [Embedder].
type Func struct {
	fn  func(ctx context.Context, text string) ([]float32, error)
	dim int
}

var _ Embedder = (*Func)(nil)

// NewFunc wraps fn. dim may be 0 when the dimension is not known upfront.
func NewFunc(dim int, fn func(ctx context.Context, text string) ([]float32, error)) *Func {
	return &Func{fn: fn, dim: dim}
}

func (f *Func) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return f.fn(ctx, text)
}

func (f *Func) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (f *Func) Dimension() int { return f.dim }
