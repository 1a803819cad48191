package collection

import (
	"context"
	"fmt"
	"math"

	"github.com/viant/docvec"
	"github.com/viant/docvec/vector"
	"golang.org/x/sync/errgroup"
)

// embedAll embeds texts in batches, running up to parallelism batches at a
// time. The result keeps input order. Any failure fails the whole call.
func (c *Collection) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.parallelism)
	for start := 0; start < len(texts); start += c.opts.batchSize {
		end := min(start+c.opts.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := c.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("%w: collection %s: documents [%d:%d]: %w", docvec.ErrEmbeddingFailure, c.Name(), start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("%w: collection %s: documents [%d:%d]: provider returned %d vectors", docvec.ErrEmbeddingFailure, c.Name(), start, end, len(vecs))
			}
			for n, v := range vecs {
				if err := c.checkVector(v); err != nil {
					return fmt.Errorf("collection %s: document %d: %w", c.Name(), start+n, err)
				}
				out[start+n] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedOne embeds a single text.
func (c *Collection) embedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %w", docvec.ErrEmbeddingFailure, c.Name(), err)
	}
	if err := c.checkVector(v); err != nil {
		return nil, fmt.Errorf("collection %s: %w", c.Name(), err)
	}
	return v, nil
}

// checkVector rejects provider output that cannot be indexed: a wrong length
// (never truncated or padded), a zero vector or non-finite values.
func (c *Collection) checkVector(v []float32) error {
	dim := c.dim
	if len(v) != dim {
		return fmt.Errorf("%w: %w: provider returned %d values, collection dimension is %d",
			docvec.ErrEmbeddingFailure, docvec.ErrDimensionMismatch, len(v), dim)
	}
	mag := vector.Magnitude(v)
	if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return fmt.Errorf("%w: provider returned a vector with magnitude %v", docvec.ErrEmbeddingFailure, mag)
	}
	return nil
}
