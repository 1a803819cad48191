package collection

import (
	"context"
	"fmt"

	"github.com/viant/docvec"
	"github.com/viant/docvec/index"
	"github.com/viant/docvec/metadata"
)

// Search embeds text and returns up to k documents most similar to it,
// restricted to documents matching filter when filter is non-empty. Results
// carry the current payload of each document.
func (c *Collection) Search(ctx context.Context, text string, k int, filter docvec.Filter) ([]docvec.Result, error) {
	if k <= 0 {
		return []docvec.Result{}, nil
	}
	vec, err := c.embedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return c.SearchVector(ctx, vec, k, filter)
}

// SearchVector is Search with a precomputed query vector.
func (c *Collection) SearchVector(ctx context.Context, query []float32, k int, filter docvec.Filter) ([]docvec.Result, error) {
	if k <= 0 {
		return []docvec.Result{}, nil
	}
	var candidates index.Set
	if len(filter) > 0 {
		set, err := c.meta.Evaluate(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", c.name, err)
		}
		if len(set) == 0 {
			return []docvec.Result{}, nil
		}
		candidates = set
	}
	matches, err := c.vectors.Query(ctx, query, k, candidates)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", c.name, err)
	}
	// Index entries of writes in flight are not published yet or any more.
	c.mu.RLock()
	defer c.mu.RUnlock()
	results := make([]docvec.Result, 0, len(matches))
	for _, m := range matches {
		e, ok := c.docs[m.ID]
		if !ok || !metadata.Matches(e.payload, filter) {
			continue
		}
		results = append(results, docvec.Result{ID: m.ID, Score: m.Score, Payload: e.payload.Clone()})
	}
	return results, nil
}
