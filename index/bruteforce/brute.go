package bruteforce

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/viant/docvec"
	"github.com/viant/docvec/index"
	"github.com/viant/docvec/vector"
	"github.com/viant/vec/search"
)

// Index is an exact brute-force cosine index.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]*entry
	next    uint64
}

type entry struct {
	seq uint64 // first-insertion order, kept across overwrites
	vec []float32
	mag float32
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) *Index {
	return &Index{dim: dim, entries: make(map[string]*entry)}
}

// Dimension returns the vector length accepted by the index.
func (i *Index) Dimension() int { return i.dim }

// Put inserts or overwrites the vector for id.
func (i *Index) Put(_ context.Context, id string, vec []float32) error {
	if len(vec) != i.dim {
		return fmt.Errorf("%w: bruteforce: vector has %d values, index dimension is %d", docvec.ErrDimensionMismatch, len(vec), i.dim)
	}
	cp := vector.Clone(vec)
	mag := search.Float32s(cp).Magnitude()

	i.mu.Lock()
	defer i.mu.Unlock()
	if prev, ok := i.entries[id]; ok {
		i.entries[id] = &entry{seq: prev.seq, vec: cp, mag: mag}
		return nil
	}
	i.entries[id] = &entry{seq: i.next, vec: cp, mag: mag}
	i.next++
	return nil
}

// Remove deletes the vector for id if present.
func (i *Index) Remove(_ context.Context, id string) error {
	i.mu.Lock()
	delete(i.entries, id)
	i.mu.Unlock()
	return nil
}

// Get returns a copy of the vector stored for id.
func (i *Index) Get(_ context.Context, id string) ([]float32, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: bruteforce: id %q", docvec.ErrNotFound, id)
	}
	return vector.Clone(e.vec), nil
}

// Query returns top-k by cosine similarity among the eligible vectors.
func (i *Index) Query(_ context.Context, query []float32, k int, candidates index.Set) ([]index.Match, error) {
	if k <= 0 || (candidates != nil && len(candidates) == 0) {
		return nil, nil
	}
	if len(query) != i.dim {
		return nil, fmt.Errorf("%w: bruteforce: query has %d values, index dimension is %d", docvec.ErrDimensionMismatch, len(query), i.dim)
	}
	q := search.Float32s(query)
	qm := q.Magnitude()
	if qm == 0 {
		return nil, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	type scored struct {
		id    string
		seq   uint64
		score float64
	}
	scoreds := make([]scored, 0, min(len(i.entries), max(len(candidates), k)))
	visit := func(id string, e *entry) {
		if e.mag == 0 {
			return
		}
		s := vector.Dot(query, e.vec) / (float64(qm) * float64(e.mag))
		if math.IsNaN(s) {
			return
		}
		scoreds = append(scoreds, scored{id: id, seq: e.seq, score: clamp(s)})
	}
	if candidates != nil && len(candidates) < len(i.entries) {
		for id := range candidates {
			if e, ok := i.entries[id]; ok {
				visit(id, e)
			}
		}
	} else {
		for id, e := range i.entries {
			if candidates != nil && !candidates.Has(id) {
				continue
			}
			visit(id, e)
		}
	}

	sort.Slice(scoreds, func(a, b int) bool {
		if scoreds[a].score != scoreds[b].score {
			return scoreds[a].score > scoreds[b].score
		}
		return scoreds[a].seq < scoreds[b].seq
	})
	if k > len(scoreds) {
		k = len(scoreds)
	}
	out := make([]index.Match, k)
	for n := 0; n < k; n++ {
		out[n] = index.Match{ID: scoreds[n].id, Score: scoreds[n].score}
	}
	return out, nil
}

// IDs returns the stored ids in first-insertion order.
func (i *Index) IDs() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ids := make([]string, 0, len(i.entries))
	for id := range i.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return i.entries[ids[a]].seq < i.entries[ids[b]].seq })
	return ids
}

// Len returns the number of stored vectors.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Close drops all vectors.
func (i *Index) Close() error {
	i.mu.Lock()
	i.entries = make(map[string]*entry)
	i.mu.Unlock()
	return nil
}

// clamp keeps float32 rounding from pushing a score outside [-1, 1].
func clamp(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

var _ index.Index = (*Index)(nil)
