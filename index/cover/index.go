package cover

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

// slack absorbs float rounding in the pruning test.
const slack = 1e-6

// Index implements a cosine kNN index using a VP-tree to prune search.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]*entry
	next    uint64
	dirty   bool
	root    *node
}

type entry struct {
	id   string
	seq  uint64
	vec  []float32
	mag  float32
	unit []float64
}

type node struct {
	e     *entry
	thr   float64
	left  *node
	right *node
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) *Index {
	return &Index{dim: dim, entries: make(map[string]*entry)}
}

// Dimension returns the vector length accepted by the index.
func (i *Index) Dimension() int { return i.dim }

// Put inserts or overwrites the vector for id and marks the tree stale.
func (i *Index) Put(_ context.Context, id string, vec []float32) error {
	if len(vec) != i.dim {
		return fmt.Errorf("%w: cover: vector has %d values, index dimension is %d", docvec.ErrDimensionMismatch, len(vec), i.dim)
	}
	e := newEntry(id, vec)
	i.mu.Lock()
	defer i.mu.Unlock()
	if prev, ok := i.entries[id]; ok {
		e.seq = prev.seq
	} else {
		e.seq = i.next
		i.next++
	}
	i.entries[id] = e
	i.dirty = true
	return nil
}

func newEntry(id string, vec []float32) *entry {
	cp := vector.Clone(vec)
	e := &entry{id: id, vec: cp, mag: search.Float32s(cp).Magnitude()}
	if e.mag == 0 {
		return e
	}
	norm := vector.Magnitude(cp)
	e.unit = make([]float64, len(cp))
	for j, v := range cp {
		e.unit[j] = float64(v) / norm
	}
	return e
}

// Remove deletes the vector for id if present.
func (i *Index) Remove(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.entries[id]; ok {
		delete(i.entries, id)
		i.dirty = true
	}
	return nil
}

// Get returns a copy of the vector stored for id.
func (i *Index) Get(_ context.Context, id string) ([]float32, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: cover: id %q", docvec.ErrNotFound, id)
	}
	return vector.Clone(e.vec), nil
}

// Len returns the number of stored vectors.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Close drops all vectors and the tree.
func (i *Index) Close() error {
	i.mu.Lock()
	i.entries = make(map[string]*entry)
	i.root = nil
	i.dirty = false
	i.mu.Unlock()
	return nil
}

// snapshot returns the current tree, rebuilding it when writes happened since
// the last build. Nodes are never mutated after construction, so the returned
// tree can be traversed without holding the lock.
func (i *Index) snapshot() *node {
	i.mu.RLock()
	if !i.dirty {
		root := i.root
		i.mu.RUnlock()
		return root
	}
	i.mu.RUnlock()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.dirty {
		es := make([]*entry, 0, len(i.entries))
		for _, e := range i.entries {
			if e.unit != nil {
				es = append(es, e)
			}
		}
		// Deterministic vantage point choice.
		sort.Slice(es, func(a, b int) bool { return es[a].seq < es[b].seq })
		i.root = buildVP(es)
		i.dirty = false
	}
	return i.root
}

func buildVP(es []*entry) *node {
	if len(es) == 0 {
		return nil
	}
	// pick last as vantage point to avoid extra randomness
	vp := es[len(es)-1]
	es = es[:len(es)-1]
	if len(es) == 0 {
		return &node{e: vp}
	}
	dists := make([]float64, len(es))
	for k, e := range es {
		dists[k] = chord(vp.unit, e.unit)
	}
	order := make([]int, len(es))
	for k := range order {
		order[k] = k
	}
	sort.Slice(order, func(a, b int) bool { return dists[order[a]] < dists[order[b]] })
	mid := len(es) / 2
	thr := dists[order[mid]]
	left := make([]*entry, 0, mid+1)
	right := make([]*entry, 0, len(es)-mid-1)
	for rank, k := range order {
		if rank <= mid {
			left = append(left, es[k])
		} else {
			right = append(right, es[k])
		}
	}
	return &node{e: vp, thr: thr, left: buildVP(left), right: buildVP(right)}
}

// Query returns up to k matches ordered by decreasing cosine similarity.
func (i *Index) Query(_ context.Context, query []float32, k int, candidates index.Set) ([]index.Match, error) {
	if k <= 0 || (candidates != nil && len(candidates) == 0) {
		return nil, nil
	}
	if len(query) != i.dim {
		return nil, fmt.Errorf("%w: cover: query has %d values, index dimension is %d", docvec.ErrDimensionMismatch, len(query), i.dim)
	}
	q := newEntry("", query)
	if q.mag == 0 {
		return nil, nil
	}
	top := &topK{k: k, q: q}

	// A small candidate set is cheaper to scan than to traverse.
	i.mu.RLock()
	n := len(i.entries)
	if candidates != nil && len(candidates)*4 < n {
		for id := range candidates {
			if e, ok := i.entries[id]; ok && e.unit != nil {
				top.offer(e)
			}
		}
		i.mu.RUnlock()
		return top.matches(), nil
	}
	i.mu.RUnlock()

	var visit func(n *node)
	visit = func(n *node) {
		if n == nil {
			return
		}
		d := chord(q.unit, n.e.unit)
		if candidates == nil || candidates.Has(n.e.id) {
			top.offer(n.e)
		}
		tau := top.bound() + slack
		if d < n.thr {
			if d-tau <= n.thr {
				visit(n.left)
			}
			if d+tau >= n.thr {
				visit(n.right)
			}
		} else {
			if d+tau >= n.thr {
				visit(n.right)
			}
			if d-tau <= n.thr {
				visit(n.left)
			}
		}
	}
	visit(i.snapshot())
	return top.matches(), nil
}

type scored struct {
	e     *entry
	score float64
}

// topK keeps the k best entries by score, ties resolved by lower seq.
type topK struct {
	k     int
	q     *entry
	items []scored
	worst int
}

func (t *topK) better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.e.seq < b.e.seq
}

func (t *topK) offer(e *entry) {
	var s float64
	for j, v := range t.q.unit {
		s += v * e.unit[j]
	}
	c := scored{e: e, score: clamp(s)}
	if len(t.items) < t.k {
		t.items = append(t.items, c)
		if len(t.items) == t.k {
			t.findWorst()
		}
		return
	}
	if t.better(c, t.items[t.worst]) {
		t.items[t.worst] = c
		t.findWorst()
	}
}

func (t *topK) findWorst() {
	t.worst = 0
	for n := 1; n < len(t.items); n++ {
		if t.better(t.items[t.worst], t.items[n]) {
			t.worst = n
		}
	}
}

// bound is the chord radius that still may hold a better entry. Scores are
// dot products of unit vectors, so chord = sqrt(2 - 2*score).
func (t *topK) bound() float64 {
	if len(t.items) < t.k {
		return math.Inf(1)
	}
	return math.Sqrt(math.Max(0, 2-2*t.items[t.worst].score))
}

func (t *topK) matches() []index.Match {
	sort.Slice(t.items, func(a, b int) bool { return t.better(t.items[a], t.items[b]) })
	out := make([]index.Match, len(t.items))
	for n, c := range t.items {
		out[n] = index.Match{ID: c.e.id, Score: c.score}
	}
	return out
}

// chord returns the Euclidean distance between two unit vectors.
func chord(a, b []float64) float64 {
	var s float64
	for j := range a {
		d := a[j] - b[j]
		s += d * d
	}
	return math.Sqrt(s)
}

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
