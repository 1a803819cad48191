package index

import "context"

// Index stores vectors keyed by id and answers kNN queries under cosine
// similarity. Implementations must be safe for concurrent use.
type Index interface {
	// Put inserts or overwrites the vector for id. A vector whose length
	// differs from the index dimension is rejected with
	// docvec.ErrDimensionMismatch.
	Put(ctx context.Context, id string, vector []float32) error

	// Remove deletes the vector for id. No error if id does not exist.
	Remove(ctx context.Context, id string) error

	// Get returns a copy of the vector for id or docvec.ErrNotFound.
	Get(ctx context.Context, id string) ([]float32, error)

	// Query returns up to k matches ordered by descending score. Ties are
	// broken by first-insertion order. When candidates is non-nil only ids
	// in it are eligible; an empty candidate set yields no matches. k <= 0
	// yields no matches.
	Query(ctx context.Context, query []float32, k int, candidates Set) ([]Match, error)

	// Close releases resources held by the index.
	Close() error
}

// Lister is implemented by indexes whose contents outlive the process, such
// as remote ones. Collections use it to drop entries of documents they no
// longer hold.
type Lister interface {
	// List returns every id held by the index.
	List(ctx context.Context) ([]string, error)
}

// Match is a single kNN result.
type Match struct {
	ID    string
	Score float64
}

// Set is a candidate id set. A nil Set means "no restriction".
type Set map[string]struct{}

// NewSet builds a non-nil set holding ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Intersect returns the ids present in both sets, iterating the smaller one.
func Intersect(a, b Set) Set {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(Set, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
