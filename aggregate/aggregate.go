package aggregate

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/viant/docvec"
	"golang.org/x/sync/errgroup"
)

// Searcher is a named store answering text queries. *collection.Collection
// satisfies it.
type Searcher interface {
	Name() string
	Search(ctx context.Context, text string, k int, filter docvec.Filter) ([]docvec.Result, error)
}

// Hit is a search result tagged with the collection it came from.
type Hit struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Score      float64        `json:"score"`
	Payload    docvec.Payload `json:"payload"`
	rank       int
	source     int
}

// Failure reports a collection that could not answer.
type Failure struct {
	Collection string `json:"collection"`
	Err        error  `json:"-"`
}

// Error returns the failure message.
func (f Failure) Error() string { return f.Collection + ": " + f.Err.Error() }

// MarshalJSON renders the failure with its error message.
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Collection string `json:"collection"`
		Error      string `json:"error"`
	}{f.Collection, f.Err.Error()})
}

// Result is the merged outcome of SearchAll.
type Result struct {
	Hits     []Hit     `json:"hits"`
	Failures []Failure `json:"failures,omitempty"`
}

// Option configures SearchAll.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger that receives per-collection failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// SearchAll asks every searcher for its top k hits concurrently and returns
// the best k overall. Hits are ordered by score, then by the position of their
// collection in searchers, then by their rank within the collection.
// A failing searcher contributes no hits and is listed in Failures; the
// remaining hits are still returned.
func SearchAll(ctx context.Context, searchers []Searcher, text string, k int, filter docvec.Filter, opts ...Option) Result {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if k <= 0 || len(searchers) == 0 {
		return Result{Hits: []Hit{}}
	}

	hits := make([][]Hit, len(searchers))
	errs := make([]error, len(searchers))
	var g errgroup.Group
	for n, s := range searchers {
		g.Go(func() error {
			results, err := s.Search(ctx, text, k, filter)
			if err != nil {
				errs[n] = err
				return nil
			}
			out := make([]Hit, len(results))
			for rank, r := range results {
				out[rank] = Hit{Collection: s.Name(), ID: r.ID, Score: r.Score, Payload: r.Payload, rank: rank, source: n}
			}
			hits[n] = out
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	merged := make([]Hit, 0, k*len(searchers))
	for n, s := range searchers {
		if err := errs[n]; err != nil {
			o.logger.Warn("collection search failed", "collection", s.Name(), "error", err)
			res.Failures = append(res.Failures, Failure{Collection: s.Name(), Err: err})
			continue
		}
		merged = append(merged, hits[n]...)
	}
	sort.SliceStable(merged, func(a, b int) bool {
		x, y := merged[a], merged[b]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		if x.source != y.source {
			return x.source < y.source
		}
		return x.rank < y.rank
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	res.Hits = merged
	return res
}
