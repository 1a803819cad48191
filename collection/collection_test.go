package collection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/viant/docvec"
	"github.com/viant/docvec/embed"
	"github.com/viant/docvec/index"
	"github.com/viant/docvec/index/bruteforce"
	"github.com/viant/docvec/metadata"
	"github.com/viant/docvec/storage/sqlite"
	"github.com/viant/docvec/vector"
)

// fakeEmbedder returns fixed vectors for known texts and hashed vectors for
// everything else.
type fakeEmbedder struct {
	dim     int
	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]error
	calls   int
	hash    *embed.Hash
}

func newFakeEmbedder(dim int, vectors map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, vectors: vectors, fail: map[string]error{}, hash: embed.NewHash(dim)}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls++
	err := f.fail[text]
	v, ok := f.vectors[text]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ok {
		return vector.Clone(v), nil
	}
	return f.hash.Embed(ctx, text)
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for n, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[n] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) set(text string, v []float32) {
	f.mu.Lock()
	f.vectors[text] = v
	f.mu.Unlock()
}

func (f *fakeEmbedder) failOn(text string, err error) {
	f.mu.Lock()
	f.fail[text] = err
	f.mu.Unlock()
}

// failingMeta fails Put for payloads carrying the "boom" key.
type failingMeta struct {
	metadata.Index
}

func (f *failingMeta) Put(ctx context.Context, id string, p docvec.Payload) error {
	if _, ok := p["boom"]; ok {
		return errors.New("metadata backend unavailable")
	}
	return f.Index.Put(ctx, id, p)
}

func reviewsSchema() docvec.Schema {
	return docvec.Schema{Name: "reviews", Dimension: 4, IndexedFields: []string{"sentiment"}}
}

func newReviews(t *testing.T, e embed.Embedder, opts ...Option) (*Store, *Collection) {
	t.Helper()
	s := New(e, opts...)
	c, err := s.CreateCollection(context.Background(), reviewsSchema())
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, c
}

func vectorIDs(c *Collection) []string {
	return c.vectors.(interface{ IDs() []string }).IDs()
}

// sharedVectors outlives the collections built on it, the way a remote
// index does.
type sharedVectors struct {
	*bruteforce.Index
}

func (s sharedVectors) List(context.Context) ([]string, error) { return s.IDs(), nil }

func (s sharedVectors) Close() error { return nil }

// sharedMeta is a metadata index that outlives its collections.
type sharedMeta struct {
	*metadata.Memory
	mu  sync.Mutex
	ids map[string]struct{}
}

func newSharedMeta() *sharedMeta {
	return &sharedMeta{Memory: metadata.NewMemory(), ids: map[string]struct{}{}}
}

func (m *sharedMeta) Put(ctx context.Context, id string, p docvec.Payload) error {
	m.mu.Lock()
	m.ids[id] = struct{}{}
	m.mu.Unlock()
	return m.Memory.Put(ctx, id, p)
}

func (m *sharedMeta) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.ids, id)
	m.mu.Unlock()
	return m.Memory.Remove(ctx, id)
}

func (m *sharedMeta) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	return out, nil
}

func sharedIndexes(vecs sharedVectors, meta *sharedMeta) []Option {
	return []Option{
		WithVectorIndex(func(context.Context, docvec.Schema) (index.Index, error) { return vecs, nil }),
		WithMetadataIndex(func(context.Context, docvec.Schema) (metadata.Index, error) { return meta, nil }),
	}
}

// gatedVectors blocks the first Put after arm until release is closed.
type gatedVectors struct {
	*bruteforce.Index
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedVectors) arm() {
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
	g.armed.Store(true)
}

func (g *gatedVectors) Put(ctx context.Context, id string, v []float32) error {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Index.Put(ctx, id, v)
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

// checkInvariants verifies that the documents, the vector index and the
// metadata index describe the same set of documents.
func checkInvariants(t *testing.T, c *Collection) {
	t.Helper()
	ctx := context.Background()
	docIDs := c.IDs()
	if got, want := sorted(vectorIDs(c)), sorted(docIDs); !reflect.DeepEqual(got, want) && !(len(got) == 0 && len(want) == 0) {
		t.Fatalf("vector index ids %v != document ids %v", got, want)
	}
	for _, field := range c.Schema().IndexedFields {
		values := map[any]struct{}{}
		for _, id := range docIDs {
			doc, _ := c.Get(ctx, id)
			if v, ok := doc.Payload[field]; ok {
				values[v] = struct{}{}
			}
		}
		for v := range values {
			set, err := c.meta.Evaluate(ctx, docvec.Filter{field: v})
			if err != nil {
				t.Fatalf("Evaluate(%s=%v) failed: %v", field, v, err)
			}
			for _, id := range docIDs {
				doc, _ := c.Get(ctx, id)
				want := doc.Payload[field] == v
				if set.Has(id) != want {
					t.Fatalf("metadata %s=%v membership of %s is %v, want %v", field, v, id, set.Has(id), want)
				}
			}
			for id := range set {
				if _, err := c.Get(ctx, id); err != nil {
					t.Fatalf("metadata %s=%v holds unknown id %s", field, v, id)
				}
			}
		}
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(4, map[string][]float32{
		"great movie": {1, 0, 0, 0},
		"bad movie":   {0, 1, 0, 0},
		"great":       {1, 0.1, 0, 0},
	})
	_, c := newReviews(t, e)
	ids, err := c.Insert(ctx, []docvec.Payload{
		{"text": "great movie", "sentiment": "positive"},
		{"text": "bad movie", "sentiment": "negative"},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	pos, err := c.Search(ctx, "great", 5, docvec.Filter{"sentiment": "positive"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(pos) != 1 || pos[0].ID != ids[0] {
		t.Fatalf("positive search = %+v, want only %s", pos, ids[0])
	}
	neg, err := c.Search(ctx, "great", 5, docvec.Filter{"sentiment": "negative"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(neg) != 1 || neg[0].ID != ids[1] || neg[0].Payload["text"] != "bad movie" {
		t.Fatalf("negative search = %+v, want only %s", neg, ids[1])
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(4, map[string][]float32{"a thriller": {0.5, 0.5, 0, 1}})
	_, c := newReviews(t, e)
	payload := docvec.Payload{"text": "a thriller", "sentiment": "positive", "year": 1999, "source": "imdb"}
	ids, err := c.Insert(ctx, []docvec.Payload{payload})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(ids) != 1 || ids[0] == "" {
		t.Fatalf("Insert ids = %v", ids)
	}
	doc, err := c.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(doc.Payload, payload) {
		t.Fatalf("payload = %v, want %v", doc.Payload, payload)
	}
	if !reflect.DeepEqual(doc.Vector, []float32{0.5, 0.5, 0, 1}) {
		t.Fatalf("vector = %v", doc.Vector)
	}

	// the stored document is isolated from caller mutations
	payload["sentiment"] = "negative"
	doc.Payload["text"] = "changed"
	doc.Vector[0] = 9
	again, _ := c.Get(ctx, ids[0])
	if again.Payload["sentiment"] != "positive" || again.Payload["text"] != "a thriller" || again.Vector[0] != 0.5 {
		t.Fatalf("stored document was mutated: %+v", again)
	}
	if _, err := c.Get(ctx, "missing"); !errors.Is(err, docvec.ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestInsertIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("provider down")
	e := newFakeEmbedder(4, map[string][]float32{
		"zero":  {0, 0, 0, 0},
		"short": {1, 2, 3},
	})
	e.failOn("fails", boom)
	_, c := newReviews(t, e)

	tests := []struct {
		name     string
		payloads []docvec.Payload
		want     []error
	}{
		{"provider error", []docvec.Payload{{"text": "ok"}, {"text": "fails"}}, []error{docvec.ErrEmbeddingFailure, boom}},
		{"wrong dimension", []docvec.Payload{{"text": "ok"}, {"text": "short"}}, []error{docvec.ErrEmbeddingFailure, docvec.ErrDimensionMismatch}},
		{"zero vector", []docvec.Payload{{"text": "zero"}}, []error{docvec.ErrEmbeddingFailure}},
		{"missing text", []docvec.Payload{{"text": "ok"}, {"sentiment": "positive"}}, []error{docvec.ErrInvalidDocument}},
		{"empty text", []docvec.Payload{{"text": ""}}, []error{docvec.ErrInvalidDocument}},
		{"index failure", []docvec.Payload{{"text": "ok"}, {"text": "ok too", "boom": true}}, nil},
	}
	_, c2 := newReviews(t, e, WithMetadataIndex(func(context.Context, docvec.Schema) (metadata.Index, error) {
		return &failingMeta{Index: metadata.NewMemory()}, nil
	}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := c
			if tt.want == nil {
				target = c2
			}
			ids, err := target.Insert(ctx, tt.payloads)
			if err == nil {
				t.Fatalf("Insert succeeded with ids %v", ids)
			}
			for _, w := range tt.want {
				if !errors.Is(err, w) {
					t.Fatalf("Insert error = %v, want %v", err, w)
				}
			}
			if n := target.Count(); n != 0 {
				t.Fatalf("partial batch written: %d documents", n)
			}
			if ids := vectorIDs(target); len(ids) != 0 {
				t.Fatalf("vector index not rolled back: %v", ids)
			}
		})
	}
	checkInvariants(t, c2)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(4, map[string][]float32{
		"first":  {1, 0, 0, 0},
		"second": {0, 0, 1, 0},
	})
	_, c := newReviews(t, e)
	ids, _ := c.Insert(ctx, []docvec.Payload{{"text": "first", "sentiment": "positive", "extra": 1}})
	id := ids[0]

	if err := c.Update(ctx, id, docvec.Payload{"text": "second", "sentiment": "negative"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	doc, _ := c.Get(ctx, id)
	if _, ok := doc.Payload["extra"]; ok || doc.Payload["sentiment"] != "negative" {
		t.Fatalf("update must fully replace the payload: %v", doc.Payload)
	}
	if !reflect.DeepEqual(doc.Vector, []float32{0, 0, 1, 0}) {
		t.Fatalf("vector not re-embedded: %v", doc.Vector)
	}
	if got, _ := c.Search(ctx, "first", 5, docvec.Filter{"sentiment": "positive"}); len(got) != 0 {
		t.Fatalf("stale metadata after update: %+v", got)
	}
	if got, _ := c.Search(ctx, "second", 1, nil); len(got) != 1 || got[0].ID != id || got[0].Score < 0.999 {
		t.Fatalf("search after update = %+v", got)
	}

	if err := c.Update(ctx, "missing", docvec.Payload{"text": "first"}); !errors.Is(err, docvec.ErrNotFound) {
		t.Fatalf("Update(missing) = %v, want ErrNotFound", err)
	}
	if c.Count() != 1 {
		t.Fatalf("Update of unknown id created a document")
	}
	if err := c.Update(ctx, id, docvec.Payload{"sentiment": "positive"}); !errors.Is(err, docvec.ErrInvalidDocument) {
		t.Fatalf("Update without text = %v, want ErrInvalidDocument", err)
	}
	e.failOn("third", errors.New("down"))
	if err := c.Update(ctx, id, docvec.Payload{"text": "third"}); !errors.Is(err, docvec.ErrEmbeddingFailure) {
		t.Fatalf("Update with failing provider = %v, want ErrEmbeddingFailure", err)
	}
	doc, _ = c.Get(ctx, id)
	if doc.Payload["text"] != "second" {
		t.Fatalf("failed update changed the document: %v", doc.Payload)
	}
	checkInvariants(t, c)
}

func TestUpdateRollsBackOnIndexFailure(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(4, map[string][]float32{"before": {1, 0, 0, 0}, "after": {0, 1, 0, 0}})
	_, c := newReviews(t, e, WithMetadataIndex(func(context.Context, docvec.Schema) (metadata.Index, error) {
		return &failingMeta{Index: metadata.NewMemory()}, nil
	}))
	ids, _ := c.Insert(ctx, []docvec.Payload{{"text": "before", "sentiment": "positive"}})
	err := c.Update(ctx, ids[0], docvec.Payload{"text": "after", "sentiment": "negative", "boom": 1})
	if err == nil {
		t.Fatalf("Update should fail")
	}
	doc, _ := c.Get(ctx, ids[0])
	if doc.Payload["text"] != "before" || doc.Vector[0] != 1 {
		t.Fatalf("document not restored: %+v", doc)
	}
	v, _ := c.vectors.Get(ctx, ids[0])
	if v[0] != 1 {
		t.Fatalf("vector index not restored: %v", v)
	}
	checkInvariants(t, c)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	_, c := newReviews(t, newFakeEmbedder(4, map[string][]float32{}))
	ids, _ := c.Insert(ctx, []docvec.Payload{
		{"text": "one", "sentiment": "positive"},
		{"text": "two", "sentiment": "positive"},
		{"text": "three", "sentiment": "negative"},
	})

	if err := c.Delete(ctx, []string{ids[0], ids[0], "never-existed"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, ids[0]); !errors.Is(err, docvec.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	set, _ := c.meta.Evaluate(ctx, docvec.Filter{"sentiment": "positive"})
	if set.Has(ids[0]) || !set.Has(ids[1]) {
		t.Fatalf("metadata after delete = %v", set)
	}
	res, _ := c.Search(ctx, "one", 10, nil)
	for _, r := range res {
		if r.ID == ids[0] {
			t.Fatalf("deleted id returned by search")
		}
	}
	if len(res) != 2 {
		t.Fatalf("search after delete returned %d results, want 2", len(res))
	}

	before := c.IDs()
	if err := c.Delete(ctx, []string{ids[0]}); err != nil {
		t.Fatalf("repeated Delete failed: %v", err)
	}
	if err := c.Delete(ctx, nil); err != nil {
		t.Fatalf("empty Delete failed: %v", err)
	}
	if !reflect.DeepEqual(c.IDs(), before) {
		t.Fatalf("idempotent delete changed state")
	}
	checkInvariants(t, c)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(4, map[string][]float32{
		"q":  {1, 0, 0, 0},
		"d1": {1, 0, 0, 0},
		"d2": {1, 1, 0, 0},
		"d3": {1, 1, 0, 0},
		"d4": {0, 0, 0, 1},
		"d5": {-1, 0, 0, 0},
	})
	_, c := newReviews(t, e)
	payloads := []docvec.Payload{
		{"text": "d1", "sentiment": "positive"},
		{"text": "d2", "sentiment": "negative"},
		{"text": "d3", "sentiment": "positive"},
		{"text": "d4", "sentiment": "positive"},
		{"text": "d5", "sentiment": "negative"},
	}
	ids, err := c.Insert(ctx, payloads)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	res, err := c.Search(ctx, "q", 4, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want := []string{ids[0], ids[1], ids[2], ids[3]}
	for n, r := range res {
		if r.ID != want[n] {
			t.Fatalf("rank %d = %s, want %s (ties by insertion order)", n, r.ID, want[n])
		}
		if n > 0 && r.Score > res[n-1].Score {
			t.Fatalf("scores increase at rank %d", n)
		}
	}
	for run := 0; run < 3; run++ {
		again, _ := c.Search(ctx, "q", 4, nil)
		if !reflect.DeepEqual(again, res) {
			t.Fatalf("repeated search differs: %+v vs %+v", again, res)
		}
	}

	filtered, _ := c.Search(ctx, "q", 10, docvec.Filter{"sentiment": "negative"})
	if len(filtered) != 2 {
		t.Fatalf("filtered search returned %d results, want 2", len(filtered))
	}
	for _, r := range filtered {
		if r.Payload["sentiment"] != "negative" {
			t.Fatalf("result violates filter: %+v", r)
		}
	}
	if res, _ := c.Search(ctx, "q", 10, docvec.Filter{"sentiment": "neutral"}); len(res) != 0 {
		t.Fatalf("no-match filter returned %+v", res)
	}
	if res, _ := c.Search(ctx, "q", 0, nil); len(res) != 0 {
		t.Fatalf("k=0 returned %+v", res)
	}
	if _, err := c.Search(ctx, "q", 3, docvec.Filter{"genre": "drama"}); !errors.Is(err, docvec.ErrInvalidFilter) {
		t.Fatalf("unindexed filter = %v, want ErrInvalidFilter", err)
	}
	if _, err := c.Search(ctx, "", 3, nil); !errors.Is(err, docvec.ErrEmbeddingFailure) {
		t.Fatalf("empty query = %v, want ErrEmbeddingFailure", err)
	}
	if _, err := c.SearchVector(ctx, []float32{1, 0}, 3, nil); !errors.Is(err, docvec.ErrDimensionMismatch) {
		t.Fatalf("short query vector = %v, want ErrDimensionMismatch", err)
	}

	// search reflects the current payload
	_ = c.Update(ctx, ids[0], docvec.Payload{"text": "d1", "sentiment": "positive", "note": "edited"})
	res, _ = c.Search(ctx, "q", 1, nil)
	if res[0].Payload["note"] != "edited" {
		t.Fatalf("search returned stale payload: %+v", res[0])
	}
}

func TestCreateCollection(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeEmbedder(4, map[string][]float32{}))
	defer s.Close()

	c, err := s.CreateCollection(ctx, reviewsSchema())
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if c.Schema().Metric != vector.Cosine {
		t.Fatalf("metric not defaulted: %v", c.Schema().Metric)
	}
	ids, _ := c.Insert(ctx, []docvec.Payload{{"text": "x", "sentiment": "positive", "year": 2001}})

	again, err := s.CreateCollection(ctx, docvec.Schema{Name: "reviews", Dimension: 4, Metric: "cosine", IndexedFields: []string{"year"}})
	if err != nil {
		t.Fatalf("idempotent CreateCollection failed: %v", err)
	}
	if again != c {
		t.Fatalf("CreateCollection returned a different collection")
	}
	if got := again.Schema().IndexedFields; !reflect.DeepEqual(got, []string{"sentiment", "year"}) {
		t.Fatalf("indexed fields = %v", got)
	}
	if res, err := c.Search(ctx, "x", 5, docvec.Filter{"year": 2001.0}); err != nil || len(res) != 1 || res[0].ID != ids[0] {
		t.Fatalf("backfilled field search = %+v, %v", res, err)
	}

	if _, err := s.CreateCollection(ctx, docvec.Schema{Name: "reviews", Dimension: 8}); !errors.Is(err, docvec.ErrSchemaConflict) && !errors.Is(err, docvec.ErrDimensionMismatch) {
		t.Fatalf("conflicting CreateCollection = %v", err)
	}
	if _, err := s.CreateCollection(ctx, docvec.Schema{Name: "other", Dimension: 8}); !errors.Is(err, docvec.ErrDimensionMismatch) {
		t.Fatalf("embedder dimension mismatch = %v, want ErrDimensionMismatch", err)
	}
	if _, err := s.CreateCollection(ctx, docvec.Schema{Name: "", Dimension: 4}); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := s.Collection("missing"); !errors.Is(err, docvec.ErrNotFound) {
		t.Fatalf("Collection(missing) = %v, want ErrNotFound", err)
	}
	if names := s.Collections(); !reflect.DeepEqual(names, []string{"reviews"}) {
		t.Fatalf("Collections = %v", names)
	}
}

func TestSchemaConflict(t *testing.T) {
	ctx := context.Background()
	s := New(embed.NewFunc(0, func(context.Context, string) ([]float32, error) { return []float32{1, 1}, nil }))
	defer s.Close()
	if _, err := s.CreateCollection(ctx, docvec.Schema{Name: "a", Dimension: 2}); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if _, err := s.CreateCollection(ctx, docvec.Schema{Name: "a", Dimension: 3}); !errors.Is(err, docvec.ErrSchemaConflict) {
		t.Fatalf("CreateCollection = %v, want ErrSchemaConflict", err)
	}
}

func TestIndexFieldBackfill(t *testing.T) {
	ctx := context.Background()
	_, c := newReviews(t, newFakeEmbedder(4, map[string][]float32{}))
	ids, _ := c.Insert(ctx, []docvec.Payload{
		{"text": "a", "genre": "drama"},
		{"text": "b", "genre": "comedy"},
	})
	if _, err := c.Search(ctx, "a", 5, docvec.Filter{"genre": "drama"}); !errors.Is(err, docvec.ErrInvalidFilter) {
		t.Fatalf("filter before IndexField = %v, want ErrInvalidFilter", err)
	}
	if err := c.IndexField(ctx, "genre"); err != nil {
		t.Fatalf("IndexField failed: %v", err)
	}
	res, err := c.Search(ctx, "a", 5, docvec.Filter{"genre": "comedy"})
	if err != nil || len(res) != 1 || res[0].ID != ids[1] {
		t.Fatalf("search after backfill = %+v, %v", res, err)
	}
	checkInvariants(t, c)
}

func TestOpenRebuildsFromStorage(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docvec.sqlite")
	e := newFakeEmbedder(4, map[string][]float32{"q": {1, 0, 0, 0}, "a": {1, 0, 0, 0}, "b": {1, 0, 0, 0}, "c": {0, 1, 0, 0}})

	st, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	s, _ := Open(ctx, e, WithStorage(st))
	c, _ := s.CreateCollection(ctx, reviewsSchema())
	ids, err := c.Insert(ctx, []docvec.Payload{
		{"text": "a", "sentiment": "positive"},
		{"text": "b", "sentiment": "negative"},
		{"text": "c", "sentiment": "positive"},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	_ = c.Update(ctx, ids[0], docvec.Payload{"text": "a", "sentiment": "negative"})
	_ = c.Delete(ctx, []string{ids[2]})
	_ = c.IndexField(ctx, "lang")
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	st, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	s, err = Open(ctx, e, WithStorage(st))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	c, err = s.Collection("reviews")
	if err != nil {
		t.Fatalf("Collection failed: %v", err)
	}
	if !c.Schema().HasField("lang") {
		t.Fatalf("schema change not persisted: %+v", c.Schema())
	}
	if got := c.IDs(); !reflect.DeepEqual(got, ids[:2]) {
		t.Fatalf("restored ids = %v, want %v", got, ids[:2])
	}
	res, _ := c.Search(ctx, "q", 5, docvec.Filter{"sentiment": "negative"})
	if len(res) != 2 || res[0].ID != ids[0] || res[1].ID != ids[1] {
		t.Fatalf("restored search = %+v (tie order must survive restart)", res)
	}
	more, _ := c.Insert(ctx, []docvec.Payload{{"text": "b"}})
	if got := c.IDs(); got[len(got)-1] != more[0] {
		t.Fatalf("new document not ordered after restored ones: %v", got)
	}
	checkInvariants(t, c)
}

func TestCanceledInsertWritesNothing(t *testing.T) {
	_, c := newReviews(t, newFakeEmbedder(4, map[string][]float32{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Insert(ctx, []docvec.Payload{{"text": "a"}}); err == nil {
		t.Fatalf("Insert with canceled context succeeded")
	}
	if c.Count() != 0 || len(vectorIDs(c)) != 0 {
		t.Fatalf("canceled insert left state behind")
	}
}

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	_, c := newReviews(t, newFakeEmbedder(4, map[string][]float32{}), WithParallelism(3), WithBatchSize(2))
	seed, err := c.Insert(ctx, []docvec.Payload{
		{"text": "seed one", "sentiment": "positive"},
		{"text": "seed two", "sentiment": "negative"},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; n < 10; n++ {
				sentiment := []string{"positive", "negative"}[(w+n)%2]
				text := fmt.Sprintf("worker %d item %d", w, n)
				ids, err := c.Insert(ctx, []docvec.Payload{{"text": text, "sentiment": sentiment}})
				if err != nil {
					errs <- err
					return
				}
				if err := c.Update(ctx, seed[n%2], docvec.Payload{"text": text, "sentiment": sentiment}); err != nil {
					errs <- err
					return
				}
				if _, err := c.Search(ctx, text, 3, docvec.Filter{"sentiment": sentiment}); err != nil {
					errs <- err
					return
				}
				if n%3 == 0 {
					if err := c.Delete(ctx, ids); err != nil {
						errs <- err
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent operation failed: %v", err)
	}
	if c.Count() != 2+8*(10-4) {
		t.Fatalf("Count = %d, want %d", c.Count(), 2+8*6)
	}
	checkInvariants(t, c)
}

func TestStaleIndexEntriesArePruned(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(4, map[string][]float32{"old one": {1, 0, 0, 0}, "old two": {1, 0.1, 0, 0}, "new": {0, 1, 0, 0}})
	vecs, meta := sharedVectors{bruteforce.New(4)}, newSharedMeta()

	_, before := newReviews(t, e, sharedIndexes(vecs, meta)...)
	if _, err := before.Insert(ctx, []docvec.Payload{
		{"text": "old one", "sentiment": "positive"},
		{"text": "old two", "sentiment": "positive"},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// a restart with memory storage: the indexes still hold the old documents
	_, c := newReviews(t, e, sharedIndexes(vecs, meta)...)
	if ids := vecs.IDs(); len(ids) != 0 {
		t.Fatalf("stale vector ids after restart: %v", ids)
	}
	if ids, _ := meta.List(ctx); len(ids) != 0 {
		t.Fatalf("stale metadata ids after restart: %v", ids)
	}
	ids, err := c.Insert(ctx, []docvec.Payload{{"text": "new", "sentiment": "positive"}})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	res, err := c.Search(ctx, "old one", 1, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res) != 1 || res[0].ID != ids[0] {
		t.Fatalf("Search(k=1) = %+v, want [%s]", res, ids[0])
	}
	set, _ := meta.Evaluate(ctx, docvec.Filter{"sentiment": "positive"})
	if len(set) != 1 || !set.Has(ids[0]) {
		t.Fatalf("metadata after restart = %v, want {%s}", set, ids[0])
	}
	checkInvariants(t, c)
}

func TestOpenPrunesEntriesMissingFromStorage(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docvec.sqlite")
	e := newFakeEmbedder(4, nil)
	vecs, meta := sharedVectors{bruteforce.New(4)}, newSharedMeta()

	st, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	s, _ := Open(ctx, e, append(sharedIndexes(vecs, meta), WithStorage(st))...)
	c, _ := s.CreateCollection(ctx, reviewsSchema())
	ids, err := c.Insert(ctx, []docvec.Payload{{"text": "kept one", "sentiment": "positive"}, {"text": "kept two"}})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	// written to the indexes by a process that died before persisting
	_ = vecs.Put(ctx, "ghost", []float32{1, 1, 0, 0})
	_ = meta.Put(ctx, "ghost", docvec.Payload{"sentiment": "positive"})
	_ = s.Close()

	st, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	s, err = Open(ctx, e, append(sharedIndexes(vecs, meta), WithStorage(st))...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	c, _ = s.Collection("reviews")
	if got, want := sorted(vecs.IDs()), sorted(ids); !reflect.DeepEqual(got, want) {
		t.Fatalf("vector ids after Open = %v, want %v", got, want)
	}
	set, _ := meta.Evaluate(ctx, docvec.Filter{"sentiment": "positive"})
	if len(set) != 1 || !set.Has(ids[0]) {
		t.Fatalf("metadata after Open = %v, want {%s}", set, ids[0])
	}
	checkInvariants(t, c)
}

func TestReadsDoNotWaitForIndexWrites(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(4, map[string][]float32{"seed": {1, 0, 0, 0}, "slow": {0, 1, 0, 0}})
	gate := &gatedVectors{Index: bruteforce.New(4)}
	_, c := newReviews(t, e, WithVectorIndex(func(context.Context, docvec.Schema) (index.Index, error) { return gate, nil }))
	seed, err := c.Insert(ctx, []docvec.Payload{{"text": "seed", "sentiment": "positive"}})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for _, write := range []struct {
		name string
		run  func() error
	}{
		{"insert", func() error {
			_, err := c.Insert(ctx, []docvec.Payload{{"text": "slow", "sentiment": "positive"}})
			return err
		}},
		{"update", func() error {
			return c.Update(ctx, seed[0], docvec.Payload{"text": "slow", "sentiment": "positive"})
		}},
	} {
		t.Run(write.name, func(t *testing.T) {
			gate.arm()
			done := make(chan error, 1)
			go func() { done <- write.run() }()
			<-gate.entered

			reads := make(chan error, 1)
			go func() {
				if _, err := c.Get(ctx, seed[0]); err != nil {
					reads <- err
					return
				}
				res, err := c.Search(ctx, "seed", 5, docvec.Filter{"sentiment": "positive"})
				if err == nil && (len(res) == 0 || res[0].ID != seed[0]) {
					err = fmt.Errorf("search during %s = %+v", write.name, res)
				}
				reads <- err
			}()
			select {
			case err := <-reads:
				if err != nil {
					t.Fatalf("read failed: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("reads waited for an index write in flight")
			}
			close(gate.release)
			if err := <-done; err != nil {
				t.Fatalf("%s failed: %v", write.name, err)
			}
			checkInvariants(t, c)
		})
	}
	if c.Count() != 2 {
		t.Fatalf("Count = %d, want 2", c.Count())
	}
}
