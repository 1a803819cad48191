package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/viant/docvec"
	"github.com/viant/docvec/embed"
	"github.com/viant/docvec/index"
	"github.com/viant/docvec/metadata"
	"github.com/viant/docvec/storage"
	"github.com/viant/docvec/vector"
)

// Collection holds the documents of one schema and keeps its vector and
// metadata indexes consistent with them.
type Collection struct {
	name     string
	dim      int
	embedder embed.Embedder
	opts     *options
	logger   *slog.Logger
	writers  stripes
	seq      atomic.Uint64
	// ordered makes inserts reach the indexes in seq order.
	ordered sync.Mutex
	// indexing is held shared by writers while they touch the indexes and
	// exclusively by IndexField.
	indexing sync.RWMutex

	// mu guards publication: docs and schema. Index calls never run under it.
	mu      sync.RWMutex
	schema  docvec.Schema
	docs    map[string]*entry
	vectors index.Index
	meta    metadata.Index
}

type entry struct {
	seq     uint64
	vector  []float32
	payload docvec.Payload
}

func (e *entry) document(id string) *docvec.Document {
	return &docvec.Document{ID: id, Vector: vector.Clone(e.vector), Payload: e.payload.Clone()}
}

func (e *entry) record(id string) storage.Record {
	return storage.Record{Seq: e.seq, Document: docvec.Document{ID: id, Vector: e.vector, Payload: e.payload}}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Schema returns a copy of the current schema.
func (c *Collection) Schema() docvec.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schema.Clone()
}

// Count returns the number of documents.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// IDs returns the document ids in insertion order.
func (c *Collection) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return c.docs[ids[a]].seq < c.docs[ids[b]].seq })
	return ids
}

// Insert embeds and stores payloads, returning their new ids in input order.
// The batch is all-or-nothing: an invalid payload or a failed embedding
// rejects the whole batch before anything is written, and a failure while
// indexing undoes the documents of the batch already applied.
func (c *Collection) Insert(ctx context.Context, payloads []docvec.Payload) ([]string, error) {
	if len(payloads) == 0 {
		return []string{}, nil
	}
	texts := make([]string, len(payloads))
	for n, p := range payloads {
		text, err := p.Text()
		if err != nil {
			return nil, fmt.Errorf("collection %s: document %d: %w", c.name, n, err)
		}
		texts[n] = text
	}
	vecs, err := c.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	c.ordered.Lock()
	defer c.ordered.Unlock()
	c.indexing.RLock()
	defer c.indexing.RUnlock()
	ids := c.newIDs(len(payloads))
	entries := make([]*entry, len(payloads))
	records := make([]storage.Record, len(payloads))
	for n := range payloads {
		entries[n] = &entry{seq: c.seq.Add(1), vector: vecs[n], payload: payloads[n].Clone()}
		records[n] = entries[n].record(ids[n])
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if st := c.opts.storage; st != nil {
		if err := st.Save(ctx, c.name, records); err != nil {
			return nil, fmt.Errorf("collection %s: failed to persist batch: %w", c.name, err)
		}
	}

	// Indexes may talk to remote backends; once the batch is durable its
	// application must not be abandoned halfway on cancellation. The new ids
	// stay invisible to readers until the whole batch is indexed.
	actx := context.WithoutCancel(ctx)
	for n, id := range ids {
		if err := c.put(actx, id, entries[n], nil); err != nil {
			c.logger.Warn("insert failed, rolling back batch", "document", n, "error", err)
			for m := n - 1; m >= 0; m-- {
				if derr := c.drop(actx, ids[m], entries[m]); derr != nil {
					c.logger.Error("failed to roll back document", "id", ids[m], "error", derr)
				}
			}
			c.forget(actx, ids)
			return nil, fmt.Errorf("collection %s: document %d: %w", c.name, n, err)
		}
	}
	c.mu.Lock()
	for n, id := range ids {
		c.docs[id] = entries[n]
	}
	c.mu.Unlock()
	return ids, nil
}

// newIDs draws ids that are not in use.
func (c *Collection) newIDs(n int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, n)
	taken := make(map[string]struct{}, n)
	for len(ids) < n {
		id := c.opts.newID()
		if _, ok := c.docs[id]; ok {
			continue
		}
		if _, ok := taken[id]; ok {
			continue
		}
		taken[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Get returns a copy of the document stored under id.
func (c *Collection) Get(_ context.Context, id string) (*docvec.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s: document %q", docvec.ErrNotFound, c.name, id)
	}
	return e.document(id), nil
}

// Update replaces the payload of an existing document and re-embeds its
// text. Unknown ids are docvec.ErrNotFound.
func (c *Collection) Update(ctx context.Context, id string, payload docvec.Payload) error {
	text, err := payload.Text()
	if err != nil {
		return fmt.Errorf("collection %s: document %q: %w", c.name, id, err)
	}
	unlock := c.writers.lock(id)
	defer unlock()

	c.mu.RLock()
	prev, ok := c.docs[id]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: collection %s: document %q", docvec.ErrNotFound, c.name, id)
	}

	vec, err := c.embedOne(ctx, text)
	if err != nil {
		return fmt.Errorf("document %q: %w", id, err)
	}
	next := &entry{seq: prev.seq, vector: vec, payload: payload.Clone()}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.indexing.RLock()
	defer c.indexing.RUnlock()
	if st := c.opts.storage; st != nil {
		if err := st.Save(ctx, c.name, []storage.Record{next.record(id)}); err != nil {
			return fmt.Errorf("collection %s: failed to persist %q: %w", c.name, id, err)
		}
	}

	actx := context.WithoutCancel(ctx)
	if err := c.put(actx, id, next, prev); err != nil {
		c.logger.Warn("update failed, restoring previous state", "id", id, "error", err)
		if rerr := c.put(actx, id, prev, prev); rerr != nil {
			c.logger.Error("failed to restore document", "id", id, "error", rerr)
		}
		if st := c.opts.storage; st != nil {
			if serr := st.Save(actx, c.name, []storage.Record{prev.record(id)}); serr != nil {
				c.logger.Error("failed to restore persisted document", "id", id, "error", serr)
			}
		}
		return fmt.Errorf("collection %s: document %q: %w", c.name, id, err)
	}
	c.mu.Lock()
	c.docs[id] = next
	c.mu.Unlock()
	return nil
}

// Delete removes ids from the collection. Absent ids are ignored.
func (c *Collection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	unlock := c.writers.lock(ids...)
	defer unlock()

	c.mu.RLock()
	removed := make(map[string]*entry, len(ids))
	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := removed[id]; dup {
			continue
		}
		if e, ok := c.docs[id]; ok {
			removed[id] = e
			present = append(present, id)
		}
	}
	c.mu.RUnlock()
	if len(present) == 0 {
		return nil
	}
	c.indexing.RLock()
	defer c.indexing.RUnlock()
	if st := c.opts.storage; st != nil {
		if err := st.Delete(ctx, c.name, present); err != nil {
			return fmt.Errorf("collection %s: failed to delete from storage: %w", c.name, err)
		}
	}

	// Unpublish first so readers skip the ids while they leave the indexes.
	c.mu.Lock()
	for _, id := range present {
		delete(c.docs, id)
	}
	c.mu.Unlock()

	actx := context.WithoutCancel(ctx)
	for n, id := range present {
		if err := c.drop(actx, id, removed[id]); err != nil {
			c.logger.Warn("delete failed, restoring documents", "id", id, "error", err)
			records := make([]storage.Record, 0, len(present))
			for _, rid := range present[:n] {
				if rerr := c.put(actx, rid, removed[rid], nil); rerr != nil {
					c.logger.Error("failed to restore document", "id", rid, "error", rerr)
				}
			}
			for _, rid := range present {
				records = append(records, removed[rid].record(rid))
			}
			if st := c.opts.storage; st != nil {
				if serr := st.Save(actx, c.name, records); serr != nil {
					c.logger.Error("failed to restore persisted documents", "error", serr)
				}
			}
			c.mu.Lock()
			for _, rid := range present {
				c.docs[rid] = removed[rid]
			}
			c.mu.Unlock()
			return fmt.Errorf("collection %s: document %q: %w", c.name, id, err)
		}
	}
	return nil
}

// IndexField registers field with the metadata index and backfills it from
// the current documents. Registering an indexed field again is a no-op.
func (c *Collection) IndexField(ctx context.Context, field string) error {
	if field == "" {
		return fmt.Errorf("collection %s: empty field name", c.name)
	}
	c.indexing.Lock()
	defer c.indexing.Unlock()

	c.mu.RLock()
	if c.schema.HasField(field) {
		c.mu.RUnlock()
		return nil
	}
	docs := make(map[string]*entry, len(c.docs))
	for id, e := range c.docs {
		docs[id] = e
	}
	c.mu.RUnlock()

	if err := c.meta.Register(ctx, field); err != nil {
		return fmt.Errorf("collection %s: failed to register %s: %w", c.name, field, err)
	}
	for id, e := range docs {
		if err := c.meta.Put(ctx, id, e.payload); err != nil {
			return fmt.Errorf("collection %s: failed to backfill %s for %q: %w", c.name, field, id, err)
		}
	}
	c.mu.Lock()
	c.schema.IndexedFields = append(c.schema.IndexedFields, field)
	schema := c.schema.Clone()
	c.mu.Unlock()
	if st := c.opts.storage; st != nil {
		if err := st.SaveSchema(ctx, schema); err != nil {
			return fmt.Errorf("collection %s: failed to persist schema: %w", c.name, err)
		}
	}
	c.logger.Info("field indexed", "field", field, "documents", len(docs))
	return nil
}

// put writes e under id to both indexes. When the metadata write fails the
// vector index is returned to prev, or cleared of id when prev is nil.
func (c *Collection) put(ctx context.Context, id string, e, prev *entry) error {
	if err := c.vectors.Put(ctx, id, e.vector); err != nil {
		return err
	}
	if err := c.meta.Put(ctx, id, e.payload); err != nil {
		if prev != nil {
			_ = c.vectors.Put(ctx, id, prev.vector)
		} else {
			_ = c.vectors.Remove(ctx, id)
		}
		return err
	}
	return nil
}

// drop removes id from both indexes. When the vector removal fails the
// metadata of e is put back.
func (c *Collection) drop(ctx context.Context, id string, e *entry) error {
	if err := c.meta.Remove(ctx, id); err != nil {
		return err
	}
	if err := c.vectors.Remove(ctx, id); err != nil {
		_ = c.meta.Put(ctx, id, e.payload)
		return err
	}
	return nil
}

// forget deletes ids from storage after a failed insert.
func (c *Collection) forget(ctx context.Context, ids []string) {
	if st := c.opts.storage; st != nil {
		if err := st.Delete(ctx, c.name, ids); err != nil {
			c.logger.Error("failed to roll back persisted batch", "error", err)
		}
	}
}

// restore replays persisted records into the indexes.
func (c *Collection) restore(ctx context.Context) (int, error) {
	records, err := c.opts.storage.Load(ctx, c.name)
	if err != nil {
		return 0, fmt.Errorf("collection %s: failed to load documents: %w", c.name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var last uint64
	for _, r := range records {
		if len(r.Vector) != c.dim {
			return 0, fmt.Errorf("%w: collection %s: persisted document %q has %d values",
				docvec.ErrDimensionMismatch, c.name, r.ID, len(r.Vector))
		}
		e := &entry{seq: r.Seq, vector: r.Vector, payload: r.Payload}
		if err := c.put(ctx, r.ID, e, nil); err != nil {
			return 0, fmt.Errorf("collection %s: failed to rebuild %q: %w", c.name, r.ID, err)
		}
		c.docs[r.ID] = e
		last = max(last, r.Seq)
	}
	c.seq.Store(last)
	return len(records), nil
}

// prune removes ids that persistent indexes hold but the collection does not,
// left behind by a crash or by storage that did not survive a restart.
func (c *Collection) prune(ctx context.Context) (int, error) {
	held := func(id string) bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		_, ok := c.docs[id]
		return ok
	}
	var removed int
	if l, ok := c.vectors.(index.Lister); ok {
		ids, err := l.List(ctx)
		if err != nil {
			return removed, fmt.Errorf("collection %s: failed to list vector index: %w", c.name, err)
		}
		for _, id := range ids {
			if held(id) {
				continue
			}
			if err := c.vectors.Remove(ctx, id); err != nil {
				return removed, fmt.Errorf("collection %s: failed to prune %q: %w", c.name, id, err)
			}
			removed++
		}
	}
	if l, ok := c.meta.(metadata.Lister); ok {
		ids, err := l.List(ctx)
		if err != nil {
			return removed, fmt.Errorf("collection %s: failed to list metadata index: %w", c.name, err)
		}
		for _, id := range ids {
			if held(id) {
				continue
			}
			if err := c.meta.Remove(ctx, id); err != nil {
				return removed, fmt.Errorf("collection %s: failed to prune %q: %w", c.name, id, err)
			}
			removed++
		}
	}
	return removed, nil
}

func (c *Collection) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.vectors.Close(), c.meta.Close())
}
