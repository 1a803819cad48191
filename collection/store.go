package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/viant/docvec"
	"github.com/viant/docvec/embed"
)

// Store is a registry of named collections sharing one embedding provider.
type Store struct {
	embedder embed.Embedder
	opts     *options
	logger   *slog.Logger

	mu          sync.Mutex
	collections map[string]*Collection
}

// New creates an empty store. Collections held by the configured storage
// are not loaded; use Open for that.
func New(embedder embed.Embedder, opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Store{
		embedder:    embedder,
		opts:        o,
		logger:      o.logger,
		collections: make(map[string]*Collection),
	}
}

// Open creates a store and rebuilds every persisted collection, replaying
// its documents into fresh indexes in insertion order. The storage is closed
// when Open fails.
func Open(ctx context.Context, embedder embed.Embedder, opts ...Option) (*Store, error) {
	s := New(embedder, opts...)
	if s.opts.storage == nil {
		return s, nil
	}
	schemas, err := s.opts.storage.Schemas(ctx)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("collection: failed to load schemas: %w", err)
	}
	for _, schema := range schemas {
		if err := schema.Validate(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("collection: invalid persisted schema: %w", err)
		}
		c, err := s.newCollection(ctx, schema)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		n, err := c.restore(ctx)
		if err == nil {
			err = s.prune(ctx, c)
		}
		if err != nil {
			_ = c.close()
			_ = s.Close()
			return nil, err
		}
		s.collections[schema.Name] = c
		s.logger.Info("collection restored", "collection", schema.Name, "documents", n)
	}
	return s, nil
}

// CreateCollection creates a collection or returns the existing one when its
// dimension and metric match. Indexed fields requested for an existing
// collection are added and backfilled.
func (s *Store) CreateCollection(ctx context.Context, schema docvec.Schema) (*Collection, error) {
	schema = schema.Clone()
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if dim := s.embedder.Dimension(); dim != 0 && dim != schema.Dimension {
		return nil, fmt.Errorf("%w: collection %s: embedder produces %d values, schema requests %d",
			docvec.ErrDimensionMismatch, schema.Name, dim, schema.Dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[schema.Name]; ok {
		if err := c.Schema().Conflict(schema); err != nil {
			return nil, err
		}
		for _, field := range schema.IndexedFields {
			if err := c.IndexField(ctx, field); err != nil {
				return nil, err
			}
		}
		return c, nil
	}

	c, err := s.newCollection(ctx, schema)
	if err != nil {
		return nil, err
	}
	if err := s.prune(ctx, c); err != nil {
		_ = c.close()
		return nil, err
	}
	if st := s.opts.storage; st != nil {
		if err := st.SaveSchema(ctx, schema); err != nil {
			_ = c.close()
			return nil, fmt.Errorf("collection: failed to persist schema of %s: %w", schema.Name, err)
		}
	}
	s.collections[schema.Name] = c
	s.logger.Info("collection created", "collection", schema.Name, "dimension", schema.Dimension,
		"metric", schema.Metric, "indexed_fields", schema.IndexedFields)
	return c, nil
}

func (s *Store) newCollection(ctx context.Context, schema docvec.Schema) (*Collection, error) {
	vectors, err := s.opts.vectors(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("collection: failed to create vector index of %s: %w", schema.Name, err)
	}
	meta, err := s.opts.metadata(ctx, schema)
	if err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("collection: failed to create metadata index of %s: %w", schema.Name, err)
	}
	for _, field := range schema.IndexedFields {
		if err := meta.Register(ctx, field); err != nil {
			_ = vectors.Close()
			_ = meta.Close()
			return nil, fmt.Errorf("collection: failed to register %s.%s: %w", schema.Name, field, err)
		}
	}
	return &Collection{
		name:     schema.Name,
		dim:      schema.Dimension,
		schema:   schema,
		embedder: s.embedder,
		opts:     s.opts,
		logger:   s.logger.With("collection", schema.Name),
		docs:     make(map[string]*entry),
		vectors:  vectors,
		meta:     meta,
	}, nil
}

func (s *Store) prune(ctx context.Context, c *Collection) error {
	n, err := c.prune(ctx)
	if n > 0 {
		s.logger.Warn("stale index entries removed", "collection", c.name, "entries", n)
	}
	return err
}

// Collection returns the named collection or docvec.ErrNotFound.
func (s *Store) Collection(name string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", docvec.ErrNotFound, name)
	}
	return c, nil
}

// Collections returns the collection names in sorted order.
func (s *Store) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every collection's indexes and the storage.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, c := range s.collections {
		errs = append(errs, c.close())
	}
	s.collections = make(map[string]*Collection)
	if s.opts.storage != nil {
		errs = append(errs, s.opts.storage.Close())
	}
	return errors.Join(errs...)
}
