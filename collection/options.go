package collection

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/viant/docvec"
	"github.com/viant/docvec/index"
	"github.com/viant/docvec/index/bruteforce"
	"github.com/viant/docvec/metadata"
	"github.com/viant/docvec/storage"
)

// VectorIndexFactory creates the vector index of a collection.
type VectorIndexFactory func(ctx context.Context, schema docvec.Schema) (index.Index, error)

// MetadataIndexFactory creates the metadata index of a collection.
type MetadataIndexFactory func(ctx context.Context, schema docvec.Schema) (metadata.Index, error)

// Option configures a Store.
type Option func(*options)

type options struct {
	storage     storage.Storage
	vectors     VectorIndexFactory
	metadata    MetadataIndexFactory
	logger      *slog.Logger
	parallelism int
	batchSize   int
	newID       func() string
}

func defaultOptions() *options {
	return &options{
		vectors: func(_ context.Context, schema docvec.Schema) (index.Index, error) {
			return bruteforce.New(schema.Dimension), nil
		},
		metadata: func(_ context.Context, _ docvec.Schema) (metadata.Index, error) {
			return metadata.NewMemory(), nil
		},
		logger:      slog.Default(),
		parallelism: 4,
		batchSize:   32,
		newID:       uuid.NewString,
	}
}

// WithStorage persists schemas and documents in s. Without it the store is
// memory only.
func WithStorage(s storage.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithVectorIndex sets the vector index factory. Defaults to brute force.
func WithVectorIndex(f VectorIndexFactory) Option {
	return func(o *options) {
		if f != nil {
			o.vectors = f
		}
	}
}

// WithMetadataIndex sets the metadata index factory. Defaults to in-memory.
func WithMetadataIndex(f MetadataIndexFactory) Option {
	return func(o *options) {
		if f != nil {
			o.metadata = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithParallelism bounds the number of concurrent embedding calls of one
// Insert.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithBatchSize sets how many texts one embedding call carries.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}
