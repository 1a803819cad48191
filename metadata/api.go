package metadata

import (
	"context"

	"github.com/viant/docvec"
	"github.com/viant/docvec/index"
)

// Index maps (field, value) pairs of registered fields to document ids.
// Implementations must be safe for concurrent use.
type Index interface {
	// Register adds field to the indexed fields. Registering twice is a no-op.
	// Documents already indexed are not backfilled; callers Put them again.
	Register(ctx context.Context, field string) error

	// Fields returns the registered fields.
	Fields() []string

	// Put replaces every entry of id with the indexable values of payload.
	Put(ctx context.Context, id string, payload docvec.Payload) error

	// Remove drops every entry of id. Absent ids are a no-op.
	Remove(ctx context.Context, id string) error

	// Evaluate returns the ids matching every pair of filter. An unregistered
	// field, an unmatchable value or an empty filter is docvec.ErrInvalidFilter.
	Evaluate(ctx context.Context, filter docvec.Filter) (index.Set, error)

	Close() error
}

// Lister is implemented by metadata indexes whose contents outlive the
// process.
type Lister interface {
	// List returns every id with at least one indexed value.
	List(ctx context.Context) ([]string, error)
}
