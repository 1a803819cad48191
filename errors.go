package docvec

import "errors"

// Error kinds reported by the store and its indexes. Callers match them with
// errors.Is; a single error may carry more than one kind.
var (
	// ErrSchemaConflict is returned when a collection already exists with a
	// different dimension or metric.
	ErrSchemaConflict = errors.New("docvec: schema conflict")

	// ErrNotFound is returned by Get and Update for an absent id, and when a
	// collection does not exist.
	ErrNotFound = errors.New("docvec: not found")

	// ErrEmbeddingFailure is returned when the embedding provider fails or
	// returns a vector of the wrong dimension.
	ErrEmbeddingFailure = errors.New("docvec: embedding failure")

	// ErrInvalidFilter is returned when a filter references a field that is
	// not indexed or carries a value that cannot be matched exactly.
	ErrInvalidFilter = errors.New("docvec: invalid filter")

	// ErrDimensionMismatch is returned when a vector of the wrong length
	// reaches a vector index.
	ErrDimensionMismatch = errors.New("docvec: dimension mismatch")

	// ErrInvalidDocument is returned when a payload lacks a non-empty text.
	ErrInvalidDocument = errors.New("docvec: invalid document")
)
