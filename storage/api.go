package storage

import (
	"context"

	"github.com/viant/docvec"
)

// Record is a persisted document with its first-insertion sequence number.
type Record struct {
	Seq uint64
	docvec.Document
}

// Storage persists schemas and documents. Save and Delete are atomic per
// call: either every record is written or none is.
type Storage interface {
	// SaveSchema records a collection schema, replacing a previous one.
	SaveSchema(ctx context.Context, schema docvec.Schema) error

	// Schemas returns every saved schema ordered by name.
	Schemas(ctx context.Context) ([]docvec.Schema, error)

	// Save inserts or replaces records of collection.
	Save(ctx context.Context, collection string, records []Record) error

	// Delete removes ids of collection. Absent ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// Load returns every record of collection ordered by Seq.
	Load(ctx context.Context, collection string) ([]Record, error)

	Close() error
}
