package docvec

import (
	"fmt"
	"slices"

	"github.com/viant/docvec/vector"
)

// Schema describes a collection. Dimension and Metric are fixed for the
// lifetime of the collection; IndexedFields may grow.
type Schema struct {
	Name          string        `json:"name" yaml:"name"`
	Dimension     int           `json:"dimension" yaml:"dimension"`
	Metric        vector.Metric `json:"metric" yaml:"metric"`
	IndexedFields []string      `json:"indexed_fields,omitempty" yaml:"indexed_fields,omitempty"`
}

// Validate checks the schema and fills the default metric.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("docvec: collection name is required")
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("docvec: collection %q: dimension must be positive, got %d", s.Name, s.Dimension)
	}
	if s.Metric == "" {
		s.Metric = vector.Cosine
	}
	if !s.Metric.Valid() {
		return fmt.Errorf("docvec: collection %q: unsupported metric %q", s.Name, s.Metric)
	}
	for _, f := range s.IndexedFields {
		if f == "" {
			return fmt.Errorf("docvec: collection %q: empty indexed field name", s.Name)
		}
	}
	return nil
}

// Compatible reports whether other can be served by a collection created
// with s: same dimension and metric.
func (s Schema) Compatible(other Schema) bool {
	return s.Dimension == other.Dimension && s.Metric == other.Metric
}

// Conflict returns an ErrSchemaConflict error describing why other does not
// match s, or nil when they are compatible.
func (s Schema) Conflict(other Schema) error {
	if s.Compatible(other) {
		return nil
	}
	return fmt.Errorf("%w: collection %q exists with dimension %d/%s, requested %d/%s",
		ErrSchemaConflict, s.Name, s.Dimension, s.Metric, other.Dimension, other.Metric)
}

// HasField reports whether field is listed as indexed.
func (s Schema) HasField(field string) bool {
	return slices.Contains(s.IndexedFields, field)
}

// Clone returns a copy that does not share the field list.
func (s Schema) Clone() Schema {
	s.IndexedFields = slices.Clone(s.IndexedFields)
	return s
}
