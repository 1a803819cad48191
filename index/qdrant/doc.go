// Package qdrant provides a vector index backed by a Qdrant server. Each
// docvec collection maps to one Qdrant collection sized and configured from
// its schema.
package qdrant
