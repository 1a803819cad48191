// Package collection implements the document store: a registry of named
// collections, each owning a vector index and a metadata index that are kept
// consistent with the collection's documents on every write.
//
// Writes embed and index outside the collection lock, which guards only the
// published documents: inserts and updates reach both indexes before they are
// published, deletes are unpublished before they leave the indexes, and a
// failed index write is compensated before it becomes visible. Readers join
// index results with the published documents, so they never block on index
// calls. Writers of the same id are serialized by striped per-id mutexes.
package collection
