// Package vector holds the numeric primitives shared by the indexes and the
// storage layers:
//   - Metric: the similarity metric fixed for a collection
//   - Cosine similarity, L2 distance and magnitude helpers
//   - Embedding encoding (little-endian float32 BLOB)
package vector
