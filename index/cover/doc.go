// Package cover provides an in-memory vantage-point tree index. Vectors are
// compared by chord distance between their unit-normalised forms, which is a
// true metric and strictly decreasing in cosine similarity, so the tree can
// prune by the triangle inequality without losing exact results. The tree is
// rebuilt lazily on the first query after a write.
package cover
