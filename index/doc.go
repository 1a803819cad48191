// Package index defines the vector index capability used by a collection:
// vectors keyed by document id, answering k-nearest-neighbour queries that
// may be restricted to a candidate id set. Implementations in this module
// include an exact brute-force scan, a vantage-point tree and a Qdrant
// client.
package index
