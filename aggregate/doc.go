// Package aggregate fans one query out to several collections and merges the
// hits into a single ranking.
package aggregate
