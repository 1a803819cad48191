// Package engine provides helpers for working with the modernc.org/sqlite
// driver: opening connections with the pragmas the document store relies on
// and registering the vec_cosine and vec_l2 scalar functions used for exact
// similarity scans inside SQL.
package engine
