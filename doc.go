// Package docvec defines the data model of a semantic document store:
// documents carrying free text and schemaless metadata, collection schemas,
// exact-match filters, search results and the error kinds every layer
// reports.
//
// The store itself lives in package collection; vector and metadata indexes
// are pluggable capabilities (packages index and metadata), and durable
// persistence is optional (package storage).
package docvec
