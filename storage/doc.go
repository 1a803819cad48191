// Package storage defines durable persistence for collection schemas and
// documents. Indexes are rebuilt from it on startup.
package storage
