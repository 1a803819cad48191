// Package sqlite persists collections in a SQLite database through the
// modernc.org/sqlite driver. All collections share one documents table keyed
// by (collection, id); triggers append every change to an SCN-numbered change
// log that Changes reads back.
package sqlite
