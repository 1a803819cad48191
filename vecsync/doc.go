// Package vecsync defines the SCN-based change log of the SQLite document
// table. Triggers on the documents table append one log row per insert,
// update or delete, numbered by a per-collection system change number (SCN),
// so downstream consumers can replay a collection incrementally.
package vecsync
