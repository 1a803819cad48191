package vecsync

import (
	"fmt"
	"strings"
)

const (
	// DefaultDocumentTable holds the documents of every collection.
	DefaultDocumentTable = "vec_documents"

	// DefaultLogTable is the change-log table that captures row-level SCN events.
	DefaultLogTable = "vec_change_log"

	// DefaultSeqTable stores the last SCN per collection.
	DefaultSeqTable = "vec_collection_scn"
)

// DocumentTableDDL returns the DDL of the documents table. Documents are
// partitioned by collection; seq is the first-insertion order within it.
func DocumentTableDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    payload    TEXT NOT NULL,
    embedding  BLOB,
    PRIMARY KEY(collection, id)
);`
}

// LogTableDDL returns the DDL for the change log populated by triggers.
func LogTableDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
    collection  TEXT NOT NULL,
    scn         INTEGER NOT NULL,
    op          TEXT NOT NULL,
    document_id TEXT NOT NULL,
    payload     BLOB NOT NULL,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(collection, scn)
);`
}

// SeqTableDDL returns the DDL for tracking the last SCN per collection.
func SeqTableDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
    collection TEXT PRIMARY KEY,
    next_scn   INTEGER NOT NULL
);`
}

// SQLiteTriggers returns the trigger DDL statements required to capture
// inserts, updates, and deletes against the documents table into the change
// log using SQLite syntax. The row image is serialized as JSON with a
// hex-encoded embedding.
func SQLiteTriggers(docTable, seqTable, logTable string) []string {
	if docTable == "" {
		docTable = DefaultDocumentTable
	}
	if seqTable == "" {
		seqTable = DefaultSeqTable
	}
	if logTable == "" {
		logTable = DefaultLogTable
	}
	base := sanitizeIdentifier(docTable)
	payload := func(alias string) string {
		return fmt.Sprintf(`json_object(
        'collection', %[1]s.collection,
        'id', %[1]s.id,
        'seq', %[1]s.seq,
        'payload', %[1]s.payload,
        'embedding', lower(hex(%[1]s.embedding))
    )`, alias)
	}
	advance := func(alias string) string {
		return fmt.Sprintf(`INSERT INTO %[1]s(collection, next_scn)
    VALUES (%[2]s.collection, 1)
    ON CONFLICT(collection) DO UPDATE SET next_scn = next_scn + 1;`, seqTable, alias)
	}
	scnExpr := func(alias string) string {
		return fmt.Sprintf(`(SELECT next_scn FROM %s WHERE collection = %s.collection)`, seqTable, alias)
	}
	trigger := func(suffix, event, op, alias string) string {
		return fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_%s AFTER %s ON %s
BEGIN
    %s
    INSERT INTO %s(collection, scn, op, document_id, payload)
    VALUES (
        %s.collection,
        %s,
        '%s',
        %s.id,
        %s
    );
END;`, base, suffix, event, docTable, advance(alias), logTable, alias, scnExpr(alias), op, alias, payload(alias))
	}
	return []string{
		trigger("ai", "INSERT", OpInsert, "NEW"),
		trigger("au", "UPDATE", OpUpdate, "NEW"),
		trigger("ad", "DELETE", OpDelete, "OLD"),
	}
}

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	replacer := strings.NewReplacer(".", "_", "-", "_")
	return replacer.Replace(name)
}
