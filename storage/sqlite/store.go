package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/viant/docvec"
	"github.com/viant/docvec/engine"
	"github.com/viant/docvec/storage"
	"github.com/viant/docvec/vec"
	"github.com/viant/docvec/vecsync"
	"github.com/viant/docvec/vector"
)

const collectionTableDDL = `CREATE TABLE IF NOT EXISTS vec_collections (
    name           TEXT PRIMARY KEY,
    dimension      INTEGER NOT NULL,
    metric         TEXT NOT NULL,
    indexed_fields TEXT NOT NULL DEFAULT '[]',
    created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

const knnTableDDL = `CREATE VIRTUAL TABLE IF NOT EXISTS vec_knn USING vec(index=brute)`

// Store implements storage.Storage on SQLite.
type Store struct {
	db       *sql.DB
	ownsDB   bool
	attached bool
	knn      bool
}

// Open opens (or creates) the database at dsn and ensures the schema. A file
// database also gets the vec_knn virtual table when it is the one attached to
// the vec module and its connection provides the module; Nearest then prefers it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	engine.RegisterVectorFunctions()
	db, err := engine.Open(dsn)
	if err != nil {
		return nil, err
	}
	// vec_knn reads the documents table on its own connection, which a
	// single-connection in-memory database cannot provide.
	var attached bool
	if !engine.IsMemory(dsn) {
		if attached, err = vec.Register(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: failed to register vec module: %w", err)
		}
	}
	s, err := New(ctx, db)
	if err != nil {
		if attached {
			vec.Release(db)
		}
		_ = db.Close()
		return nil, err
	}
	s.ownsDB, s.attached = true, attached
	if attached {
		_, err := db.ExecContext(ctx, knnTableDDL)
		switch {
		case err == nil:
			s.knn = true
		case !isMissingModule(err):
			_ = s.Close()
			return nil, fmt.Errorf("sqlite: failed to create vec_knn: %w", err)
		}
	}
	return s, nil
}

func isMissingModule(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such module")
}

// New wraps an open database and ensures the schema. The caller keeps
// ownership of db.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	stmts := []string{
		collectionTableDDL,
		vecsync.DocumentTableDDL(vecsync.DefaultDocumentTable),
		vecsync.LogTableDDL(vecsync.DefaultLogTable),
		vecsync.SeqTableDDL(vecsync.DefaultSeqTable),
	}
	stmts = append(stmts, vecsync.SQLiteTriggers("", "", "")...)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to ensure schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) SaveSchema(ctx context.Context, schema docvec.Schema) error {
	fields, err := json.Marshal(append([]string{}, schema.IndexedFields...))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO vec_collections(name, dimension, metric, indexed_fields)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET dimension = excluded.dimension, metric = excluded.metric, indexed_fields = excluded.indexed_fields`,
		schema.Name, schema.Dimension, string(schema.Metric), string(fields))
	if err != nil {
		return fmt.Errorf("sqlite: failed to save schema %s: %w", schema.Name, err)
	}
	return nil
}

func (s *Store) Schemas(ctx context.Context) ([]docvec.Schema, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, dimension, metric, indexed_fields FROM vec_collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list schemas: %w", err)
	}
	defer rows.Close()
	var out []docvec.Schema
	for rows.Next() {
		var (
			schema docvec.Schema
			metric string
			fields string
		)
		if err := rows.Scan(&schema.Name, &schema.Dimension, &metric, &fields); err != nil {
			return nil, err
		}
		if schema.Metric, err = vector.ParseMetric(metric); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &schema.IndexedFields); err != nil {
			return nil, fmt.Errorf("sqlite: invalid indexed fields of %s: %w", schema.Name, err)
		}
		out = append(out, schema)
	}
	return out, rows.Err()
}

func (s *Store) Save(ctx context.Context, collection string, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO vec_documents(collection, id, seq, payload, embedding)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET seq = excluded.seq, payload = excluded.payload, embedding = excluded.embedding`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range records {
			payload, err := json.Marshal(r.Payload)
			if err != nil {
				return fmt.Errorf("sqlite: failed to encode payload of %s: %w", r.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, collection, r.ID, int64(r.Seq), string(payload), vector.EncodeEmbedding(r.Vector)); err != nil {
				return fmt.Errorf("sqlite: failed to save %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM vec_documents WHERE collection = ? AND id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, collection, id); err != nil {
				return fmt.Errorf("sqlite: failed to delete %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context, collection string) ([]storage.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, seq, payload, embedding FROM vec_documents WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load %s: %w", collection, err)
	}
	defer rows.Close()
	var out []storage.Record
	for rows.Next() {
		var (
			r       storage.Record
			seq     int64
			payload string
			blob    []byte
		)
		if err := rows.Scan(&r.ID, &seq, &payload, &blob); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return nil, fmt.Errorf("sqlite: invalid payload of %s: %w", r.ID, err)
		}
		if r.Vector, err = vector.DecodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("sqlite: invalid embedding of %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Changes returns up to limit change-log entries of collection with an SCN
// greater than afterSCN, in SCN order. limit <= 0 means no limit.
func (s *Store) Changes(ctx context.Context, collection string, afterSCN int64, limit int) ([]vecsync.LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT collection, scn, op, document_id, payload, created_at
FROM vec_change_log WHERE collection = ? AND scn > ? ORDER BY scn LIMIT ?`, collection, afterSCN, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read changes of %s: %w", collection, err)
	}
	defer rows.Close()
	var out []vecsync.LogEntry
	for rows.Next() {
		var e vecsync.LogEntry
		if err := rows.Scan(&e.Collection, &e.SCN, &e.Op, &e.DocumentID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Scored is an exact similarity result computed inside SQLite.
type Scored struct {
	ID    string
	Score float64
}

const (
	nearestByFunction = `SELECT id, score FROM (
    SELECT id, seq, vec_cosine(embedding, ?) AS score FROM vec_documents WHERE collection = ?
) WHERE score IS NOT NULL ORDER BY score DESC, seq ASC LIMIT ?`

	nearestByKNN = `SELECT doc_id, match_score FROM vec_knn
WHERE doc_id MATCH ? AND collection = ? ORDER BY match_score DESC, rowid LIMIT ?`
)

// Nearest ranks every stored document of collection by cosine similarity to
// query, ties by insertion order. Documents with a zero vector are skipped.
// Ranking runs in the vec_knn virtual table when available, otherwise in the
// vec_cosine SQL function.
func (s *Store) Nearest(ctx context.Context, collection string, query []float32, k int) ([]Scored, error) {
	if k <= 0 {
		return nil, nil
	}
	blob := vector.EncodeEmbedding(query)
	if s.knn {
		out, err := s.nearest(ctx, nearestByKNN, blob, collection, k)
		// pooled connections opened without the vec module fall back to vec_cosine
		if err == nil || ctx.Err() != nil {
			return out, err
		}
	}
	return s.nearest(ctx, nearestByFunction, blob, collection, k)
}

func (s *Store) nearest(ctx context.Context, q string, blob []byte, collection string, k int) ([]Scored, error) {
	rows, err := s.db.QueryContext(ctx, q, blob, collection, k)
	if err != nil {
		return nil, fmt.Errorf("sqlite: nearest query on %s failed: %w", collection, err)
	}
	defer rows.Close()
	var out []Scored
	for rows.Next() {
		var r Scored
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if s.attached {
		vec.Release(s.db)
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit: %w", err)
	}
	return nil
}

var _ storage.Storage = (*Store)(nil)
