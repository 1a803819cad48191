package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/viant/docvec"
	"github.com/viant/docvec/storage"
	"github.com/viant/docvec/vector"
	"github.com/vmihailenco/msgpack/v5"
)

// Options configures the BadgerDB store.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB in memory-only mode (no disk persistence).
	InMemory bool

	// Logger receives badger warnings and errors. Nil uses slog.Default().
	Logger *slog.Logger
}

// Store implements storage.Storage on BadgerDB.
type Store struct {
	db *badger.DB
}

type schemaRecord struct {
	Name          string   `msgpack:"name"`
	Dimension     int      `msgpack:"dim"`
	Metric        string   `msgpack:"metric"`
	IndexedFields []string `msgpack:"fields,omitempty"`
}

type docRecord struct {
	ID      string         `msgpack:"id"`
	Seq     uint64         `msgpack:"seq"`
	Vector  []float32      `msgpack:"vec"`
	Payload map[string]any `msgpack:"payload"`
}

// Open opens the database described by opts.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	db, err := badger.Open(dbOpts.WithLogger(slogLogger{logger.With("component", "badger")}))
	if err != nil {
		return nil, fmt.Errorf("badger: failed to open: %w", err)
	}
	return &Store{db: db}, nil
}

func schemaKey(name string) []byte { return []byte("schema/" + name) }

func docPrefix(collection string) []byte {
	return []byte("doc/" + strconv.Itoa(len(collection)) + "/" + collection + "/")
}

func docKey(collection, id string) []byte {
	return append(docPrefix(collection), id...)
}

func (s *Store) SaveSchema(_ context.Context, schema docvec.Schema) error {
	data, err := msgpack.Marshal(schemaRecord{
		Name:          schema.Name,
		Dimension:     schema.Dimension,
		Metric:        string(schema.Metric),
		IndexedFields: schema.IndexedFields,
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(schemaKey(schema.Name), data)
	})
}

func (s *Store) Schemas(_ context.Context) ([]docvec.Schema, error) {
	var out []docvec.Schema
	err := s.scan([]byte("schema/"), func(val []byte) error {
		var rec schemaRecord
		if err := msgpack.Unmarshal(val, &rec); err != nil {
			return err
		}
		metric, err := vector.ParseMetric(rec.Metric)
		if err != nil {
			return err
		}
		out = append(out, docvec.Schema{Name: rec.Name, Dimension: rec.Dimension, Metric: metric, IndexedFields: rec.IndexedFields})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: failed to list schemas: %w", err)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// Save writes records in one transaction. Very large batches can exceed
// badger's transaction size and fail as a whole with badger.ErrTxnTooBig.
func (s *Store) Save(_ context.Context, collection string, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	values := make([][]byte, len(records))
	for n, r := range records {
		data, err := msgpack.Marshal(docRecord{ID: r.ID, Seq: r.Seq, Vector: r.Vector, Payload: r.Payload})
		if err != nil {
			return fmt.Errorf("badger: failed to encode %s: %w", r.ID, err)
		}
		values[n] = data
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for n, r := range records {
			if err := txn.Set(docKey(collection, r.ID), values[n]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: failed to save to %s: %w", collection, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(docKey(collection, id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: failed to delete from %s: %w", collection, err)
	}
	return nil
}

func (s *Store) Load(_ context.Context, collection string) ([]storage.Record, error) {
	var out []storage.Record
	err := s.scan(docPrefix(collection), func(val []byte) error {
		rec, err := decodeDoc(val)
		if err != nil {
			return err
		}
		out = append(out, storage.Record{
			Seq:      rec.Seq,
			Document: docvec.Document{ID: rec.ID, Vector: rec.Vector, Payload: rec.Payload},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: failed to load %s: %w", collection, err)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

// decodeDoc decodes payload numbers as int64, uint64 or float64 regardless of
// their wire width.
func decodeDoc(val []byte) (*docRecord, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(val))
	dec.UseLooseInterfaceDecoding(true)
	var rec docRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) scan(prefix []byte, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// slogLogger adapts slog to badger.Logger, dropping debug and info output.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Errorf(f string, v ...interface{})   { s.l.Error(fmt.Sprintf(f, v...)) }
func (s slogLogger) Warningf(f string, v ...interface{}) { s.l.Warn(fmt.Sprintf(f, v...)) }
func (slogLogger) Infof(string, ...interface{})          {}
func (slogLogger) Debugf(string, ...interface{})         {}

var _ storage.Storage = (*Store)(nil)
