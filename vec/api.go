package vec

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/viant/docvec/index"
	"github.com/viant/docvec/index/bruteforce"
	"github.com/viant/docvec/index/cover"
	"github.com/viant/docvec/vecsync"
	"github.com/viant/docvec/vector"
	"modernc.org/sqlite/vtab"
)

// Module implements vtab.Module for the vec virtual table. The driver keeps
// module registrations for the whole process, so a single Module serves vec
// tables of one attached database at a time.
type Module struct {
	mu    sync.Mutex
	db    *sql.DB
	cache map[string]*cacheEntry
}

var (
	registerOnce sync.Once
	registerErr  error
	module       = &Module{cache: make(map[string]*cacheEntry)}
)

// Table represents a single vec virtual table instance.
type Table struct {
	module    *Module
	tableName string
	documents string
	scnTable  string
	indexKind string // "brute" (default) or "cover"
}

type cacheEntry struct {
	mu   sync.Mutex
	scn  int64
	idx  index.Index
	seqs map[string]int64
}

const (
	idxCollectionScan = iota
	idxCollectionMatch
	idxCollectionMatchScore
)

type row struct {
	rowid      int64
	collection string
	id         string
	score      float64
}

// Cursor scans results from a vec table.
type Cursor struct {
	table *Table
	rows  []row
	pos   int
}

// Register registers the vec module (once per process) and attaches db as the
// database vec tables read their documents from. It reports false when another
// database is already attached; vec tables must not be queried through db then.
// Call Release before closing an attached db.
func Register(db *sql.DB) (bool, error) {
	registerOnce.Do(func() {
		if err := vtab.RegisterModule(db, "vec", module); err != nil && !strings.Contains(err.Error(), "already registered") {
			registerErr = err
		}
	})
	if registerErr != nil {
		return false, registerErr
	}
	return module.attach(db), nil
}

// Release detaches db, if attached, and drops the cached indexes.
func Release(db *sql.DB) {
	module.mu.Lock()
	defer module.mu.Unlock()
	if module.db != db {
		return
	}
	module.db = nil
	module.cache = make(map[string]*cacheEntry)
}

func (m *Module) attach(db *sql.DB) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil && m.db != db {
		return false
	}
	m.db = db
	return true
}

func (m *Module) database() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil, fmt.Errorf("vec: no database attached")
	}
	return m.db, nil
}

// Create declares a vec table.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

// Connect attaches to an existing vec table.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *Module) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec: expects at least 3 args, got %d", len(args))
	}
	if err := ctx.EnableConstraintSupport(); err != nil {
		return nil, fmt.Errorf("vec: EnableConstraintSupport failed: %w", err)
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(collection TEXT, doc_id TEXT, match_score REAL HIDDEN)", args[2])); err != nil {
		return nil, err
	}
	t := &Table{
		module:    m,
		tableName: args[2],
		documents: vecsync.DefaultDocumentTable,
		scnTable:  vecsync.DefaultSeqTable,
		indexKind: "brute",
	}
	for _, raw := range args[3:] {
		key, val, ok := strings.Cut(strings.TrimSpace(raw), "=")
		if !ok {
			continue
		}
		key, val = strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(val)
		switch key {
		case "index":
			switch strings.ToLower(val) {
			case "cover", "brute":
				t.indexKind = strings.ToLower(val)
			default:
				return nil, fmt.Errorf("vec: unsupported index %q", val)
			}
		case "documents":
			t.documents = val
		case "scn":
			t.scnTable = val
		}
	}
	return t, nil
}

// BestIndex requires an equality constraint on collection and pushes down
// MATCH on doc_id and a lower bound on match_score.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	var (
		collectionConstraint *vtab.Constraint
		matchConstraint      *vtab.Constraint
		scoreConstraint      *vtab.Constraint
	)
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		switch {
		case c.Column == 0 && c.Op == vtab.OpEQ:
			collectionConstraint = c
		case c.Column == 1 && c.Op == vtab.OpMATCH:
			matchConstraint = c
		case c.Column == 2 && (c.Op == vtab.OpGE || c.Op == vtab.OpGT):
			scoreConstraint = c
		}
	}
	if collectionConstraint == nil {
		return fmt.Errorf("vec: collection constraint required")
	}
	collectionConstraint.ArgIndex = 0
	collectionConstraint.Omit = true
	info.IdxNum = idxCollectionScan
	if matchConstraint == nil {
		return nil
	}
	matchConstraint.ArgIndex = 1
	matchConstraint.Omit = true
	info.IdxNum = idxCollectionMatch
	if scoreConstraint != nil {
		scoreConstraint.ArgIndex = 2
		// the cursor filters with >=, so a strict bound is rechecked by SQLite
		scoreConstraint.Omit = scoreConstraint.Op == vtab.OpGE
		info.IdxNum = idxCollectionMatchScore
	}
	return nil
}

// Open allocates a new cursor.
func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }

// Disconnect cleans up per-connection resources.
func (t *Table) Disconnect() error { return nil }

// Destroy drops the cached indexes of the table.
func (t *Table) Destroy() error {
	t.module.mu.Lock()
	defer t.module.mu.Unlock()
	for key := range t.module.cache {
		if strings.HasPrefix(key, t.tableName+"|") {
			delete(t.module.cache, key)
		}
	}
	return nil
}

// Filter computes the result set based on idxNum/vals.
func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows = nil
	c.pos = 0
	if len(vals) == 0 || vals[0] == nil {
		return fmt.Errorf("vec: collection argument is required")
	}
	collection, err := asString(vals[0])
	if err != nil {
		return err
	}
	db, err := c.table.module.database()
	if err != nil {
		return err
	}
	ctx := context.Background()
	switch idxNum {
	case idxCollectionScan:
		c.rows, err = c.table.scan(ctx, db, collection)
		return err
	case idxCollectionMatch, idxCollectionMatchScore:
		if len(vals) < 2 || vals[1] == nil {
			return fmt.Errorf("vec: MATCH argument is required")
		}
		query, err := decodeMatchArg(vals[1])
		if err != nil {
			return err
		}
		var minScore *float64
		if idxNum == idxCollectionMatchScore {
			if len(vals) < 3 {
				return fmt.Errorf("vec: missing match_score constraint")
			}
			m, err := asFloat(vals[2])
			if err != nil {
				return err
			}
			minScore = &m
		}
		c.rows, err = c.table.match(ctx, db, collection, query, minScore)
		return err
	default:
		return fmt.Errorf("vec: unsupported query plan")
	}
}

func (t *Table) scan(ctx context.Context, db *sql.DB, collection string) ([]row, error) {
	q := fmt.Sprintf("SELECT seq, id FROM %s WHERE collection = ? ORDER BY seq", t.documents)
	rows, err := db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []row
	for rows.Next() {
		r := row{collection: collection}
		if err := rows.Scan(&r.rowid, &r.id); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *Table) match(ctx context.Context, db *sql.DB, collection string, query []float32, minScore *float64) ([]row, error) {
	entry, err := t.ensureIndex(ctx, db, collection)
	if err != nil {
		return nil, err
	}
	if entry.idx == nil {
		return nil, nil
	}
	matches, err := entry.idx.Query(ctx, query, len(entry.seqs), nil)
	if err != nil {
		return nil, err
	}
	out := make([]row, 0, len(matches))
	for _, m := range matches {
		if minScore != nil && m.Score < *minScore {
			continue
		}
		out = append(out, row{rowid: entry.seqs[m.ID], collection: collection, id: m.ID, score: m.Score})
	}
	return out, nil
}

// ensureIndex returns the cached index of collection, rebuilding it from the
// documents table when the collection SCN differs from the cached one.
func (t *Table) ensureIndex(ctx context.Context, db *sql.DB, collection string) (*cacheEntry, error) {
	var scn int64
	q := fmt.Sprintf("SELECT next_scn FROM %s WHERE collection = ?", t.scnTable)
	if err := db.QueryRowContext(ctx, q, collection).Scan(&scn); err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	key := t.tableName + "|" + collection
	t.module.mu.Lock()
	entry, ok := t.module.cache[key]
	if !ok {
		entry = &cacheEntry{scn: -1}
		t.module.cache[key] = entry
	}
	t.module.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.scn == scn {
		return entry, nil
	}

	q = fmt.Sprintf("SELECT id, seq, embedding FROM %s WHERE collection = ? AND embedding IS NOT NULL ORDER BY seq", t.documents)
	rows, err := db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var idx index.Index
	seqs := make(map[string]int64)
	for rows.Next() {
		var id string
		var seq int64
		var emb []byte
		if err := rows.Scan(&id, &seq, &emb); err != nil {
			return nil, err
		}
		v, err := vector.DecodeEmbedding(emb)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			continue
		}
		if idx == nil {
			idx = t.newIndex(len(v))
		}
		if err := idx.Put(ctx, id, v); err != nil {
			return nil, fmt.Errorf("vec: document %s/%s: %w", collection, id, err)
		}
		seqs[id] = seq
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	entry.idx, entry.seqs, entry.scn = idx, seqs, scn
	return entry, nil
}

func (t *Table) newIndex(dim int) index.Index {
	if t.indexKind == "cover" {
		return cover.New(dim)
	}
	return bruteforce.New(dim)
}

func decodeMatchArg(v interface{}) ([]float32, error) {
	switch val := v.(type) {
	case []byte:
		return vector.DecodeEmbedding(val)
	case string:
		return decodeMatchString(val)
	default:
		return nil, fmt.Errorf("vec: expected MATCH arg as BLOB or string, got %T", v)
	}
}

func decodeMatchString(raw string) ([]float32, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("vec: MATCH string is empty")
	}
	if strings.HasPrefix(s, "[") {
		var floats []float32
		if err := json.Unmarshal([]byte(s), &floats); err != nil {
			return nil, fmt.Errorf("vec: invalid MATCH array: %w", err)
		}
		return floats, nil
	}
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		vec := make([]float32, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			f, err := strconv.ParseFloat(p, 32)
			if err != nil {
				return nil, fmt.Errorf("vec: invalid MATCH float %q: %w", p, err)
			}
			vec = append(vec, float32(f))
		}
		return vec, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return vector.DecodeEmbedding(b)
	}
	return nil, fmt.Errorf("vec: MATCH string must be a base64 embedding or a JSON/CSV float list")
}

// Next advances the cursor.
func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

// Eof reports end-of-rows.
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

// Column returns the value of a column in the current row.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("vec: Column out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	switch col {
	case 0:
		return c.rows[c.pos].collection, nil
	case 1:
		return c.rows[c.pos].id, nil
	case 2:
		return c.rows[c.pos].score, nil
	}
	return nil, fmt.Errorf("vec: unsupported column %d", col)
}

// Rowid returns the insertion sequence of the current document.
func (c *Cursor) Rowid() (int64, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return 0, fmt.Errorf("vec: Rowid out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	return c.rows[c.pos].rowid, nil
}

// Close releases resources.
func (c *Cursor) Close() error { c.rows = nil; c.pos = 0; return nil }

func asFloat(v vtab.Value) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	case []byte:
		return strconv.ParseFloat(string(val), 64)
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, fmt.Errorf("vec: unsupported score type %T", v)
	}
}

func asString(v vtab.Value) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	default:
		return "", fmt.Errorf("vec: unsupported collection type %T", v)
	}
}
