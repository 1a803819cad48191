package vecsync

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/docvec/vector"
)

// Change operations recorded in the log.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// LogEntry mirrors a single row in vec_change_log.
type LogEntry struct {
	Collection string    `json:"collection"`
	SCN        int64     `json:"scn"`
	Op         string    `json:"op"`
	DocumentID string    `json:"documentId"`
	Payload    []byte    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Row is the document image carried by a log entry: the new row for inserts
// and updates, the removed row for deletes.
type Row struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Seq        uint64         `json:"seq"`
	Payload    map[string]any `json:"payload"`
	Vector     []float32      `json:"vector,omitempty"`
}

type rowImage struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Payload    json.RawMessage `json:"payload"`
	Embedding  string          `json:"embedding"`
}

// Row decodes the JSON image written by the log triggers.
func (e *LogEntry) Row() (*Row, error) {
	var img rowImage
	if err := json.Unmarshal(e.Payload, &img); err != nil {
		return nil, fmt.Errorf("vecsync: invalid log payload at scn %d: %w", e.SCN, err)
	}
	row := &Row{Collection: img.Collection, ID: img.ID, Seq: img.Seq}
	// payload is stored as TEXT, so json_object embeds it as a JSON string.
	var text string
	if len(img.Payload) > 0 && json.Unmarshal(img.Payload, &text) == nil {
		img.Payload = json.RawMessage(text)
	}
	if len(img.Payload) > 0 && string(img.Payload) != "null" {
		if err := json.Unmarshal(img.Payload, &row.Payload); err != nil {
			return nil, fmt.Errorf("vecsync: invalid document payload at scn %d: %w", e.SCN, err)
		}
	}
	if img.Embedding != "" {
		blob, err := hex.DecodeString(img.Embedding)
		if err != nil {
			return nil, fmt.Errorf("vecsync: invalid embedding at scn %d: %w", e.SCN, err)
		}
		if row.Vector, err = vector.DecodeEmbedding(blob); err != nil {
			return nil, err
		}
	}
	return row, nil
}
