package docvec

import (
	"fmt"
	"maps"
)

// TextField is the payload key holding the source text of a document.
const TextField = "text"

// Payload is the schemaless metadata of a document, including its source
// text under TextField.
type Payload map[string]any

// Text returns the source text of the payload. It fails with
// ErrInvalidDocument when the text is missing, not a string or empty.
func (p Payload) Text() (string, error) {
	raw, ok := p[TextField]
	if !ok {
		return "", fmt.Errorf("%w: payload has no %q field", ErrInvalidDocument, TextField)
	}
	text, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q field is %T, want string", ErrInvalidDocument, TextField, raw)
	}
	if text == "" {
		return "", fmt.Errorf("%w: %q field is empty", ErrInvalidDocument, TextField)
	}
	return text, nil
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Document is a stored record: a store-assigned id, the embedding of the
// payload text and the payload itself.
type Document struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector,omitempty"`
	Payload Payload   `json:"payload"`
}

// Filter is a conjunction of exact-match conditions over indexed payload
// fields. A nil or empty filter places no restriction on a search.
type Filter map[string]any

// Result is a single search hit joined with the current payload of the
// document.
type Result struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}
