// Package storagetest holds behaviour checks shared by storage backends.
package storagetest

import (
	"context"
	"reflect"
	"testing"

	"github.com/viant/docvec"
	"github.com/viant/docvec/storage"
	"github.com/viant/docvec/vector"
)

// Run exercises s with the contract every backend must satisfy. s must be
// empty.
func Run(t *testing.T, s storage.Storage) {
	t.Helper()
	ctx := context.Background()

	reviews := docvec.Schema{Name: "reviews", Dimension: 2, Metric: vector.Cosine, IndexedFields: []string{"sentiment"}}
	news := docvec.Schema{Name: "news", Dimension: 3, Metric: vector.Cosine}
	if err := s.SaveSchema(ctx, reviews); err != nil {
		t.Fatalf("SaveSchema failed: %v", err)
	}
	if err := s.SaveSchema(ctx, news); err != nil {
		t.Fatalf("SaveSchema failed: %v", err)
	}
	reviews.IndexedFields = append(reviews.IndexedFields, "year")
	if err := s.SaveSchema(ctx, reviews); err != nil {
		t.Fatalf("SaveSchema replace failed: %v", err)
	}
	schemas, err := s.Schemas(ctx)
	if err != nil {
		t.Fatalf("Schemas failed: %v", err)
	}
	if len(schemas) != 2 || schemas[0].Name != "news" || schemas[1].Name != "reviews" {
		t.Fatalf("Schemas = %+v, want [news reviews]", schemas)
	}
	if !reflect.DeepEqual(schemas[1].IndexedFields, []string{"sentiment", "year"}) || schemas[1].Dimension != 2 {
		t.Fatalf("schema not replaced: %+v", schemas[1])
	}

	records := []storage.Record{
		{Seq: 2, Document: docvec.Document{ID: "b", Vector: []float32{0, 1}, Payload: docvec.Payload{"text": "bad", "sentiment": "negative", "year": 2021}}},
		{Seq: 1, Document: docvec.Document{ID: "a", Vector: []float32{1, 0}, Payload: docvec.Payload{"text": "good", "sentiment": "positive", "tags": []any{"x"}}}},
	}
	if err := s.Save(ctx, "reviews", records); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(ctx, "news", []storage.Record{{Seq: 1, Document: docvec.Document{ID: "a", Vector: []float32{1, 2, 3}, Payload: docvec.Payload{"text": "other"}}}}); err != nil {
		t.Fatalf("Save news failed: %v", err)
	}

	loaded, err := s.Load(ctx, "reviews")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != "a" || loaded[1].ID != "b" {
		t.Fatalf("Load = %+v, want [a b] ordered by seq", loaded)
	}
	if !reflect.DeepEqual(loaded[0].Vector, []float32{1, 0}) || loaded[0].Payload["text"] != "good" {
		t.Fatalf("unexpected record: %+v", loaded[0])
	}
	if year, ok := loaded[1].Payload["year"]; !ok || toFloat(year) != 2021 {
		t.Fatalf("numeric payload lost: %#v", loaded[1].Payload)
	}

	// replace keeps the record count
	replaced := storage.Record{Seq: 1, Document: docvec.Document{ID: "a", Vector: []float32{0.5, 0.5}, Payload: docvec.Payload{"text": "fine"}}}
	if err := s.Save(ctx, "reviews", []storage.Record{replaced}); err != nil {
		t.Fatalf("Save replace failed: %v", err)
	}
	loaded, _ = s.Load(ctx, "reviews")
	if len(loaded) != 2 || loaded[0].Payload["text"] != "fine" {
		t.Fatalf("replace not applied: %+v", loaded)
	}

	if err := s.Delete(ctx, "reviews", []string{"a", "missing"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	loaded, _ = s.Load(ctx, "reviews")
	if len(loaded) != 1 || loaded[0].ID != "b" {
		t.Fatalf("Load after delete = %+v, want [b]", loaded)
	}
	other, _ := s.Load(ctx, "news")
	if len(other) != 1 || other[0].ID != "a" {
		t.Fatalf("delete leaked across collections: %+v", other)
	}
	empty, err := s.Load(ctx, "unknown")
	if err != nil || len(empty) != 0 {
		t.Fatalf("Load unknown = %v, %v; want empty", empty, err)
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return -1
}
