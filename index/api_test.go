package index

import "testing"

func TestSet(t *testing.T) {
	a := NewSet("a", "b", "c")
	b := NewSet("b", "c", "d", "e")
	got := Intersect(a, b)
	if len(got) != 2 || !got.Has("b") || !got.Has("c") {
		t.Fatalf("Intersect = %v, want {b c}", got)
	}
	if empty := NewSet(); empty == nil || len(empty) != 0 {
		t.Fatalf("NewSet() should be non-nil and empty")
	}
	var unrestricted Set
	if unrestricted.Has("a") {
		t.Fatalf("nil set should not contain ids")
	}
}
