package vector

import "testing"

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	c := []float32{1, 0}

	// Orthogonal vectors -> similarity 0
	if sim, err := CosineSimilarity(a, b); err != nil || sim != 0 {
		t.Fatalf("CosineSimilarity(a,b) = %v, %v; want 0, nil", sim, err)
	}

	// Identical vectors -> similarity 1
	if sim, err := CosineSimilarity(a, c); err != nil || sim != 1 {
		t.Fatalf("CosineSimilarity(a,c) = %v, %v; want 1, nil", sim, err)
	}

	if _, err := CosineSimilarity(a, []float32{1, 0, 0}); err == nil {
		t.Fatalf("CosineSimilarity with mismatched dims: expected error")
	}
	if _, err := CosineSimilarity(a, []float32{0, 0}); err == nil {
		t.Fatalf("CosineSimilarity with zero vector: expected error")
	}
}

func TestL2Distance(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}

	d, err := L2Distance(a, b)
	if err != nil {
		t.Fatalf("L2Distance failed: %v", err)
	}
	if d != 5 {
		t.Fatalf("L2Distance(0,0)-(3,4) = %v, want 5", d)
	}
}

func TestMagnitudeAndClone(t *testing.T) {
	v := []float32{3, 4}
	if m := Magnitude(v); m != 5 {
		t.Fatalf("Magnitude = %v, want 5", m)
	}
	cp := Clone(v)
	cp[0] = 9
	if v[0] != 3 {
		t.Fatalf("Clone shares backing array with source")
	}
	if Clone(nil) != nil {
		t.Fatalf("Clone(nil) should be nil")
	}
}

func TestDot(t *testing.T) {
	if d := Dot([]float32{1, 2, 3}, []float32{4, -5, 6}); d != 12 {
		t.Fatalf("Dot = %v, want 12", d)
	}
	if d := Dot([]float32{1, 2}, []float32{3}); d != 3 {
		t.Fatalf("Dot over common length = %v, want 3", d)
	}
}

func TestParseMetric(t *testing.T) {
	for _, name := range []string{"", "cosine", "COS", " cosine "} {
		m, err := ParseMetric(name)
		if err != nil || m != Cosine {
			t.Fatalf("ParseMetric(%q) = %v, %v; want cosine", name, m, err)
		}
	}
	if _, err := ParseMetric("dot"); err == nil {
		t.Fatalf("ParseMetric(dot): expected error")
	}
	if Metric("l2").Valid() {
		t.Fatalf("l2 should not be a valid metric")
	}
}
