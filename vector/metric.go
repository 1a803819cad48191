package vector

import (
	"fmt"
	"strings"
)

// Metric names the similarity metric of a collection. It is set when the
// collection is created and never changes afterwards.
type Metric string

const (
	// Cosine ranks vectors by cosine similarity in [-1, 1], higher is better.
	Cosine Metric = "cosine"
)

// ParseMetric resolves a metric name. An empty name defaults to Cosine.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cos", "cosine":
		return Cosine, nil
	default:
		return "", fmt.Errorf("vector: unsupported metric %q", name)
	}
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	return m == Cosine
}

func (m Metric) String() string { return string(m) }
