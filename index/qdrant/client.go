package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"github.com/viant/docvec"
	"github.com/viant/docvec/vector"
)

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant gRPC address (e.g. "http://localhost:6334").
	URL string

	// APIKey is optional API key for authentication.
	APIKey string

	// Prefix is prepended to every docvec collection name.
	Prefix string
}

// Client owns the connection shared by the indexes it opens.
type Client struct {
	client *qdrant.Client
	prefix string
}

// New creates a new Qdrant client.
func New(cfg Config) (*Client, error) {
	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &Client{client: c, prefix: cfg.Prefix}, nil
}

func parseURL(raw string) (host string, port int, useTLS bool, err error) {
	if raw == "" {
		return "", 0, false, fmt.Errorf("qdrant: url is required")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("qdrant: failed to parse url: %w", err)
	}
	port = 6334 // default gRPC port
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return "", 0, false, fmt.Errorf("qdrant: invalid port: %w", err)
		}
	}
	if u.Hostname() == "" {
		return "", 0, false, fmt.Errorf("qdrant: url %q has no host", raw)
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}

// Index returns the index for schema, creating the Qdrant collection when it
// does not exist. An existing collection whose vector size or distance differs
// from the schema is reported as docvec.ErrSchemaConflict.
func (c *Client) Index(ctx context.Context, schema docvec.Schema) (*Index, error) {
	name := c.prefix + schema.Name
	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection %s: %w", name, err)
	}
	if !exists {
		err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(schema.Dimension),
				Distance: distance(schema.Metric),
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: failed to create collection %s: %w", name, err)
		}
		return &Index{client: c.client, collection: name, dim: schema.Dimension}, nil
	}

	info, err := c.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to describe collection %s: %w", name, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return nil, fmt.Errorf("%w: qdrant: collection %s has no single unnamed vector", docvec.ErrSchemaConflict, name)
	}
	if int(params.GetSize()) != schema.Dimension || params.GetDistance() != distance(schema.Metric) {
		return nil, fmt.Errorf("%w: qdrant: collection %s has size %d distance %s, want %d %s",
			docvec.ErrSchemaConflict, name, params.GetSize(), params.GetDistance(), schema.Dimension, distance(schema.Metric))
	}
	return &Index{client: c.client, collection: name, dim: schema.Dimension}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func distance(m vector.Metric) qdrant.Distance {
	switch m {
	case vector.Cosine:
		return qdrant.Distance_Cosine
	default:
		return qdrant.Distance_UnknownDistance
	}
}
