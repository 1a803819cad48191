package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/viant/docvec"
)

// Kinds accepted by the configuration sections.
const (
	EmbedderHash   = "hash"
	EmbedderOpenAI = "openai"

	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageBadger = "badger"

	IndexBrute  = "brute"
	IndexCover  = "cover"
	IndexQdrant = "qdrant"

	MetadataMemory = "memory"
	MetadataRedis  = "redis"
)

// Config is the root configuration.
type Config struct {
	Log         Log             `yaml:"log"`
	Embedder    Embedder        `yaml:"embedder"`
	Storage     Storage         `yaml:"storage"`
	Index       Index           `yaml:"index"`
	Metadata    Metadata        `yaml:"metadata"`
	Collections []docvec.Schema `yaml:"collections"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Embedder selects the embedding provider.
type Embedder struct {
	Kind        string `yaml:"kind"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Parallelism int    `yaml:"parallelism"`
	BatchSize   int    `yaml:"batch_size"`
}

// Storage selects where documents are persisted.
type Storage struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// Index selects the vector index of every collection.
type Index struct {
	Kind   string `yaml:"kind"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Prefix string `yaml:"prefix"`
}

// Metadata selects the metadata index of every collection.
type Metadata struct {
	Kind     string `yaml:"kind"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Default returns an in-memory configuration with the hashing embedder.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Parse expands environment references in data, decodes it, fills defaults
// and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))
	c := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return nil, fmt.Errorf("config: failed to decode: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Embedder.Kind == "" {
		c.Embedder.Kind = EmbedderHash
	}
	if c.Embedder.Kind == EmbedderHash && c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 384
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageMemory
	}
	if c.Index.Kind == "" {
		c.Index.Kind = IndexBrute
	}
	if c.Metadata.Kind == "" {
		c.Metadata.Kind = MetadataMemory
	}
	if c.Metadata.Kind == MetadataRedis && c.Metadata.Prefix == "" {
		c.Metadata.Prefix = "docvec:"
	}
	for n := range c.Collections {
		if c.Collections[n].Dimension == 0 {
			c.Collections[n].Dimension = c.Embedder.Dimension
		}
	}
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json", c.Log.Format))
	}

	switch c.Embedder.Kind {
	case EmbedderHash:
	case EmbedderOpenAI:
		if c.Embedder.APIKey == "" {
			errs = append(errs, fmt.Errorf("config: embedder.api_key is required for openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown embedder.kind %q", c.Embedder.Kind))
	}
	if c.Embedder.Dimension < 0 {
		errs = append(errs, fmt.Errorf("config: embedder.dimension must not be negative"))
	}

	switch c.Storage.Kind {
	case StorageMemory:
	case StorageSQLite, StorageBadger:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("config: storage.path is required for %s", c.Storage.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage.kind %q", c.Storage.Kind))
	}

	switch c.Index.Kind {
	case IndexBrute, IndexCover:
	case IndexQdrant:
		if c.Index.URL == "" {
			errs = append(errs, fmt.Errorf("config: index.url is required for qdrant"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown index.kind %q", c.Index.Kind))
	}

	switch c.Metadata.Kind {
	case MetadataMemory:
	case MetadataRedis:
		if c.Metadata.Addr == "" {
			errs = append(errs, fmt.Errorf("config: metadata.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown metadata.kind %q", c.Metadata.Kind))
	}

	seen := make(map[string]struct{}, len(c.Collections))
	for n := range c.Collections {
		schema := &c.Collections[n]
		if err := schema.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: collections[%d]: %w", n, err))
			continue
		}
		if _, ok := seen[schema.Name]; ok {
			errs = append(errs, fmt.Errorf("config: collection %q listed twice", schema.Name))
		}
		seen[schema.Name] = struct{}{}
		if d := c.Embedder.Dimension; d != 0 && schema.Dimension != d {
			errs = append(errs, fmt.Errorf("config: collection %q: dimension %d differs from embedder.dimension %d: %w",
				schema.Name, schema.Dimension, d, docvec.ErrDimensionMismatch))
		}
	}
	return errors.Join(errs...)
}
