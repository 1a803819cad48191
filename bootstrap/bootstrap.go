package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/viant/docvec"
	"github.com/viant/docvec/collection"
	"github.com/viant/docvec/config"
	"github.com/viant/docvec/embed"
	"github.com/viant/docvec/index"
	"github.com/viant/docvec/index/bruteforce"
	"github.com/viant/docvec/index/cover"
	"github.com/viant/docvec/index/qdrant"
	"github.com/viant/docvec/metadata"
	"github.com/viant/docvec/metadata/redis"
	"github.com/viant/docvec/storage"
	"github.com/viant/docvec/storage/badger"
	"github.com/viant/docvec/storage/sqlite"
)

// Env is an opened store together with the backends it owns.
type Env struct {
	Store    *collection.Store
	Embedder embed.Embedder
	// SQLite is set when documents are persisted in SQLite; it serves the
	// change log and exact in-database search.
	SQLite *sqlite.Store

	closers []func() error
}

// Close closes the store and every backend client.
func (e *Env) Close() error {
	var errs []error
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	for n := len(e.closers) - 1; n >= 0; n-- {
		errs = append(errs, e.closers[n]())
	}
	return errors.Join(errs...)
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg config.Log, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewEmbedder builds the embedding provider described by cfg.
func NewEmbedder(cfg config.Embedder) (embed.Embedder, error) {
	switch cfg.Kind {
	case config.EmbedderHash:
		return embed.NewHash(cfg.Dimension), nil
	case config.EmbedderOpenAI:
		var opts []embed.Option
		if cfg.Model != "" {
			opts = append(opts, embed.WithModel(cfg.Model))
		}
		if cfg.Dimension > 0 {
			opts = append(opts, embed.WithDimension(cfg.Dimension))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, embed.WithBaseURL(cfg.BaseURL))
		}
		if cfg.BatchSize > 0 {
			opts = append(opts, embed.WithMaxBatch(cfg.BatchSize))
		}
		return embed.NewOpenAI(cfg.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown embedder %q", cfg.Kind)
	}
}

// Open builds every backend named by cfg, rebuilds the persisted
// collections and creates the configured ones.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Env, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env := &Env{}
	embedder, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	env.Embedder = embedder

	opts := []collection.Option{
		collection.WithLogger(logger),
		collection.WithParallelism(cfg.Embedder.Parallelism),
		collection.WithBatchSize(cfg.Embedder.BatchSize),
	}
	st, err := env.openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if st != nil {
		opts = append(opts, collection.WithStorage(st))
	}
	vectors, err := env.vectorFactory(cfg.Index)
	if err != nil {
		_ = closeStorage(st)
		_ = env.Close()
		return nil, err
	}
	meta, err := env.metadataFactory(ctx, cfg.Metadata)
	if err != nil {
		_ = closeStorage(st)
		_ = env.Close()
		return nil, err
	}
	opts = append(opts, collection.WithVectorIndex(vectors), collection.WithMetadataIndex(meta))

	store, err := collection.Open(ctx, embedder, opts...)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	env.Store = store
	for _, schema := range cfg.Collections {
		if _, err := store.CreateCollection(ctx, schema); err != nil {
			_ = env.Close()
			return nil, fmt.Errorf("bootstrap: collection %s: %w", schema.Name, err)
		}
	}
	logger.Debug("store opened", "storage", cfg.Storage.Kind, "index", cfg.Index.Kind,
		"metadata", cfg.Metadata.Kind, "collections", store.Collections())
	return env, nil
}

func closeStorage(st storage.Storage) error {
	if st == nil {
		return nil
	}
	return st.Close()
}

func (e *Env) openStorage(ctx context.Context, cfg config.Storage, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Kind {
	case config.StorageMemory:
		return nil, nil
	case config.StorageSQLite:
		st, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		e.SQLite = st
		return st, nil
	case config.StorageBadger:
		return badger.Open(badger.Options{Dir: cfg.Path, Logger: logger})
	default:
		return nil, fmt.Errorf("bootstrap: unknown storage %q", cfg.Kind)
	}
}

func (e *Env) vectorFactory(cfg config.Index) (collection.VectorIndexFactory, error) {
	switch cfg.Kind {
	case config.IndexBrute:
		return func(_ context.Context, schema docvec.Schema) (index.Index, error) {
			return bruteforce.New(schema.Dimension), nil
		}, nil
	case config.IndexCover:
		return func(_ context.Context, schema docvec.Schema) (index.Index, error) {
			return cover.New(schema.Dimension), nil
		}, nil
	case config.IndexQdrant:
		client, err := qdrant.New(qdrant.Config{URL: cfg.URL, APIKey: cfg.APIKey, Prefix: cfg.Prefix})
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, client.Close)
		return func(ctx context.Context, schema docvec.Schema) (index.Index, error) {
			return client.Index(ctx, schema)
		}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown index %q", cfg.Kind)
	}
}

func (e *Env) metadataFactory(ctx context.Context, cfg config.Metadata) (collection.MetadataIndexFactory, error) {
	switch cfg.Kind {
	case config.MetadataMemory:
		return func(context.Context, docvec.Schema) (metadata.Index, error) {
			return metadata.NewMemory(), nil
		}, nil
	case config.MetadataRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		e.closers = append(e.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("bootstrap: redis %s: %w", cfg.Addr, err)
		}
		return func(ctx context.Context, schema docvec.Schema) (metadata.Index, error) {
			return redis.New(ctx, client, cfg.Prefix, schema.Name)
		}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown metadata index %q", cfg.Kind)
	}
}
