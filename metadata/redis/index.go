package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"github.com/viant/docvec"
	"github.com/viant/docvec/index"
	"github.com/viant/docvec/metadata"
)

const maxTxRetries = 16

// Index implements metadata.Index on Redis.
type Index struct {
	client goredis.UniversalClient
	prefix string

	mu     sync.RWMutex
	fields map[string]struct{}
}

// New opens the index for collection and loads its registered fields.
func New(ctx context.Context, client goredis.UniversalClient, prefix, collection string) (*Index, error) {
	if client == nil {
		return nil, errors.New("redis: client is required")
	}
	i := &Index{client: client, prefix: prefix + collection, fields: make(map[string]struct{})}
	fields, err := client.SMembers(ctx, i.fieldsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to load fields of %s: %w", collection, err)
	}
	for _, f := range fields {
		i.fields[f] = struct{}{}
	}
	return i, nil
}

func (i *Index) fieldsKey() string { return i.prefix + ":fields" }

func (i *Index) idKey(id string) string { return i.prefix + ":id:" + id }

func (i *Index) postingKey(field, valueKey string) string {
	return i.prefix + ":f:" + strconv.Itoa(len(field)) + ":" + field + ":" + valueKey
}

func (i *Index) Register(ctx context.Context, field string) error {
	if err := i.client.SAdd(ctx, i.fieldsKey(), field).Err(); err != nil {
		return fmt.Errorf("redis: failed to register %s: %w", field, err)
	}
	i.mu.Lock()
	i.fields[field] = struct{}{}
	i.mu.Unlock()
	return nil
}

// Fields returns the registered fields sorted by name.
func (i *Index) Fields() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]string, 0, len(i.fields))
	for f := range i.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (i *Index) registered(field string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.fields[field]
	return ok
}

func (i *Index) Put(ctx context.Context, id string, payload docvec.Payload) error {
	entries := make(map[string]any)
	for _, field := range i.Fields() {
		v, ok := payload[field]
		if !ok {
			continue
		}
		if key, ok := metadata.ValueKey(v); ok {
			entries[field] = key
		}
	}
	return i.replace(ctx, id, entries)
}

func (i *Index) Remove(ctx context.Context, id string) error {
	return i.replace(ctx, id, nil)
}

// replace swaps the postings of id for entries inside a WATCH/MULTI
// transaction on the id's reverse hash, retrying on concurrent change.
func (i *Index) replace(ctx context.Context, id string, entries map[string]any) error {
	rev := i.idKey(id)
	txf := func(tx *goredis.Tx) error {
		old, err := tx.HGetAll(ctx, rev).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for field, key := range old {
				pipe.SRem(ctx, i.postingKey(field, key), id)
			}
			pipe.Del(ctx, rev)
			if len(entries) == 0 {
				return nil
			}
			for field, key := range entries {
				pipe.SAdd(ctx, i.postingKey(field, key.(string)), id)
			}
			pipe.HSet(ctx, rev, entries)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := i.client.Watch(ctx, txf, rev)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis: failed to update %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("redis: failed to update %s: %w", id, goredis.TxFailedErr)
}

func (i *Index) Evaluate(ctx context.Context, filter docvec.Filter) (index.Set, error) {
	keys, err := metadata.FilterKeys(filter, i.registered)
	if err != nil {
		return nil, err
	}
	postings := make([]string, 0, len(keys))
	for field, key := range keys {
		postings = append(postings, i.postingKey(field, key))
	}
	ids, err := i.client.SInter(ctx, postings...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to evaluate filter: %w", err)
	}
	return index.NewSet(ids...), nil
}

// List returns the ids holding indexed values, found by scanning the reverse
// hashes of the collection.
func (i *Index) List(ctx context.Context) ([]string, error) {
	prefix := i.idKey("")
	iter := i.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 256).Iterator()
	var out []string
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: failed to scan %s: %w", prefix, err)
	}
	return out, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }

// Close is a no-op; the client is owned by the caller.
func (i *Index) Close() error { return nil }

var (
	_ metadata.Index  = (*Index)(nil)
	_ metadata.Lister = (*Index)(nil)
)
