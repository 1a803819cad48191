package redis

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/viant/docvec"
)

func TestPostingKey(t *testing.T) {
	i := &Index{prefix: "docvec:reviews"}
	a := i.postingKey("a:s", "s:x")
	b := i.postingKey("a", "s:s:x")
	if a == b {
		t.Fatalf("posting keys collide: %s", a)
	}
	if got := i.postingKey("sentiment", "s:positive"); got != "docvec:reviews:f:9:sentiment:s:positive" {
		t.Fatalf("postingKey = %s", got)
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob(`docvec:a*b?[c]\d:id:`); got != `docvec:a\*b\?\[c\]\\d:id:` {
		t.Fatalf("escapeGlob = %s", got)
	}
}

// TestIndex_Integration runs against a live server when DOCVEC_REDIS_ADDR is set.
func TestIndex_Integration(t *testing.T) {
	addr := os.Getenv("DOCVEC_REDIS_ADDR")
	if addr == "" {
		t.Skipf("DOCVEC_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	collection := "test-" + uuid.NewString()
	idx, err := New(ctx, client, "docvec:", collection)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		keys, _ := client.Keys(ctx, "docvec:"+collection+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	}()

	if err := idx.Register(ctx, "sentiment"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_ = idx.Register(ctx, "year")
	_ = idx.Put(ctx, "1", docvec.Payload{"sentiment": "positive", "year": 2020})
	_ = idx.Put(ctx, "2", docvec.Payload{"sentiment": "positive", "year": 2021.0})
	_ = idx.Put(ctx, "3", docvec.Payload{"sentiment": "negative", "year": 2020})

	got, err := idx.Evaluate(ctx, docvec.Filter{"sentiment": "positive", "year": 2020.0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(got) != 1 || !got.Has("1") {
		t.Fatalf("Evaluate = %v, want {1}", got)
	}

	_ = idx.Put(ctx, "1", docvec.Payload{"sentiment": "negative"})
	got, _ = idx.Evaluate(ctx, docvec.Filter{"sentiment": "positive"})
	if len(got) != 1 || !got.Has("2") {
		t.Fatalf("Evaluate after update = %v, want {2}", got)
	}
	_ = idx.Remove(ctx, "3")
	got, _ = idx.Evaluate(ctx, docvec.Filter{"sentiment": "negative"})
	if len(got) != 1 || !got.Has("1") {
		t.Fatalf("Evaluate after remove = %v, want {1}", got)
	}

	if _, err := idx.Evaluate(ctx, docvec.Filter{"genre": "drama"}); !errors.Is(err, docvec.ErrInvalidFilter) {
		t.Fatalf("unregistered field = %v, want ErrInvalidFilter", err)
	}

	listed, err := idx.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sort.Strings(listed)
	if strings.Join(listed, ",") != "1,2" {
		t.Fatalf("List = %v, want [1 2]", listed)
	}

	reopened, err := New(ctx, client, "docvec:", collection)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if f := reopened.Fields(); len(f) != 2 {
		t.Fatalf("reopened Fields = %v, want 2 fields", f)
	}
}
