package respcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T, cfg RedisConfig) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg.URL = "redis://" + mr.Addr()
	store, err := NewRedisStore(cfg)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStoreInvalidURL(t *testing.T) {
	if _, err := NewRedisStore(RedisConfig{URL: "not-a-redis-url"}); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{})
	ctx := context.Background()

	// A miss maps redis.Nil onto (ok=false, nil error).
	if _, ok, err := store.Lookup(ctx, "fp-1"); err != nil || ok {
		t.Fatalf("Lookup on empty store = ok=%v err=%v, want clean miss", ok, err)
	}

	text := "hello world, this is a long enough answer"
	if err := store.Store(ctx, "fp-1", text); err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	got, ok, err := store.Lookup(ctx, "fp-1")
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if !ok || got != text {
		t.Errorf("Lookup() = %q, ok=%v, want %q", got, ok, text)
	}

	// Entries live under the configured prefix with the configured TTL.
	key := DefaultRedisKeyPrefix + "fp-1"
	if !mr.Exists(key) {
		t.Fatalf("expected key %q in redis", key)
	}
	if ttl := mr.TTL(key); ttl != DefaultRedisTTL {
		t.Errorf("TTL = %v, want %v", ttl, DefaultRedisTTL)
	}
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{TTL: time.Minute})
	ctx := context.Background()

	store.Store(ctx, "fp-1", "short-lived cached answer")
	mr.FastForward(time.Minute + time.Second)

	if _, ok, _ := store.Lookup(ctx, "fp-1"); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newTestRedisStore(t, RedisConfig{})
	ctx := context.Background()

	store.Store(ctx, "fp-1", "first cached answer text")
	if err := store.Delete(ctx, "fp-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, ok, _ := store.Lookup(ctx, "fp-1"); ok {
		t.Error("entry survived Delete")
	}
	if err := store.Delete(ctx, "fp-missing"); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
}

func TestRedisStoreFlushScopedToPrefix(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{})
	ctx := context.Background()

	store.Store(ctx, "fp-1", "first cached answer text")
	store.Store(ctx, "fp-2", "second cached answer text")
	// A foreign key sharing the database must survive the flush.
	if err := mr.Set("other-service:key", "untouched"); err != nil {
		t.Fatalf("failed to seed foreign key: %v", err)
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	if _, ok, _ := store.Lookup(ctx, "fp-1"); ok {
		t.Error("fp-1 survived Flush")
	}
	if _, ok, _ := store.Lookup(ctx, "fp-2"); ok {
		t.Error("fp-2 survived Flush")
	}
	if !mr.Exists("other-service:key") {
		t.Error("Flush removed a key outside the prefix")
	}
}
