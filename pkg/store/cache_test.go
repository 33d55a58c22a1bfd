package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(context.Background(), client)
	if _, ok := cache.(*RedisCache); !ok {
		t.Fatalf("expected redis cache, got %T", cache)
	}
	return cache, mr
}

func TestRedisCache(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := cache.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := cache.Get(ctx, "k"); err != nil || got != "v" {
		t.Fatalf("expected v, got %q err=%v", got, err)
	}

	ok, err := cache.SetNX(ctx, "k", "other", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected setnx refusal on existing key, got ok=%v err=%v", ok, err)
	}
	ok, err = cache.SetNX(ctx, "k2", "v2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected setnx success, got ok=%v err=%v", ok, err)
	}

	if err := cache.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}

	// TTL expiry.
	if err := cache.Set(ctx, "ttl", "v", time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := cache.Get(ctx, "ttl"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := cache.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := cache.Get(ctx, "k"); err != nil || got != "v" {
		t.Fatalf("expected v, got %q err=%v", got, err)
	}

	ok, _ := cache.SetNX(ctx, "k", "other", time.Minute)
	if ok {
		t.Fatal("expected setnx refusal on existing key")
	}
	ok, _ = cache.SetNX(ctx, "k2", "v2", time.Minute)
	if !ok {
		t.Fatal("expected setnx success on fresh key")
	}

	if err := cache.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()
	if err := cache.Set(ctx, "k", "v", -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
	// An expired key no longer blocks SetNX.
	if err := cache.Set(ctx, "k2", "v", -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok, _ := cache.SetNX(ctx, "k2", "v2", time.Minute); !ok {
		t.Fatal("expected setnx to succeed after expiry")
	}
}

func TestNewCacheFallsBack(t *testing.T) {
	ctx := context.Background()
	if _, ok := NewCache(ctx, nil).(*MemoryCache); !ok {
		t.Fatal("expected memory cache for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	if _, ok := NewCache(ctx, client).(*MemoryCache); !ok {
		t.Fatal("expected memory cache for unreachable redis")
	}
}
