package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient() error = %v", err)
	}
	t.Cleanup(func() {
		_ = rc.Close()
	})
	return rc
}

func TestRedisCache_SetGet(t *testing.T) {
	rc := newTestRedisCache(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "problem:1", "payload", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := rc.Get(ctx, "problem:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "payload" {
		t.Fatalf("Get() = %q, want %q", got, "payload")
	}
}

func TestRedisCache_GetMissReturnsEmpty(t *testing.T) {
	rc := newTestRedisCache(t)
	got, err := rc.Get(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "" {
		t.Fatalf("Get() = %q, want empty string for a cache miss", got)
	}
}

func TestRedisCache_Del(t *testing.T) {
	rc := newTestRedisCache(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "submission:1", "queued", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := rc.Del(ctx, "submission:1"); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	n, err := rc.Exists(ctx, "submission:1")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("Exists() = %d, want 0 after Del", n)
	}
}

func TestRedisCache_TryLockUnlock(t *testing.T) {
	rc := newTestRedisCache(t)
	ctx := context.Background()

	ok, err := rc.TryLock(ctx, "lock:problem:1", time.Minute)
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if !ok {
		t.Fatal("TryLock() = false, want true on first acquire")
	}

	ok, err = rc.TryLock(ctx, "lock:problem:1", time.Minute)
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if ok {
		t.Fatal("TryLock() = true, want false while already held")
	}

	if err := rc.Unlock(ctx, "lock:problem:1"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	ok, err = rc.TryLock(ctx, "lock:problem:1", time.Minute)
	if err != nil {
		t.Fatalf("TryLock() after Unlock() error = %v", err)
	}
	if !ok {
		t.Fatal("TryLock() = false, want true after Unlock")
	}
}

func TestRedisCache_Ping(t *testing.T) {
	rc := newTestRedisCache(t)
	if err := rc.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
