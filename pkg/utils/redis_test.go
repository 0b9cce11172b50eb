package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestOpenRedis_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	_ = rdb.Close()

	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestRunLock_ExclusiveUntilReleased(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	owner, err := AcquireRunLock(ctx, rdb, "lock:c1", time.Minute)
	if err != nil || owner == "" {
		t.Fatalf("expected lock, got %q %v", owner, err)
	}
	second, err := AcquireRunLock(ctx, rdb, "lock:c1", time.Minute)
	if err != nil || second != "" {
		t.Fatalf("expected lock to be held, got %q %v", second, err)
	}

	// A stale owner must not release someone else's lock.
	if err := ReleaseRunLock(ctx, rdb, "lock:c1", "not-the-owner"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if again, _ := AcquireRunLock(ctx, rdb, "lock:c1", time.Minute); again != "" {
		t.Fatalf("lock released by wrong owner")
	}

	if err := ReleaseRunLock(ctx, rdb, "lock:c1", owner); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if again, _ := AcquireRunLock(ctx, rdb, "lock:c1", time.Minute); again == "" {
		t.Fatalf("expected lock after release")
	}
}

func TestRunLock_Expires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	if owner, _ := AcquireRunLock(ctx, rdb, "lock:c2", time.Second); owner == "" {
		t.Fatalf("expected lock")
	}
	mr.FastForward(2 * time.Second)
	if owner, _ := AcquireRunLock(ctx, rdb, "lock:c2", time.Second); owner == "" {
		t.Fatalf("expected expired lock to be free")
	}
}

func TestRedisLocker_TryLock(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedisLocker(rdb, "run:", time.Minute)
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("expected lock, got %v %v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, "c1"); ok {
		t.Fatalf("expected second TryLock to fail")
	}
	unlock()
	if _, ok, _ := l.TryLock(ctx, "c1"); !ok {
		t.Fatalf("expected lock after unlock")
	}
}
