package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockPerJob(t *testing.T) {
	store := newMemoryRedis()
	lock, err := NewRedisLock(store, "lock:cron:test", 10*time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "tracking-sync")
	if err != nil || !ok {
		t.Fatalf("expected first acquire, ok=%v err=%v", ok, err)
	}
	if store.ttls["lock:cron:test:tracking-sync"] != 10*time.Minute {
		t.Fatalf("unexpected ttl %v", store.ttls["lock:cron:test:tracking-sync"])
	}
	if ok, _ := lock.Acquire(ctx, "tracking-sync"); ok {
		t.Fatalf("expected second acquire of same job to fail")
	}
	if ok, _ := lock.Acquire(ctx, "outbox-retention"); !ok {
		t.Fatalf("expected other job to be lockable")
	}

	if err := lock.Release(ctx, "tracking-sync"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := store.values["lock:cron:test:tracking-sync"]; ok {
		t.Fatalf("expected key deleted")
	}
	if _, ok := store.values["lock:cron:test:outbox-retention"]; !ok {
		t.Fatalf("expected other job lock kept")
	}
}

func TestRedisLockReleaseKeepsForeignOwner(t *testing.T) {
	store := newMemoryRedis()
	lock, err := NewRedisLock(store, "lock:cron:test", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx, "job"); !ok {
		t.Fatalf("expected acquire")
	}
	if store.ttls["lock:cron:test:job"] != defaultLockTTL {
		t.Fatalf("expected default ttl")
	}

	store.values["lock:cron:test:job"] = "someone-else"
	if err := lock.Release(ctx, "job"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["lock:cron:test:job"] != "someone-else" {
		t.Fatalf("foreign lock must not be deleted")
	}
}

func TestRedisLockReleaseWithoutAcquire(t *testing.T) {
	lock, err := NewRedisLock(newMemoryRedis(), "lock:cron:test", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if err := lock.Release(context.Background(), "never"); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "p", time.Minute); err == nil {
		t.Fatalf("expected nil client error")
	}
	if _, err := NewRedisLock(newMemoryRedis(), "", time.Minute); err == nil {
		t.Fatalf("expected prefix error")
	}
}
