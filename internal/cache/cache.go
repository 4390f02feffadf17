// Package cache keeps short-lived counters such as the pending-returns
// badge so the register UI can poll without hitting the database.
package cache

import (
	"context"
	"sync"
	"time"
)

// Keys used by the workflows.
const (
	KeyPendingReturns     = "pos:returns:pending:count"
	KeyPendingAdjustments = "pos:adjustments:pending:count"
)

// CountCache stores integer counters with a TTL.
type CountCache interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Incr atomically adds one to a counter that never expires and
	// returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}

// NoopCountCache never hits.
type NoopCountCache struct{}

func (NoopCountCache) Get(_ context.Context, _ string) (int64, bool, error) {
	return 0, false, nil
}

func (NoopCountCache) Set(_ context.Context, _ string, _ int64, _ time.Duration) error {
	return nil
}

func (NoopCountCache) Delete(_ context.Context, _ ...string) error {
	return nil
}

func (NoopCountCache) Incr(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

type memoryEntry struct {
	value     int64
	expiresAt time.Time // zero for counters bumped with Incr
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCountCache is a process-local CountCache for single-instance
// deployments.
type MemoryCountCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCountCache() *MemoryCountCache {
	return &MemoryCountCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCountCache) Get(_ context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false, nil
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return 0, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCountCache) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemoryCountCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *MemoryCountCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key]
	if e.expired(c.now()) {
		e = memoryEntry{}
	}
	e.value++
	e.expiresAt = time.Time{}
	c.entries[key] = e
	return e.value, nil
}
