package cache

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Counter caches a count that is recomputed from the database on a miss.
// Every change to the counted rows must be followed by Invalidate.
//
// Values are stored in one slot per generation (key:<gen>). Invalidate bumps
// the generation, and Get fills the slot of the generation it read before
// loading, so a fill that raced a change lands in a slot nobody reads.
type Counter struct {
	Cache  CountCache
	Key    string
	TTL    time.Duration
	Logger *zap.Logger
}

func (c Counter) generationKey() string { return c.Key + ":gen" }

func (c Counter) slot(gen int64) string { return c.Key + ":" + strconv.FormatInt(gen, 10) }

// Get returns the cached count or calls load and caches its result. Cache
// failures fall back to load and are only logged.
func (c Counter) Get(ctx context.Context, load func(context.Context) (int64, error)) (int64, error) {
	gen, _, err := c.Cache.Get(ctx, c.generationKey())
	if err != nil {
		c.warn("Count cache read failed", err)
		return load(ctx)
	}

	slot := c.slot(gen)
	if n, ok, err := c.Cache.Get(ctx, slot); err != nil {
		c.warn("Count cache read failed", err)
	} else if ok {
		return n, nil
	}

	n, err := load(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.Cache.Set(ctx, slot, n, c.TTL); err != nil {
		c.warn("Count cache write failed", err)
	}
	return n, nil
}

// Invalidate moves the counter to a new generation and drops the old slot.
func (c Counter) Invalidate(ctx context.Context) error {
	gen, err := c.Cache.Incr(ctx, c.generationKey())
	if err != nil {
		return err
	}
	return c.Cache.Delete(ctx, c.slot(gen-1))
}

func (c Counter) warn(msg string, err error) {
	if c.Logger != nil {
		c.Logger.Warn(msg, zap.String("key", c.Key), zap.Error(err))
	}
}
