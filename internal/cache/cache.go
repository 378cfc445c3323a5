// package cache provides a size-bounded key/value store with per-entry expiry.
//
// Concurrent loads of the same missing key are merged, so a slow loader runs once per key no matter how many callers ask.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value for a key missing from the cache.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// Cache is a string-keyed LRU with a single TTL applied to every entry.
type Cache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group
}

// New creates a cache holding at most size entries, each expiring ttl after it was set.
//
// A zero ttl disables expiry. A size below one is treated as one.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size < 1 {
		size = 1
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the live value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Set stores value under key, replacing any previous entry and resetting its expiry.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Delete drops key.
func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// GetOrLoad returns the cached value for key, calling load on a miss.
//
// Failed loads are not cached. Callers that share an in-flight load all receive its result;
// a caller whose ctx ends first returns ctx.Err() without cancelling the load for the others.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := load(context.WithoutCancel(ctx), key)
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, fmt.Errorf("load %s: %w", key, res.Err)
		}
		return res.Val.(V), nil
	}
}
