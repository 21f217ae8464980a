// Package cache stores raw upstream responses keyed by canonical request
// URL. A parallel mock table replaces the live store entirely during tests.
package cache

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache is a TTL-bound response store. Keys are fully-qualified request
// URLs with sorted parameters, so equivalent requests collide on the same
// entry. Values are raw JSON; only successful responses are ever stored.
type Cache struct {
	c          *ristretto.Cache
	defaultTTL time.Duration
}

func New(maxCost int64, defaultTTL time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, defaultTTL: defaultTTL}, nil
}

func (c *Cache) Get(key string) (json.RawMessage, bool) {
	v, ok := c.c.Get(key)
	if !ok {
		return nil, false
	}
	raw, ok := v.(json.RawMessage)
	return raw, ok
}

// Set stores a value under key. ttl 0 applies the cache's default policy.
func (c *Cache) Set(key string, val json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.c.SetWithTTL(key, val, int64(len(val)), ttl)
}

func (c *Cache) Delete(key string) { c.c.Del(key) }

// Wait blocks until buffered writes are applied. Ristretto admits entries
// asynchronously; call this before reading back a value you just stored.
func (c *Cache) Wait() { c.c.Wait() }
