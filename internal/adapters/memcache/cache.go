package memcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/samirrijal/trackzone/internal/core/ports"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Cache implements ports.CacheService in process memory. It stands in for
// valkey when no server is reachable. Entries are evicted least recently used
// first and never outlive maxTTL, whatever TTL they were stored with.
type Cache struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

// New creates a cache holding at most size entries.
func New(size int, maxTTL time.Duration) *Cache {
	if size <= 0 {
		size = 1024
	}
	return &Cache{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

// Get returns a copy of the stored value, or ports.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.lru.Remove(key)
		return nil, ports.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value for ttlSeconds, capped by the cache's maxTTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	var expires time.Time
	if ttlSeconds > 0 {
		expires = c.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	c.lru.Add(key, entry{value: append([]byte(nil), value...), expires: expires})
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	return c.lru.Len()
}
