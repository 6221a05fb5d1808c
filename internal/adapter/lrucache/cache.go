// Package lrucache provides the in-process query cache used by command handlers.
package lrucache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// Compile-time check: Cache implements domain.QueryCache.
var _ domain.QueryCache = (*Cache)(nil)

// Cache is a size-bounded LRU whose entries expire after a fixed TTL.
type Cache struct {
	lru *expirable.LRU[string, any]
}

// New creates a cache holding at most size entries, each for ttl.
// A size of zero means unbounded; a ttl of zero disables expiry.
func New(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, any](size, nil, ttl)}
}

func (c *Cache) Get(key string) (any, bool) {
	return c.lru.Get(key)
}

func (c *Cache) Add(key string, value any) {
	c.lru.Add(key, value)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
