// Package cache implements the bounded block_index -> block_descriptor
// mapping: a fixed-capacity LRU with on-miss materialization and no
// negative caching. Locking is the caller's responsibility (the
// image's single sync.RWMutex guards it); this type is not safe for
// concurrent use on its own.
package cache

import (
	"github.com/golang/groupcache/lru"

	"github.com/libyal/go-vhdi/internal/block"
)

// MaxEntries mirrors LIBVHDI_MAXIMUM_CACHE_ENTRIES_BLOCK_DESCRIPTORS: a
// source-defined constant, not a tunable part of the on-disk format.
const MaxEntries = 16

// Resolver materializes the descriptor for a block index on a cache miss.
type Resolver func(blockIndex int64) (*block.Descriptor, error)

// Cache bounds memory use for per-image block descriptors.
type Cache struct {
	lru *lru.Cache
}

// New returns an empty cache with capacity MaxEntries.
func New() *Cache {
	return &Cache{lru: lru.New(MaxEntries)}
}

// Get resolves blockIndex, consulting the cache first and falling
// through to resolve on a miss. A resolution failure is never cached
// (no negative caching): the next call retries resolve.
func (c *Cache) Get(blockIndex int64, resolve Resolver) (*block.Descriptor, error) {
	if v, ok := c.lru.Get(blockIndex); ok {
		return v.(*block.Descriptor), nil
	}

	d, err := resolve(blockIndex)
	if err != nil {
		return nil, err
	}
	c.lru.Add(blockIndex, d)
	return d, nil
}

// Len reports the number of descriptors currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
