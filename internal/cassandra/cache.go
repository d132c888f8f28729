package cassandra

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// KnownKeyCache is the contract shared by the three index-suppression
// caches: serialized row keys, metric names, tag names.
//
// A miss on IsKnown must be treated as "must write through" — the cache
// never distinguishes absence from expiry. False negatives are safe
// (they cause a redundant index write); false positives are forbidden
// (they would silently drop an index row), so callers must call Insert
// only after the corresponding write has been submitted to the store.
type KnownKeyCache interface {
	IsKnown(key string) bool
	Insert(key string)
}

// lruKnownKeyCache is a concurrent, size-and-TTL bounded cache backed by
// an expirable LRU. The value carries no payload, only presence, so the
// cache is keyed on string with an empty-struct sentinel.
type lruKnownKeyCache struct {
	cache *expirable.LRU[string, struct{}]
}

// NewKnownKeyCache builds a KnownKeyCache bounded to size entries, each
// expiring after ttl. ttl should track the corresponding index row's TTL
// so a cache entry never outlives — or undershoots — what it's claiming
// to know about.
func NewKnownKeyCache(size int, ttl time.Duration) KnownKeyCache {
	return &lruKnownKeyCache{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (c *lruKnownKeyCache) IsKnown(key string) bool {
	_, ok := c.cache.Get(key)
	return ok
}

func (c *lruKnownKeyCache) Insert(key string) {
	c.cache.Add(key, struct{}{})
}

// noopKnownKeyCache always reports a miss, forcing every write through to
// the index. Useful when warm-up or a caller explicitly wants to bypass
// cache suppression.
type noopKnownKeyCache struct{}

// NewNoopKnownKeyCache returns a KnownKeyCache that never remembers
// anything it is told.
func NewNoopKnownKeyCache() KnownKeyCache { return noopKnownKeyCache{} }

func (noopKnownKeyCache) IsKnown(string) bool { return false }
func (noopKnownKeyCache) Insert(string)       {}

// Caches bundles the three independent known-key caches the write path
// consults: row keys, metric names, and tag names.
type Caches struct {
	RowKeys     KnownKeyCache
	MetricNames KnownKeyCache
	TagNames    KnownKeyCache
}

// NewCaches builds the three caches with a shared capacity and a TTL
// aligned to the index TTL in effect for the store.
func NewCaches(size int, ttl time.Duration) *Caches {
	return &Caches{
		RowKeys:     NewKnownKeyCache(size, ttl),
		MetricNames: NewKnownKeyCache(size, ttl),
		TagNames:    NewKnownKeyCache(size, ttl),
	}
}
