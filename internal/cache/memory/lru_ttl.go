package memory

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type item[V any] struct {
	value     V
	size      int
	expiresAt time.Time
}

// LRUTTL bounds entries by count and, when maxBytes > 0, by summed size. Each
// entry expires on its own deadline; expired entries read as misses.
type LRUTTL[K comparable, V any] struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[K, item[V]]
	maxBytes   int
	totalBytes int
	defaultTTL time.Duration
	now        func() time.Time
}

// NewLRUTTL: defaultTTL applies to Set calls that pass ttl <= 0.
func NewLRUTTL[K comparable, V any](maxEntries int, maxBytes int, defaultTTL time.Duration) *LRUTTL[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	c := &LRUTTL[K, V]{maxBytes: maxBytes, defaultTTL: defaultTTL, now: time.Now}
	// size is positive so NewLRU cannot fail.
	c.lru, _ = simplelru.NewLRU[K, item[V]](maxEntries, func(_ K, it item[V]) {
		c.totalBytes -= it.size
	})
	return c
}

func (c *LRUTTL[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(it.expiresAt) {
		c.lru.Remove(key)
		return zero, false
	}
	return it.value, true
}

func (c *LRUTTL[K, V]) Set(key K, value V, sizeBytes int, ttl time.Duration) {
	if c == nil {
		return
	}
	if sizeBytes < 0 {
		sizeBytes = 0
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Replacing a key does not fire the eviction callback.
	if old, ok := c.lru.Peek(key); ok {
		c.totalBytes -= old.size
	}
	c.lru.Add(key, item[V]{value: value, size: sizeBytes, expiresAt: c.now().Add(ttl)})
	c.totalBytes += sizeBytes
	for c.maxBytes > 0 && c.totalBytes > c.maxBytes && c.lru.Len() > 1 {
		c.lru.RemoveOldest()
	}
}

func (c *LRUTTL[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

func (c *LRUTTL[K, V]) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.totalBytes = 0
}

// Len counts entries including expired ones not yet touched.
func (c *LRUTTL[K, V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
