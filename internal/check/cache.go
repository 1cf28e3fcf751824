package check

import (
	"fmt"
	"sync"
	"time"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

// cacheEntry holds one tool's high-confidence patterns.
type cacheEntry struct {
	patterns  []*pattern.Pattern
	expiresAt time.Time
	createdAt time.Time

	// lastAccessed tracks LRU eviction (internal use only)
	lastAccessed time.Time
}

// patternCache is a thread-safe TTL cache with LRU eviction, keyed by
// (tool, min confidence). It keeps the per-call hot path off the store's
// writer lock; the store's invalidation hook clears it on every mutation,
// so staleness is bounded by one TTL period only when mutations come from
// outside the process.
type patternCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int
	metrics    *Metrics
}

func newPatternCache(ttl time.Duration, maxEntries int, metrics *Metrics) *patternCache {
	return &patternCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		metrics:    metrics,
	}
}

func cacheKey(tool string, minConfidence float64) string {
	return fmt.Sprintf("%s|%.4f", tool, minConfidence)
}

// get returns the cached patterns for a key, removing the entry when it has
// expired.
func (c *patternCache) get(key string) ([]*pattern.Pattern, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.metrics.RecordCacheMiss()
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.metrics.SetCacheSize(len(c.entries))
		c.mu.Unlock()

		c.metrics.RecordCacheMiss()
		return nil, false
	}

	c.mu.Lock()
	entry.lastAccessed = time.Now()
	c.mu.Unlock()

	c.metrics.RecordCacheHit()
	return entry.patterns, true
}

// set stores patterns for a key, evicting the least recently used entry at
// capacity.
func (c *patternCache) set(key string, patterns []*pattern.Pattern) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	c.entries[key] = &cacheEntry{
		patterns:     patterns,
		expiresAt:    now.Add(c.ttl),
		createdAt:    now,
		lastAccessed: now,
	}
	c.metrics.SetCacheSize(len(c.entries))
}

// clear removes all entries. Wired to the store's invalidation hook.
func (c *patternCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.metrics.SetCacheSize(0)
}

// evictLRU removes the least recently used entry. Caller must hold the
// write lock.
func (c *patternCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, entry := range c.entries {
		if first || entry.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessed
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
