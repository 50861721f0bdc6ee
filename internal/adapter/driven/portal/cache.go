package portal

import (
	"sync"
	"time"
)

type cacheEntry struct {
	body []byte
	// generation guards the eviction timer: a timer armed for an older
	// write must not evict a newer entry under the same key.
	generation uint64
}

// responseCache is an opt-in TTL cache for response bodies. Entries are
// evicted eagerly by a per-entry timer rather than lazily on read, so a
// flushed or expired entry never serves stale data and memory is
// reclaimed without traffic.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	nextGen uint64
}

func newResponseCache() *responseCache {
	return &responseCache{entries: map[string]cacheEntry{}}
}

// Get returns the cached body for key, if present. The returned slice
// is the caller's own copy; mutating it cannot poison later hits.
func (c *responseCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	body := make([]byte, len(entry.body))
	copy(body, entry.body)
	return body, true
}

// Set stores a copy of body under key for ttl. A non-positive ttl
// disables caching for the call entirely.
func (c *responseCache) Set(key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	stored := make([]byte, len(body))
	copy(stored, body)
	c.mu.Lock()
	c.nextGen++
	gen := c.nextGen
	c.entries[key] = cacheEntry{body: stored, generation: gen}
	c.mu.Unlock()

	time.AfterFunc(ttl, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if entry, ok := c.entries[key]; ok && entry.generation == gen {
			delete(c.entries, key)
		}
	})
}

// Flush drops every cached entry.
func (c *responseCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}

// Len returns the number of live entries.
func (c *responseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
