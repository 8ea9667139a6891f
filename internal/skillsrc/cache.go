// Package skillsrc imports skill definitions from a local file or a
// GitHub URL: a markdown document with a YAML frontmatter block holding
// the skill's metadata and a body that becomes its system prompt.
package skillsrc

import (
	"sync"
	"time"
)

type cacheEntry struct {
	content   string
	fetchedAt time.Time
}

// Cache is a thread-safe in-memory cache with TTL expiration. Expired
// entries are cleaned up lazily on Get — no background goroutine.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

// Get returns cached content if present and not expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false
	}
	return entry.content, true
}

// Set stores content under key with the current timestamp.
func (c *Cache) Set(key, content string) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry{content: content, fetchedAt: time.Now()}
	c.mu.Unlock()
}
