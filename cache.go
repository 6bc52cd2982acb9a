package main

import (
	"sync"
	"time"
)

// ContentCache provides thread-safe caching for extracted page content,
// keyed by URL.
type ContentCache struct {
	mu      sync.RWMutex
	entries map[string]contentEntry
	ttl     time.Duration
}

type contentEntry struct {
	content   string
	fetchedAt time.Time
}

// NewContentCache creates a new content cache with the specified TTL
func NewContentCache(ttl time.Duration) *ContentCache {
	return &ContentCache{
		entries: make(map[string]contentEntry),
		ttl:     ttl,
	}
}

// Get retrieves cached content for a URL if present and not expired.
// Returns the content and a boolean indicating a cache hit.
func (c *ContentCache) Get(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[url]
	if !ok {
		return "", false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		return "", false
	}

	return entry.content, true
}

// Set stores content for a URL
func (c *ContentCache) Set(url string, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[url] = contentEntry{
		content:   content,
		fetchedAt: time.Now(),
	}
}

// Clear removes all entries from the cache
func (c *ContentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]contentEntry)
}

// Size returns the number of entries in the cache, expired ones included
func (c *ContentCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
