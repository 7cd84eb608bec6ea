package secrets

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value   string
	expires time.Time
}

// cache holds resolved values until their TTL passes. A zero TTL disables it.
type cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newCache(ttl time.Duration, now func() time.Time) *cache {
	return &cache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

func (c *cache) get(name string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, name)
		return "", false
	}
	return e.value, true
}

func (c *cache) put(name, value string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[name] = cacheEntry{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *cache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
