package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
)

// normalizeQuery lowercases and collapses whitespace.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// cacheKey returns SHA-256 hex of the normalized query for cache lookup.
func cacheKey(normalized string) string {
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// cache is a bounded in-memory result cache with first-in eviction.
type cache struct {
	mu    sync.Mutex
	size  int
	order []string
	items map[string]*Place
}

func newCache(size int) *cache {
	return &cache{size: size, items: make(map[string]*Place)}
}

func (c *cache) get(key string) (*Place, bool) {
	if c == nil || c.size <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[key]
	return p, ok
}

func (c *cache) put(key string, p *Place) {
	if c == nil || c.size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	cp := *p
	c.items[key] = &cp
	for len(c.order) > c.size {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
}

func (c *cache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
