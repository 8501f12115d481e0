package embedding

import (
	"strings"
	"sync"
)

// Cache memoizes text -> vector by normalized key so repeated embeds of
// the same text never hit a backend twice. No eviction and no size bound:
// the store never deletes nodes, so the working set is the label corpus.
type Cache struct {
	mu      sync.RWMutex
	vectors map[string][]float64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{vectors: make(map[string][]float64)}
}

// Get returns the cached vector for text, keyed by normalized form.
func (c *Cache) Get(text string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.vectors[normalizeKey(text)]
	return vec, ok
}

// Put stores a vector under the text's normalized key.
func (c *Cache) Put(text string, vec []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[normalizeKey(text)] = vec
}

// Clear drops every cached vector.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors = make(map[string][]float64)
}

// Len reports the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

// normalizeKey is the cache key normalization: lowercase + trim.
func normalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
