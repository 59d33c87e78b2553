package structured

import (
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/zeebo/blake3"
)

// SchemaHash returns a stable hex digest of a schema. encoding/json sorts
// map keys, so equal schemas hash equally regardless of construction order.
func SchemaHash(schema map[string]any) string {
	b, err := json.Marshal(schema)
	if err != nil {
		b = []byte("invalid")
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

// SupportCache remembers whether native structured generation works for a
// task, model and schema. It is read-mostly and shared across concurrent
// calls; a race on first use may compute twice but never corrupts an entry.
type SupportCache struct {
	entries sync.Map
}

// NewSupportCache creates an empty cache.
func NewSupportCache() *SupportCache {
	return &SupportCache{}
}

// CacheKey builds the cache key for a task, model and schema.
func CacheKey(task, model string, schema map[string]any) string {
	return task + "|" + model + "|" + SchemaHash(schema)
}

// Supported returns the cached answer for key, computing it on first use.
func (c *SupportCache) Supported(key string, compute func() bool) bool {
	if v, ok := c.entries.Load(key); ok {
		return v.(bool)
	}
	actual, _ := c.entries.LoadOrStore(key, compute())
	return actual.(bool)
}

// MarkUnsupported records that the vendor rejected the constrained schema.
func (c *SupportCache) MarkUnsupported(key string) {
	c.entries.Store(key, false)
}

// Len returns the number of cached entries.
func (c *SupportCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Reset drops every entry.
func (c *SupportCache) Reset() {
	c.entries.Range(func(k, _ any) bool {
		c.entries.Delete(k)
		return true
	})
}
