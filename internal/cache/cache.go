// Package cache provides a small in-process cache for completion-provider
// replies, keyed by a hash of the request.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// CachedResponse represents a cached provider reply.
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// Cache stores replies until they age out.
type Cache struct {
	entries sync.Map
	ttl     time.Duration
}

// New creates a Cache. A zero ttl disables expiry.
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Key generates a cache key from the request parts.
func Key(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached reply for key, if present and fresh.
func (c *Cache) Get(key string) (string, bool) {
	val, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	cached := val.(CachedResponse)
	if c.ttl > 0 && time.Since(cached.Timestamp) > c.ttl {
		c.entries.Delete(key)
		return "", false
	}
	return cached.Response, true
}

// Put stores a reply under key.
func (c *Cache) Put(key, response string) {
	c.entries.Store(key, CachedResponse{
		Response:  response,
		Timestamp: time.Now(),
	})
}
