// Package cache holds a small in-process TTL map used on the unauthenticated
// signer path, where every request carries an attacker-controlled token.
package cache

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Cache is a minimal TTL lookup. Entries expire lazily on read.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
}

// NewSignerLinkCache resolves signer link tokens to package ids. A cached
// zero id marks a token known not to exist, so enumeration probes stop
// reaching the database.
func NewSignerLinkCache() Cache[string, snowflake.ID] {
	return NewTTLCache[string, snowflake.ID]()
}

// TTLCache is a mutex-guarded map with per-entry deadlines.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
}

type entry[V any] struct {
	value    V
	deadline int64
}

func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return &TTLCache[K, V]{entries: make(map[K]entry[V])}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if e.deadline > 0 && time.Now().UnixNano() > e.deadline {
		c.Delete(key)
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	var deadline int64
	if ttl > 0 {
		deadline = time.Now().Add(ttl).UnixNano()
	}

	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, deadline: deadline}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
