// Package cache provides in-process TTL caches for immutable reference data.
//
// Expiry is lazy: entries are checked on access and recomputed on miss.
// Concurrent misses for the same key may compute the value more than once;
// the last writer wins and no reader ever observes a partially stored entry.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache memoizes values by a single comparable key.
type Cache[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[K]entry[V]
}

// New creates a Cache whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[K]entry[V]),
	}
}

// Get returns the cached value for key, calling compute on a miss or after
// expiry. Errors from compute are returned and never cached.
func (c *Cache[K, V]) Get(key K, compute func() (V, error)) (V, error) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.value, nil
	}

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = entry[V]{value: v, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return v, nil
}

// Len returns the number of stored entries, including expired ones not yet
// replaced.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// SetClock replaces the time source. Intended for tests.
func (c *Cache[K, V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

type pair[K1, K2 comparable] struct {
	a K1
	b K2
}

// Cache2 memoizes values by a two-part composite key.
type Cache2[K1, K2 comparable, V any] struct {
	inner *Cache[pair[K1, K2], V]
}

// New2 creates a Cache2 whose entries live for ttl.
func New2[K1, K2 comparable, V any](ttl time.Duration) *Cache2[K1, K2, V] {
	return &Cache2[K1, K2, V]{inner: New[pair[K1, K2], V](ttl)}
}

// Get returns the cached value for (k1, k2), calling compute on a miss.
func (c *Cache2[K1, K2, V]) Get(k1 K1, k2 K2, compute func() (V, error)) (V, error) {
	return c.inner.Get(pair[K1, K2]{a: k1, b: k2}, compute)
}

// Purge drops every entry.
func (c *Cache2[K1, K2, V]) Purge() { c.inner.Purge() }

// SetClock replaces the time source. Intended for tests.
func (c *Cache2[K1, K2, V]) SetClock(now func() time.Time) { c.inner.SetClock(now) }

// Value memoizes a single keyless value.
type Value[V any] struct {
	inner *Cache[struct{}, V]
}

// NewValue creates a Value that is recomputed after ttl.
func NewValue[V any](ttl time.Duration) *Value[V] {
	return &Value[V]{inner: New[struct{}, V](ttl)}
}

// Get returns the cached value, calling compute on a miss.
func (c *Value[V]) Get(compute func() (V, error)) (V, error) {
	return c.inner.Get(struct{}{}, compute)
}

// Purge drops the stored value.
func (c *Value[V]) Purge() { c.inner.Purge() }

// SetClock replaces the time source. Intended for tests.
func (c *Value[V]) SetClock(now func() time.Time) { c.inner.SetClock(now) }
