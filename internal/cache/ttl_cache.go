package cache

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Limits applied to every cache
const (
	DefaultMaxEntries = 1000
	maxKeyLen         = 512
)

var (
	ErrInvalidKey    = errors.New("cache key is invalid")
	ErrValueTooLarge = errors.New("cache value exceeds maximum size")
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache is a bounded, mutex-guarded cache whose entries expire after ttl.
// When full, the oldest entry is evicted.
type TTLCache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	maxSize    int
	sizeOf     func(V) int
	now        func() time.Time
}

// Option configures a TTLCache
type Option[V any] func(*TTLCache[V])

// WithMaxEntries bounds the number of entries
func WithMaxEntries[V any](n int) Option[V] {
	return func(c *TTLCache[V]) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithMaxValueSize rejects values whose measured size exceeds limit
func WithMaxValueSize[V any](limit int, sizeOf func(V) int) Option[V] {
	return func(c *TTLCache[V]) {
		c.maxSize = limit
		c.sizeOf = sizeOf
	}
}

// WithClock overrides time.Now
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *TTLCache[V]) { c.now = now }
}

// New creates a cache with the given ttl
func New[V any](ttl time.Duration, opts ...Option[V]) *TTLCache[V] {
	c := &TTLCache[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func validateKey(key string) error {
	if key == "" || len(key) > maxKeyLen || strings.ContainsAny(key, "\x00\n\r") {
		return ErrInvalidKey
	}
	return nil
}

// Get returns the value for key if present and not expired
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	if validateKey(key) != nil {
		return zero, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}

	if c.now().Sub(e.storedAt) > c.ttl {
		c.mu.Lock()
		// re-check; a concurrent Set may have refreshed it
		if cur, still := c.entries[key]; still && cur.storedAt.Equal(e.storedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, evicting the oldest entry when full
func (c *TTLCache[V]) Set(key string, value V) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if c.sizeOf != nil && c.sizeOf(value) > c.maxSize {
		return ErrValueTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
	return nil
}

// evictOldest must be called with the lock held
func (c *TTLCache[V]) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, e := range c.entries {
		if first || e.storedAt.Before(oldest) {
			oldestKey, oldest, first = key, e.storedAt, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Invalidate removes key
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes every entry
func (c *TTLCache[V]) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
