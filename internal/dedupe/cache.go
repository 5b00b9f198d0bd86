// ABOUTME: Thread-safe TTL + LRU cache answering "have we seen this key recently?".
// ABOUTME: Used by the gateway for request idempotency keys and replayed network events.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used by the gateway when no explicit window is configured.
const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 1000
)

// cleanupInterval bounds how long expired entries may keep occupying slots
// when no Check calls arrive to prune them.
const cleanupInterval = time.Minute

// cacheEntry stores the last-seen timestamp and list element for a cached key.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited set of recently seen keys.
// Keys are kept in recency order (least recently seen at the front of the
// list) so eviction and pruning are O(1) per removed entry.
//
// A Cache with maxSize <= 0 is disabled: it never remembers anything and
// Check always reports false. A Cache with ttl <= 0 never expires entries by
// time; only capacity evicts them.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// New creates a dedupe cache with the given window and capacity. When ttl is
// positive a background goroutine periodically drops expired entries; call
// Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if ttl > 0 && maxSize > 0 {
		go c.cleanup()
	}
	return c
}

// Check reports whether key was seen within the TTL window. Either way the
// key is recorded (or refreshed) at the current time and becomes the most
// recently used entry. An empty key is never stored and always reports false.
func (c *Cache) Check(key string) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.seen[key]
	duplicate := ok && (c.ttl <= 0 || now.Sub(entry.timestamp) < c.ttl)

	c.touchLocked(key, now)
	c.pruneLocked(now)
	return duplicate
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Size returns the number of entries currently held, including expired
// entries that have not been pruned yet.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// touchLocked records key at now and moves it to the most recently used
// position. Must be called with mu held.
func (c *Cache) touchLocked(key string, now time.Time) {
	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}
	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{timestamp: now, element: elem}
}

// pruneLocked drops expired entries, then evicts least recently used entries
// until the cache is within capacity. Must be called with mu held.
func (c *Cache) pruneLocked(now time.Time) {
	if c.maxSize <= 0 {
		c.clearLocked()
		return
	}

	if c.ttl > 0 {
		cutoff := now.Add(-c.ttl)
		for front := c.order.Front(); front != nil; front = c.order.Front() {
			key, _ := front.Value.(string)
			if !c.seen[key].timestamp.Before(cutoff) {
				break
			}
			c.removeLocked(front, key)
		}
	}

	for len(c.seen) > c.maxSize {
		front := c.order.Front()
		if front == nil {
			return
		}
		key, _ := front.Value.(string)
		c.removeLocked(front, key)
	}
}

func (c *Cache) removeLocked(elem *list.Element, key string) {
	c.order.Remove(elem)
	delete(c.seen, key)
}

func (c *Cache) clearLocked() {
	if len(c.seen) == 0 {
		return
	}
	c.seen = make(map[string]*cacheEntry)
	c.order.Init()
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup prunes the cache as of the current time.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(c.now())
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
