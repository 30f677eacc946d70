// Package gate provides the small scheduling-state primitives shared by the
// analyzers and the inference gateway: a TTL cache with oldest-first bulk
// eviction, a per-kind cooldown gate for noisy repeated alerts, a bounded
// FIFO history, and an enhancement task handle with an explicit state machine.
//
// TTLCache and Cooldown synchronize internally. History does not: each
// analyzer instance owns its histories exclusively and mutates them under its
// own lock.
package gate

import (
	"sort"
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value      V
	insertedAt time.Time
}

// TTLCache is a size-capped cache whose entries are valid while
// now − inserted_at < TTL. Expired entries are lazily evicted on lookup;
// when an insert pushes the cache past its cap, the oldest evictBatch
// entries are removed in bulk.
type TTLCache[K comparable, V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	evictBatch int
	entries    map[K]cacheEntry[V]
	now        func() time.Time
}

// NewTTLCache creates a cache holding at most maxEntries values.
// evictBatch entries are dropped oldest-first when the cap is exceeded;
// a batch of 0 defaults to half the cap.
func NewTTLCache[K comparable, V any](ttl time.Duration, maxEntries, evictBatch int) *TTLCache[K, V] {
	if evictBatch <= 0 {
		evictBatch = maxEntries / 2
		if evictBatch < 1 {
			evictBatch = 1
		}
	}
	return &TTLCache[K, V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		evictBatch: evictBatch,
		entries:    make(map[K]cacheEntry[V]),
		now:        time.Now,
	}
}

// SetClock overrides the cache's time source. Test use only.
func (c *TTLCache[K, V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached value for key when present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, evicting the oldest batch past the size cap.
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry[V]{value: value, insertedAt: c.now()}
	if len(c.entries) <= c.maxEntries {
		return
	}

	type aged struct {
		key K
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, at: e.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	n := c.evictBatch
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]cacheEntry[V])
}

// Cooldown gates repeated firings per kind: a kind may fire again only after
// the configured interval has elapsed since its last firing.
type Cooldown struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewCooldown creates a cooldown gate with the given minimum interval.
func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetClock overrides the gate's time source. Test use only.
func (c *Cooldown) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Allow reports whether kind may fire. Does not record a firing.
func (c *Cooldown) Allow(kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowLocked(kind)
}

func (c *Cooldown) allowLocked(kind string) bool {
	last, ok := c.last[kind]
	if !ok {
		return true
	}
	return c.now().Sub(last) > c.interval
}

// Fire records a firing of kind at the current time.
func (c *Cooldown) Fire(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[kind] = c.now()
}

// TryFire atomically checks and records: it returns true and records the
// firing when kind is allowed, and returns false without recording otherwise.
func (c *Cooldown) TryFire(kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.allowLocked(kind) {
		return false
	}
	c.last[kind] = c.now()
	return true
}

// History is a bounded FIFO sequence. The oldest entry is evicted when a push
// exceeds capacity. Not synchronized: owned and locked by its analyzer.
type History[T any] struct {
	capacity int
	items    []T
}

// NewHistory creates a history holding at most capacity entries.
func NewHistory[T any](capacity int) *History[T] {
	return &History[T]{capacity: capacity}
}

// Push appends v, evicting the oldest entry past capacity.
func (h *History[T]) Push(v T) {
	h.items = append(h.items, v)
	if len(h.items) > h.capacity {
		h.items = h.items[len(h.items)-h.capacity:]
	}
}

// Len returns the number of stored entries.
func (h *History[T]) Len() int { return len(h.items) }

// Values returns a copy of all entries, oldest first.
func (h *History[T]) Values() []T {
	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}

// Last returns a copy of the most recent n entries, oldest first.
func (h *History[T]) Last(n int) []T {
	if n > len(h.items) {
		n = len(h.items)
	}
	out := make([]T, n)
	copy(out, h.items[len(h.items)-n:])
	return out
}
