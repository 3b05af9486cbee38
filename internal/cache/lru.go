package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats counts cache traffic since creation.
type Stats struct {
	Hits        int
	Misses      int
	Evictions   int
	Expirations int
}

// LRUCache keeps at most capacity live entries, and at most maxWeight total
// weight when a weigher is set. Entries expire ttl after their last Set.
type LRUCache[T any] struct {
	mu        sync.Mutex
	capacity  int
	maxWeight int
	weigh     func(T) int
	ttl       time.Duration
	now       func() time.Time

	entries map[string]*list.Element
	order   *list.List // front is most recently used
	weight  int
	stats   Stats
}

var _ Cache[[]byte] = (*LRUCache[[]byte])(nil)

type entry[T any] struct {
	key     string
	value   T
	weight  int
	expires time.Time
}

// NewLRUCache creates a cache bounded by entry count only.
func NewLRUCache[T any](capacity int, ttl time.Duration) *LRUCache[T] {
	return NewWeightedLRUCache[T](capacity, 0, ttl, nil)
}

// NewWeightedLRUCache creates a cache that also evicts once the summed weight
// of its entries exceeds maxWeight. A value heavier than maxWeight is not stored.
func NewWeightedLRUCache[T any](capacity, maxWeight int, ttl time.Duration, weigh func(T) int) *LRUCache[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache[T]{
		capacity:  capacity,
		maxWeight: maxWeight,
		weigh:     weigh,
		ttl:       ttl,
		now:       time.Now,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
	}
}

// ByteLen weighs byte slices by their length.
func ByteLen(b []byte) int { return len(b) }

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	e := el.Value.(*entry[T])
	if !c.now().Before(e.expires) {
		c.drop(el)
		c.stats.Expirations++
		c.stats.Misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := 0
	if c.weigh != nil {
		w = c.weigh(value)
	}
	if el, ok := c.entries[key]; ok {
		c.drop(el)
	}
	if c.maxWeight > 0 && w > c.maxWeight {
		return
	}

	c.entries[key] = c.order.PushFront(&entry[T]{key: key, value: value, weight: w, expires: c.now().Add(c.ttl)})
	c.weight += w
	for c.order.Len() > c.capacity || (c.maxWeight > 0 && c.weight > c.maxWeight) {
		c.drop(c.order.Back())
		c.stats.Evictions++
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.drop(el)
	}
}

func (c *LRUCache[T]) drop(el *list.Element) {
	e := c.order.Remove(el).(*entry[T])
	delete(c.entries, e.key)
	c.weight -= e.weight
}

// CleanExpired removes expired entries, walking from the least recently used end.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry[T]).expires) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	c.stats.Expirations += removed
	return removed
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Weight returns the summed weight of the live entries.
func (c *LRUCache[T]) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
