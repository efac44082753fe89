// Package cache provides a small bounded string cache with drop-oldest
// eviction. Retrieval correctness never depends on a hit, so eviction
// does not need strict LRU precision.
package cache

import (
	"container/list"
	"sync"
)

type Bounded struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]string
	order    *list.List
}

func NewBounded(capacity int) *Bounded {
	if capacity <= 0 {
		capacity = 128
	}
	return &Bounded{
		capacity: capacity,
		entries:  make(map[string]string, capacity),
		order:    list.New(),
	}
}

func (c *Bounded) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *Bounded) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = value
		return
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(string))
	}

	c.entries[key] = value
	c.order.PushBack(key)
}

func (c *Bounded) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
