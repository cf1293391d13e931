package cache

import (
	"container/list"
	"sync"
	"time"

	"signalflow/models"
)

type entry struct {
	key      string
	decision *models.Decision
	exp      time.Time
}

// DecisionCache holds recent pipeline decisions keyed by
// channel+content+timestamp, so a duplicate or retried message inside the
// window is answered without re-invoking the model. Entries expire by TTL
// and the cache is bounded: the least recently used entry is evicted first.
type DecisionCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	ttl     time.Duration
	maxSize int
}

// New creates a decision cache
func New(ttl time.Duration, maxSize int) *DecisionCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DecisionCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns the cached decision for the key, if present and unexpired
func (c *DecisionCache) Get(key string) (*models.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.exp) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.decision, true
}

// Set stores a decision under the key, evicting the oldest entry when full
func (c *DecisionCache) Set(key string, decision *models.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.decision = decision
		e.exp = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}

	el := c.order.PushFront(&entry{
		key:      key,
		decision: decision,
		exp:      time.Now().Add(c.ttl),
	})
	c.entries[key] = el
}

// Len reports the number of live entries, expired ones included until read
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
