// ABOUTME: Thread-safe TTL cache of operator request ids, scoped per turtle.
// ABOUTME: Lets ingestion acknowledge retried instructions without re-queueing them.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Default window and size used by the gateway.
const (
	DefaultTTL     = 10 * time.Minute
	DefaultMaxSize = 10000
)

type key struct {
	turtleID  int
	requestID string
}

type entry struct {
	key  key
	seen time.Time
}

// Cache remembers recently seen request ids. Entries are kept in insertion
// order; since every entry shares one TTL, expired entries are always at
// the front and are swept on each write.
type Cache struct {
	mu      sync.Mutex
	index   map[key]*list.Element
	order   *list.List // of *entry, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache. Non-positive arguments use the defaults.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		index:   make(map[key]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether the request id was recorded for the turtle within
// the window, without recording it.
func (c *Cache) Seen(turtleID int, requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key{turtleID, requestID}]
	if !ok {
		return false
	}
	return c.now().Sub(elem.Value.(*entry).seen) < c.ttl
}

// CheckAndMark atomically checks whether the request id is a duplicate and
// records it if not. Returns true for duplicates. An empty request id is
// never a duplicate and is not recorded.
func (c *Cache) CheckAndMark(turtleID int, requestID string) bool {
	if requestID == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	k := key{turtleID, requestID}
	if _, ok := c.index[k]; ok {
		return true
	}

	if c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[k] = c.order.PushBack(&entry{key: k, seen: now})
	return false
}

// Forget removes a request id, e.g. when queueing it failed and a retry
// should be allowed.
func (c *Cache) Forget(turtleID int, requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key{turtleID, requestID}]; ok {
		c.removeLocked(elem)
	}
}

// Len returns the number of remembered request ids, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) sweepLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		if now.Sub(front.Value.(*entry).seen) < c.ttl {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.index, elem.Value.(*entry).key)
}
