package llmgateway

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/harun/conduit/pkg/llm"
)

// Clock returns the current time
type Clock func() time.Time

// Cache is a TTL response cache with least-recently-used eviction.
// Every operation holds the mutex, so a write is all-or-nothing per key.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clock    Clock
	items    map[string]*list.Element
	order    *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64
}

type cacheEntry struct {
	key       string
	value     *llm.Response
	expiresAt time.Time
}

// CacheStats is a point-in-time view of the cache
type CacheStats struct {
	Size       int     `json:"size"`
	Capacity   int     `json:"max_size"`
	TTLSeconds float64 `json:"ttl_seconds"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Evictions  int64   `json:"evictions"`
}

// NewCache creates a cache. A nil clock uses time.Now.
func NewCache(capacity int, ttl time.Duration, clock Clock) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns a copy of the cached response. An entry is a miss at or after its expiry.
func (c *Cache) Get(key string) (*llm.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if !c.clock().Before(entry.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.value.Clone(), true
}

// Set stores a copy of the response, evicting the least recently used entry on overflow
func (c *Cache) Set(key string, value *llm.Response) {
	if value == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock().Add(c.ttl)
	stored := value.Clone()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = stored
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&cacheEntry{key: key, value: stored, expiresAt: expiresAt})

	for len(c.items) > c.capacity {
		c.removeElement(c.order.Back())
		c.evictions++
	}
}

// Delete removes one key
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear drops every entry and returns how many were removed
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return n
}

// Len returns the number of stored entries, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// PurgeExpired removes expired entries and returns how many were removed
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*cacheEntry).expiresAt) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Stats returns cache counters
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Size:       len(c.items),
		Capacity:   c.capacity,
		TTLSeconds: c.ttl.Seconds(),
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}

func (c *Cache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.order.Remove(elem)
}

// cacheKeyInput holds every field that determines a response
type cacheKeyInput struct {
	Model       string         `json:"model"`
	Messages    []llm.Message  `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
	Tools       []llm.ToolSpec `json:"tools,omitempty"`
}

// CacheKey hashes the request fields that determine a response.
// encoding/json sorts map keys, so argument maps hash deterministically.
func CacheKey(model string, req llm.Request) (string, error) {
	data, err := json.Marshal(cacheKeyInput{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       req.Tools,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
