package retrieval

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheKey is the hybrid-search cache key named in spec §4.3.4:
// (query, limit, agent_id, shared, project_path).
type CacheKey struct {
	Query       string
	Limit       int
	AgentID     string // empty means orchestrator (nil agent id)
	Shared      bool
	ProjectPath string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%d|%s|%t|%s", k.Query, k.Limit, k.AgentID, k.Shared, k.ProjectPath)
}

type cacheEntry struct {
	key       string
	results   []ScoredResult
	expiresAt time.Time
}

// ResultCache is an LRU cache with a TTL, capacity 100 by default (spec
// §4.3.4). A single mutex guards it; no blocking I/O ever happens under
// the lock (spec §5).
type ResultCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

// NewResultCache constructs a cache with the given TTL and capacity.
func NewResultCache(ttl time.Duration, capacity int) *ResultCache {
	return &ResultCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  map[string]*list.Element{},
		order:    list.New(),
	}
}

// Get returns a cached result list if present and unexpired.
func (c *ResultCache) Get(key CacheKey) ([]ScoredResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	el, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, k)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.results, true
}

// Put stores a result list, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *ResultCache) Put(key CacheKey, results []ScoredResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	if el, ok := c.entries[k]; ok {
		el.Value.(*cacheEntry).results = results
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: k, results: results, expiresAt: time.Now().Add(c.ttl)})
	c.entries[k] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Clear empties the cache — called whenever a learning is created/updated
// (spec §4.3.4).
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*list.Element{}
	c.order = list.New()
}
