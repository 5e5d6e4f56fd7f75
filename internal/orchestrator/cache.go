package orchestrator

import (
	"container/list"
	"sync"
	"time"

	"github.com/sells-group/profile-enricher/internal/model"
)

type cacheEntry struct {
	key      string
	resp     *model.ScrapeResponse
	storedAt time.Time
}

// responseCache is a bounded TTL cache of successful responses. When full it
// evicts the entry written longest ago.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	order   *list.List
	entries map[string]*list.Element
	hits    int64
	misses  int64
}

func newResponseCache(ttl time.Duration, maxEntries int) *responseCache {
	return &responseCache{
		ttl:     ttl,
		max:     maxEntries,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// get returns a copy of the cached response for key when it has not expired.
func (c *responseCache) get(key string, now time.Time) (*model.ScrapeResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if now.Sub(e.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.resp.Clone(), true
}

// set stores a copy of resp. Rewriting a key moves it to the back of the
// eviction order.
func (c *responseCache) set(key string, resp *model.ScrapeResponse, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, resp: resp.Clone(), storedAt: now})
	for c.order.Len() > c.max {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *responseCache) clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.order.Len()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	return n
}

// CacheStats reports cache occupancy and effectiveness.
type CacheStats struct {
	Enabled bool          `json:"enabled"`
	Entries int           `json:"entries"`
	Max     int           `json:"max_entries"`
	TTL     time.Duration `json:"ttl"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
}

func (c *responseCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries: c.order.Len(),
		Max:     c.max,
		TTL:     c.ttl,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
