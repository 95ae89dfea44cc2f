package aggregator

import (
	"math"
	"strconv"
	"sync"
	"time"
)

// Cache holds aggregated weather per grid cell until its TTL expires. It is safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     Weather
	expiresAt time.Time
}

func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

// GridKey rounds coordinates to precision decimals, e.g. "45.46:9.19".
func GridKey(lat, lng float64, precision int) string {
	p := math.Pow(10, float64(precision))
	rlat := math.Round(lat*p) / p
	rlng := math.Round(lng*p) / p
	return strconv.FormatFloat(rlat, 'f', -1, 64) + ":" + strconv.FormatFloat(rlng, 'f', -1, 64)
}

// Get returns a copy of the cached block; expired entries are evicted.
func (c *Cache) Get(key string) (Weather, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Weather{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return Weather{}, false
	}
	return e.value.clone(), true
}

func (c *Cache) Put(key string, w Weather) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: w.clone(), expiresAt: c.now().Add(c.ttl)}
}

// Len reports the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
