package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/models"
)

// cacheEntry wraps cached batch results with an absolute expiry.
type cacheEntry struct {
	Results   map[string]models.Result
	ExpiresAt time.Time
}

// Cache stores oracle batch results keyed by payload digest. Entries are
// evicted by the LRU on size pressure and lazily on read once expired.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, cacheEntry]
	ttl time.Duration

	hits   int64
	misses int64

	now    func() time.Time
	logger *logging.Logger
}

// NewCache creates a result cache sized and TTL'd from the rate limit
// configuration.
func NewCache(cfg config.RateLimitConfig) (*Cache, error) {
	l, err := lru.New[string, cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Cache{
		lru:    l,
		ttl:    cfg.CacheTTL(),
		now:    time.Now,
		logger: logging.GetLogger("ratelimit"),
	}, nil
}

// Get returns the cached results for key, or nil when absent or expired.
// Expired entries are removed on read.
func (c *Cache) Get(key string) map[string]models.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil
	}
	if c.now().After(entry.ExpiresAt) {
		c.lru.Remove(key)
		c.misses++
		c.logger.Debug("cache entry expired: %s", key[:12])
		return nil
	}
	c.hits++
	return entry.Results
}

// Put stores batch results under key for the configured TTL.
func (c *Cache) Put(key string, results map[string]models.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, cacheEntry{
		Results:   results,
		ExpiresAt: c.now().Add(c.ttl),
	})
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Stats returns current cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Entries: c.lru.Len(),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// BatchKey derives the cache key for a serialized batch payload. Callers
// must serialize the batch deterministically (device ids sorted) so that
// identical batches map to the same key.
func BatchKey(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
