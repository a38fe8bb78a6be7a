package filter

import (
	"context"
	"time"

	"github.com/zjrosen/rankreg/internal/cachemanager"
	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
)

// DefaultCacheTTL bounds how long an unused compiled filter stays cached.
const DefaultCacheTTL = 10 * time.Minute

// Cache keeps compiled queries by source text.
type Cache struct {
	ttl     time.Duration
	queries *cachemanager.ReadThroughCache[string, *Query, string]
}

// NewCache creates a cache whose entries expire ttl after their last use.
// A non-positive ttl uses DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	store := cachemanager.NewInMemoryCacheManager[string, *Query]("filter", ttl, 2*ttl)
	return &Cache{
		ttl: ttl,
		queries: cachemanager.NewReadThroughCache[string, *Query, string](store,
			func(_ context.Context, text string) (*Query, error) {
				return Parse(text)
			}, false),
	}
}

// Parse returns the compiled query for text, compiling it on first use.
// Parse errors are not cached.
func (c *Cache) Parse(text string) (*Query, error) {
	return c.queries.GetWithRefresh(context.Background(), text, text, c.ttl)
}

// Lenient is Parse that logs a warning and matches nothing on malformed text.
func (c *Cache) Lenient(text string) handle.Filter {
	q, err := c.Parse(text)
	if err != nil {
		log.Warn(log.CatFilter, "malformed filter matches nothing", "filter", text, "error", err)
		return None
	}
	return q
}

// Stats returns cache hits and misses.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.queries.Stats()
}
