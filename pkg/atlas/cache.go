package atlas

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/keyforge/pkg/cache"
	"github.com/matzehuels/keyforge/pkg/errors"
)

// DefaultCacheSize is the number of parsed fonts kept by [NewCache] when
// no size is given.
const DefaultCacheSize = 16

// Stats are cumulative counters of a [Cache].
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// Cache keeps parsed fonts keyed by content hash, evicting the least
// recently used. Concurrent loads of the same bytes parse once; every
// caller receives the same *Font.
type Cache struct {
	fonts *lru.Cache[string, *Font]
	group singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewCache creates a cache holding up to size fonts.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c := &Cache{}
	fonts, err := lru.NewWithEvict(size, func(string, *Font) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.fonts = fonts
	return c, nil
}

// Load returns the parsed font for data, parsing it only if no font with
// the same content hash is cached.
func (c *Cache) Load(ctx context.Context, data []byte) (*Font, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeTimeout, err, "load font")
	}
	key := cache.Hash(data)
	if f, ok := c.fonts.Get(key); ok {
		c.hits.Add(1)
		return f, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if f, ok := c.fonts.Get(key); ok {
			c.hits.Add(1)
			return f, nil
		}
		c.misses.Add(1)
		f, err := Load(data)
		if err != nil {
			return nil, err
		}
		c.fonts.Add(key, f)
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Font), nil
}

// Get returns a cached font by content hash.
func (c *Cache) Get(hash string) (*Font, bool) {
	return c.fonts.Get(hash)
}

// Purge drops every cached font.
func (c *Cache) Purge() {
	c.fonts.Purge()
}

// Stats returns the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.fonts.Len(),
	}
}
