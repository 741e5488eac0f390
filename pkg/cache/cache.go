// Package cache provides byte caches for generated keycap artifacts.
//
// # Backends
//
//   - [FileCache]: entries as files under a directory, for the CLI
//   - [RedisCache]: a shared Redis instance, for the HTTP server
//   - [NullCache]: stores nothing, disables caching
//
// # Keys
//
// A [Keyer] derives keys from content hashes and the fully resolved
// generation parameters, so an entry can never be served for a different
// font, template or setting:
//
//	key := keyer.ArtifactKey(fontHash, templateHash, cache.ArtifactKeyOpts{
//	    Text: "5", SizeMm: 10, DepthMm: 0.8, Mode: "engrave",
//	})
//	if data, hit, _ := c.Get(ctx, key); hit {
//	    return data
//	}
package cache

import (
	"context"
	"time"
)

// Default time-to-live values.
const (
	// TTLArtifact is how long a generated STL stays cached.
	TTLArtifact = 7 * 24 * time.Hour
	// TTLFont is how long downloaded font bytes stay cached.
	TTLFont = 30 * 24 * time.Hour
)

// Cache stores opaque byte values under string keys.
//
// Get reports a miss as (nil, false, nil); errors are reserved for backend
// failures. A ttl of zero means no expiry. Implementations are safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Clearer is implemented by caches that can drop every entry.
type Clearer interface {
	Clear(ctx context.Context) error
}
