package config

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/keyforge/pkg/atlas"
	"github.com/matzehuels/keyforge/pkg/cache"
	"github.com/matzehuels/keyforge/pkg/fontstore"
	"github.com/matzehuels/keyforge/pkg/httputil"
	"github.com/matzehuels/keyforge/pkg/pipeline"
)

// OpenCache opens the configured artifact cache. A file cache without a
// directory uses [CacheDir].
func (c Config) OpenCache(ctx context.Context) (cache.Cache, error) {
	switch c.Cache.Backend {
	case CacheNone:
		return cache.NewNullCache(), nil
	case CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
			Prefix:   c.Cache.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		dir := c.Cache.Dir
		if dir == "" {
			d, err := CacheDir()
			if err != nil {
				return cache.NewNullCache(), nil
			}
			dir = d
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, err
		}
		return fc, nil
	}
}

// Keyer returns the cache key scheme, scoped by Cache.Namespace when set.
func (c Config) Keyer() cache.Keyer {
	if c.Cache.Namespace == "" {
		return cache.NewDefaultKeyer()
	}
	return cache.NewScopedKeyer(nil, c.Cache.Namespace+":")
}

// Services are the long-lived collaborators built from a Config.
type Services struct {
	Cache    cache.Cache
	Files    *fontstore.FileStore
	Mongo    *fontstore.MongoStore
	Resolver *fontstore.Resolver
	Runner   *pipeline.Runner
}

// Uploads returns the store new fonts are written to: MongoDB when
// configured, the font directory otherwise.
func (s *Services) Uploads() fontstore.Store {
	if s.Mongo != nil {
		return s.Mongo
	}
	return s.Files
}

// Close releases the cache and database connections.
func (s *Services) Close(ctx context.Context) error {
	var first error
	if s.Mongo != nil {
		first = s.Mongo.Close(ctx)
	}
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open builds the cache, font stores and pipeline runner.
func (c Config) Open(ctx context.Context, logger *log.Logger, noCache bool) (*Services, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	svc := &Services{}

	var err error
	if noCache {
		svc.Cache = cache.NewNullCache()
	} else if svc.Cache, err = c.OpenCache(ctx); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	if svc.Files, err = fontstore.NewFileStore(c.Fonts.Dir); err != nil {
		svc.Close(ctx)
		return nil, fmt.Errorf("open font dir: %w", err)
	}
	stores := []fontstore.Store{svc.Files}
	if c.Fonts.MongoURI != "" {
		svc.Mongo, err = fontstore.NewMongoStore(ctx, fontstore.MongoConfig{
			URI:      c.Fonts.MongoURI,
			Database: c.Fonts.MongoDatabase,
		})
		if err != nil {
			svc.Close(ctx)
			return nil, fmt.Errorf("open font database: %w", err)
		}
		stores = append([]fontstore.Store{svc.Mongo}, stores...)
	}

	var fetcher fontstore.Fetcher
	if c.Fonts.AllowURLs {
		fetcher = httputil.NewClient(svc.Cache, c.Keyer())
	}
	svc.Resolver = fontstore.NewResolver(fetcher, stores...)

	runner := pipeline.NewRunner(svc.Cache, c.Keyer(), logger)
	runner.Fonts = svc.Resolver
	runner.Workers = c.Workers
	runner.ItemTimeout = c.ItemTimeout
	runner.Bounds = c.Bounds
	if runner.Atlas, err = atlas.NewCache(c.FontCacheSize); err != nil {
		svc.Close(ctx)
		return nil, fmt.Errorf("font cache: %w", err)
	}
	svc.Runner = runner

	logger.Debug("opened services",
		"cache", c.Cache.Backend,
		"font_dir", svc.Files.Path(),
		"mongo", svc.Mongo != nil,
		"workers", c.Workers)
	return svc, nil
}
