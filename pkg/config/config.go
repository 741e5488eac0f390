// Package config loads keyforge settings from a TOML file.
//
// Every setting has a default, so a missing file is not an error. The CLI
// reads $XDG_CONFIG_HOME/keyforge/config.toml (or --config) and lets flags
// override individual values.
//
//	machine = "ep133"
//	workers = 4
//	item_timeout = "10s"
//
//	[defaults]
//	size_mm = 10
//	depth_mm = 0.8
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//
//	[fonts]
//	dir = "~/fonts"
//	mongo_uri = "mongodb://localhost:27017"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/pipeline"
	"github.com/matzehuels/keyforge/pkg/template"
)

// AppName names the config and cache directories.
const AppName = "keyforge"

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// ValidCacheBackends is the set of supported cache backends.
var ValidCacheBackends = map[string]bool{
	CacheFile:  true,
	CacheRedis: true,
	CacheNone:  true,
}

// Config holds every setting.
type Config struct {
	Machine       string            `toml:"machine"`
	Font          string            `toml:"font"`
	Workers       int               `toml:"workers"`
	ItemTimeout   time.Duration     `toml:"item_timeout"`
	BatchTimeout  time.Duration     `toml:"batch_timeout"`
	FontCacheSize int               `toml:"font_cache_size"`
	Defaults      pipeline.Defaults `toml:"defaults"`
	Bounds        pipeline.Bounds   `toml:"bounds"`

	Cache  CacheConfig  `toml:"cache"`
	Fonts  FontsConfig  `toml:"fonts"`
	Server ServerConfig `toml:"server"`
}

// CacheConfig selects and configures the artifact cache.
type CacheConfig struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
	// Namespace scopes every key, so deployments can share a backend.
	Namespace string `toml:"namespace"`
}

// FontsConfig configures font storage and download.
type FontsConfig struct {
	Dir           string `toml:"dir"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
	// AllowURLs enables fonts given as http(s) URLs.
	AllowURLs bool `toml:"allow_urls"`
}

// ServerConfig configures `keyforge serve`.
type ServerConfig struct {
	Addr           string        `toml:"addr"`
	MaxBodyBytes   int64         `toml:"max_body_bytes"`
	MaxUploadBytes int64         `toml:"max_upload_bytes"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Machine:       string(template.DefaultMachine),
		Workers:       runtime.NumCPU(),
		ItemTimeout:   pipeline.DefaultItemTimeout,
		BatchTimeout:  2 * time.Minute,
		FontCacheSize: 16,
		Defaults: pipeline.Defaults{
			SizeMm:  pipeline.DefaultSizeMm,
			DepthMm: pipeline.DefaultDepthMm,
		},
		Bounds: pipeline.DefaultBounds,
		Cache: CacheConfig{
			Backend:     CacheFile,
			RedisAddr:   "localhost:6379",
			RedisPrefix: AppName + ":",
		},
		Fonts: FontsConfig{
			MongoDatabase: AppName,
			AllowURLs:     true,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			MaxBodyBytes:   1 << 20,
			MaxUploadBytes: 16 << 20,
			RequestTimeout: 2 * time.Minute,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/keyforge/config.toml, falling back
// to ~/.config.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName, "config.toml"), nil
}

// CacheDir returns $XDG_CACHE_HOME/keyforge, falling back to ~/.cache.
func CacheDir() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}

// Load reads the file at path over the defaults. An empty path reads the
// default location, where a missing file is fine; an explicit path must
// exist.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config")
	}
	if err := cfg.Decode(string(data)); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode applies TOML text over c and validates the result. Unknown keys
// are rejected.
func (c *Config) Decode(text string) error {
	md, err := toml.Decode(text, c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.New(errors.ErrCodeInvalidConfig, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	c.Fonts.Dir = expandHome(c.Fonts.Dir)
	c.Cache.Dir = expandHome(c.Cache.Dir)
	return c.Validate()
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if _, ok := template.Lookup(template.Machine(c.Machine)); !ok {
		return errors.New(errors.ErrCodeInvalidMachine, "unknown machine %q", c.Machine)
	}
	if !ValidCacheBackends[c.Cache.Backend] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid cache backend: %q (must be one of: file, redis, none)", c.Cache.Backend)
	}
	if c.Workers < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers must be at least 1, got %d", c.Workers)
	}
	if c.ItemTimeout <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "item_timeout must be positive")
	}
	if c.BatchTimeout < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "batch_timeout must not be negative")
	}
	b := c.Bounds
	if !(b.SizeMinMm > 0 && b.SizeMinMm <= b.SizeMaxMm) {
		return errors.New(errors.ErrCodeInvalidConfig, "size bounds [%g, %g] are empty", b.SizeMinMm, b.SizeMaxMm)
	}
	if !(b.DepthMinMm > 0 && b.DepthMinMm <= b.DepthMaxMm) {
		return errors.New(errors.ErrCodeInvalidConfig, "depth bounds [%g, %g] are empty", b.DepthMinMm, b.DepthMaxMm)
	}
	if err := errors.ValidateRange("default size", c.Defaults.SizeMm, b.SizeMinMm, b.SizeMaxMm); err != nil {
		return err
	}
	return errors.ValidateRange("default depth", c.Defaults.DepthMm, b.DepthMinMm, b.DepthMaxMm)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
