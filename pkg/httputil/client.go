package httputil

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/keyforge/pkg/buildinfo"
	"github.com/matzehuels/keyforge/pkg/cache"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/observability"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBytes bounds a downloaded body.
	DefaultMaxBytes = 32 << 20
)

// Client downloads resources with retry and caching.
type Client struct {
	HTTP     *http.Client
	Cache    cache.Cache
	Keyer    cache.Keyer
	TTL      time.Duration
	MaxBytes int64
	// Attempts and Delay configure [Retry].
	Attempts int
	Delay    time.Duration
}

// NewClient returns a client with default limits. A nil cache disables
// caching; a nil keyer uses the default keyer.
func NewClient(c cache.Cache, keyer cache.Keyer) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &Client{
		HTTP:     &http.Client{Timeout: DefaultTimeout},
		Cache:    c,
		Keyer:    keyer,
		TTL:      cache.TTLFont,
		MaxBytes: DefaultMaxBytes,
		Attempts: 3,
		Delay:    time.Second,
	}
}

// Fetch returns the body of a GET request to rawURL, from cache when
// possible. Errors carry NETWORK_ERROR, NOT_FOUND or INVALID_INPUT codes.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := errors.ValidateURL(rawURL); err != nil {
		return nil, err
	}
	key := c.Keyer.HTTPKey("fetch", rawURL)
	if data, hit, err := c.Cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheLookup(ctx, "http", true)
		return data, nil
	}
	observability.Cache().OnCacheLookup(ctx, "http", false)

	var body []byte
	err := Retry(ctx, c.Attempts, c.Delay, func() error {
		var err error
		body, err = c.get(ctx, rawURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Set(ctx, key, body, c.TTL); err == nil {
		observability.Cache().OnCacheStore(ctx, "http", len(body))
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	u, _ := url.Parse(rawURL)
	hooks := observability.HTTP()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "build request")
	}
	req.Header.Set("User-Agent", buildinfo.Header())

	hooks.OnRequest(ctx, req.Method, u.Host, u.Path)
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
		return nil, Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", rawURL))
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, u.Host, u.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.MaxBytes+1))
	if err != nil {
		return nil, Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "read %s", rawURL))
	}
	if int64(len(body)) > c.MaxBytes {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s exceeds %d bytes", rawURL, c.MaxBytes)
	}
	return body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "status %d", code)
	case code == http.StatusTooManyRequests || code >= 500:
		return Retryable(errors.New(errors.ErrCodeNetwork, "status %d", code))
	default:
		return errors.New(errors.ErrCodeNetwork, "status %d", code)
	}
}
