// Package httputil downloads remote resources, such as font files, with
// retry and caching.
//
// # Fetching
//
// [Client.Fetch] performs a GET and returns the body, bounded by a size
// limit. Responses are cached in a [cache.Cache] under the keyer's HTTP key,
// so a font referenced by URL is only downloaded once:
//
//	c := httputil.NewClient(fileCache, nil)
//	data, err := c.Fetch(ctx, "https://example.com/fonts/digitalix.ttf")
//
// # Retry
//
// [Retry] re-runs an operation for transient failures:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limit responses
//
// Other failures (404, 4xx, oversize bodies) are returned immediately.
// Defaults: 3 attempts, 1 second initial delay doubling each time.
package httputil
