// Package observability lets a host process watch keyforge at work.
//
// Three hook sets exist: [PipelineHooks] for batches and keycaps,
// [CacheHooks] for artifact and download caches, and [HTTPHooks] for font
// downloads. Until something is registered every event goes to a no-op.
//
//	observability.Register(observability.Hooks{
//	    Pipeline: metrics,
//	    Cache:    metrics,
//	})
//
// Libraries fetch the current set at the point of use:
//
//	observability.Pipeline().OnItemStart(ctx, batchID, spec.ID)
package observability

import (
	"context"
	"sync/atomic"
	"time"
)

// PipelineHooks receives events from batch generation.
type PipelineHooks interface {
	OnBatchStart(ctx context.Context, batchID string, items int)
	OnBatchComplete(ctx context.Context, batchID string, artifacts, failures int, duration time.Duration, err error)

	OnItemStart(ctx context.Context, batchID, itemID string)
	// OnItemComplete fires once per keycap. fallback reports that the
	// unengraved base was emitted instead of the legend.
	OnItemComplete(ctx context.Context, batchID, itemID string, triangles int, fallback bool, duration time.Duration, err error)
}

// CacheHooks receives events from cache operations. kind names the cached
// thing: "artifact" or "http".
type CacheHooks interface {
	OnCacheLookup(ctx context.Context, kind string, hit bool)
	OnCacheStore(ctx context.Context, kind string, bytes int)
}

// HTTPHooks receives events from outgoing font downloads.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, status int, duration time.Duration)
	OnError(ctx context.Context, method, host, path string, err error)
}

// Hooks is a full hook set. Nil fields leave the current hook in place.
type Hooks struct {
	Pipeline PipelineHooks
	Cache    CacheHooks
	HTTP     HTTPHooks
}

type noop struct{}

func (noop) OnBatchStart(context.Context, string, int)                                       {}
func (noop) OnBatchComplete(context.Context, string, int, int, time.Duration, error)         {}
func (noop) OnItemStart(context.Context, string, string)                                     {}
func (noop) OnItemComplete(context.Context, string, string, int, bool, time.Duration, error) {}
func (noop) OnCacheLookup(context.Context, string, bool)                                     {}
func (noop) OnCacheStore(context.Context, string, int)                                       {}
func (noop) OnRequest(context.Context, string, string, string)                               {}
func (noop) OnResponse(context.Context, string, string, string, int, time.Duration)          {}
func (noop) OnError(context.Context, string, string, string, error)                          {}

// Noop is the hook set in effect before anything is registered.
var Noop = Hooks{Pipeline: noop{}, Cache: noop{}, HTTP: noop{}}

var current atomic.Pointer[Hooks]

func init() {
	Reset()
}

// Register installs the non-nil hooks of h, keeping the rest.
func Register(h Hooks) {
	for {
		old := current.Load()
		next := *old
		if h.Pipeline != nil {
			next.Pipeline = h.Pipeline
		}
		if h.Cache != nil {
			next.Cache = h.Cache
		}
		if h.HTTP != nil {
			next.HTTP = h.HTTP
		}
		if current.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Reset restores the no-op hooks.
func Reset() {
	h := Noop
	current.Store(&h)
}

// Pipeline returns the registered pipeline hooks.
func Pipeline() PipelineHooks { return current.Load().Pipeline }

// Cache returns the registered cache hooks.
func Cache() CacheHooks { return current.Load().Cache }

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks { return current.Load().HTTP }
