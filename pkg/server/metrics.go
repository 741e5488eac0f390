package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/matzehuels/keyforge/pkg/observability"
)

// Metrics counts pipeline and cache events. It implements
// [observability.PipelineHooks] and [observability.CacheHooks].
type Metrics struct {
	started     time.Time
	batches     atomic.Int64
	items       atomic.Int64
	failures    atomic.Int64
	fallbacks   atomic.Int64
	itemNanos   atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	cacheSets   atomic.Int64
}

// NewMetrics returns zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

func (m *Metrics) OnBatchStart(context.Context, string, int) {
	m.batches.Add(1)
}

func (m *Metrics) OnBatchComplete(context.Context, string, int, int, time.Duration, error) {}

func (m *Metrics) OnItemStart(context.Context, string, string) {}

func (m *Metrics) OnItemComplete(_ context.Context, _, _ string, _ int, fallback bool, d time.Duration, err error) {
	m.items.Add(1)
	m.itemNanos.Add(int64(d))
	if err != nil {
		m.failures.Add(1)
	}
	if fallback {
		m.fallbacks.Add(1)
	}
}

func (m *Metrics) OnCacheLookup(_ context.Context, _ string, hit bool) {
	if hit {
		m.cacheHits.Add(1)
		return
	}
	m.cacheMisses.Add(1)
}

func (m *Metrics) OnCacheStore(context.Context, string, int) { m.cacheSets.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Uptime      string  `json:"uptime"`
	Batches     int64   `json:"batches"`
	Items       int64   `json:"items"`
	Failures    int64   `json:"failures"`
	Fallbacks   int64   `json:"fallbacks"`
	AvgItemMs   float64 `json:"avg_item_ms"`
	CacheHits   int64   `json:"cache_hits"`
	CacheMisses int64   `json:"cache_misses"`
	CacheSets   int64   `json:"cache_sets"`
}

// Snapshot reads the counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Uptime:      time.Since(m.started).Round(time.Second).String(),
		Batches:     m.batches.Load(),
		Items:       m.items.Load(),
		Failures:    m.failures.Load(),
		Fallbacks:   m.fallbacks.Load(),
		CacheHits:   m.cacheHits.Load(),
		CacheMisses: m.cacheMisses.Load(),
		CacheSets:   m.cacheSets.Load(),
	}
	if s.Items > 0 {
		s.AvgItemMs = float64(m.itemNanos.Load()) / float64(s.Items) / 1e6
	}
	return s
}

// RegisterHooks routes the global pipeline and cache events to s.Metrics.
func (s *Server) RegisterHooks() {
	observability.Register(observability.Hooks{Pipeline: s.Metrics, Cache: s.Metrics})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Metrics.Snapshot())
}
