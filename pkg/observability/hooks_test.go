package observability

import (
	"context"
	"testing"
	"time"
)

type recorder struct {
	noop
	lookups map[bool]int
	stored  int
	items   []string
}

func (r *recorder) OnCacheLookup(_ context.Context, _ string, hit bool) { r.lookups[hit]++ }
func (r *recorder) OnCacheStore(_ context.Context, _ string, n int)     { r.stored += n }
func (r *recorder) OnItemStart(_ context.Context, _, id string)         { r.items = append(r.items, id) }

func TestDefaultsAreNoop(t *testing.T) {
	Reset()
	ctx := context.Background()
	Pipeline().OnBatchStart(ctx, "b", 3)
	Pipeline().OnItemComplete(ctx, "b", "1", 1200, false, time.Second, nil)
	Cache().OnCacheLookup(ctx, "artifact", true)
	Cache().OnCacheStore(ctx, "artifact", 1024)
	HTTP().OnResponse(ctx, "GET", "fonts.example.com", "/a.ttf", 200, time.Second)

	if _, ok := Pipeline().(noop); !ok {
		t.Errorf("Pipeline() = %T, want noop", Pipeline())
	}
}

func TestRegister(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	ctx := context.Background()

	r := &recorder{lookups: map[bool]int{}}
	Register(Hooks{Cache: r})
	Register(Hooks{Pipeline: r})

	Cache().OnCacheLookup(ctx, "artifact", true)
	Cache().OnCacheLookup(ctx, "artifact", false)
	Cache().OnCacheLookup(ctx, "http", false)
	Cache().OnCacheStore(ctx, "artifact", 84)
	Pipeline().OnItemStart(ctx, "b", "7")

	if r.lookups[true] != 1 || r.lookups[false] != 2 {
		t.Errorf("lookups = %v, want 1 hit and 2 misses", r.lookups)
	}
	if r.stored != 84 {
		t.Errorf("stored = %d, want 84", r.stored)
	}
	if len(r.items) != 1 || r.items[0] != "7" {
		t.Errorf("items = %v, want [7]", r.items)
	}
	if _, ok := HTTP().(noop); !ok {
		t.Errorf("HTTP() = %T, want noop after partial Register", HTTP())
	}

	Reset()
	if _, ok := Cache().(noop); !ok {
		t.Error("Reset() did not restore the cache hooks")
	}
}
