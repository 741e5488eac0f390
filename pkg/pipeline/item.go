package pipeline

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/unixpickle/model3d/model2d"

	"github.com/matzehuels/keyforge/pkg/atlas"
	"github.com/matzehuels/keyforge/pkg/cache"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/layout"
	"github.com/matzehuels/keyforge/pkg/observability"
	"github.com/matzehuels/keyforge/pkg/planar"
	"github.com/matzehuels/keyforge/pkg/solid"
	"github.com/matzehuels/keyforge/pkg/stl"
	"github.com/matzehuels/keyforge/pkg/template"
)

// batchJob is the shared, read-only state of one batch.
type batchJob struct {
	runner *Runner
	req    *Request
	font   *atlas.Font
	tpl    *template.Template
	center model2d.Coord
	region planar.Contour
	id     string

	mu    sync.Mutex
	total int
	done  int
}

type outcome struct {
	id       ID
	artifact Artifact
	err      error
}

// cachedItem is the cache encoding of a generated keycap.
type cachedItem struct {
	Data     []byte   `json:"data"`
	Fallback bool     `json:"fallback,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// run generates one keycap within its time budget. Items that start after
// the batch context ended fail without running. An item already running
// when the batch ends keeps its own budget.
func (j *batchJob) run(ctx context.Context, it resolved, budget time.Duration) outcome {
	hooks := observability.Pipeline()
	start := time.Now()
	out := outcome{id: it.id}

	if err := ctx.Err(); err != nil {
		out.err = errors.Wrap(errors.ErrCodeTimeout, err, "batch ended before keycap %s started", it.id)
		j.progress(out)
		return out
	}

	hooks.OnItemStart(ctx, j.id, string(it.id))
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		a, err := j.generate(itemCtx, it)
		ch <- outcome{id: it.id, artifact: a, err: err}
	}()
	select {
	case out = <-ch:
	case <-itemCtx.Done():
		out.err = errors.New(errors.ErrCodeTimeout, "keycap %s exceeded its %s budget", it.id, budget)
	}

	hooks.OnItemComplete(ctx, j.id, string(it.id), out.artifact.Triangles, out.artifact.Fallback, time.Since(start), out.err)
	if out.err != nil {
		j.runner.Logger.Warn("keycap failed", "id", it.id, "text", it.text, "error", out.err)
	} else {
		j.runner.Logger.Debug("generated keycap",
			"id", it.id,
			"text", it.text,
			"triangles", out.artifact.Triangles,
			"fallback", out.artifact.Fallback,
			"cached", out.artifact.CacheHit,
			"duration", time.Since(start))
	}
	j.progress(out)
	return out
}

func (j *batchJob) progress(o outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done++
	if j.req.OnProgress != nil {
		j.req.OnProgress(Progress{Done: j.done, Total: j.total, ID: o.id, Err: o.err})
	}
}

// generate produces the artifact for it, from cache when possible.
func (j *batchJob) generate(ctx context.Context, it resolved) (Artifact, error) {
	r := j.runner
	a := Artifact{ID: it.id, Text: it.text}
	key := r.Keyer.ArtifactKey(j.font.Hash(), j.tpl.Hash, j.req.keyOpts(it))

	if !j.req.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			var c cachedItem
			if err := json.Unmarshal(data, &c); err == nil && len(c.Data) >= stl.Size(0) {
				observability.Cache().OnCacheLookup(ctx, "artifact", true)
				a.Data, a.Fallback, a.Warnings, a.CacheHit = c.Data, c.Fallback, c.Warnings, true
				a.Size = len(a.Data)
				a.Triangles = int(binary.LittleEndian.Uint32(a.Data[stl.HeaderSize:]))
				return a, nil
			}
		}
		observability.Cache().OnCacheLookup(ctx, "artifact", false)
	}

	lay, err := layout.Layout(j.font, it.text, layout.Options{
		SizeMm:    it.sizeMm,
		OffsetXMm: it.offsetX,
		OffsetYMm: it.offsetY,
		Center:    j.center,
		Scale:     j.req.Scale,
		Kerning:   j.req.Kerning,
		Shaper:    j.req.Shaper,
		Fit:       j.region,
		Overflow:  j.req.Overflow,
	})
	if err != nil {
		return a, err
	}
	a.Warnings = append(a.Warnings, lay.Warnings...)
	if err := ctx.Err(); err != nil {
		return a, errors.Wrap(errors.ErrCodeTimeout, err, "layout keycap %s", it.id)
	}

	built, err := solid.Build(ctx, j.tpl.Solid, lay.Shape, solid.Options{
		DepthMm:    it.depthMm,
		Mode:       j.req.Mode,
		Face:       j.req.Face,
		MaxDepthMm: j.tpl.MaxDepth(j.req.Face),
	})
	s := j.tpl.Solid
	switch {
	case err == nil:
		s = built.Solid
		a.Warnings = append(a.Warnings, built.Warnings...)
	case errors.Recoverable(err):
		a.Fallback = true
		a.Warnings = append(a.Warnings, "legend not applied, using plain keycap: "+errors.UserMessage(err))
	default:
		return a, err
	}

	data, err := stl.Encode(s, stl.Options{})
	if err != nil {
		return a, err
	}
	a.Data = data
	a.Size = len(data)
	a.Triangles = s.NumTriangles()

	if enc, err := json.Marshal(cachedItem{Data: data, Fallback: a.Fallback, Warnings: a.Warnings}); err == nil {
		if r.Cache.Set(ctx, key, enc, cache.TTLArtifact) == nil {
			observability.Cache().OnCacheStore(ctx, "artifact", len(enc))
		}
	}
	return a, nil
}
