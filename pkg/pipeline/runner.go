package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/keyforge/pkg/atlas"
	"github.com/matzehuels/keyforge/pkg/cache"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/fonts"
	"github.com/matzehuels/keyforge/pkg/observability"
	"github.com/matzehuels/keyforge/pkg/template"
)

// FontResolver turns a font identifier into font bytes.
// *fontstore.Resolver implements it.
type FontResolver interface {
	Resolve(ctx context.Context, id string) (data []byte, source string, err error)
}

// builtinResolver serves the compiled-in fonts only.
type builtinResolver struct{}

func (builtinResolver) Resolve(ctx context.Context, id string) ([]byte, string, error) {
	if id == "" {
		id = fonts.Default
	}
	if data, ok := fonts.Builtin(id); ok {
		return data, "builtin", nil
	}
	return nil, "", errors.New(errors.ErrCodeFontNotFound, "font not found: %s", id)
}

// Runner executes batches with caching.
//
// The Runner holds no per-batch state. Multiple goroutines can safely use
// the same Runner with different requests.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Fonts resolves font identifiers; nil serves built-in fonts only.
	Fonts FontResolver
	// Atlas keeps parsed fonts across batches.
	Atlas *atlas.Cache

	Bounds      Bounds
	Workers     int
	ItemTimeout time.Duration

	templates sync.Map // template.Machine -> *template.Template
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	fontCache, _ := atlas.NewCache(atlas.DefaultCacheSize)
	return &Runner{
		Cache:       c,
		Keyer:       keyer,
		Logger:      logger,
		Fonts:       builtinResolver{},
		Atlas:       fontCache,
		Bounds:      DefaultBounds,
		Workers:     runtime.NumCPU(),
		ItemTimeout: DefaultItemTimeout,
	}
}

// LoadFont resolves and parses a font.
func (r *Runner) LoadFont(ctx context.Context, id string) (*atlas.Font, error) {
	resolver := r.Fonts
	if resolver == nil {
		resolver = builtinResolver{}
	}
	data, source, err := resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	f, err := r.Atlas.Load(ctx, data)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("loaded font", "font", id, "source", source, "family", f.Family(), "hash", f.Hash()[:12])
	return f, nil
}

// LoadTemplate returns the base template for m, generating it once per
// runner.
func (r *Runner) LoadTemplate(m template.Machine) (*template.Template, error) {
	if m == "" {
		m = template.DefaultMachine
	}
	if t, ok := r.templates.Load(m); ok {
		return t.(*template.Template), nil
	}
	t, err := template.Load(m)
	if err != nil {
		return nil, err
	}
	actual, _ := r.templates.LoadOrStore(m, t)
	return actual.(*template.Template), nil
}

// Execute runs a batch. The returned error is non-nil only when the whole
// batch is unusable: an empty or invalid request, a font that cannot be
// found or parsed, or no keycap with valid parameters.
func (r *Runner) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req.SetDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &Result{BatchID: uuid.NewString(), Font: req.Font}
	if result.Font == "" {
		result.Font = fonts.Default
	}
	hooks := observability.Pipeline()
	hooks.OnBatchStart(ctx, result.BatchID, len(req.Keycaps))

	res, err := r.execute(ctx, &req, result)
	result.Stats.Duration = time.Since(start)
	hooks.OnBatchComplete(ctx, result.BatchID, len(result.Artifacts), len(result.Failures), result.Stats.Duration, err)
	if err != nil {
		return nil, err
	}

	r.Logger.Info("generated batch",
		"batch", result.BatchID,
		"artifacts", res.Stats.Artifacts,
		"failures", res.Stats.Failures,
		"fallbacks", res.Stats.Fallbacks,
		"cache_hits", res.Stats.CacheHits,
		"duration", res.Stats.Duration)
	return res, nil
}

func (r *Runner) execute(ctx context.Context, req *Request, result *Result) (*Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// Stage 1: Font
	fontStart := time.Now()
	font, err := r.LoadFont(ctx, req.Font)
	if err != nil {
		if ctx.Err() == nil {
			return nil, err
		}
		// The batch ran out of time: every keycap times out, none aborts.
		r.Logger.Warn("batch ended while loading font", "batch", result.BatchID, "font", req.Font, "error", err)
		return r.timedOut(req, result, errors.Wrap(errors.ErrCodeTimeout, ctx.Err(), "load font %s", result.Font)), nil
	}
	result.FontHash = font.Hash()
	result.Stats.FontTime = time.Since(fontStart)

	// Stage 2: Template
	tpl := req.Template
	if tpl == nil {
		if tpl, err = r.LoadTemplate(req.Machine); err != nil {
			return nil, err
		}
	}
	result.Template = tpl.Name
	center, err := tpl.FaceCenter(req.Face)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", tpl.Name, err)
	}
	region, err := tpl.FaceRegion(req.Face)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", tpl.Name, err)
	}

	// Resolve parameters up front so invalid keycaps never reach the pool.
	items := make([]resolved, 0, len(req.Keycaps))
	outcomes := make([]outcome, len(req.Keycaps))
	for i, spec := range req.Keycaps {
		it, err := req.resolve(i, spec, r.bounds())
		if err != nil {
			outcomes[i] = outcome{id: it.id, err: err}
			continue
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		first := outcomes[0].err
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, first, "no keycap has valid parameters")
	}

	// Stage 3: Items
	itemsStart := time.Now()
	job := &batchJob{
		runner: r,
		req:    req,
		font:   font,
		tpl:    tpl,
		center: center,
		region: region,
		id:     result.BatchID,
		total:  len(req.Keycaps),
		done:   len(req.Keycaps) - len(items),
	}
	itemTimeout := req.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = r.ItemTimeout
	}

	var g errgroup.Group
	g.SetLimit(r.workers())
	for _, it := range items {
		g.Go(func() error {
			outcomes[it.index] = job.run(ctx, it, itemTimeout)
			return nil
		})
	}
	_ = g.Wait()
	result.Stats.ItemsTime = time.Since(itemsStart)

	// Stage 4: Collect
	names := newNamer()
	for _, o := range outcomes {
		if o.err != nil {
			result.Failures = append(result.Failures, Failure{
				ID:      o.id,
				Kind:    kindOf(o.err),
				Message: errors.UserMessage(o.err),
			})
			continue
		}
		a := o.artifact
		a.Filename = names.name(a.ID, a.Text)
		for _, w := range a.Warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", a.ID, w))
		}
		if a.Fallback {
			result.Stats.Fallbacks++
		}
		if a.CacheHit {
			result.Stats.CacheHits++
		}
		result.Stats.Triangles += a.Triangles
		result.Artifacts = append(result.Artifacts, a)
	}
	result.Stats.Items = len(req.Keycaps)
	result.Stats.Artifacts = len(result.Artifacts)
	result.Stats.Failures = len(result.Failures)
	return result, nil
}

// timedOut fails every keycap of req: with its own error when its
// parameters are invalid, with cause otherwise.
func (r *Runner) timedOut(req *Request, result *Result, cause error) *Result {
	for i, spec := range req.Keycaps {
		it, err := req.resolve(i, spec, r.bounds())
		if err == nil {
			err = cause
		}
		result.Failures = append(result.Failures, Failure{ID: it.id, Kind: kindOf(err), Message: errors.UserMessage(err)})
	}
	result.Stats.Items = len(req.Keycaps)
	result.Stats.Failures = len(result.Failures)
	return result
}

func (r *Runner) bounds() Bounds {
	if r.Bounds == (Bounds{}) {
		return DefaultBounds
	}
	return r.Bounds
}

func (r *Runner) workers() int {
	if r.Workers <= 0 {
		return runtime.NumCPU()
	}
	return r.Workers
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func kindOf(err error) errors.Code {
	if code := errors.GetCode(err); code != "" {
		return code
	}
	return errors.ErrCodeInternal
}
