// Package pipeline turns a batch of keycap legends into STL files.
//
// This package implements the complete font → layout → solid → STL pipeline
// shared by the CLI and the HTTP server, so both produce byte-identical
// output for the same request.
//
// # Architecture
//
// A batch runs in four stages:
//
//  1. Font: resolve the font identifier to bytes and parse them once
//  2. Template: generate (or accept) the base keycap solid
//  3. Items: lay out, build and serialize each keycap on a worker pool
//  4. Collect: name artifacts and gather failures in input order
//
// Items fail independently. A legend that cannot be combined with the base
// yields the unengraved base plus a warning; an invalid size or depth fails
// only that keycap. Only an unusable font or an empty request aborts the
// batch.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	runner.Fonts = fontstore.NewResolver(fetcher, store)
//	result, err := runner.Execute(ctx, pipeline.Request{
//	    Font:    "goregular",
//	    Keycaps: []pipeline.KeycapSpec{{ID: "1", Text: "5"}},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, a := range result.Artifacts {
//	    os.WriteFile(a.Filename, a.Data, 0o644)
//	}
package pipeline

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/matzehuels/keyforge/pkg/cache"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/layout"
	"github.com/matzehuels/keyforge/pkg/solid"
	"github.com/matzehuels/keyforge/pkg/template"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultSizeMm is the legend size used when neither the keycap nor
	// the batch defaults give one.
	DefaultSizeMm = 10.0

	// DefaultDepthMm is the engraving depth used when neither the keycap
	// nor the batch defaults give one.
	DefaultDepthMm = 0.8

	// DefaultItemTimeout bounds the time spent on a single keycap.
	DefaultItemTimeout = 10 * time.Second

	// GeneratorVersion is part of every artifact cache key. Bump it when
	// the generated geometry changes.
	GeneratorVersion = 2
)

// DefaultBounds are the accepted legend sizes and depths.
var DefaultBounds = Bounds{
	SizeMinMm:  3,
	SizeMaxMm:  16,
	DepthMinMm: 0.1,
	DepthMaxMm: 2.0,
}

// Bounds limits the physical parameters of a keycap.
type Bounds struct {
	SizeMinMm  float64 `json:"size_min_mm" toml:"size_min_mm"`
	SizeMaxMm  float64 `json:"size_max_mm" toml:"size_max_mm"`
	DepthMinMm float64 `json:"depth_min_mm" toml:"depth_min_mm"`
	DepthMaxMm float64 `json:"depth_max_mm" toml:"depth_max_mm"`
}

// =============================================================================
// Request - Batch Configuration
// =============================================================================

// ID identifies a keycap within a batch. In JSON it may be written as a
// string or a number.
type ID string

// UnmarshalJSON accepts "7", 7 and 7.5.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New(errors.ErrCodeInvalidInput, "keycap id must be a string or number, got %s", data)
	}
	*id = ID(n.String())
	return nil
}

// KeycapSpec describes one keycap. Nil sizes and depths take the batch
// defaults.
type KeycapSpec struct {
	ID        ID       `json:"id"`
	Text      string   `json:"text"`
	SizeMm    *float64 `json:"size_mm,omitempty"`
	DepthMm   *float64 `json:"depth_mm,omitempty"`
	OffsetXMm float64  `json:"offset_x_mm,omitempty"`
	OffsetYMm float64  `json:"offset_y_mm,omitempty"`
}

// Defaults are the batch-level size and depth.
type Defaults struct {
	SizeMm  float64 `json:"size_mm,omitempty" toml:"size_mm"`
	DepthMm float64 `json:"depth_mm,omitempty" toml:"depth_mm"`
}

// Request is one batch.
type Request struct {
	// Font is a built-in font name, a stored font file name or an http(s)
	// URL. Empty selects the default built-in font.
	Font     string           `json:"font,omitempty"`
	Machine  template.Machine `json:"machine,omitempty"`
	Keycaps  []KeycapSpec     `json:"keycaps"`
	Defaults Defaults         `json:"defaults,omitempty"`

	Mode    solid.Mode       `json:"mode,omitempty"`
	Face    solid.Face       `json:"face,omitempty"`
	Scale   layout.ScaleMode `json:"scale,omitempty"`
	Kerning bool             `json:"kerning,omitempty"`
	Shaper  layout.Shaper    `json:"shaper,omitempty"`
	// Overflow decides what happens to a legend larger than the face:
	// shrink it to fit (the default) or clip it at the face margin.
	Overflow layout.Overflow `json:"overflow,omitempty"`
	Refresh  bool            `json:"refresh,omitempty"`

	// Runtime options (not serialized)

	// Template overrides Machine with an imported base.
	Template *template.Template `json:"-"`
	// Timeout bounds the whole batch; zero means no limit beyond ctx.
	Timeout time.Duration `json:"-"`
	// ItemTimeout bounds each keycap; zero uses the runner's.
	ItemTimeout time.Duration `json:"-"`
	// OnProgress is called once per finished keycap. Calls are serialized.
	OnProgress func(Progress) `json:"-"`
}

// Progress reports a finished keycap.
type Progress struct {
	Done  int
	Total int
	ID    ID
	Err   error
}

// SetDefaults fills unset batch-level options.
func (r *Request) SetDefaults() {
	if r.Machine == "" {
		r.Machine = template.DefaultMachine
	}
	if r.Defaults.SizeMm == 0 {
		r.Defaults.SizeMm = DefaultSizeMm
	}
	if r.Defaults.DepthMm == 0 {
		r.Defaults.DepthMm = DefaultDepthMm
	}
	if r.Mode == "" {
		r.Mode = solid.ModeEngrave
	}
	if r.Face == "" {
		r.Face = solid.FaceTop
	}
	if r.Scale == "" {
		r.Scale = layout.ScaleCapHeight
	}
	if r.Shaper == "" {
		r.Shaper = layout.ShaperSimple
	}
	if r.Overflow == "" {
		r.Overflow = layout.OverflowShrink
	}
}

// Validate checks the batch-level options. Per-keycap problems are not
// errors here; they become failures in the result.
func (r *Request) Validate() error {
	if len(r.Keycaps) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "request has no keycaps")
	}
	if !solid.ValidModes[r.Mode] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid mode: %q (must be one of: engrave, emboss)", r.Mode)
	}
	if !solid.ValidFaces[r.Face] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid face: %q (must be one of: top, bottom)", r.Face)
	}
	if !layout.ValidScaleModes[r.Scale] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid scale: %q (must be one of: cap-height, em)", r.Scale)
	}
	if !layout.ValidShapers[r.Shaper] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid shaper: %q (must be one of: simple, harfbuzz)", r.Shaper)
	}
	if !layout.ValidOverflows[r.Overflow] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid overflow: %q (must be one of: shrink, clip)", r.Overflow)
	}
	if r.Template == nil {
		if _, ok := template.Lookup(r.Machine); !ok {
			return errors.New(errors.ErrCodeInvalidMachine, "unknown machine %q", r.Machine)
		}
	}
	return nil
}

// resolved are the final parameters of one keycap.
type resolved struct {
	index   int
	id      ID
	text    string
	sizeMm  float64
	depthMm float64
	offsetX float64
	offsetY float64
}

// resolve applies defaults to spec and checks it against b.
func (r *Request) resolve(i int, spec KeycapSpec, b Bounds) (resolved, error) {
	item := resolved{
		index:   i,
		id:      spec.ID,
		text:    normalizeText(spec.Text),
		sizeMm:  r.Defaults.SizeMm,
		depthMm: r.Defaults.DepthMm,
		offsetX: spec.OffsetXMm,
		offsetY: spec.OffsetYMm,
	}
	if item.id == "" {
		item.id = ID(strconv.Itoa(i + 1))
	}
	if spec.SizeMm != nil {
		item.sizeMm = *spec.SizeMm
	}
	if spec.DepthMm != nil {
		item.depthMm = *spec.DepthMm
	}
	if err := errors.ValidateKeycapText(item.text); err != nil {
		return item, err
	}
	if err := errors.ValidateRange("size", item.sizeMm, b.SizeMinMm, b.SizeMaxMm); err != nil {
		return item, err
	}
	if err := errors.ValidateRange("depth", item.depthMm, b.DepthMinMm, b.DepthMaxMm); err != nil {
		return item, err
	}
	for _, v := range []float64{item.offsetX, item.offsetY} {
		if err := errors.ValidateRange("offset", v, -b.SizeMaxMm, b.SizeMaxMm); err != nil {
			return item, err
		}
	}
	return item, nil
}

func (r *Request) keyOpts(it resolved) cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{
		Text:      it.text,
		SizeMm:    it.sizeMm,
		DepthMm:   it.depthMm,
		OffsetXMm: it.offsetX,
		OffsetYMm: it.offsetY,
		Mode:      string(r.Mode),
		Face:      string(r.Face),
		Scale:     string(r.Scale),
		Kerning:   r.Kerning,
		Shaper:    string(r.Shaper),
		Overflow:  string(r.Overflow),
		Version:   GeneratorVersion,
	}
}

// =============================================================================
// Result - Batch Outputs
// =============================================================================

// Artifact is one generated keycap.
type Artifact struct {
	ID       ID     `json:"id"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
	Data     []byte `json:"-"`
	Size     int    `json:"size"`
	// Triangles is the triangle count of the serialized solid.
	Triangles int `json:"triangles"`
	// Fallback reports that the legend could not be applied and the
	// unengraved base was emitted instead.
	Fallback bool     `json:"fallback,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	CacheHit bool     `json:"cache_hit,omitempty"`
}

// Failure is a keycap that produced no artifact.
type Failure struct {
	ID      ID          `json:"id"`
	Kind    errors.Code `json:"kind"`
	Message string      `json:"message"`
}

// Result is the outcome of a batch. Artifacts and Failures are in input
// order.
type Result struct {
	BatchID   string     `json:"batch_id"`
	Font      string     `json:"font"`
	FontHash  string     `json:"font_hash"`
	Template  string     `json:"template"`
	Artifacts []Artifact `json:"artifacts"`
	Failures  []Failure  `json:"failures,omitempty"`
	// Warnings collects the artifact warnings prefixed by keycap id.
	Warnings []string `json:"warnings,omitempty"`
	Stats    Stats    `json:"stats"`
}

// Stats contains batch execution statistics.
type Stats struct {
	Items     int           `json:"items"`
	Artifacts int           `json:"artifacts"`
	Failures  int           `json:"failures"`
	Fallbacks int           `json:"fallbacks"`
	CacheHits int           `json:"cache_hits"`
	Triangles int           `json:"triangles"`
	FontTime  time.Duration `json:"font_time"`
	ItemsTime time.Duration `json:"items_time"`
	Duration  time.Duration `json:"duration"`
}
