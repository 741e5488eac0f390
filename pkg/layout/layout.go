// Package layout places the glyphs of a short keycap legend into a single
// planar shape, scaled to millimetres and centred on the keycap face.
//
// # Scaling
//
// The nominal legend size is the height of a capital letter by default
// ([ScaleCapHeight]): a 10 mm legend has 10 mm tall capitals regardless of
// how much of the em square the font designer gave to ascenders and
// descenders. [ScaleEm] maps the full em square to the nominal size
// instead.
//
// # Placement
//
// Glyphs are placed left to right by their advance widths. Kerning is off
// unless requested; [ShaperHarfbuzz] runs the text through a HarfBuzz
// shaper and uses its positions. The combined bounding box of the placed
// contours is centred on Options.Center and then moved by the manual
// offsets.
//
// # Fitting
//
// With Options.Fit set and [OverflowShrink] selected, a legend reaching
// outside the fit region is scaled down about its centre until it lies
// inside. [OverflowClip] leaves it at full size for the solid builder to
// clip.
package layout

import (
	"fmt"

	"github.com/go-text/typesetting/di"
	ot "github.com/go-text/typesetting/font/opentype"
	"github.com/go-text/typesetting/shaping"
	"github.com/unixpickle/model3d/model2d"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/norm"

	"github.com/matzehuels/keyforge/pkg/atlas"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/planar"
)

// ScaleMode selects which font measure the legend size refers to.
type ScaleMode string

// Scale modes.
const (
	ScaleCapHeight ScaleMode = "cap-height"
	ScaleEm        ScaleMode = "em"
)

// Shaper selects how glyph positions are computed.
type Shaper string

// Shapers.
const (
	ShaperSimple   Shaper = "simple"
	ShaperHarfbuzz Shaper = "harfbuzz"
)

// Overflow selects what happens to a legend larger than its fit region.
type Overflow string

// Overflow policies.
const (
	OverflowShrink Overflow = "shrink"
	OverflowClip   Overflow = "clip"
)

// ValidScaleModes, ValidShapers and ValidOverflows list the accepted
// option values.
var (
	ValidScaleModes = map[ScaleMode]bool{ScaleCapHeight: true, ScaleEm: true}
	ValidShapers    = map[Shaper]bool{ShaperSimple: true, ShaperHarfbuzz: true}
	ValidOverflows  = map[Overflow]bool{OverflowShrink: true, OverflowClip: true}
)

// fitSlack keeps a shrunk legend clear of the fit region's edge.
const fitSlack = 0.999

var kernTag = ot.MustNewTag("kern")

// Options configures [Layout].
type Options struct {
	SizeMm    float64
	OffsetXMm float64
	OffsetYMm float64
	// Center is the point the legend's bounding box is centred on,
	// normally the centre of the keycap face.
	Center  model2d.Coord
	Scale   ScaleMode
	Kerning bool
	Shaper  Shaper
	// Fit is the convex region the legend should stay inside, normally
	// the keycap face less a margin. Nil disables fitting.
	Fit      planar.Contour
	Overflow Overflow
}

// Glyph is one placed glyph.
type Glyph struct {
	Rune     rune
	X        float64 // pen position before centring, mm
	Advance  float64 // mm
	Fallback bool
}

// Result is a laid-out legend.
type Result struct {
	Shape planar.Shape
	// Bounds is the bounding box of Shape, empty for an empty shape.
	Bounds planar.Rect
	// Advance is the sum of the scaled glyph advances, kerning included.
	Advance float64
	Factor  float64 // millimetres per font unit
	// Shrink is the factor applied to fit the legend, 1 when none was.
	Shrink   float64
	Glyphs   []Glyph
	Warnings []string
}

// ScaleFactor returns the millimetres per font unit for a legend of
// sizeMm.
func ScaleFactor(f *atlas.Font, sizeMm float64, mode ScaleMode) float64 {
	if mode == ScaleEm {
		return sizeMm / f.UnitsPerEm()
	}
	return sizeMm / f.CapHeight()
}

type placed struct {
	outline  atlas.Outline
	rune     rune
	x, y     float64 // font units
	advance  float64 // font units
	fallback bool
}

// Layout places text in f. Missing glyphs are drawn as the font's fallback
// box and reported in Result.Warnings. Empty text, or text made only of
// glyphs without contours, yields an empty shape.
func Layout(f *atlas.Font, text string, opts Options) (Result, error) {
	if !(opts.SizeMm > 0) {
		return Result{}, errors.New(errors.ErrCodeInvalidConfig, "size must be positive, got %v", opts.SizeMm)
	}
	if opts.Scale == "" {
		opts.Scale = ScaleCapHeight
	}
	if opts.Shaper == "" {
		opts.Shaper = ShaperSimple
	}
	if opts.Overflow == "" {
		opts.Overflow = OverflowShrink
	}
	if !ValidOverflows[opts.Overflow] {
		return Result{}, errors.New(errors.ErrCodeInvalidConfig, "unknown overflow %q", opts.Overflow)
	}
	if !ValidScaleModes[opts.Scale] {
		return Result{}, errors.New(errors.ErrCodeInvalidConfig, "unknown scale mode %q", opts.Scale)
	}
	if !ValidShapers[opts.Shaper] {
		return Result{}, errors.New(errors.ErrCodeInvalidConfig, "unknown shaper %q", opts.Shaper)
	}

	runes := []rune(norm.NFC.String(text))
	res := Result{Factor: ScaleFactor(f, opts.SizeMm, opts.Scale), Shrink: 1, Bounds: planar.EmptyRect()}

	var glyphs []placed
	var pen float64
	if opts.Shaper == ShaperHarfbuzz {
		var ok bool
		glyphs, pen, ok = shapeHarfbuzz(f, runes, opts.Kerning)
		if !ok {
			res.Warnings = append(res.Warnings, "font cannot be shaped, using advance layout")
			glyphs, pen = advanceLayout(f, runes, opts.Kerning)
		}
	} else {
		glyphs, pen = advanceLayout(f, runes, opts.Kerning)
	}
	res.Advance = pen * res.Factor

	for _, g := range glyphs {
		if g.fallback {
			res.Warnings = append(res.Warnings, fmt.Sprintf("no glyph for %U, using placeholder", g.rune))
		}
		offset := model2d.XY(g.x*res.Factor, g.y*res.Factor)
		for _, c := range g.outline.Contours {
			res.Shape.Contours = append(res.Shape.Contours, c.Transform(res.Factor, offset))
		}
		res.Glyphs = append(res.Glyphs, Glyph{
			Rune:     g.rune,
			X:        g.x * res.Factor,
			Advance:  g.advance * res.Factor,
			Fallback: g.fallback,
		})
	}

	if res.Shape.IsEmpty() {
		return res, nil
	}
	target := opts.Center.Add(model2d.XY(opts.OffsetXMm, opts.OffsetYMm))
	res.Shape = res.Shape.Translate(target.Sub(res.Shape.Bounds().Center()))
	if opts.Overflow == OverflowShrink && len(opts.Fit) >= 3 {
		if s := planar.FitScale(res.Shape, target, opts.Fit); s < 1 {
			res.shrink(s*fitSlack, target)
			res.Warnings = append(res.Warnings, fmt.Sprintf("legend scaled to %.0f%% to fit the face", 100*res.Shrink))
		}
	}
	res.Bounds = res.Shape.Bounds()
	return res, nil
}

// shrink scales the placed legend by s about c.
func (r *Result) shrink(s float64, c model2d.Coord) {
	r.Shape = r.Shape.Transform(s, c.Scale(1-s))
	r.Shrink = s
	r.Factor *= s
	r.Advance *= s
	for i := range r.Glyphs {
		r.Glyphs[i].X *= s
		r.Glyphs[i].Advance *= s
	}
}

func advanceLayout(f *atlas.Font, runes []rune, kerning bool) ([]placed, float64) {
	var out []placed
	var pen float64
	for i, r := range runes {
		if kerning && i > 0 {
			pen += f.Kern(runes[i-1], r)
		}
		g := placed{rune: r, x: pen}
		o, err := f.Outline(r)
		if err != nil {
			o = f.Fallback()
			g.fallback = true
		}
		g.outline = o
		g.advance = o.Advance
		pen += o.Advance
		out = append(out, g)
	}
	return out, pen
}

// shapeHarfbuzz positions glyphs with the HarfBuzz shaper. Shaping happens
// at a size of one em so positions come back in font units.
func shapeHarfbuzz(f *atlas.Font, runes []rune, kerning bool) ([]placed, float64, bool) {
	face := f.ShapingFace()
	if face == nil {
		return nil, 0, false
	}
	if len(runes) == 0 {
		return nil, 0, true
	}

	var features []shaping.FontFeature
	if !kerning {
		features = append(features, shaping.FontFeature{Tag: kernTag, Value: 0})
	}
	shaper := shaping.HarfbuzzShaper{}
	out := shaper.Shape(shaping.Input{
		Text:         runes,
		RunStart:     0,
		RunEnd:       len(runes),
		Direction:    di.DirectionLTR,
		Face:         face,
		FontFeatures: features,
		Size:         fixed.I(int(f.UnitsPerEm())),
	})

	var res []placed
	var pen float64
	for _, g := range out.Glyphs {
		r := runes[clamp(g.ClusterIndex, 0, len(runes)-1)]
		p := placed{
			rune: r,
			x:    pen + float64(out.ToFontUnit(g.XOffset)),
			y:    float64(out.ToFontUnit(g.YOffset)),
		}
		o, err := f.GlyphOutline(uint16(g.GlyphID))
		if err != nil || g.GlyphID == 0 {
			o = f.Fallback()
			p.fallback = true
		}
		p.outline = o
		p.advance = float64(out.ToFontUnit(g.XAdvance))
		if p.fallback {
			p.advance = o.Advance
		}
		pen += p.advance
		res = append(res, p)
	}
	return res, pen, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
