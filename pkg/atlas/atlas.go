// Package atlas parses outline fonts and answers glyph queries for layout.
//
// A [Font] is built once from raw TrueType/OpenType bytes and never changes
// afterwards, so a single handle is shared by every concurrent generation
// task. Glyph outlines are returned as closed polylines in font design
// units with Y pointing up; curves are flattened with a fixed number of
// subdivisions so identical fonts always produce identical outlines.
//
// Fonts are identified by the SHA-256 of their bytes. [Cache] keeps parsed
// fonts keyed by that hash.
package atlas

import (
	"bytes"
	"fmt"

	gotextfont "github.com/go-text/typesetting/font"
	"github.com/unixpickle/model3d/model2d"
	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/matzehuels/keyforge/pkg/cache"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/planar"
)

// CurveSegments is the number of line segments each quadratic or cubic
// curve is flattened into.
const CurveSegments = 8

// Fallback box proportions, in em.
const (
	fallbackWidth   = 0.6
	fallbackBearing = 0.05
	fallbackStroke  = 0.08
)

// Outline is a glyph's contours and advance in font design units.
type Outline struct {
	Contours []planar.Contour
	Advance  float64
}

// IsEmpty reports whether the glyph draws nothing, as for a space.
func (o Outline) IsEmpty() bool {
	return len(o.Contours) == 0
}

// Bounds returns the bounding box of the glyph's contours.
func (o Outline) Bounds() planar.Rect {
	return planar.Shape{Contours: o.Contours}.Bounds()
}

// Font is a parsed, immutable font handle. It is safe for concurrent use.
type Font struct {
	hash   string
	family string
	src    *sfnt.Font
	shaper *gotextfont.Font
	ppem   fixed.Int26_6

	unitsPerEm float64
	capHeight  float64
	ascent     float64
	descent    float64
	numGlyphs  int
	fallback   Outline
}

// Load parses font bytes. Font collections yield their first font.
func Load(data []byte) (*Font, error) {
	src, err := parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFontParse, err, "parse font")
	}
	if src.NumGlyphs() == 0 {
		return nil, errors.New(errors.ErrCodeFontParse, "font has no glyphs")
	}
	upem := src.UnitsPerEm()
	if upem == 0 {
		return nil, errors.New(errors.ErrCodeFontParse, "font has zero units per em")
	}

	f := &Font{
		hash:       cache.Hash(data),
		src:        src,
		ppem:       fixed.Int26_6(int32(upem) << 6),
		unitsPerEm: float64(upem),
		numGlyphs:  src.NumGlyphs(),
	}

	var buf sfnt.Buffer
	if name, err := src.Name(&buf, sfnt.NameIDFamily); err == nil {
		f.family = name
	}
	if m, err := src.Metrics(&buf, f.ppem, font.HintingNone); err == nil {
		f.ascent = fromFixed(m.Ascent)
		f.descent = fromFixed(m.Descent)
		f.capHeight = fromFixed(m.CapHeight)
	}
	if f.capHeight <= 0 {
		if h, err := f.glyphByRune(&buf, 'H'); err == nil && !h.IsEmpty() {
			f.capHeight = h.Bounds().Max.Y
		}
	}
	if f.capHeight <= 0 {
		f.capHeight = f.unitsPerEm
	}
	f.fallback = fallbackBox(f.unitsPerEm, f.capHeight)

	// Shaping is optional; fonts go-text cannot read still lay out by
	// advances.
	if face, err := gotextfont.ParseTTF(bytes.NewReader(data)); err == nil {
		f.shaper = face.Font
	}
	return f, nil
}

// minFontSize is the length of the smallest sfnt header: the offset table.
const minFontSize = 12

func parse(data []byte) (src *sfnt.Font, err error) {
	if len(data) < minFontSize {
		return nil, fmt.Errorf("font data is %d bytes, want at least %d", len(data), minFontSize)
	}
	// sfnt assumes well-formed table directories in places.
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("malformed font: %v", r)
		}
	}()
	src, err = sfnt.Parse(data)
	if err == nil {
		return src, nil
	}
	c, cerr := sfnt.ParseCollection(data)
	if cerr != nil || c.NumFonts() == 0 {
		return nil, err
	}
	return c.Font(0)
}

// Hash returns the SHA-256 hex digest of the font bytes.
func (f *Font) Hash() string { return f.hash }

// Family returns the font family name, or "" if the font has none.
func (f *Font) Family() string { return f.family }

// UnitsPerEm returns the size of the em square in design units.
func (f *Font) UnitsPerEm() float64 { return f.unitsPerEm }

// CapHeight returns the height of capital letters in design units.
func (f *Font) CapHeight() float64 { return f.capHeight }

// Ascent returns the typographic ascent in design units.
func (f *Font) Ascent() float64 { return f.ascent }

// Descent returns the typographic descent in design units, as a positive
// distance below the baseline.
func (f *Font) Descent() float64 { return f.descent }

// NumGlyphs returns the number of glyphs in the font.
func (f *Font) NumGlyphs() int { return f.numGlyphs }

// Fallback returns the placeholder drawn for missing glyphs: a hollow box
// the height of a capital letter.
func (f *Font) Fallback() Outline { return f.fallback }

// Outline returns the glyph outline for r. Runes the font cannot draw yield
// a GLYPH_NOT_FOUND error; callers substitute [Font.Fallback].
func (f *Font) Outline(r rune) (Outline, error) {
	var buf sfnt.Buffer
	return f.glyphByRune(&buf, r)
}

// Advance returns the advance width of r in design units, or the fallback
// advance when the font has no glyph for r.
func (f *Font) Advance(r rune) float64 {
	var buf sfnt.Buffer
	gi, err := f.src.GlyphIndex(&buf, r)
	if err != nil || gi == 0 {
		return f.fallback.Advance
	}
	adv, err := f.src.GlyphAdvance(&buf, gi, f.ppem, font.HintingNone)
	if err != nil {
		return f.fallback.Advance
	}
	return fromFixed(adv)
}

// Kern returns the kerning adjustment between a and b in design units. It
// is zero when the font has no kern table or either rune is missing.
func (f *Font) Kern(a, b rune) float64 {
	var buf sfnt.Buffer
	ga, err := f.src.GlyphIndex(&buf, a)
	if err != nil || ga == 0 {
		return 0
	}
	gb, err := f.src.GlyphIndex(&buf, b)
	if err != nil || gb == 0 {
		return 0
	}
	k, err := f.src.Kern(&buf, ga, gb, f.ppem, font.HintingNone)
	if err != nil {
		return 0
	}
	return fromFixed(k)
}

// GlyphOutline returns the outline of a glyph by index, as produced by a
// text shaper.
func (f *Font) GlyphOutline(gid uint16) (Outline, error) {
	var buf sfnt.Buffer
	return f.glyph(&buf, sfnt.GlyphIndex(gid))
}

// ShapingFace returns a new HarfBuzz face over the font, or nil if the font
// cannot be shaped. Faces are not safe for concurrent use; take one per
// shaping call.
func (f *Font) ShapingFace() *gotextfont.Face {
	if f.shaper == nil {
		return nil
	}
	return gotextfont.NewFace(f.shaper)
}

func (f *Font) glyphByRune(buf *sfnt.Buffer, r rune) (Outline, error) {
	gi, err := f.src.GlyphIndex(buf, r)
	if err != nil {
		return Outline{}, errors.Wrap(errors.ErrCodeGlyphNotFound, err, "glyph %U", r)
	}
	if gi == 0 {
		return Outline{}, errors.New(errors.ErrCodeGlyphNotFound, "no glyph for %U", r)
	}
	return f.glyph(buf, gi)
}

func (f *Font) glyph(buf *sfnt.Buffer, gi sfnt.GlyphIndex) (Outline, error) {
	if int(gi) >= f.numGlyphs {
		return Outline{}, errors.New(errors.ErrCodeGlyphNotFound, "glyph index %d out of range", gi)
	}
	segs, err := f.src.LoadGlyph(buf, gi, f.ppem, nil)
	if err != nil {
		return Outline{}, errors.Wrap(errors.ErrCodeGlyphNotFound, err, "load glyph %d", gi)
	}
	adv, err := f.src.GlyphAdvance(buf, gi, f.ppem, font.HintingNone)
	if err != nil {
		return Outline{}, errors.Wrap(errors.ErrCodeGlyphNotFound, err, "advance of glyph %d", gi)
	}
	return Outline{
		Contours: flatten(segs, CurveSegments),
		Advance:  fromFixed(adv),
	}, nil
}

// flatten converts sfnt segments (Y down) into closed polylines (Y up).
func flatten(segs sfnt.Segments, n int) []planar.Contour {
	var out []planar.Contour
	var cur planar.Contour
	flush := func() {
		if len(cur) > 1 && cur[0] == cur[len(cur)-1] {
			cur = cur[:len(cur)-1]
		}
		if len(cur) > 0 {
			out = append(out, cur)
		}
		cur = nil
	}

	for _, s := range segs {
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			flush()
			cur = planar.Contour{point(s.Args[0])}
		case sfnt.SegmentOpLineTo:
			cur = append(cur, point(s.Args[0]))
		case sfnt.SegmentOpQuadTo:
			p0, p1, p2 := cur[len(cur)-1], point(s.Args[0]), point(s.Args[1])
			for i := 1; i <= n; i++ {
				t := float64(i) / float64(n)
				u := 1 - t
				cur = append(cur, p0.Scale(u*u).Add(p1.Scale(2*u*t)).Add(p2.Scale(t*t)))
			}
		case sfnt.SegmentOpCubeTo:
			p0, p1, p2, p3 := cur[len(cur)-1], point(s.Args[0]), point(s.Args[1]), point(s.Args[2])
			for i := 1; i <= n; i++ {
				t := float64(i) / float64(n)
				u := 1 - t
				cur = append(cur, p0.Scale(u*u*u).
					Add(p1.Scale(3*u*u*t)).
					Add(p2.Scale(3*u*t*t)).
					Add(p3.Scale(t*t*t)))
			}
		}
	}
	flush()
	return out
}

func point(p fixed.Point26_6) model2d.Coord {
	return model2d.XY(fromFixed(p.X), -fromFixed(p.Y))
}

func fromFixed(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// fallbackBox builds a hollow rectangle standing on the baseline.
func fallbackBox(upem, capHeight float64) Outline {
	x0 := fallbackBearing * upem
	x1 := x0 + fallbackWidth*upem
	stroke := fallbackStroke * upem
	outer := planar.Contour{
		model2d.XY(x0, 0), model2d.XY(x1, 0),
		model2d.XY(x1, capHeight), model2d.XY(x0, capHeight),
	}
	inner := planar.Contour{
		model2d.XY(x0+stroke, stroke), model2d.XY(x0+stroke, capHeight-stroke),
		model2d.XY(x1-stroke, capHeight-stroke), model2d.XY(x1-stroke, stroke),
	}
	return Outline{
		Contours: []planar.Contour{outer, inner},
		Advance:  x1 + fallbackBearing*upem,
	}
}

func (f *Font) String() string {
	return fmt.Sprintf("%s (%s, %d glyphs, %g upem)", f.family, f.hash[:12], f.numGlyphs, f.unitsPerEm)
}
