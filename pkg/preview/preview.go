// Package preview rasterizes a laid-out legend to a PNG, for checking
// placement and glyph coverage without opening a slicer.
package preview

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/vector"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/planar"
)

// DefaultSize is the edge length of a preview in pixels.
const DefaultSize = 256

// MaxSize bounds the preview edge length.
const MaxSize = 4096

var (
	defaultInk   = color.NRGBA{0x20, 0x20, 0x20, 0xff}
	defaultFace  = color.NRGBA{0xe8, 0xe4, 0xdc, 0xff}
	defaultPaper = color.NRGBA{0xff, 0xff, 0xff, 0x00}
)

// Options configures [Render].
type Options struct {
	// Size is the image edge length in pixels.
	Size int
	// Face is the keycap face in millimetres, drawn behind the legend and
	// used as the view. A zero-area Face makes the view fit the legend.
	Face planar.Rect
	// Padding is the margin around the view as a fraction of Size.
	Padding float64

	Ink, FaceColor, Background color.Color
}

func (o *Options) setDefaults() error {
	if o.Size == 0 {
		o.Size = DefaultSize
	}
	if o.Size < 1 || o.Size > MaxSize {
		return errors.New(errors.ErrCodeInvalidConfig, "preview size %d out of range [1, %d]", o.Size, MaxSize)
	}
	if o.Padding == 0 {
		o.Padding = 0.08
	}
	if o.Padding < 0 || o.Padding >= 0.5 {
		return errors.New(errors.ErrCodeInvalidConfig, "preview padding %g out of range [0, 0.5)", o.Padding)
	}
	if o.Ink == nil {
		o.Ink = defaultInk
	}
	if o.FaceColor == nil {
		o.FaceColor = defaultFace
	}
	if o.Background == nil {
		o.Background = defaultPaper
	}
	return nil
}

// Render draws shape, filled by the even-odd rule.
func Render(shape planar.Shape, opts Options) (*image.NRGBA, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, opts.Size, opts.Size))
	draw.Draw(img, img.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	hasFace := hasArea(opts.Face)
	view := opts.Face
	if !hasFace {
		view = shape.Bounds()
	}
	if view.IsEmpty() {
		return img, nil
	}

	side := math.Max(view.Width(), view.Height())
	if side <= 0 {
		side = 1
	}
	pad := opts.Padding * float64(opts.Size)
	scale := (float64(opts.Size) - 2*pad) / side
	c := view.Center()
	half := float64(opts.Size) / 2
	tx := func(x, y float64) (float32, float32) {
		return float32(half + (x-c.X)*scale), float32(half - (y-c.Y)*scale)
	}

	if hasFace {
		var r vector.Rasterizer
		r.Reset(opts.Size, opts.Size)
		x0, y0 := tx(opts.Face.Min.X, opts.Face.Max.Y)
		x1, y1 := tx(opts.Face.Max.X, opts.Face.Min.Y)
		r.MoveTo(x0, y0)
		r.LineTo(x1, y0)
		r.LineTo(x1, y1)
		r.LineTo(x0, y1)
		r.ClosePath()
		r.Draw(img, img.Bounds(), image.NewUniform(opts.FaceColor), image.Point{})
	}

	if shape.IsEmpty() {
		return img, nil
	}

	// The rasterizer fills by non-zero winding; alternating the winding
	// by nesting depth makes that agree with even-odd.
	contours := planar.Normalize(shape.Contours, planar.Classify(shape.Contours))
	var r vector.Rasterizer
	r.Reset(opts.Size, opts.Size)
	for _, contour := range contours {
		if len(contour) < 3 {
			continue
		}
		r.MoveTo(tx(contour[0].X, contour[0].Y))
		for _, p := range contour[1:] {
			r.LineTo(tx(p.X, p.Y))
		}
		r.ClosePath()
	}
	r.Draw(img, img.Bounds(), image.NewUniform(opts.Ink), image.Point{})
	return img, nil
}

// PNG renders shape and writes it to w as a PNG.
func PNG(w io.Writer, shape planar.Shape, opts Options) error {
	img, err := Render(shape, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, err, "encode png")
	}
	return nil
}

func hasArea(r planar.Rect) bool {
	return !r.IsEmpty() && r.Width() > 0 && r.Height() > 0
}
