package preview

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/unixpickle/model3d/model2d"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/planar"
)

func square(x0, y0, x1, y1 float64) planar.Contour {
	return planar.Contour{
		model2d.XY(x0, y0), model2d.XY(x1, y0), model2d.XY(x1, y1), model2d.XY(x0, y1),
	}
}

// ring is a 10 mm square with a 4 mm square hole, both counter-clockwise
// so only the even-odd rule leaves the hole open.
func ring() planar.Shape {
	return planar.Shape{Contours: []planar.Contour{square(0, 0, 10, 10), square(3, 3, 7, 7)}}
}

func alphaAt(t *testing.T, data []byte, x, y int) uint8 {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA).A
}

func TestPNGEvenOdd(t *testing.T) {
	var buf bytes.Buffer
	if err := PNG(&buf, ring(), Options{Size: 100, Padding: 0.1}); err != nil {
		t.Fatalf("PNG() error = %v", err)
	}
	data := buf.Bytes()
	// The ring spans pixels 10..90.
	if a := alphaAt(t, data, 15, 50); a != 0xff {
		t.Errorf("ring pixel alpha = %d, want 255", a)
	}
	if a := alphaAt(t, data, 50, 50); a != 0 {
		t.Errorf("hole pixel alpha = %d, want 0", a)
	}
	if a := alphaAt(t, data, 3, 3); a != 0 {
		t.Errorf("padding pixel alpha = %d, want 0", a)
	}
}

func TestRenderFace(t *testing.T) {
	face := planar.Rect{Min: model2d.XY(-5, -5), Max: model2d.XY(5, 5)}
	img, err := Render(planar.Shape{}, Options{Size: 64, Face: face})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := img.NRGBAAt(32, 32); got != defaultFace {
		t.Errorf("face pixel = %v, want %v", got, defaultFace)
	}
	if got := img.NRGBAAt(1, 1); got.A != 0 {
		t.Errorf("corner pixel = %v, want transparent", got)
	}
}

func TestRenderFlipsY(t *testing.T) {
	// A box in the upper half of the view lands in the upper half of the
	// image.
	shape := planar.Shape{Contours: []planar.Contour{square(0, 5, 10, 10)}}
	face := planar.Rect{Min: model2d.XY(0, 0), Max: model2d.XY(10, 10)}
	img, err := Render(shape, Options{Size: 100, Face: face, Padding: 0.1})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := img.NRGBAAt(50, 25); got != defaultInk {
		t.Errorf("upper pixel = %v, want ink", got)
	}
	if got := img.NRGBAAt(50, 75); got != defaultFace {
		t.Errorf("lower pixel = %v, want face", got)
	}
}

func TestRenderRejects(t *testing.T) {
	for _, opts := range []Options{{Size: -1}, {Size: MaxSize + 1}, {Padding: 0.5}} {
		if _, err := Render(ring(), opts); !errors.Is(err, errors.ErrCodeInvalidConfig) {
			t.Errorf("Render(%+v) error = %v, want %s", opts, err, errors.ErrCodeInvalidConfig)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	img, err := Render(planar.Shape{}, Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != DefaultSize || b.Dy() != DefaultSize {
		t.Errorf("bounds = %v", b)
	}
}
