package solid_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/unixpickle/model3d/model2d"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/matzehuels/keyforge/pkg/atlas"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/layout"
	"github.com/matzehuels/keyforge/pkg/mesh"
	"github.com/matzehuels/keyforge/pkg/planar"
	"github.com/matzehuels/keyforge/pkg/solid"
	"github.com/matzehuels/keyforge/pkg/template"
)

func square(cx, cy, size float64) planar.Contour {
	h := size / 2
	return planar.Contour{
		model2d.XY(cx-h, cy-h), model2d.XY(cx+h, cy-h),
		model2d.XY(cx+h, cy+h), model2d.XY(cx-h, cy+h),
	}
}

func frame() planar.Shape {
	return planar.Shape{Contours: []planar.Contour{square(0, 0, 4), square(0, 0, 2).Reversed()}}
}

func base(t *testing.T, m template.Machine) *template.Template {
	t.Helper()
	tpl, err := template.Load(m)
	if err != nil {
		t.Fatalf("template.Load() error = %v", err)
	}
	return tpl
}

func checkSolid(t *testing.T, s *mesh.Solid) {
	t.Helper()
	if err := mesh.Check(s, mesh.ValidateOptions{}); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if s.Model3D().NeedsRepair() {
		t.Error("model3d reports the solid needs repair")
	}
}

func TestBuildVolumeChange(t *testing.T) {
	tests := []struct {
		name    string
		machine template.Machine
		opts    solid.Options
		delta   float64
	}{
		{"engrave top", template.EP133, solid.Options{DepthMm: 1}, -12},
		{"emboss top", template.EP133, solid.Options{DepthMm: 0.5, Mode: solid.ModeEmboss}, 6},
		{"engrave bottom", template.EP133, solid.Options{DepthMm: 1, Face: solid.FaceBottom}, -12},
		{"emboss bottom", template.EP1320, solid.Options{DepthMm: 0.4, Mode: solid.ModeEmboss, Face: solid.FaceBottom}, 4.8},
		{"engrave hollow shell", template.MX1U, solid.Options{DepthMm: 0.8}, -9.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := base(t, tt.machine)
			res, err := solid.Build(context.Background(), tpl.Solid, frame(), tt.opts)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			checkSolid(t, res.Solid)
			if res.Attempts != 1 {
				t.Errorf("Attempts = %d, want 1", res.Attempts)
			}
			if res.Solid.NumTriangles() <= tpl.Solid.NumTriangles() {
				t.Errorf("NumTriangles() = %d, want more than base %d", res.Solid.NumTriangles(), tpl.Solid.NumTriangles())
			}
			got := res.Solid.Volume() - tpl.Solid.Volume()
			if math.Abs(got-tt.delta) > 1e-6 {
				t.Errorf("volume change = %v, want %v", got, tt.delta)
			}
		})
	}
}

func TestBuildBottomKeepsFootprint(t *testing.T) {
	tpl := base(t, template.EP133)
	res, err := solid.Build(context.Background(), tpl.Solid, frame(), solid.Options{DepthMm: 1, Face: solid.FaceBottom})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	gotMin, gotMax := res.Solid.Bounds()
	wantMin, wantMax := tpl.Solid.Bounds()
	if gotMin != wantMin || gotMax != wantMax {
		t.Errorf("Bounds() = %v..%v, want %v..%v", gotMin, gotMax, wantMin, wantMax)
	}
}

func TestBuildEmptyShapeReturnsBase(t *testing.T) {
	tpl := base(t, template.EP133)
	res, err := solid.Build(context.Background(), tpl.Solid, planar.Shape{}, solid.Options{DepthMm: 0.8})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.Solid.Hash() != tpl.Hash {
		t.Error("empty legend changed the base solid")
	}
	if res.Solid == tpl.Solid {
		t.Error("Build() returned the base itself instead of a copy")
	}
	if res.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", res.Attempts)
	}
}

func TestBuildRejectsOptions(t *testing.T) {
	tpl := base(t, template.EP133)
	tests := []struct {
		name string
		opts solid.Options
	}{
		{"zero depth", solid.Options{}},
		{"negative depth", solid.Options{DepthMm: -1}},
		{"nan depth", solid.Options{DepthMm: math.NaN()}},
		{"unknown mode", solid.Options{DepthMm: 1, Mode: "carve"}},
		{"unknown face", solid.Options{DepthMm: 1, Face: "side"}},
		{"through the face", solid.Options{DepthMm: 2, MaxDepthMm: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := solid.Build(context.Background(), tpl.Solid, frame(), tt.opts)
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("Build() error = %v, want %s", err, errors.ErrCodeInvalidConfig)
			}
		})
	}
}

func TestBuildClipsLegendToFace(t *testing.T) {
	tpl := base(t, template.EP133)
	region, err := solid.FaceRegion(tpl.Solid, solid.FaceTop, solid.DefaultMarginMm)
	if err != nil {
		t.Fatalf("FaceRegion() error = %v", err)
	}
	tests := []struct {
		name  string
		shape planar.Shape
		delta float64
	}{
		{"larger than face", planar.Shape{Contours: []planar.Contour{square(0, 0, 30)}}, -region.SignedArea() * 0.8},
		// The face edge is at x=7.2, so 1.7mm of the 4mm square remain.
		{"crossing the edge", planar.Shape{Contours: []planar.Contour{square(7, 0, 4)}}, -1.7 * 4 * 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := solid.Build(context.Background(), tpl.Solid, tt.shape, solid.Options{DepthMm: 0.8})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			checkSolid(t, res.Solid)
			if got := res.Solid.Volume() - tpl.Solid.Volume(); math.Abs(got-tt.delta) > 1e-6 {
				t.Errorf("volume change = %v, want %v", got, tt.delta)
			}
			if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "clipped") {
				t.Errorf("Warnings = %v, want one clipping warning", res.Warnings)
			}
		})
	}
}

func TestBuildLegendOutsideFace(t *testing.T) {
	tpl := base(t, template.EP133)
	_, err := solid.Build(context.Background(), tpl.Solid,
		planar.Shape{Contours: []planar.Contour{square(40, 40, 2)}}, solid.Options{DepthMm: 0.8})
	if !errors.Is(err, errors.ErrCodeBooleanFailure) {
		t.Errorf("Build() error = %v, want %s", err, errors.ErrCodeBooleanFailure)
	}
	if !errors.Recoverable(err) {
		t.Error("boolean failure is not recoverable")
	}
}

// knotted is a 4mm square whose bottom edge ties a knot 0.03mm across:
// self-intersecting until points 0.05mm apart are welded.
func knotted() planar.Shape {
	return planar.Shape{Contours: []planar.Contour{{
		model2d.XY(-2, -2), model2d.XY(0, -2), model2d.XY(0.03, -1.97),
		model2d.XY(0.03, -2), model2d.XY(0, -1.97), model2d.XY(2, -2),
		model2d.XY(2, 2), model2d.XY(-2, 2),
	}}}
}

func TestBuildRetriesWithLargerEpsilon(t *testing.T) {
	tpl := base(t, template.EP133)
	tests := []struct {
		name         string
		epsilon      float64
		wantAttempts int
	}{
		{"second attempt welds the knot", solid.DefaultEpsilon, 2},
		{"first attempt welds the knot", 0.05, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := solid.Build(context.Background(), tpl.Solid, knotted(), solid.Options{DepthMm: 1, Epsilon: tt.epsilon})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if res.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", res.Attempts, tt.wantAttempts)
			}
			checkSolid(t, res.Solid)
			if got := res.Solid.Volume() - tpl.Solid.Volume(); math.Abs(got+16) > 1e-6 {
				t.Errorf("volume change = %v, want -16", got)
			}
		})
	}

	_, err := solid.Build(context.Background(), tpl.Solid, knotted(), solid.Options{DepthMm: 1, Epsilon: 0.001})
	if !errors.Is(err, errors.ErrCodeBooleanFailure) {
		t.Errorf("Build(epsilon 0.001) error = %v, want %s after both attempts", err, errors.ErrCodeBooleanFailure)
	}
}

func TestBuildStopsWhenCanceled(t *testing.T) {
	tpl := base(t, template.EP133)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := solid.Build(ctx, tpl.Solid, frame(), solid.Options{DepthMm: 0.8})
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Errorf("Build() error = %v, want %s", err, errors.ErrCodeTimeout)
	}
	if errors.Recoverable(err) {
		t.Error("canceled build is recoverable, want it to end the item")
	}
}

func TestFaceRegion(t *testing.T) {
	tpl := base(t, template.EP133)
	tests := []struct {
		name   string
		margin float64
		want   float64 // half width
	}{
		{"default margin", solid.DefaultMarginMm, 7.2 - solid.DefaultMarginMm},
		{"wide margin", 2, 5.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region, err := solid.FaceRegion(tpl.Solid, solid.FaceTop, tt.margin)
			if err != nil {
				t.Fatalf("FaceRegion() error = %v", err)
			}
			b := region.Bounds()
			if math.Abs(b.Width()-2*tt.want) > 1e-9 || math.Abs(b.Height()-2*tt.want) > 1e-9 {
				t.Errorf("Bounds() = %v, want %v wide", b, 2*tt.want)
			}
			if region.SignedArea() <= 0 {
				t.Error("region is not counter-clockwise")
			}
		})
	}
	if _, err := solid.FaceRegion(tpl.Solid, solid.FaceTop, 8); !errors.Is(err, errors.ErrCodeBooleanFailure) {
		t.Errorf("FaceRegion(8) error = %v, want %s", err, errors.ErrCodeBooleanFailure)
	}
}

func TestBuildGlyphLegends(t *testing.T) {
	f, err := atlas.Load(goregular.TTF)
	if err != nil {
		t.Fatalf("atlas.Load() error = %v", err)
	}
	tpl := base(t, template.EP133)
	center, err := tpl.FaceCenter(solid.FaceTop)
	if err != nil {
		t.Fatalf("FaceCenter() error = %v", err)
	}

	tests := []struct {
		text string
		mode solid.Mode
	}{
		{"5", solid.ModeEngrave},
		{"8", solid.ModeEngrave},
		{"O", solid.ModeEmboss},
		{"+", solid.ModeEngrave},
		{"A", solid.ModeEmboss},
	}
	for _, tt := range tests {
		t.Run(tt.text+"/"+string(tt.mode), func(t *testing.T) {
			lay, err := layout.Layout(f, tt.text, layout.Options{SizeMm: 10, Center: center})
			if err != nil {
				t.Fatalf("Layout() error = %v", err)
			}
			res, err := solid.Build(context.Background(), tpl.Solid, lay.Shape, solid.Options{DepthMm: 0.8, Mode: tt.mode, MaxDepthMm: tpl.MaxDepth(solid.FaceTop)})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			checkSolid(t, res.Solid)
			if res.Solid.NumTriangles() <= tpl.Solid.NumTriangles() {
				t.Errorf("NumTriangles() = %d, want more than %d", res.Solid.NumTriangles(), tpl.Solid.NumTriangles())
			}
			delta := res.Solid.Volume() - tpl.Solid.Volume()
			if tt.mode == solid.ModeEngrave && delta >= 0 {
				t.Errorf("engraving changed volume by %v", delta)
			}
			if tt.mode == solid.ModeEmboss && delta <= 0 {
				t.Errorf("embossing changed volume by %v", delta)
			}
		})
	}
}

func TestBuildKeepsOverlappingGlyphContours(t *testing.T) {
	// The ogonek of U+0172 overlaps the U in Go Mono Bold.
	f, err := atlas.Load(gomonobold.TTF)
	if err != nil {
		t.Fatalf("atlas.Load() error = %v", err)
	}
	tpl := base(t, template.EP133)
	lay, err := layout.Layout(f, "\u0172", layout.Options{SizeMm: 8})
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	res, err := solid.Build(context.Background(), tpl.Solid, lay.Shape, solid.Options{DepthMm: 0.8})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	checkSolid(t, res.Solid)
	for _, w := range res.Warnings {
		if strings.Contains(w, "dropped") {
			t.Errorf("warning %q, want every contour kept", w)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	tpl := base(t, template.EP133)
	a, err := solid.Build(context.Background(), tpl.Solid, frame(), solid.Options{DepthMm: 0.8})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b, _ := solid.Build(context.Background(), tpl.Solid, frame(), solid.Options{DepthMm: 0.8})
	if a.Solid.Hash() != b.Solid.Hash() {
		t.Error("Build() is not deterministic")
	}
}
