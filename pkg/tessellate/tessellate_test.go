package tessellate

import (
	"math"
	"reflect"
	"testing"

	"github.com/unixpickle/model3d/model2d"

	"github.com/matzehuels/keyforge/pkg/planar"
)

func square(x, y, size float64) planar.Contour {
	return planar.Contour{
		model2d.XY(x, y),
		model2d.XY(x+size, y),
		model2d.XY(x+size, y+size),
		model2d.XY(x, y+size),
	}
}

func checkMesh(t *testing.T, m *Mesh2D, wantArea float64) {
	t.Helper()
	if got := m.Area(); math.Abs(got-wantArea) > 1e-9 {
		t.Errorf("Area() = %v, want %v", got, wantArea)
	}
	used := make(map[int]bool)
	for _, tri := range m.Triangles {
		for _, idx := range tri {
			if idx < 0 || idx >= len(m.Points) {
				t.Fatalf("triangle index %d out of range", idx)
			}
			used[idx] = true
		}
		if planar.Orient(m.Points[tri[0]], m.Points[tri[1]], m.Points[tri[2]]) < 0 {
			t.Errorf("triangle %v is clockwise", tri)
		}
	}
	if len(used) != len(m.Points) {
		t.Errorf("triangles use %d of %d points", len(used), len(m.Points))
	}
}

func TestTessellate(t *testing.T) {
	tests := []struct {
		name     string
		contours []planar.Contour
		wantArea float64
	}{
		{
			name:     "square",
			contours: []planar.Contour{square(0, 0, 1)},
			wantArea: 1,
		},
		{
			name:     "clockwise square",
			contours: []planar.Contour{square(0, 0, 2).Reversed()},
			wantArea: 4,
		},
		{
			name:     "square with hole",
			contours: []planar.Contour{square(0, 0, 10), square(2, 2, 6)},
			wantArea: 64,
		},
		{
			name:     "island inside hole",
			contours: []planar.Contour{square(0, 0, 10), square(2, 2, 6), square(4, 4, 2)},
			wantArea: 68,
		},
		{
			name:     "two holes",
			contours: []planar.Contour{square(0, 0, 10), square(1, 1, 3), square(6, 6, 3)},
			wantArea: 82,
		},
		{
			name: "concave L",
			contours: []planar.Contour{{
				model2d.XY(0, 0), model2d.XY(3, 0), model2d.XY(3, 1),
				model2d.XY(1, 1), model2d.XY(1, 3), model2d.XY(0, 3),
			}},
			wantArea: 5,
		},
		{
			name:     "separate glyphs",
			contours: []planar.Contour{square(0, 0, 1), square(3, 0, 1), square(3.25, 0.25, 0.5)},
			wantArea: 1.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, warnings, err := Tessellate(planar.Shape{Contours: tt.contours})
			if err != nil {
				t.Fatalf("Tessellate() error = %v", err)
			}
			if len(warnings) != 0 {
				t.Errorf("warnings = %v, want none", warnings)
			}
			checkMesh(t, m, tt.wantArea)
		})
	}
}

func TestTessellateDeterministic(t *testing.T) {
	shape := planar.Shape{Contours: []planar.Contour{square(0, 0, 10), square(2, 2, 3), square(6, 5, 2)}}
	a, _, errA := Tessellate(shape)
	b, _, errB := Tessellate(shape)
	if errA != nil || errB != nil {
		t.Fatalf("Tessellate() errors = %v, %v", errA, errB)
	}
	if !reflect.DeepEqual(a.Triangles, b.Triangles) {
		t.Error("identical input produced different triangles")
	}
}

func TestLoopsOriented(t *testing.T) {
	shape := planar.Shape{Contours: []planar.Contour{square(0, 0, 10).Reversed(), square(2, 2, 6).Reversed()}}
	m, _, err := Tessellate(shape)
	if err != nil {
		t.Fatalf("Tessellate() error = %v", err)
	}
	wantDepth := []int{0, 1}
	if !reflect.DeepEqual(m.Depth, wantDepth) {
		t.Errorf("Depth = %v, want %v", m.Depth, wantDepth)
	}
	for i, loop := range m.Loops {
		c := make(planar.Contour, len(loop))
		for k, idx := range loop {
			c[k] = m.Points[idx]
		}
		if ccw := c.SignedArea() > 0; ccw != (m.Depth[i] == 0) {
			t.Errorf("loop %d ccw = %v at depth %d", i, ccw, m.Depth[i])
		}
	}
}

func TestCleanDropsDegenerateContours(t *testing.T) {
	bowtie := planar.Contour{model2d.XY(0, 0), model2d.XY(2, 2), model2d.XY(2, 0), model2d.XY(0, 2)}
	shape := planar.Shape{Contours: []planar.Contour{
		square(10, 10, 1),
		{model2d.XY(0, 0), model2d.XY(1, 1)},
		square(20, 20, 1e-4),
		bowtie,
	}}

	clean, warnings := Clean(shape)
	if len(clean.Contours) != 1 {
		t.Fatalf("kept %d contours, want 1", len(clean.Contours))
	}
	if len(warnings) != 3 {
		t.Fatalf("warnings = %v, want 3", warnings)
	}
	for i, want := range []int{1, 2, 3} {
		if warnings[i].Contour != want {
			t.Errorf("warnings[%d].Contour = %d, want %d", i, warnings[i].Contour, want)
		}
	}
}

func TestCleanDropsSmallerIntersectingContour(t *testing.T) {
	shape := planar.Shape{Contours: []planar.Contour{square(0, 0, 1).Reversed(), square(0.5, 0.5, 4)}}
	clean, warnings := Clean(shape)
	if len(clean.Contours) != 1 || len(warnings) != 1 {
		t.Fatalf("kept %d contours with %d warnings, want 1 and 1", len(clean.Contours), len(warnings))
	}
	if warnings[0].Contour != 0 {
		t.Errorf("dropped contour %d, want 0", warnings[0].Contour)
	}
	if got := math.Abs(clean.Contours[0].SignedArea()); got != 16 {
		t.Errorf("kept area = %v, want 16", got)
	}
}

func TestCleanMergesOverlappingContours(t *testing.T) {
	// An accent drawn over its base letter, as in U+0172.
	tests := []struct {
		name     string
		contours []planar.Contour
		want     int
		wantArea float64
	}{
		{"overlapping squares", []planar.Contour{square(0, 0, 1), square(0.5, 0.5, 4)}, 1, 16.75},
		{"clockwise", []planar.Contour{square(0, 0, 1).Reversed(), square(0.5, 0.5, 4).Reversed()}, 1, 16.75},
		{"chain of three", []planar.Contour{square(0, 0, 2), square(5, 0, 2), square(1, 1, 5)}, 1, 4 + 4 + 25 - 1 - 1},
		{"merged beside separate", []planar.Contour{square(0, 0, 2), square(1, 0, 2), square(10, 0, 1)}, 2, 6 + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean, warnings := Clean(planar.Shape{Contours: tt.contours})
			if len(warnings) != 0 {
				t.Errorf("warnings = %v, want none", warnings)
			}
			if len(clean.Contours) != tt.want {
				t.Fatalf("kept %d contours, want %d", len(clean.Contours), tt.want)
			}
			m, _, err := Tessellate(planar.Shape{Contours: tt.contours})
			if err != nil {
				t.Fatalf("Tessellate() error = %v", err)
			}
			checkMesh(t, m, tt.wantArea)
		})
	}
}

func TestCleanSimplifies(t *testing.T) {
	c := planar.Contour{
		model2d.XY(0, 0), model2d.XY(0, 0), model2d.XY(1, 0), model2d.XY(2, 0),
		model2d.XY(2, 2), model2d.XY(0, 2), model2d.XY(0, 0),
	}
	clean, warnings := Clean(planar.Shape{Contours: []planar.Contour{c}})
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if got := len(clean.Contours[0]); got != 4 {
		t.Errorf("len = %d, want 4", got)
	}
}

func TestTriangulateKeepsCollinearPoints(t *testing.T) {
	points := []model2d.Coord{
		model2d.XY(0, 0), model2d.XY(1, 0), model2d.XY(2, 0),
		model2d.XY(2, 1), model2d.XY(0, 1),
	}
	tris, err := Triangulate(points, [][]int{{0, 1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("Triangulate() error = %v", err)
	}
	checkMesh(t, &Mesh2D{Points: points, Triangles: tris}, 2)
	if len(tris) != 3 {
		t.Errorf("len(tris) = %d, want 3", len(tris))
	}
}

func TestTriangulateSharedPointList(t *testing.T) {
	// A face ring with a text hole, as the solid builder passes it.
	points := []model2d.Coord{
		model2d.XY(-5, -5), model2d.XY(5, -5), model2d.XY(5, 5), model2d.XY(-5, 5),
		model2d.XY(-1, -1), model2d.XY(-1, 1), model2d.XY(1, 1), model2d.XY(1, -1),
	}
	tris, err := Triangulate(points, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}})
	if err != nil {
		t.Fatalf("Triangulate() error = %v", err)
	}
	checkMesh(t, &Mesh2D{Points: points, Triangles: tris}, 96)
}

func TestEmptyShape(t *testing.T) {
	m, warnings, err := Tessellate(planar.Shape{})
	if err != nil || len(warnings) != 0 {
		t.Fatalf("Tessellate(empty) = %v, %v", warnings, err)
	}
	if len(m.Triangles) != 0 {
		t.Errorf("len(Triangles) = %d, want 0", len(m.Triangles))
	}
}
