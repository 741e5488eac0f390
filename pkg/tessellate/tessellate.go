// Package tessellate converts planar shapes with holes into triangle meshes.
//
// Triangulation is ear clipping with hole bridging over a fixed traversal
// order, so identical input always yields identical triangles. No Steiner
// points are inserted: every output triangle indexes into the caller's
// point list, which lets the solid builder stitch the triangles onto shared
// vertices.
package tessellate

import (
	stderrors "errors"
	"fmt"
	"math"

	"github.com/unixpickle/model3d/model2d"

	"github.com/matzehuels/keyforge/pkg/planar"
)

// AreaEpsilon is the smallest contour area, in mm², kept by [Clean].
const AreaEpsilon = 1e-6

// ErrIncomplete is returned when a polygon could not be fully triangulated.
var ErrIncomplete = stderrors.New("triangulation incomplete")

// Warning records a contour dropped during cleanup. Contour indexes the
// shape passed to [Clean] or [Tessellate].
type Warning struct {
	Contour int
	Reason  string
}

func (w Warning) String() string {
	return fmt.Sprintf("contour %d dropped: %s", w.Contour, w.Reason)
}

// Mesh2D is a triangulated planar region.
type Mesh2D struct {
	Points    []model2d.Coord
	Triangles [][3]int
	// Loops are the boundary loops over Points, wound with the material on
	// the left: outer boundaries counter-clockwise, holes clockwise.
	Loops [][]int
	Depth []int
}

// Area returns the total area covered by the triangles.
func (m *Mesh2D) Area() float64 {
	var total float64
	for _, t := range m.Triangles {
		total += planar.Orient(m.Points[t[0]], m.Points[t[1]], m.Points[t[2]]) / 2
	}
	return total
}

// Clean removes repeated and collinear points and drops contours that
// cannot be triangulated: fewer than three points, near-zero area, or
// self-intersecting. Overlapping contours wound the same way are merged
// into their union. Of two contours wound oppositely that cross each other,
// the smaller is dropped.
func Clean(shape planar.Shape) (planar.Shape, []Warning) {
	var warnings []Warning
	kept := make([]planar.Contour, len(shape.Contours))
	alive := make([]bool, len(shape.Contours))

	for i, c := range shape.Contours {
		c = simplify(c)
		if reason := unusable(c); reason != "" {
			warnings = append(warnings, Warning{i, reason})
			continue
		}
		kept[i] = c
		alive[i] = true
	}

	contours, origin := mergeOverlaps(kept, alive)

	live := make([]bool, len(contours))
	for i := range live {
		live[i] = true
	}
	for i := range contours {
		for j := i + 1; j < len(contours) && live[i]; j++ {
			if !live[j] || !contours[i].Intersects(contours[j]) {
				continue
			}
			drop, other := j, i
			if math.Abs(contours[i].SignedArea()) < math.Abs(contours[j].SignedArea()) {
				drop, other = i, j
			}
			live[drop] = false
			warnings = append(warnings, Warning{origin[drop], fmt.Sprintf("intersects contour %d", origin[other])})
		}
	}

	var out planar.Shape
	for i, c := range contours {
		if live[i] {
			out.Contours = append(out.Contours, c)
		}
	}
	return out, warnings
}

func unusable(c planar.Contour) string {
	switch {
	case len(c) < 3:
		return "fewer than 3 points"
	case math.Abs(c.SignedArea()) < AreaEpsilon:
		return "area below epsilon"
	case c.SelfIntersects():
		return "self-intersecting"
	}
	return ""
}

// mergeOverlaps replaces every group of touching contours wound the same way
// with the outline of their union, wound like the group. origin maps each
// returned contour to the lowest input index of its group.
func mergeOverlaps(kept []planar.Contour, alive []bool) ([]planar.Contour, []int) {
	root := make([]int, len(kept))
	for i := range root {
		root[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if root[i] != i {
			root[i] = find(root[i])
		}
		return root[i]
	}
	for i := range kept {
		for j := i + 1; j < len(kept); j++ {
			if !alive[i] || !alive[j] {
				continue
			}
			if (kept[i].SignedArea() > 0) != (kept[j].SignedArea() > 0) || !kept[i].Intersects(kept[j]) {
				continue
			}
			if ri, rj := find(i), find(j); ri != rj {
				root[max(ri, rj)] = min(ri, rj)
			}
		}
	}

	groups := make(map[int][]planar.Contour)
	for i, c := range kept {
		if alive[i] {
			groups[find(i)] = append(groups[find(i)], c)
		}
	}
	var out []planar.Contour
	var origin []int
	for i := range kept {
		if !alive[i] || find(i) != i {
			continue
		}
		group := groups[i]
		if len(group) > 1 {
			ccw := group[0].SignedArea() > 0
			group = planar.Union(group)
			for k, c := range group {
				c = simplify(c)
				if !ccw {
					c = c.Reversed()
				}
				group[k] = c
			}
		}
		for _, c := range group {
			if unusable(c) == "" {
				out = append(out, c)
				origin = append(origin, i)
			}
		}
	}
	return out, origin
}

// simplify drops consecutive duplicates and points lying on the line
// through their neighbours.
func simplify(c planar.Contour) planar.Contour {
	out := make(planar.Contour, 0, len(c))
	for _, p := range c {
		if len(out) == 0 || out[len(out)-1] != p {
			out = append(out, p)
		}
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}

	for changed := true; changed && len(out) >= 3; {
		changed = false
		for i := 0; i < len(out) && len(out) >= 3; i++ {
			a := out[(i+len(out)-1)%len(out)]
			b := out[i]
			c := out[(i+1)%len(out)]
			if collinear(a, b, c) {
				out = append(out[:i], out[i+1:]...)
				changed = true
				i--
			}
		}
	}
	return out
}

func collinear(a, b, c model2d.Coord) bool {
	ab, bc := b.Sub(a), c.Sub(b)
	return math.Abs(planar.Orient(a, b, c)) <= 1e-12*ab.Norm()*bc.Norm()
}

// Tessellate cleans shape and triangulates the result. The returned mesh is
// usable even when err is non-nil; err wraps [ErrIncomplete].
func Tessellate(shape planar.Shape) (*Mesh2D, []Warning, error) {
	clean, warnings := Clean(shape)

	m := &Mesh2D{}
	loops := make([][]int, len(clean.Contours))
	for i, c := range clean.Contours {
		loops[i] = make([]int, len(c))
		for k, p := range c {
			loops[i][k] = len(m.Points)
			m.Points = append(m.Points, p)
		}
	}

	tris, err := Triangulate(m.Points, loops)
	m.Triangles = tris
	m.Loops, m.Depth = OrientLoops(m.Points, loops)
	return m, warnings, err
}

// OrientLoops classifies loops by even-odd nesting and returns copies wound
// with the filled side on the left, along with each loop's depth.
func OrientLoops(points []model2d.Coord, loops [][]int) ([][]int, []int) {
	contours := loopContours(points, loops)
	depth := planar.Classify(contours)
	out := make([][]int, len(loops))
	for i, loop := range loops {
		ccw := contours[i].SignedArea() > 0
		if ccw == (depth[i]%2 == 0) {
			out[i] = append([]int(nil), loop...)
			continue
		}
		out[i] = make([]int, len(loop))
		for k, idx := range loop {
			out[i][len(loop)-1-k] = idx
		}
	}
	return out, depth
}

// Triangulate fills the region bounded by loops under the even-odd rule.
// Loops index into points and must not cross each other; every vertex of
// every loop is kept. Triangles are counter-clockwise.
func Triangulate(points []model2d.Coord, loops [][]int) ([][3]int, error) {
	contours := loopContours(points, loops)
	depth := planar.Classify(contours)
	parent := planar.Parents(contours, depth)

	var tris [][3]int
	for i, loop := range loops {
		if depth[i]%2 != 0 || len(loop) < 3 {
			continue
		}

		want := math.Abs(contours[i].SignedArea())
		outer := linkedList(points, loop, true)
		var holes []*node
		for j, h := range loops {
			if parent[j] == i && len(h) >= 3 {
				holes = append(holes, linkedList(points, h, false))
				want -= math.Abs(contours[j].SignedArea())
			}
		}
		if len(holes) > 0 {
			outer = eliminateHoles(holes, outer)
		}

		start := len(tris)
		ok := earcutLinked(outer, &tris, 0)

		var got float64
		for _, t := range tris[start:] {
			got += planar.Orient(points[t[0]], points[t[1]], points[t[2]]) / 2
		}
		if !ok || math.Abs(got-want) > 1e-6*math.Max(1, want) {
			return tris, fmt.Errorf("%w: loop %d covers %.6g of %.6g", ErrIncomplete, i, got, want)
		}
	}
	return tris, nil
}

func loopContours(points []model2d.Coord, loops [][]int) []planar.Contour {
	contours := make([]planar.Contour, len(loops))
	for i, loop := range loops {
		contours[i] = make(planar.Contour, len(loop))
		for k, idx := range loop {
			contours[i][k] = points[idx]
		}
	}
	return contours
}
