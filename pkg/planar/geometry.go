package planar

import (
	"math"

	"github.com/unixpickle/model3d/model2d"
)

// Orient returns twice the signed area of triangle (a, b, c): positive when
// the points turn counter-clockwise, zero when collinear.
func Orient(a, b, c model2d.Coord) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// SegmentsIntersect reports whether the closed segments p1p2 and q1q2 share
// at least one point.
func SegmentsIntersect(p1, p2, q1, q2 model2d.Coord) bool {
	d1 := Orient(q1, q2, p1)
	d2 := Orient(q1, q2, p2)
	d3 := Orient(p1, p2, q1)
	d4 := Orient(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

// onSegment reports whether p, known to be collinear with ab, lies within
// the segment's bounding box.
func onSegment(a, b, p model2d.Coord) bool {
	return math.Min(a.X, b.X) <= p.X && p.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= p.Y && p.Y <= math.Max(a.Y, b.Y)
}

// SelfIntersects reports whether any two non-adjacent edges of c touch.
func (c Contour) SelfIntersects() bool {
	n := len(c)
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := c[i], c[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if SegmentsIntersect(a1, a2, c[j], c[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}

// Intersects reports whether any edge of c touches any edge of o.
func (c Contour) Intersects(o Contour) bool {
	if !boundsOverlap(c.Bounds(), o.Bounds()) {
		return false
	}
	for i := range c {
		a1, a2 := c[i], c[(i+1)%len(c)]
		for j := range o {
			if SegmentsIntersect(a1, a2, o[j], o[(j+1)%len(o)]) {
				return true
			}
		}
	}
	return false
}

func boundsOverlap(a, b Rect) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y
}

// Classify returns the even-odd nesting depth of every contour: the number
// of other contours containing it. Even depths bound material, odd depths
// bound holes. Contours must not intersect each other.
func Classify(contours []Contour) []int {
	depth := make([]int, len(contours))
	for i, c := range contours {
		if len(c) == 0 {
			continue
		}
		p := c[0]
		for j, o := range contours {
			if i != j && len(o) >= 3 && o.Contains(p) {
				depth[i]++
			}
		}
	}
	return depth
}

// Parents returns, for every contour, the index of the innermost contour
// containing it, or -1 for top-level contours. depth must come from
// [Classify] over the same contours.
func Parents(contours []Contour, depth []int) []int {
	parent := make([]int, len(contours))
	for i, c := range contours {
		parent[i] = -1
		if depth[i] == 0 || len(c) == 0 {
			continue
		}
		for j, o := range contours {
			if i != j && depth[j] == depth[i]-1 && o.Contains(c[0]) {
				parent[i] = j
				break
			}
		}
	}
	return parent
}

// Normalize returns copies of contours wound by their nesting depth: even
// depths counter-clockwise, odd depths clockwise.
func Normalize(contours []Contour, depth []int) []Contour {
	out := make([]Contour, len(contours))
	for i, c := range contours {
		ccw := c.SignedArea() > 0
		if ccw == (depth[i]%2 == 0) {
			out[i] = append(Contour(nil), c...)
		} else {
			out[i] = c.Reversed()
		}
	}
	return out
}
