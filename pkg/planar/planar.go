// Package planar models 2D polygon sets: the laid-out legend of a keycap
// before it is tessellated and extruded.
//
// A [Shape] is an ordered list of closed [Contour]s. Contours carry no
// explicit fill flag; whether a contour bounds material or a hole is decided
// by even-odd nesting (see [Classify]), and its winding is normalized so
// outer boundaries run counter-clockwise and holes clockwise.
//
// Coordinates are millimetres in a Y-up frame once a shape leaves the layout
// engine; the atlas uses the same types in font design units.
package planar

import (
	"math"

	"github.com/unixpickle/model3d/model2d"
)

// Contour is a closed polyline. The closing edge from the last point back to
// the first is implicit.
type Contour []model2d.Coord

// SignedArea returns the shoelace area of c. Counter-clockwise contours have
// positive area.
func (c Contour) SignedArea() float64 {
	var sum float64
	for i, p := range c {
		q := c[(i+1)%len(c)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return sum / 2
}

// Reversed returns a copy of c with the opposite winding.
func (c Contour) Reversed() Contour {
	out := make(Contour, len(c))
	for i, p := range c {
		out[len(c)-1-i] = p
	}
	return out
}

// Bounds returns the axis-aligned bounding box of c.
func (c Contour) Bounds() Rect {
	r := EmptyRect()
	for _, p := range c {
		r = r.Extend(p)
	}
	return r
}

// Transform applies p*scale + offset to every point.
func (c Contour) Transform(scale float64, offset model2d.Coord) Contour {
	out := make(Contour, len(c))
	for i, p := range c {
		out[i] = p.Scale(scale).Add(offset)
	}
	return out
}

// Contains reports whether p lies inside c under the even-odd rule.
// Points exactly on the boundary may be reported either way.
func (c Contour) Contains(p model2d.Coord) bool {
	inside := false
	for i, j := 0, len(c)-1; i < len(c); j, i = i, i+1 {
		a, b := c[i], c[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	Min, Max model2d.Coord
}

// EmptyRect returns a rectangle that contains nothing; extending it with a
// point yields that point's degenerate box.
func EmptyRect() Rect {
	return Rect{
		Min: model2d.XY(math.Inf(1), math.Inf(1)),
		Max: model2d.XY(math.Inf(-1), math.Inf(-1)),
	}
}

// IsEmpty reports whether r contains no points.
func (r Rect) IsEmpty() bool {
	return r.Min.X > r.Max.X || r.Min.Y > r.Max.Y
}

// Extend grows r to include p.
func (r Rect) Extend(p model2d.Coord) Rect {
	return Rect{
		Min: model2d.XY(math.Min(r.Min.X, p.X), math.Min(r.Min.Y, p.Y)),
		Max: model2d.XY(math.Max(r.Max.X, p.X), math.Max(r.Max.Y, p.Y)),
	}
}

// Union returns the smallest rectangle containing r and o.
func (r Rect) Union(o Rect) Rect {
	if o.IsEmpty() {
		return r
	}
	return r.Extend(o.Min).Extend(o.Max)
}

// ContainsRect reports whether o lies within r. An empty o is contained in
// any r.
func (r Rect) ContainsRect(o Rect) bool {
	if o.IsEmpty() {
		return true
	}
	return o.Min.X >= r.Min.X && o.Min.Y >= r.Min.Y && o.Max.X <= r.Max.X && o.Max.Y <= r.Max.Y
}

// Center returns the midpoint of r.
func (r Rect) Center() model2d.Coord {
	return r.Min.Add(r.Max).Scale(0.5)
}

// Width returns the horizontal extent of r.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical extent of r.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Shape is a set of closed contours forming one planar region.
type Shape struct {
	Contours []Contour
}

// IsEmpty reports whether s has no contours. An empty shape means "nothing
// to engrave" and is not an error.
func (s Shape) IsEmpty() bool {
	return len(s.Contours) == 0
}

// Bounds returns the bounding box of all contours.
func (s Shape) Bounds() Rect {
	r := EmptyRect()
	for _, c := range s.Contours {
		r = r.Union(c.Bounds())
	}
	return r
}

// Transform returns a copy of s with every contour scaled and offset.
func (s Shape) Transform(scale float64, offset model2d.Coord) Shape {
	out := Shape{Contours: make([]Contour, len(s.Contours))}
	for i, c := range s.Contours {
		out.Contours[i] = c.Transform(scale, offset)
	}
	return out
}

// Translate returns a copy of s moved by d.
func (s Shape) Translate(d model2d.Coord) Shape {
	return s.Transform(1, d)
}

// Area returns the even-odd filled area of s.
func (s Shape) Area() float64 {
	depth := Classify(s.Contours)
	var total float64
	for i, c := range s.Contours {
		a := math.Abs(c.SignedArea())
		if depth[i]%2 == 0 {
			total += a
		} else {
			total -= a
		}
	}
	return total
}
