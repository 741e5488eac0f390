package planar

import (
	"math"
	"sort"

	"github.com/unixpickle/model3d/model2d"
)

// sideOffset is how far from an edge, in mm, its two sides are sampled when
// classifying it.
const sideOffset = 1e-7

// Union returns the outline of the region covered under the nonzero winding
// rule: overlapping contours wound the same way merge into one. Outer
// boundaries of the result run counter-clockwise and holes clockwise.
func Union(contours []Contour) []Contour {
	return outline(contours, func(p model2d.Coord) bool {
		return Winding(contours, p) != 0
	})
}

// Intersect returns the outline of the part of the even-odd region of
// contours that lies inside clip, wound like [Union].
func Intersect(contours []Contour, clip Contour) []Contour {
	all := append(append([]Contour(nil), contours...), clip)
	return outline(all, func(p model2d.Coord) bool {
		return evenOdd(contours, p) && clip.Contains(p)
	})
}

// Winding returns the winding number of contours around p.
func Winding(contours []Contour, p model2d.Coord) int {
	w := 0
	for _, c := range contours {
		for i, a := range c {
			b := c[(i+1)%len(c)]
			if a.Y <= p.Y {
				if b.Y > p.Y && Orient(a, b, p) > 0 {
					w++
				}
			} else if b.Y <= p.Y && Orient(a, b, p) < 0 {
				w--
			}
		}
	}
	return w
}

func evenOdd(contours []Contour, p model2d.Coord) bool {
	in := false
	for _, c := range contours {
		if c.Contains(p) {
			in = !in
		}
	}
	return in
}

type segment struct {
	a, b model2d.Coord
}

func (s segment) bounds() Rect {
	return EmptyRect().Extend(s.a).Extend(s.b)
}

// outline splits every edge at every crossing and keeps the pieces with
// filled on exactly one side, directed so the filled side is on the left.
func outline(contours []Contour, filled func(model2d.Coord) bool) []Contour {
	var edges []segment
	for _, s := range split(contours) {
		d := s.b.Sub(s.a)
		n := d.Norm()
		off := model2d.XY(-d.Y, d.X).Scale(math.Min(sideOffset, n/64) / n)
		mid := s.a.Add(s.b).Scale(0.5)
		left, right := filled(mid.Add(off)), filled(mid.Sub(off))
		switch {
		case left && !right:
			edges = append(edges, s)
		case right && !left:
			edges = append(edges, segment{s.b, s.a})
		}
	}
	return chain(edges)
}

// split returns the edges of contours cut at every point where they touch
// another edge. Coincident pieces are returned once.
func split(contours []Contour) []segment {
	var edges []segment
	for _, c := range contours {
		for i, a := range c {
			if b := c[(i+1)%len(c)]; a != b {
				edges = append(edges, segment{a, b})
			}
		}
	}

	cuts := make([][]model2d.Coord, len(edges))
	for i := range edges {
		bi := edges[i].bounds()
		for j := i + 1; j < len(edges); j++ {
			if !boundsOverlap(bi, edges[j].bounds()) {
				continue
			}
			for _, p := range crossings(edges[i], edges[j]) {
				cuts[i] = append(cuts[i], p)
				cuts[j] = append(cuts[j], p)
			}
		}
	}

	seen := make(map[segment]bool)
	var out []segment
	for i, e := range edges {
		d := e.b.Sub(e.a)
		pts := append([]model2d.Coord{e.a}, cuts[i]...)
		pts = append(pts, e.b)
		sort.SliceStable(pts, func(x, y int) bool {
			return pts[x].Sub(e.a).Dot(d) < pts[y].Sub(e.a).Dot(d)
		})
		for k := 1; k < len(pts); k++ {
			s := segment{pts[k-1], pts[k]}
			if s.a == s.b {
				continue
			}
			key := s
			if key.b.X < key.a.X || (key.b.X == key.a.X && key.b.Y < key.a.Y) {
				key = segment{s.b, s.a}
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

// crossings returns the points where e and f touch: their crossing point,
// or the endpoints of one lying on the other.
func crossings(e, f segment) []model2d.Coord {
	d1 := Orient(f.a, f.b, e.a)
	d2 := Orient(f.a, f.b, e.b)
	d3 := Orient(e.a, e.b, f.a)
	d4 := Orient(e.a, e.b, f.b)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		t := d1 / (d1 - d2)
		return []model2d.Coord{e.a.Add(e.b.Sub(e.a).Scale(t))}
	}
	var pts []model2d.Coord
	if d1 == 0 && onSegment(f.a, f.b, e.a) {
		pts = append(pts, e.a)
	}
	if d2 == 0 && onSegment(f.a, f.b, e.b) {
		pts = append(pts, e.b)
	}
	if d3 == 0 && onSegment(e.a, e.b, f.a) {
		pts = append(pts, f.a)
	}
	if d4 == 0 && onSegment(e.a, e.b, f.b) {
		pts = append(pts, f.b)
	}
	return pts
}

// chain links directed edges into closed loops. Where several edges leave
// one point the sharpest left turn is taken, which keeps loops that touch
// at a point separate.
func chain(edges []segment) []Contour {
	from := make(map[model2d.Coord][]int, len(edges))
	for i, e := range edges {
		from[e.a] = append(from[e.a], i)
	}
	used := make([]bool, len(edges))

	var loops []Contour
	for start := range edges {
		if used[start] {
			continue
		}
		var c Contour
		closed := false
		for i := start; ; {
			used[i] = true
			e := edges[i]
			c = append(c, e.a)
			d := e.b.Sub(e.a)
			next, best := -1, math.Inf(-1)
			for _, k := range from[e.b] {
				if used[k] && k != start {
					continue
				}
				o := edges[k].b.Sub(edges[k].a)
				turn := math.Atan2(d.X*o.Y-d.Y*o.X, d.Dot(o))
				if turn > best {
					next, best = k, turn
				}
			}
			if next == start {
				closed = true
				break
			}
			if next < 0 {
				break
			}
			i = next
		}
		if closed && len(c) >= 3 {
			loops = append(loops, c)
		}
	}
	return loops
}

// Inset returns the region inside every edge of c moved d inward. For a
// convex contour that is c shrunk by d; for any other it is a convex subset
// of c. The result is counter-clockwise, or empty when nothing remains.
func (c Contour) Inset(d float64) Contour {
	if len(c) < 3 {
		return nil
	}
	if c.SignedArea() < 0 {
		c = c.Reversed()
	}
	b := c.Bounds()
	poly := Contour{b.Min, model2d.XY(b.Max.X, b.Min.Y), b.Max, model2d.XY(b.Min.X, b.Max.Y)}
	for i, a := range c {
		e := c[(i+1)%len(c)].Sub(a)
		n := e.Norm()
		if n == 0 {
			continue
		}
		normal := model2d.XY(-e.Y, e.X).Scale(1 / n)
		poly = clipHalfPlane(poly, normal, normal.Dot(a)+d)
		if len(poly) < 3 {
			return nil
		}
	}
	return poly
}

// clipHalfPlane keeps the part of the convex polygon poly where n·p >= off.
func clipHalfPlane(poly Contour, n model2d.Coord, off float64) Contour {
	out := make(Contour, 0, len(poly)+1)
	add := func(p model2d.Coord) {
		if len(out) == 0 || out[len(out)-1] != p {
			out = append(out, p)
		}
	}
	for i, p := range poly {
		q := poly[(i+1)%len(poly)]
		dp, dq := n.Dot(p)-off, n.Dot(q)-off
		if dp >= 0 {
			add(p)
		}
		if (dp >= 0) != (dq >= 0) {
			add(p.Add(q.Sub(p).Scale(dp / (dp - dq))))
		}
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

// FitScale returns the largest factor, at most 1, by which s can be scaled
// about c so that every point stays inside the convex region. It returns 1
// when c itself lies outside region.
func FitScale(s Shape, c model2d.Coord, region Contour) float64 {
	if len(region) < 3 || !region.Contains(c) {
		return 1
	}
	if region.SignedArea() < 0 {
		region = region.Reversed()
	}
	scale := 1.0
	for i, a := range region {
		e := region[(i+1)%len(region)].Sub(a)
		n := model2d.XY(-e.Y, e.X)
		room := n.Dot(c.Sub(a))
		for _, contour := range s.Contours {
			for _, p := range contour {
				if d := n.Dot(p.Sub(c)); d < 0 && room+scale*d < 0 {
					scale = room / -d
				}
			}
		}
	}
	return scale
}

// Weld returns a copy of c without the points closer than tol to the point
// kept before them, the closing edge included.
func (c Contour) Weld(tol float64) Contour {
	out := make(Contour, 0, len(c))
	for _, p := range c {
		if len(out) > 0 && p.Sub(out[len(out)-1]).Norm() < tol {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0].Sub(out[len(out)-1]).Norm() < tol {
		out = out[:len(out)-1]
	}
	return out
}

// Weld applies [Contour.Weld] to every contour of s.
func (s Shape) Weld(tol float64) Shape {
	out := Shape{Contours: make([]Contour, len(s.Contours))}
	for i, c := range s.Contours {
		out.Contours[i] = c.Weld(tol)
	}
	return out
}
