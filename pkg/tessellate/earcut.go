package tessellate

import (
	"math"
	"sort"

	"github.com/unixpickle/model3d/model2d"

	"github.com/matzehuels/keyforge/pkg/planar"
)

// node is a vertex in a circular doubly linked polygon ring. Several nodes
// may share one point index after hole bridging.
type node struct {
	i          int
	x, y       float64
	prev, next *node
}

// area returns the negated orientation of (p, q, r): negative for a convex
// (counter-clockwise) turn, positive for a reflex one.
func area(p, q, r *node) float64 {
	return (q.y-p.y)*(r.x-q.x) - (q.x-p.x)*(r.y-q.y)
}

func equals(a, b *node) bool {
	return a.x == b.x && a.y == b.y
}

func pointInTriangle(ax, ay, bx, by, cx, cy, px, py float64) bool {
	return (cx-px)*(ay-py) >= (ax-px)*(cy-py) &&
		(ax-px)*(by-py) >= (bx-px)*(ay-py) &&
		(bx-px)*(cy-py) >= (cx-px)*(by-py)
}

// linkedList builds a ring over idx with the requested winding and returns
// its last node.
func linkedList(points []model2d.Coord, idx []int, ccw bool) *node {
	var sum float64
	for k := range idx {
		p, q := points[idx[k]], points[idx[(k+1)%len(idx)]]
		sum += p.X*q.Y - q.X*p.Y
	}

	var last *node
	if ccw == (sum > 0) {
		for _, i := range idx {
			last = insertNode(i, points[i], last)
		}
	} else {
		for k := len(idx) - 1; k >= 0; k-- {
			last = insertNode(idx[k], points[idx[k]], last)
		}
	}
	return last
}

func insertNode(i int, p model2d.Coord, last *node) *node {
	n := &node{i: i, x: p.X, y: p.Y}
	if last == nil {
		n.prev = n
		n.next = n
	} else {
		n.next = last.next
		n.prev = last
		last.next.prev = n
		last.next = n
	}
	return n
}

func removeNode(p *node) {
	p.next.prev = p.prev
	p.prev.next = p.next
}

// filterPoints removes repeated references to the same point. Collinear
// vertices are kept: they may be shared with neighbouring geometry.
func filterPoints(start, end *node) *node {
	if start == nil {
		return nil
	}
	if end == nil {
		end = start
	}
	p := start
	for {
		again := false
		if p != p.next && p.i == p.next.i {
			removeNode(p)
			p = p.prev
			end = p
			if p == p.next {
				break
			}
			again = true
		} else {
			p = p.next
		}
		if !again && p == end {
			break
		}
	}
	return end
}

// earcutLinked clips ears until two nodes remain and reports whether it got
// there. pass 0 accepts strictly convex ears, pass 1 also flat ones, pass 2
// splits the ring along a valid diagonal.
func earcutLinked(ear *node, tris *[][3]int, pass int) bool {
	if ear == nil {
		return true
	}
	stop := ear
	for ear.prev != ear.next {
		prev, next := ear.prev, ear.next
		if prev.i == next.i {
			// Spike left over from a consumed bridge.
			removeNode(ear)
			removeNode(next)
			ear = prev
			stop = prev
			continue
		}
		if isEar(ear, pass > 0) {
			*tris = append(*tris, [3]int{prev.i, ear.i, next.i})
			removeNode(ear)
			ear = next.next
			stop = next.next
			continue
		}
		ear = next
		if ear == stop {
			switch pass {
			case 0:
				return earcutLinked(filterPoints(ear, nil), tris, 1)
			case 1:
				return splitEarcut(ear, tris)
			}
			return false
		}
	}
	return true
}

func isEar(ear *node, allowFlat bool) bool {
	a, b, c := ear.prev, ear, ear.next
	ar := area(a, b, c)
	if ar > 0 || (ar == 0 && !allowFlat) {
		return false
	}
	for p := c.next; p != a; p = p.next {
		if equals(p, a) || equals(p, b) || equals(p, c) {
			continue
		}
		if pointInTriangle(a.x, a.y, b.x, b.y, c.x, c.y, p.x, p.y) && area(p.prev, p, p.next) >= 0 {
			return false
		}
	}
	return true
}

func splitEarcut(start *node, tris *[][3]int) bool {
	a := start
	for {
		for b := a.next.next; b != a.prev; b = b.next {
			if a.i != b.i && isValidDiagonal(a, b) {
				c := splitPolygon(a, b)
				a = filterPoints(a, a.next)
				c = filterPoints(c, c.next)
				okA := earcutLinked(a, tris, 0)
				okC := earcutLinked(c, tris, 0)
				return okA && okC
			}
		}
		a = a.next
		if a == start {
			return false
		}
	}
}

func isValidDiagonal(a, b *node) bool {
	return a.next.i != b.i && a.prev.i != b.i && !intersectsPolygon(a, b) &&
		locallyInside(a, b) && locallyInside(b, a) && middleInside(a, b) &&
		(area(a.prev, a, b.prev) != 0 || area(a, b.prev, b) != 0)
}

func intersectsPolygon(a, b *node) bool {
	pa, pb := model2d.XY(a.x, a.y), model2d.XY(b.x, b.y)
	p := a
	for {
		if p.i != a.i && p.next.i != a.i && p.i != b.i && p.next.i != b.i &&
			planar.SegmentsIntersect(model2d.XY(p.x, p.y), model2d.XY(p.next.x, p.next.y), pa, pb) {
			return true
		}
		p = p.next
		if p == a {
			return false
		}
	}
}

func locallyInside(a, b *node) bool {
	if area(a.prev, a, a.next) < 0 {
		return area(a, b, a.next) >= 0 && area(a, a.prev, b) >= 0
	}
	return area(a, b, a.prev) < 0 || area(a, a.next, b) < 0
}

func middleInside(a, b *node) bool {
	inside := false
	px, py := (a.x+b.x)/2, (a.y+b.y)/2
	p := a
	for {
		if (p.y > py) != (p.next.y > py) && p.next.y != p.y &&
			px < (p.next.x-p.x)*(py-p.y)/(p.next.y-p.y)+p.x {
			inside = !inside
		}
		p = p.next
		if p == a {
			return inside
		}
	}
}

// splitPolygon links a to b with a two-way bridge, splitting the ring in two
// (or joining a hole ring into its outer ring) and returns the copy of b.
func splitPolygon(a, b *node) *node {
	a2 := &node{i: a.i, x: a.x, y: a.y}
	b2 := &node{i: b.i, x: b.x, y: b.y}
	an, bp := a.next, b.prev

	a.next = b
	b.prev = a

	a2.next = an
	an.prev = a2

	b2.next = a2
	a2.prev = b2

	bp.next = b2
	b2.prev = bp

	return b2
}

// eliminateHoles bridges every hole ring into the outer ring, leftmost hole
// first.
func eliminateHoles(holes []*node, outer *node) *node {
	queue := make([]*node, 0, len(holes))
	for _, h := range holes {
		queue = append(queue, getLeftmost(h))
	}
	sort.SliceStable(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		if a.x != b.x {
			return a.x < b.x
		}
		if a.y != b.y {
			return a.y < b.y
		}
		return a.i < b.i
	})
	for _, h := range queue {
		outer = eliminateHole(h, outer)
	}
	return outer
}

func eliminateHole(hole, outer *node) *node {
	bridge := findHoleBridge(hole, outer)
	if bridge == nil {
		return outer
	}
	bridgeReverse := splitPolygon(bridge, hole)
	filterPoints(bridgeReverse, bridgeReverse.next)
	return filterPoints(bridge, bridge.next)
}

// findHoleBridge finds an outer-ring vertex visible from the hole's leftmost
// vertex by casting a ray to the left (David Eberly's method).
func findHoleBridge(hole, outer *node) *node {
	hx, hy := hole.x, hole.y
	qx := math.Inf(-1)
	var m *node

	p := outer
	for {
		if hy <= p.y && hy >= p.next.y && p.next.y != p.y {
			x := p.x + (hy-p.y)*(p.next.x-p.x)/(p.next.y-p.y)
			if x <= hx && x > qx {
				qx = x
				m = p.next
				if p.x < p.next.x {
					m = p
				}
				if x == hx {
					return m
				}
			}
		}
		p = p.next
		if p == outer {
			break
		}
	}
	if m == nil {
		return nil
	}

	stop := m
	mx, my := m.x, m.y
	tanMin := math.Inf(1)
	p = m
	for {
		ax, cx := qx, hx
		if hy < my {
			ax, cx = hx, qx
		}
		if hx >= p.x && p.x >= mx && hx != p.x && pointInTriangle(ax, hy, mx, my, cx, hy, p.x, p.y) {
			tan := math.Abs(hy-p.y) / (hx - p.x)
			if locallyInside(p, hole) &&
				(tan < tanMin || (tan == tanMin && (p.x > m.x || (p.x == m.x && sectorContainsSector(m, p))))) {
				m = p
				tanMin = tan
			}
		}
		p = p.next
		if p == stop {
			break
		}
	}
	return m
}

func sectorContainsSector(m, p *node) bool {
	return area(m.prev, m, p.prev) < 0 && area(p.next, m, m.next) < 0
}

func getLeftmost(start *node) *node {
	p, leftmost := start, start
	for {
		if p.x < leftmost.x || (p.x == leftmost.x && p.y < leftmost.y) {
			leftmost = p
		}
		p = p.next
		if p == start {
			return leftmost
		}
	}
}
