package mesh

import (
	"fmt"
	"sort"
	"strings"

	"github.com/unixpickle/model3d/model3d"

	"github.com/matzehuels/keyforge/pkg/errors"
)

// DefaultAreaEpsilon is the area in mm² below which a triangle counts as
// degenerate.
const DefaultAreaEpsilon = 1e-10

// maxFlipPasses bounds the degenerate-triangle edge flipping loop.
const maxFlipPasses = 8

// ValidateOptions configures [Validate].
type ValidateOptions struct {
	AreaEpsilon float64
}

func (o ValidateOptions) areaEpsilon() float64 {
	if o.AreaEpsilon > 0 {
		return o.AreaEpsilon
	}
	return DefaultAreaEpsilon
}

// Report lists the repairs [Validate] performed.
type Report struct {
	Welded     int // vertices merged into an identical position
	Collapsed  int // triangles dropped for repeating a vertex
	Duplicates int // triangles dropped as exact duplicates
	Flattened  int // slivers removed by flipping their longest edge
	Flipped    int // triangles re-wound to match their neighbours
	Inverted   int // components turned inside out
}

// Repaired reports whether any repair was applied.
func (r Report) Repaired() bool {
	return r != Report{}
}

func (r Report) String() string {
	var parts []string
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(r.Welded, "welded")
	add(r.Collapsed, "collapsed")
	add(r.Duplicates, "duplicates")
	add(r.Flattened, "flattened")
	add(r.Flipped, "flipped")
	add(r.Inverted, "inverted")
	if len(parts) == 0 {
		return "no repairs"
	}
	return strings.Join(parts, ", ")
}

// Validate checks s and repairs minor defects, returning a new solid. The
// input is not modified. A solid that is still open, non-manifold, or
// inside out after repair yields a MESH_INVALID error.
func Validate(s *Solid, opts ValidateOptions) (*Solid, Report, error) {
	var rep Report
	if s == nil || len(s.Triangles) == 0 {
		return nil, rep, errors.New(errors.ErrCodeMeshInvalid, "solid has no triangles")
	}

	out := weld(s, &rep)
	out.Triangles = dropCollapsed(out.Triangles, &rep)
	out.Triangles = dropDuplicates(out.Triangles, &rep)
	flattenSlivers(out, opts.areaEpsilon(), &rep)

	if err := checkManifold(out); err != nil {
		return nil, rep, err
	}
	if err := orient(out, &rep); err != nil {
		return nil, rep, err
	}
	compact(out)

	if err := Check(out, opts); err != nil {
		return nil, rep, err
	}
	return out, rep, nil
}

// Check verifies the solid invariants without repairing anything.
func Check(s *Solid, opts ValidateOptions) error {
	if len(s.Triangles) == 0 {
		return errors.New(errors.ErrCodeMeshInvalid, "solid has no triangles")
	}
	directed := make(map[edge]int, len(s.Triangles)*3)
	for i, tri := range s.Triangles {
		if s.TriangleArea(i) < opts.areaEpsilon() {
			return errors.New(errors.ErrCodeMeshInvalid, "triangle %d has near-zero area", i)
		}
		for k := 0; k < 3; k++ {
			directed[edge{tri[k], tri[(k+1)%3]}]++
		}
	}
	for e, n := range directed {
		if n != 1 {
			return errors.New(errors.ErrCodeMeshInvalid, "edge %d-%d used %d times in one direction", e.a, e.b, n)
		}
		if directed[edge{e.b, e.a}] != 1 {
			return errors.New(errors.ErrCodeMeshInvalid, "edge %d-%d is open", e.a, e.b)
		}
	}
	if v := s.Volume(); !(v > 0) {
		return errors.New(errors.ErrCodeMeshInvalid, "volume %.6g is not positive", v)
	}
	return nil
}

func weld(s *Solid, rep *Report) *Solid {
	index := make(map[model3d.Coord3D]int, len(s.Vertices))
	remap := make([]int, len(s.Vertices))
	out := &Solid{}
	for i, v := range s.Vertices {
		if j, ok := index[v]; ok {
			remap[i] = j
			rep.Welded++
			continue
		}
		index[v] = len(out.Vertices)
		remap[i] = len(out.Vertices)
		out.Vertices = append(out.Vertices, v)
	}
	out.Triangles = make([][3]int, len(s.Triangles))
	for i, tri := range s.Triangles {
		out.Triangles[i] = [3]int{remap[tri[0]], remap[tri[1]], remap[tri[2]]}
	}
	return out
}

func dropCollapsed(tris [][3]int, rep *Report) [][3]int {
	out := tris[:0]
	for _, t := range tris {
		if t[0] == t[1] || t[1] == t[2] || t[2] == t[0] {
			rep.Collapsed++
			continue
		}
		out = append(out, t)
	}
	return out
}

func dropDuplicates(tris [][3]int, rep *Report) [][3]int {
	seen := make(map[[3]int]bool, len(tris))
	out := tris[:0]
	for _, t := range tris {
		key := t
		sort.Ints(key[:])
		if seen[key] {
			rep.Duplicates++
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// flattenSlivers removes zero-area triangles whose vertices are distinct
// by flipping their longest edge with the neighbouring triangle.
func flattenSlivers(s *Solid, eps float64, rep *Report) {
	for pass := 0; pass < maxFlipPasses; pass++ {
		owner := make(map[edge]int, len(s.Triangles)*3)
		for i, tri := range s.Triangles {
			for k := 0; k < 3; k++ {
				owner[edge{tri[k], tri[(k+1)%3]}] = i
			}
		}

		changed := false
		for i := range s.Triangles {
			if s.TriangleArea(i) >= eps {
				continue
			}
			u, v, w := rotateLongest(s, s.Triangles[i])
			j, ok := owner[edge{v, u}]
			if !ok || j == i {
				continue
			}
			x := third(s.Triangles[j], v, u)
			if x == w {
				continue
			}
			if _, used := owner[edge{w, x}]; used {
				continue
			}
			if _, used := owner[edge{x, w}]; used {
				continue
			}
			for _, t := range []int{i, j} {
				tri := s.Triangles[t]
				for k := 0; k < 3; k++ {
					delete(owner, edge{tri[k], tri[(k+1)%3]})
				}
			}
			s.Triangles[i] = [3]int{u, x, w}
			s.Triangles[j] = [3]int{x, v, w}
			for _, t := range []int{i, j} {
				tri := s.Triangles[t]
				for k := 0; k < 3; k++ {
					owner[edge{tri[k], tri[(k+1)%3]}] = t
				}
			}
			rep.Flattened++
			changed = true
		}
		if !changed {
			return
		}
	}
}

// rotateLongest returns the triangle's vertices ordered so that u→v is its
// longest edge.
func rotateLongest(s *Solid, tri [3]int) (u, v, w int) {
	best, bestLen := 0, -1.0
	for k := 0; k < 3; k++ {
		l := s.Vertices[tri[k]].Sub(s.Vertices[tri[(k+1)%3]]).Norm()
		if l > bestLen {
			best, bestLen = k, l
		}
	}
	return tri[best], tri[(best+1)%3], tri[(best+2)%3]
}

// third returns the vertex of tri that is neither a nor b.
func third(tri [3]int, a, b int) int {
	for _, v := range tri {
		if v != a && v != b {
			return v
		}
	}
	return -1
}

func checkManifold(s *Solid) error {
	if len(s.Triangles) == 0 {
		return errors.New(errors.ErrCodeMeshInvalid, "no triangles left after repair")
	}
	uses := make(map[edge]int, len(s.Triangles)*3)
	for _, tri := range s.Triangles {
		for k := 0; k < 3; k++ {
			uses[undirected(tri[k], tri[(k+1)%3])]++
		}
	}
	for e, n := range uses {
		if n != 2 {
			return errors.New(errors.ErrCodeMeshInvalid, "edge %d-%d borders %d triangles", e.a, e.b, n)
		}
	}
	return nil
}

func undirected(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

// orient makes winding consistent across each connected component by
// breadth-first propagation from its lowest-numbered triangle, then turns
// components with negative volume inside out.
func orient(s *Solid, rep *Report) error {
	adj := make(map[edge][]int, len(s.Triangles)*3)
	for i, tri := range s.Triangles {
		for k := 0; k < 3; k++ {
			e := undirected(tri[k], tri[(k+1)%3])
			adj[e] = append(adj[e], i)
		}
	}

	component := make([]int, len(s.Triangles))
	for i := range component {
		component[i] = -1
	}
	var components [][]int

	for seed := range s.Triangles {
		if component[seed] >= 0 {
			continue
		}
		id := len(components)
		members := []int{seed}
		component[seed] = id
		for q := 0; q < len(members); q++ {
			t := members[q]
			tri := s.Triangles[t]
			for k := 0; k < 3; k++ {
				a, b := tri[k], tri[(k+1)%3]
				for _, n := range adj[undirected(a, b)] {
					if n == t {
						continue
					}
					consistent := hasDirected(s.Triangles[n], b, a)
					if component[n] >= 0 {
						if !consistent {
							return errors.New(errors.ErrCodeMeshInvalid, "surface is not orientable near triangle %d", n)
						}
						continue
					}
					if !consistent {
						nt := s.Triangles[n]
						s.Triangles[n] = [3]int{nt[0], nt[2], nt[1]}
						rep.Flipped++
					}
					component[n] = id
					members = append(members, n)
				}
			}
		}
		components = append(components, members)
	}

	for _, members := range components {
		var vol float64
		for _, t := range members {
			a, b, c := s.Corners(t)
			vol += a.Dot(b.Cross(c))
		}
		if vol < 0 {
			for _, t := range members {
				nt := s.Triangles[t]
				s.Triangles[t] = [3]int{nt[0], nt[2], nt[1]}
			}
			rep.Inverted++
		}
	}
	return nil
}

func hasDirected(tri [3]int, a, b int) bool {
	for k := 0; k < 3; k++ {
		if tri[k] == a && tri[(k+1)%3] == b {
			return true
		}
	}
	return false
}

// compact drops unreferenced vertices, keeping the order of the rest.
func compact(s *Solid) {
	used := make([]bool, len(s.Vertices))
	for _, tri := range s.Triangles {
		for _, idx := range tri {
			used[idx] = true
		}
	}
	remap := make([]int, len(s.Vertices))
	var verts []model3d.Coord3D
	for i, v := range s.Vertices {
		if used[i] {
			remap[i] = len(verts)
			verts = append(verts, v)
		}
	}
	for i, tri := range s.Triangles {
		s.Triangles[i] = [3]int{remap[tri[0]], remap[tri[1]], remap[tri[2]]}
	}
	s.Vertices = verts
}
