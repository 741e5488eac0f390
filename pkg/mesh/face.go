package mesh

import (
	"fmt"
	"math"
	"sort"

	"github.com/unixpickle/model3d/model2d"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/planar"
)

// Face is the planar, upward-facing region at the top of a solid.
type Face struct {
	Z float64
	// Triangles lists the face's triangles by index into the solid.
	Triangles []int
	// Loops are the boundary loops as vertex indices, wound with the face
	// on the left when seen from above: outer loops counter-clockwise,
	// holes clockwise.
	Loops [][]int
}

// TopFace finds the planar face at the solid's maximum Z: every triangle
// whose vertices lie within eps of that height and whose normal points up.
func TopFace(s *Solid, eps float64) (*Face, error) {
	if len(s.Triangles) == 0 {
		return nil, errors.New(errors.ErrCodeMeshInvalid, "solid has no triangles")
	}
	_, max := s.Bounds()
	face := &Face{Z: max.Z}

	for i, tri := range s.Triangles {
		flat := true
		for _, idx := range tri {
			if math.Abs(s.Vertices[idx].Z-max.Z) > eps {
				flat = false
				break
			}
		}
		if flat && s.Normal(i).Z > 1-eps {
			face.Triangles = append(face.Triangles, i)
		}
	}
	if len(face.Triangles) == 0 {
		return nil, errors.New(errors.ErrCodeBooleanFailure, "no planar top face at z=%.4f", max.Z)
	}

	loops, err := boundaryLoops(s, face.Triangles)
	if err != nil {
		return nil, err
	}
	face.Loops = loops
	return face, nil
}

type edge struct{ a, b int }

// boundaryLoops chains the directed edges of tris that have no reverse
// partner within tris.
func boundaryLoops(s *Solid, tris []int) ([][]int, error) {
	inner := make(map[edge]bool, len(tris)*3)
	for _, t := range tris {
		tri := s.Triangles[t]
		for k := 0; k < 3; k++ {
			inner[edge{tri[k], tri[(k+1)%3]}] = true
		}
	}

	next := make(map[int]int)
	var starts []int
	for _, t := range tris {
		tri := s.Triangles[t]
		for k := 0; k < 3; k++ {
			e := edge{tri[k], tri[(k+1)%3]}
			if inner[edge{e.b, e.a}] {
				continue
			}
			if _, dup := next[e.a]; dup {
				return nil, errors.New(errors.ErrCodeBooleanFailure, "face boundary pinches at vertex %d", e.a)
			}
			next[e.a] = e.b
			starts = append(starts, e.a)
		}
	}
	sort.Ints(starts)

	var loops [][]int
	seen := make(map[int]bool, len(next))
	for _, start := range starts {
		if seen[start] {
			continue
		}
		var loop []int
		for v := start; !seen[v]; {
			seen[v] = true
			loop = append(loop, v)
			n, ok := next[v]
			if !ok {
				return nil, errors.New(errors.ErrCodeBooleanFailure, "face boundary is open at vertex %d", v)
			}
			v = n
		}
		if len(loop) < 3 {
			return nil, errors.New(errors.ErrCodeBooleanFailure, "face boundary loop of %d vertices", len(loop))
		}
		loops = append(loops, loop)
	}
	return loops, nil
}

// Contour returns loop i projected onto the XY plane.
func (f *Face) Contour(s *Solid, i int) planar.Contour {
	c := make(planar.Contour, len(f.Loops[i]))
	for k, idx := range f.Loops[i] {
		v := s.Vertices[idx]
		c[k] = model2d.XY(v.X, v.Y)
	}
	return c
}

// Bounds returns the XY bounding box of the face boundary.
func (f *Face) Bounds(s *Solid) planar.Rect {
	r := planar.EmptyRect()
	for i := range f.Loops {
		r = r.Union(f.Contour(s, i).Bounds())
	}
	return r
}

// Center returns the centre of the face's bounding box.
func (f *Face) Center(s *Solid) model2d.Coord {
	return f.Bounds(s).Center()
}

func (f *Face) String() string {
	return fmt.Sprintf("face z=%.4f triangles=%d loops=%d", f.Z, len(f.Triangles), len(f.Loops))
}
