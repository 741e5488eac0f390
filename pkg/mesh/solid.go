// Package mesh provides the indexed triangle solid used throughout keyforge,
// together with planar face extraction and validation/repair.
//
// # Solids
//
// A [Solid] stores vertex positions (millimetres, Z up) and triangles as
// index triples. Triangles are wound counter-clockwise when seen from
// outside, so normals are derived from winding and never stored.
//
// # Validation
//
// [Validate] enforces the invariants every exported keycap must satisfy:
// closed, edge-manifold, consistently and outwardly oriented, no near-zero
// area triangles. Small defects are repaired in place; anything else is
// reported as a MESH_INVALID error.
package mesh

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/unixpickle/model3d/model3d"
)

// Solid is an indexed triangle mesh.
type Solid struct {
	Vertices  []model3d.Coord3D
	Triangles [][3]int
}

// NumTriangles returns the triangle count.
func (s *Solid) NumTriangles() int {
	return len(s.Triangles)
}

// Clone returns a deep copy of s.
func (s *Solid) Clone() *Solid {
	return &Solid{
		Vertices:  append([]model3d.Coord3D(nil), s.Vertices...),
		Triangles: append([][3]int(nil), s.Triangles...),
	}
}

// Corners returns the three vertex positions of triangle t.
func (s *Solid) Corners(t int) (a, b, c model3d.Coord3D) {
	tri := s.Triangles[t]
	return s.Vertices[tri[0]], s.Vertices[tri[1]], s.Vertices[tri[2]]
}

// Normal returns the unit normal of triangle t, or the zero vector for a
// degenerate triangle.
func (s *Solid) Normal(t int) model3d.Coord3D {
	a, b, c := s.Corners(t)
	n := b.Sub(a).Cross(c.Sub(a))
	l := n.Norm()
	if l == 0 {
		return model3d.Coord3D{}
	}
	return n.Scale(1 / l)
}

// TriangleArea returns the area of triangle t.
func (s *Solid) TriangleArea(t int) float64 {
	a, b, c := s.Corners(t)
	return b.Sub(a).Cross(c.Sub(a)).Norm() / 2
}

// Area returns the total surface area.
func (s *Solid) Area() float64 {
	var total float64
	for i := range s.Triangles {
		total += s.TriangleArea(i)
	}
	return total
}

// Volume returns the signed enclosed volume. It is positive for a closed,
// outward-oriented solid.
func (s *Solid) Volume() float64 {
	var total float64
	for i := range s.Triangles {
		a, b, c := s.Corners(i)
		total += a.Dot(b.Cross(c))
	}
	return total / 6
}

// Bounds returns the axis-aligned bounding box of the referenced vertices.
func (s *Solid) Bounds() (min, max model3d.Coord3D) {
	inf := math.Inf(1)
	min = model3d.XYZ(inf, inf, inf)
	max = model3d.XYZ(-inf, -inf, -inf)
	for _, tri := range s.Triangles {
		for _, idx := range tri {
			v := s.Vertices[idx]
			min = min.Min(v)
			max = max.Max(v)
		}
	}
	return min, max
}

// Transform returns a copy of s with f applied to every vertex. f must be
// orientation-preserving or the result must be re-oriented by the caller.
func (s *Solid) Transform(f func(model3d.Coord3D) model3d.Coord3D) *Solid {
	out := s.Clone()
	for i, v := range out.Vertices {
		out.Vertices[i] = f(v)
	}
	return out
}

// Translate returns a copy of s moved by d.
func (s *Solid) Translate(d model3d.Coord3D) *Solid {
	return s.Transform(func(c model3d.Coord3D) model3d.Coord3D { return c.Add(d) })
}

// RotateX180 returns a copy of s rotated half a turn about the X axis, which
// brings the bottom face to the top. Applying it twice restores s exactly.
func (s *Solid) RotateX180() *Solid {
	return s.Transform(func(c model3d.Coord3D) model3d.Coord3D {
		return model3d.XYZ(c.X, -c.Y, -c.Z)
	})
}

// Hash returns a content hash of the solid's geometry, stable across
// processes.
func (s *Solid) Hash() string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range s.Vertices {
		for _, f := range []float64{v.X, v.Y, v.Z} {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
			h.Write(buf[:])
		}
	}
	for _, tri := range s.Triangles {
		for _, idx := range tri {
			binary.LittleEndian.PutUint64(buf[:], uint64(idx))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Model3D converts s to a model3d mesh.
func (s *Solid) Model3D() *model3d.Mesh {
	tris := make([]*model3d.Triangle, len(s.Triangles))
	for i := range s.Triangles {
		a, b, c := s.Corners(i)
		tris[i] = &model3d.Triangle{a, b, c}
	}
	return model3d.NewMeshTriangles(tris)
}

// FromTriangles builds a solid from free-standing triangles, merging
// vertices with identical coordinates.
func FromTriangles(tris []*model3d.Triangle) *Solid {
	b := NewBuilder()
	for _, t := range tris {
		b.AddTriangle(t[0], t[1], t[2])
	}
	return b.Solid()
}

// Builder assembles a solid, sharing vertices with identical coordinates.
type Builder struct {
	solid *Solid
	index map[model3d.Coord3D]int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		solid: &Solid{},
		index: make(map[model3d.Coord3D]int),
	}
}

// Vertex returns the index of p, adding it if needed.
func (b *Builder) Vertex(p model3d.Coord3D) int {
	if i, ok := b.index[p]; ok {
		return i
	}
	i := len(b.solid.Vertices)
	b.solid.Vertices = append(b.solid.Vertices, p)
	b.index[p] = i
	return i
}

// AddSolid copies the triangles of s for which keep returns true (all of
// them if keep is nil) and returns the builder index of every vertex of s.
func (b *Builder) AddSolid(s *Solid, keep func(t int) bool) []int {
	remap := make([]int, len(s.Vertices))
	for i, v := range s.Vertices {
		remap[i] = b.Vertex(v)
	}
	for t, tri := range s.Triangles {
		if keep == nil || keep(t) {
			b.Triangle(remap[tri[0]], remap[tri[1]], remap[tri[2]])
		}
	}
	return remap
}

// Triangle appends a triangle over existing vertex indices.
func (b *Builder) Triangle(i, j, k int) {
	b.solid.Triangles = append(b.solid.Triangles, [3]int{i, j, k})
}

// AddTriangle appends a triangle by position.
func (b *Builder) AddTriangle(p, q, r model3d.Coord3D) {
	b.Triangle(b.Vertex(p), b.Vertex(q), b.Vertex(r))
}

// Quad appends the quad p, q, r, s as two triangles.
func (b *Builder) Quad(p, q, r, s model3d.Coord3D) {
	i, j, k, l := b.Vertex(p), b.Vertex(q), b.Vertex(r), b.Vertex(s)
	b.Triangle(i, j, k)
	b.Triangle(i, k, l)
}

// Solid returns the assembled solid. The builder must not be used after.
func (b *Builder) Solid() *Solid {
	return b.solid
}
