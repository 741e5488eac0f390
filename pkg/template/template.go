// Package template provides the base keycap solids legends are applied to.
//
// Machines are a static table of [Variant] values: plain geometry
// parameters from which a closed, manifold keycap is generated. A template
// can also be imported from an STL file.
package template

import (
	"io"
	"math"
	"sort"

	"github.com/unixpickle/model3d/model2d"
	"github.com/unixpickle/model3d/model3d"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/mesh"
	"github.com/matzehuels/keyforge/pkg/planar"
	"github.com/matzehuels/keyforge/pkg/solid"
	"github.com/matzehuels/keyforge/pkg/stl"
	"github.com/matzehuels/keyforge/pkg/tessellate"
)

// Machine names a keycap variant.
type Machine string

// Known machines.
const (
	EP133  Machine = "ep133"
	EP1320 Machine = "ep1320"
	MX1U   Machine = "mx1u"
)

// DefaultMachine is used when a request names none.
const DefaultMachine = EP133

// Variant holds the constant geometry of a machine's keycap, in mm.
type Variant struct {
	Machine     Machine
	Description string
	// Footprint at the base and size of the top face.
	BaseWidth, BaseDepth float64
	TopWidth, TopDepth   float64
	Height               float64
	CornerRadius         float64
	// Hollow keycaps have a cavity open at the bottom, bounded by walls of
	// WallThickness and a top of TopThickness.
	Hollow        bool
	WallThickness float64
	TopThickness  float64
	// CornerSegments is the number of segments per rounded corner.
	CornerSegments int
}

var variants = map[Machine]Variant{
	EP133: {
		Machine:        EP133,
		Description:    "EP-133 K.O. II pad",
		BaseWidth:      15,
		BaseDepth:      15,
		TopWidth:       14.4,
		TopDepth:       14.4,
		Height:         4,
		CornerRadius:   1.5,
		CornerSegments: 6,
	},
	EP1320: {
		Machine:        EP1320,
		Description:    "EP-1320 medieval pad",
		BaseWidth:      15,
		BaseDepth:      15,
		TopWidth:       14.6,
		TopDepth:       14.6,
		Height:         3.5,
		CornerRadius:   1,
		CornerSegments: 6,
	},
	MX1U: {
		Machine:        MX1U,
		Description:    "1u shell for MX-style switches",
		BaseWidth:      18.2,
		BaseDepth:      18.2,
		TopWidth:       12.7,
		TopDepth:       14.5,
		Height:         7.5,
		CornerRadius:   1.5,
		Hollow:         true,
		WallThickness:  1.2,
		TopThickness:   1.5,
		CornerSegments: 6,
	},
}

// Lookup returns the variant for m.
func Lookup(m Machine) (Variant, bool) {
	v, ok := variants[m]
	return v, ok
}

// Machines returns the known machines in name order.
func Machines() []Variant {
	out := make([]Variant, 0, len(variants))
	for _, v := range variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Machine < out[j].Machine })
	return out
}

// Template is a base keycap solid ready for legends.
type Template struct {
	Name  string
	Solid *mesh.Solid
	Hash  string
	// TopThickness and BottomThickness bound the engraving depth on each
	// face. Zero means unknown.
	TopThickness    float64
	BottomThickness float64
}

// Load generates the template for machine m; an empty m selects
// [DefaultMachine].
func Load(m Machine) (*Template, error) {
	if m == "" {
		m = DefaultMachine
	}
	v, ok := Lookup(m)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidMachine, "unknown machine %q", m)
	}
	s, err := v.Solid()
	if err != nil {
		return nil, err
	}
	t := &Template{
		Name:            string(v.Machine),
		Solid:           s,
		Hash:            s.Hash(),
		TopThickness:    v.Height,
		BottomThickness: v.Height,
	}
	if v.Hollow {
		t.TopThickness = v.TopThickness
		t.BottomThickness = 0
	}
	return t, nil
}

// FromSTL imports a template. The mesh is validated and repaired; its
// thickness is taken from its bounding box.
func FromSTL(name string, r io.Reader) (*Template, error) {
	raw, err := stl.Read(r)
	if err != nil {
		return nil, err
	}
	s, _, err := mesh.Validate(raw, mesh.ValidateOptions{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "template %s", name)
	}
	min, max := s.Bounds()
	return &Template{
		Name:            name,
		Solid:           s,
		Hash:            s.Hash(),
		TopThickness:    max.Z - min.Z,
		BottomThickness: max.Z - min.Z,
	}, nil
}

// FaceCenter returns the centre of the given face in the frame legends are
// laid out in.
func (t *Template) FaceCenter(face solid.Face) (model2d.Coord, error) {
	return solid.FaceCenter(t.Solid, face)
}

// FaceBounds returns the bounding box of the given face in the frame
// legends are laid out in.
func (t *Template) FaceBounds(face solid.Face) (planar.Rect, error) {
	return solid.FaceBounds(t.Solid, face)
}

// FaceRegion returns the part of the given face a legend may occupy, in
// the frame legends are laid out in.
func (t *Template) FaceRegion(face solid.Face) (planar.Contour, error) {
	return solid.FaceRegion(t.Solid, face, solid.DefaultMarginMm)
}

// MaxDepth returns the engraving depth limit for face, zero if unknown.
func (t *Template) MaxDepth(face solid.Face) float64 {
	if face == solid.FaceBottom {
		return t.BottomThickness
	}
	return t.TopThickness
}

// Solid generates the keycap. The outer surface is a frustum between two
// rounded rectangles centred on the origin with the base at z=0.
func (v Variant) Solid() (*mesh.Solid, error) {
	if err := v.validate(); err != nil {
		return nil, err
	}
	baseRing := roundedRect(v.BaseWidth, v.BaseDepth, v.CornerRadius, v.CornerSegments)
	topRing := roundedRect(v.TopWidth, v.TopDepth, v.CornerRadius, v.CornerSegments)

	b := mesh.NewBuilder()
	walls(b, baseRing, topRing, 0, v.Height, false)
	if err := fill(b, [][]model2d.Coord{topRing}, v.Height, true); err != nil {
		return nil, err
	}

	if !v.Hollow {
		if err := fill(b, [][]model2d.Coord{baseRing}, 0, false); err != nil {
			return nil, err
		}
		return checked(b.Solid())
	}

	w := 2 * v.WallThickness
	r := math.Max(v.CornerRadius-v.WallThickness, 0)
	ceiling := v.Height - v.TopThickness
	innerBase := roundedRect(v.BaseWidth-w, v.BaseDepth-w, r, v.CornerSegments)
	innerTop := roundedRect(v.TopWidth-w, v.TopDepth-w, r, v.CornerSegments)

	walls(b, innerBase, innerTop, 0, ceiling, true)
	if err := fill(b, [][]model2d.Coord{innerTop}, ceiling, false); err != nil {
		return nil, err
	}
	if err := fill(b, [][]model2d.Coord{baseRing, innerBase}, 0, false); err != nil {
		return nil, err
	}
	return checked(b.Solid())
}

func checked(s *mesh.Solid) (*mesh.Solid, error) {
	if err := mesh.Check(s, mesh.ValidateOptions{}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "generated template")
	}
	return s, nil
}

func (v Variant) validate() error {
	if v.BaseWidth <= 0 || v.BaseDepth <= 0 || v.TopWidth <= 0 || v.TopDepth <= 0 || v.Height <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "%s: dimensions must be positive", v.Machine)
	}
	if v.CornerSegments < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "%s: need at least one corner segment", v.Machine)
	}
	if 2*v.CornerRadius >= math.Min(math.Min(v.BaseWidth, v.BaseDepth), math.Min(v.TopWidth, v.TopDepth)) {
		return errors.New(errors.ErrCodeInvalidConfig, "%s: corner radius too large", v.Machine)
	}
	if v.Hollow {
		if v.WallThickness <= 0 || v.TopThickness <= 0 || v.TopThickness >= v.Height {
			return errors.New(errors.ErrCodeInvalidConfig, "%s: bad shell thickness", v.Machine)
		}
		if 2*v.WallThickness >= math.Min(v.TopWidth, v.TopDepth) {
			return errors.New(errors.ErrCodeInvalidConfig, "%s: walls leave no cavity", v.Machine)
		}
	}
	return nil
}

// roundedRect returns a counter-clockwise rounded rectangle of the given
// outer size centred on the origin. Every ring built with the same segment
// count has the same number of points, so rings can be joined pairwise.
func roundedRect(w, d, r float64, segments int) []model2d.Coord {
	hx, hy := w/2-r, d/2-r
	corners := []model2d.Coord{model2d.XY(hx, -hy), model2d.XY(hx, hy), model2d.XY(-hx, hy), model2d.XY(-hx, -hy)}
	var out []model2d.Coord
	for k, c := range corners {
		if r <= 0 {
			out = append(out, c)
			continue
		}
		start := -math.Pi/2 + float64(k)*math.Pi/2
		for s := 0; s <= segments; s++ {
			a := start + float64(s)*(math.Pi/2)/float64(segments)
			out = append(out, c.Add(model2d.XY(r*math.Cos(a), r*math.Sin(a))))
		}
	}
	return out
}

// walls joins two rings with quads. Outer walls face away from the axis,
// inner walls towards it.
func walls(b *mesh.Builder, lower, upper []model2d.Coord, z0, z1 float64, inward bool) {
	n := len(lower)
	for i := range lower {
		j := (i + 1) % n
		a0 := model3d.XYZ(lower[i].X, lower[i].Y, z0)
		b0 := model3d.XYZ(lower[j].X, lower[j].Y, z0)
		a1 := model3d.XYZ(upper[i].X, upper[i].Y, z1)
		b1 := model3d.XYZ(upper[j].X, upper[j].Y, z1)
		if inward {
			b.Quad(a0, a1, b1, b0)
		} else {
			b.Quad(a0, b0, b1, a1)
		}
	}
}

// fill fills the region bounded by rings at height z, facing up or down.
func fill(b *mesh.Builder, rings [][]model2d.Coord, z float64, up bool) error {
	var points []model2d.Coord
	var loops [][]int
	for _, ring := range rings {
		loop := make([]int, len(ring))
		for i, p := range ring {
			loop[i] = len(points)
			points = append(points, p)
		}
		loops = append(loops, loop)
	}
	tris, err := tessellate.Triangulate(points, loops)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "cap at z=%.2f", z)
	}
	at := func(i int) model3d.Coord3D { return model3d.XYZ(points[i].X, points[i].Y, z) }
	for _, t := range tris {
		if up {
			b.AddTriangle(at(t[0]), at(t[1]), at(t[2]))
		} else {
			b.AddTriangle(at(t[0]), at(t[2]), at(t[1]))
		}
	}
	return nil
}
