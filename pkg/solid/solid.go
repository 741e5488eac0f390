// Package solid turns a laid-out legend into a keycap solid.
//
// The legend is extruded into a prism (the stamp) that crosses the keycap
// face by a small overlap and is then combined with the base: subtracted
// for an engraved legend, added for an embossed one. Because the keycap
// face is planar, the combination is computed exactly: the face is
// re-triangulated with the legend outline cut out, and the part of the
// stamp on the far side of the face plane is stitched in along that
// outline. The result shares every vertex of the base outside the face, so
// it stays closed and manifold.
//
// Legend parts beyond the face, less a margin, are clipped away before the
// cut. Points of the legend outline closer together than the epsilon are
// welded; a failed attempt is retried with a larger epsilon, which welds
// more aggressively.
package solid

import (
	"context"
	"fmt"
	"math"

	"github.com/unixpickle/model3d/model2d"
	"github.com/unixpickle/model3d/model3d"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/mesh"
	"github.com/matzehuels/keyforge/pkg/planar"
	"github.com/matzehuels/keyforge/pkg/tessellate"
)

// Mode selects how the legend is combined with the base.
type Mode string

// Modes.
const (
	ModeEngrave Mode = "engrave"
	ModeEmboss  Mode = "emboss"
)

// Face selects which keycap face carries the legend.
type Face string

// Faces.
const (
	FaceTop    Face = "top"
	FaceBottom Face = "bottom"
)

// ValidModes and ValidFaces list the accepted option values.
var (
	ValidModes = map[Mode]bool{ModeEngrave: true, ModeEmboss: true}
	ValidFaces = map[Face]bool{FaceTop: true, FaceBottom: true}
)

const (
	// DefaultEpsilon is how far, in mm, the stamp reaches past the face,
	// and the distance below which outline points are welded.
	DefaultEpsilon = 0.02
	// RetryFactor scales the epsilon for the second attempt.
	RetryFactor = 2.5
	// DefaultMarginMm is the rim kept free of legend around the face edge.
	DefaultMarginMm = 0.5
	// faceTolerance is the height tolerance for face detection, mm.
	faceTolerance = 1e-6
)

// Options configures [Build].
type Options struct {
	DepthMm float64
	Mode    Mode
	Face    Face
	Epsilon float64
	// MarginMm is the rim left between the legend and the face edge;
	// zero selects DefaultMarginMm.
	MarginMm float64
	// MaxDepthMm bounds the engraving depth, normally the material
	// thickness under the face. Zero disables the check.
	MaxDepthMm float64
}

// Result is a built keycap solid.
type Result struct {
	Solid    *mesh.Solid
	Report   mesh.Report
	Warnings []string
	// Attempts is the number of boolean attempts; zero when the base was
	// returned unchanged.
	Attempts int
}

func (o Options) validate() (Options, error) {
	if o.Mode == "" {
		o.Mode = ModeEngrave
	}
	if o.Face == "" {
		o.Face = FaceTop
	}
	if o.Epsilon <= 0 {
		o.Epsilon = DefaultEpsilon
	}
	if o.MarginMm <= 0 {
		o.MarginMm = DefaultMarginMm
	}
	if !ValidModes[o.Mode] {
		return o, errors.New(errors.ErrCodeInvalidConfig, "unknown mode %q", o.Mode)
	}
	if !ValidFaces[o.Face] {
		return o, errors.New(errors.ErrCodeInvalidConfig, "unknown face %q", o.Face)
	}
	if !(o.DepthMm > 0) || math.IsInf(o.DepthMm, 0) {
		return o, errors.New(errors.ErrCodeInvalidConfig, "depth must be positive, got %v", o.DepthMm)
	}
	if o.Mode == ModeEngrave && o.MaxDepthMm > 0 && o.DepthMm >= o.MaxDepthMm {
		return o, errors.New(errors.ErrCodeInvalidConfig,
			"engrave depth %.2fmm cuts through the %.2fmm face", o.DepthMm, o.MaxDepthMm)
	}
	return o, nil
}

// Build combines the legend shape with base. An empty shape returns a copy
// of base untouched. A failed combination is retried once with a larger
// epsilon; if that fails too the BOOLEAN_FAILURE or MESH_INVALID error is
// returned and the caller decides whether to fall back to the base. Build
// stops with a TIMEOUT error once ctx is done.
func Build(ctx context.Context, base *mesh.Solid, shape planar.Shape, opts Options) (*Result, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}
	if shape.IsEmpty() {
		return &Result{Solid: base.Clone()}, nil
	}

	eps := opts.Epsilon
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := build(ctx, base, shape, opts, eps)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}
		if !errors.Recoverable(err) {
			return nil, err
		}
		lastErr = err
		eps *= RetryFactor
	}
	return nil, lastErr
}

func canceled(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeTimeout, err, "%s", stage)
	}
	return nil
}

// FaceCenter returns the centre of the chosen face in the frame the legend
// is laid out in. For the bottom face that frame is the base turned over,
// so the legend reads correctly when the keycap is viewed from below.
func FaceCenter(base *mesh.Solid, face Face) (model2d.Coord, error) {
	work := base
	if face == FaceBottom {
		work = base.RotateX180()
	}
	f, err := mesh.TopFace(work, faceTolerance)
	if err != nil {
		return model2d.Coord{}, err
	}
	return f.Center(work), nil
}

// FaceBounds returns the bounding box of the chosen face in the same frame
// as [FaceCenter].
func FaceBounds(base *mesh.Solid, face Face) (planar.Rect, error) {
	work := base
	if face == FaceBottom {
		work = base.RotateX180()
	}
	f, err := mesh.TopFace(work, faceTolerance)
	if err != nil {
		return planar.Rect{}, err
	}
	return f.Bounds(work), nil
}

// FaceRegion returns the part of the chosen face a legend may occupy: the
// face outline shrunk by margin, in the frame of [FaceCenter]. It is convex.
func FaceRegion(base *mesh.Solid, face Face, margin float64) (planar.Contour, error) {
	work := base
	if face == FaceBottom {
		work = base.RotateX180()
	}
	f, err := mesh.TopFace(work, faceTolerance)
	if err != nil {
		return nil, err
	}
	return faceRegion(work, f, margin)
}

func faceRegion(work *mesh.Solid, face *mesh.Face, margin float64) (planar.Contour, error) {
	var outer planar.Contour
	for i := range face.Loops {
		if c := face.Contour(work, i); math.Abs(c.SignedArea()) > math.Abs(outer.SignedArea()) {
			outer = c
		}
	}
	region := outer.Inset(margin)
	if len(region) < 3 {
		return nil, errors.New(errors.ErrCodeBooleanFailure, "face leaves no room inside a %.2fmm margin", margin)
	}
	return region, nil
}

func build(ctx context.Context, base *mesh.Solid, shape planar.Shape, opts Options, eps float64) (*Result, error) {
	if err := canceled(ctx, "build legend"); err != nil {
		return nil, err
	}
	res := &Result{}

	work := base
	if opts.Face == FaceBottom {
		work = base.RotateX180()
	}
	face, err := mesh.TopFace(work, faceTolerance)
	if err != nil {
		return nil, err
	}

	legend, dropped, err := tessellate.Tessellate(shape.Weld(eps))
	for _, w := range dropped {
		res.Warnings = append(res.Warnings, w.String())
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBooleanFailure, err, "tessellate legend")
	}
	if len(legend.Loops) == 0 {
		return nil, errors.New(errors.ErrCodeBooleanFailure, "legend has no usable contours at %gmm weld distance", eps)
	}

	region, err := faceRegion(work, face, opts.MarginMm)
	if err != nil {
		return nil, err
	}
	legend, clipped, err := clipLegend(legend, region)
	if err != nil {
		return nil, err
	}
	if clipped {
		res.Warnings = append(res.Warnings, fmt.Sprintf("legend clipped to the face less a %.2gmm margin", opts.MarginMm))
	}
	if err := checkInside(work, face, legend); err != nil {
		return nil, err
	}
	if err := canceled(ctx, "build legend"); err != nil {
		return nil, err
	}

	zFace := face.Z
	zLow, zHigh := zFace-opts.DepthMm, zFace+eps
	if opts.Mode == ModeEmboss {
		zLow, zHigh = zFace-eps, zFace+opts.DepthMm
	}
	if zHigh-zFace <= faceTolerance || zFace-zLow <= faceTolerance {
		return nil, errors.New(errors.ErrCodeBooleanFailure, "stamp is coplanar with the face (epsilon %g)", eps)
	}
	st := stamp(legend, zLow, zHigh)

	b := mesh.NewBuilder()
	inFace := make(map[int]bool, len(face.Triangles))
	for _, t := range face.Triangles {
		inFace[t] = true
	}
	remap := b.AddSolid(work, func(t int) bool { return !inFace[t] })

	if err := cutFace(b, work, face, legend, remap); err != nil {
		return nil, err
	}
	addClippedStamp(b, st, zFace, opts.Mode)
	if err := canceled(ctx, "build legend"); err != nil {
		return nil, err
	}

	out, rep, err := mesh.Validate(b.Solid(), mesh.ValidateOptions{})
	if err != nil {
		return nil, err
	}
	if opts.Face == FaceBottom {
		out = out.RotateX180()
	}
	res.Solid = out
	res.Report = rep
	return res, nil
}

// clipLegend trims legend to region. A legend already inside is returned
// as is; one entirely outside is a BOOLEAN_FAILURE.
func clipLegend(legend *tessellate.Mesh2D, region planar.Contour) (*tessellate.Mesh2D, bool, error) {
	inside := true
	for _, p := range legend.Points {
		if !region.Contains(p) {
			inside = false
			break
		}
	}
	if inside {
		return legend, false, nil
	}

	contours := make([]planar.Contour, len(legend.Loops))
	for i, loop := range legend.Loops {
		contours[i] = make(planar.Contour, len(loop))
		for k, idx := range loop {
			contours[i][k] = legend.Points[idx]
		}
	}
	kept := planar.Intersect(contours, region)
	if len(kept) == 0 {
		return nil, false, errors.New(errors.ErrCodeBooleanFailure, "legend lies outside the face")
	}
	m, _, err := tessellate.Tessellate(planar.Shape{Contours: kept})
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeBooleanFailure, err, "tessellate clipped legend")
	}
	if len(m.Loops) == 0 {
		return nil, false, errors.New(errors.ErrCodeBooleanFailure, "legend lies outside the face")
	}
	return m, true, nil
}

// checkInside verifies every legend loop lies strictly inside the face.
func checkInside(work *mesh.Solid, face *mesh.Face, legend *tessellate.Mesh2D) error {
	faceContours := make([]planar.Contour, len(face.Loops))
	for i := range face.Loops {
		faceContours[i] = face.Contour(work, i)
	}
	for i, loop := range legend.Loops {
		c := make(planar.Contour, len(loop))
		for k, idx := range loop {
			c[k] = legend.Points[idx]
		}
		for _, fc := range faceContours {
			if c.Intersects(fc) {
				return errors.New(errors.ErrCodeBooleanFailure, "legend contour %d crosses the face boundary", i)
			}
		}
		inside := false
		for _, fc := range faceContours {
			if fc.Contains(c[0]) {
				inside = !inside
			}
		}
		if !inside {
			return errors.New(errors.ErrCodeBooleanFailure, "legend contour %d lies outside the face", i)
		}
	}
	return nil
}

// cutFace re-triangulates the face with the legend outline as holes,
// reusing the base's face boundary vertices.
func cutFace(b *mesh.Builder, work *mesh.Solid, face *mesh.Face, legend *tessellate.Mesh2D, remap []int) error {
	var points []model2d.Coord
	var global []int
	var loops [][]int

	for _, loop := range face.Loops {
		local := make([]int, len(loop))
		for k, idx := range loop {
			v := work.Vertices[idx]
			local[k] = len(points)
			points = append(points, model2d.XY(v.X, v.Y))
			global = append(global, remap[idx])
		}
		loops = append(loops, local)
	}

	offset := len(points)
	for _, p := range legend.Points {
		points = append(points, p)
		global = append(global, b.Vertex(model3d.XYZ(p.X, p.Y, face.Z)))
	}
	for _, loop := range legend.Loops {
		local := make([]int, len(loop))
		for k, idx := range loop {
			local[k] = offset + idx
		}
		loops = append(loops, local)
	}

	tris, err := tessellate.Triangulate(points, loops)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBooleanFailure, err, "cut face")
	}
	for _, t := range tris {
		b.Triangle(global[t[0]], global[t[1]], global[t[2]])
	}
	return nil
}

// addClippedStamp adds the part of the stamp on the far side of the face
// plane. For an engraving that part is the pocket and is turned inside
// out; for an embossing it is the raised legend.
func addClippedStamp(b *mesh.Builder, stamp *mesh.Solid, zFace float64, mode Mode) {
	for t := range stamp.Triangles {
		p, q, r := stamp.Corners(t)
		if mode == ModeEngrave {
			if p.Z > zFace && q.Z > zFace && r.Z > zFace {
				continue
			}
			b.AddTriangle(clampZ(p, zFace, math.Min), clampZ(r, zFace, math.Min), clampZ(q, zFace, math.Min))
			continue
		}
		if p.Z < zFace && q.Z < zFace && r.Z < zFace {
			continue
		}
		b.AddTriangle(clampZ(p, zFace, math.Max), clampZ(q, zFace, math.Max), clampZ(r, zFace, math.Max))
	}
}

func clampZ(c model3d.Coord3D, z float64, f func(a, b float64) float64) model3d.Coord3D {
	return model3d.XYZ(c.X, c.Y, f(c.Z, z))
}
