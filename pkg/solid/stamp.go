package solid

import (
	"github.com/unixpickle/model3d/model3d"

	"github.com/matzehuels/keyforge/pkg/mesh"
	"github.com/matzehuels/keyforge/pkg/tessellate"
)

// stamp extrudes m into a closed prism between zLow and zHigh.
func stamp(m *tessellate.Mesh2D, zLow, zHigh float64) *mesh.Solid {
	b := mesh.NewBuilder()
	at := func(i int, z float64) model3d.Coord3D {
		p := m.Points[i]
		return model3d.XYZ(p.X, p.Y, z)
	}
	for _, t := range m.Triangles {
		b.AddTriangle(at(t[0], zHigh), at(t[1], zHigh), at(t[2], zHigh))
		b.AddTriangle(at(t[0], zLow), at(t[2], zLow), at(t[1], zLow))
	}
	// Loops keep the fill on their left, so each wall faces right.
	for _, loop := range m.Loops {
		for k, i := range loop {
			j := loop[(k+1)%len(loop)]
			b.Quad(at(i, zLow), at(j, zLow), at(j, zHigh), at(i, zHigh))
		}
	}
	return b.Solid()
}
