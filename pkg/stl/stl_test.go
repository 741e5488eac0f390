package stl

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/unixpickle/model3d/model3d"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/mesh"
)

func xyz(x, y, z float64) model3d.Coord3D { return model3d.XYZ(x, y, z) }

func cube() *mesh.Solid {
	b := mesh.NewBuilder()
	b.Quad(xyz(0, 0, 0), xyz(0, 1, 0), xyz(1, 1, 0), xyz(1, 0, 0))
	b.Quad(xyz(0, 0, 0), xyz(1, 0, 0), xyz(1, 0, 1), xyz(0, 0, 1))
	b.Quad(xyz(0, 1, 0), xyz(0, 1, 1), xyz(1, 1, 1), xyz(1, 1, 0))
	b.Quad(xyz(0, 0, 0), xyz(0, 0, 1), xyz(0, 1, 1), xyz(0, 1, 0))
	b.Quad(xyz(1, 0, 0), xyz(1, 1, 0), xyz(1, 1, 1), xyz(1, 0, 1))
	b.Quad(xyz(0, 0, 1), xyz(1, 0, 1), xyz(1, 1, 1), xyz(0, 1, 1))
	return b.Solid()
}

func TestEncodeLayout(t *testing.T) {
	s := cube()
	data, err := Encode(s, Options{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got, want := len(data), 84+50*12; got != want {
		t.Errorf("len(data) = %d, want %d", got, want)
	}
	if got := binary.LittleEndian.Uint32(data[80:84]); got != 12 {
		t.Errorf("triangle count = %d, want 12", got)
	}
	if !strings.HasPrefix(string(data[:80]), "keyforge ") {
		t.Errorf("header = %q", data[:80])
	}
	for i := 0; i < 12; i++ {
		rec := data[84+50*i : 84+50*(i+1)]
		if rec[48] != 0 || rec[49] != 0 {
			t.Errorf("triangle %d attribute = %v, want 0", i, rec[48:])
		}
		var n [3]float64
		for k := range n {
			n[k] = float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[4*k:])))
		}
		if l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]); math.Abs(l-1) > 1e-6 {
			t.Errorf("triangle %d normal length = %v, want 1", i, l)
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(&mesh.Solid{}, Options{Header: "empty"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(data) != Size(0) {
		t.Errorf("len(data) = %d, want %d", len(data), Size(0))
	}
}

func TestEncodeRejects(t *testing.T) {
	nan := cube()
	nan.Vertices[0] = xyz(math.NaN(), 0, 0)
	inf := cube()
	inf.Vertices[3] = xyz(0, math.Inf(1), 0)

	tests := []struct {
		name string
		s    *mesh.Solid
		opts Options
	}{
		{"nan vertex", nan, Options{}},
		{"inf vertex", inf, Options{}},
		{"ascii header", cube(), Options{Header: "solid cube"}},
		{"ascii header with space", cube(), Options{Header: "  Solid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Write(&buf, tt.s, tt.opts)
			if !errors.Is(err, errors.ErrCodeSerialization) {
				t.Errorf("Write() error = %v, want %s", err, errors.ErrCodeSerialization)
			}
			if buf.Len() != 0 {
				t.Errorf("Write() wrote %d bytes on error", buf.Len())
			}
		})
	}
}

func TestRoundTripThroughModel3D(t *testing.T) {
	s := cube()
	data, err := Encode(s, Options{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	tris, err := model3d.ReadSTL(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("model3d.ReadSTL() error = %v", err)
	}
	m := model3d.NewMeshTriangles(tris)
	if m.NeedsRepair() {
		t.Error("decoded mesh needs repair")
	}
	if got := m.Volume(); math.Abs(got-1) > 1e-6 {
		t.Errorf("decoded Volume() = %v, want 1", got)
	}

	back, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if back.NumTriangles() != 12 || len(back.Vertices) != 8 {
		t.Errorf("Read() = %d triangles, %d vertices, want 12, 8", back.NumTriangles(), len(back.Vertices))
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a, _ := Encode(cube(), Options{})
	b, _ := Encode(cube(), Options{})
	if !bytes.Equal(a, b) {
		t.Error("Encode() is not deterministic")
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(strings.NewReader("not an stl")); !errors.Is(err, errors.ErrCodeSerialization) {
		t.Errorf("Read() error = %v, want %s", err, errors.ErrCodeSerialization)
	}
}
