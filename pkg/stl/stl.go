// Package stl reads and writes STL files.
//
// Output is always binary STL: an 80-byte header, a little-endian uint32
// triangle count, then 50 bytes per triangle (float32 normal, three
// float32 vertices, zero attribute word). An encoded solid is therefore
// exactly 84 + 50·n bytes long.
//
// Input goes through model3d, which accepts both binary and ASCII files.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/unixpickle/model3d/model3d"

	"github.com/matzehuels/keyforge/pkg/buildinfo"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/mesh"
)

const (
	// HeaderSize is the size of the binary STL header.
	HeaderSize = 80
	// TriangleSize is the size of one encoded triangle.
	TriangleSize = 50
)

// Options configures encoding.
type Options struct {
	// Header is written into the 80-byte header, truncated and padded with
	// zeros. Defaults to the build identifier. A header starting with
	// "solid" would make readers mistake the file for ASCII STL and is
	// rejected.
	Header string
}

// Size returns the encoded size of a solid with n triangles.
func Size(n int) int {
	return HeaderSize + 4 + TriangleSize*n
}

// Encode serializes s as binary STL.
func Encode(s *mesh.Solid, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(Size(s.NumTriangles()))
	if err := Write(&buf, s, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serializes s as binary STL to w. Nothing is written if s cannot be
// encoded.
func Write(w io.Writer, s *mesh.Solid, opts Options) error {
	header, err := header(opts.Header)
	if err != nil {
		return err
	}
	if uint64(s.NumTriangles()) > math.MaxUint32 {
		return errors.New(errors.ErrCodeSerialization, "%d triangles exceed the STL limit", s.NumTriangles())
	}
	for i, v := range s.Vertices {
		if !finite(v) {
			return errors.New(errors.ErrCodeSerialization, "vertex %d is not finite: %v", i, v)
		}
	}

	bw := bufio.NewWriter(w)
	bw.Write(header[:])

	var rec [TriangleSize]byte
	binary.LittleEndian.PutUint32(rec[:4], uint32(s.NumTriangles()))
	bw.Write(rec[:4])

	for t := range s.Triangles {
		a, b, c := s.Corners(t)
		off := 0
		for _, v := range []model3d.Coord3D{s.Normal(t), a, b, c} {
			for _, f := range v.Array() {
				binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(float32(f)))
				off += 4
			}
		}
		rec[48], rec[49] = 0, 0
		if _, err := bw.Write(rec[:]); err != nil {
			return errors.Wrap(errors.ErrCodeSerialization, err, "write triangle %d", t)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, err, "flush")
	}
	return nil
}

// Read decodes a binary or ASCII STL file into a solid, merging vertices
// with identical coordinates.
func Read(r io.Reader) (*mesh.Solid, error) {
	tris, err := model3d.ReadSTL(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, err, "read STL")
	}
	if len(tris) == 0 {
		return nil, errors.New(errors.ErrCodeSerialization, "STL has no triangles")
	}
	return mesh.FromTriangles(tris), nil
}

func header(text string) ([HeaderSize]byte, error) {
	var h [HeaderSize]byte
	if text == "" {
		text = buildinfo.Header()
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "solid") {
		return h, errors.New(errors.ErrCodeSerialization, "binary STL header must not start with %q", "solid")
	}
	copy(h[:], text)
	return h, nil
}

func finite(v model3d.Coord3D) bool {
	for _, f := range v.Array() {
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxFloat32 {
			return false
		}
	}
	return true
}
