package xgeom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/flywave/go3d/vec3"
)

// Decode errors.
var (
	ErrInvalidMagic       = errors.New("invalid geometry magic: expected 'XGEO'")
	ErrUnsupportedVersion = errors.New("unsupported geometry version")
	ErrTruncated          = errors.New("truncated geometry data")
	ErrNameTooLong        = errors.New("mesh name too long")
)

const magic = "XGEO"

// meshRecord is the on-disk form of Mesh.
type meshRecord struct {
	Name           [MeshNameSize]byte
	WorldPixelSize float32
	BBox           vec3.Box
	NumLODs        uint16
	LOD            uint16
}

// header holds the scalar fields written after the tables.
type header struct {
	BBox                vec3.Box
	NumIndices          uint32
	NumVertices         uint32
	NumMaterials        uint16
	StreamTypes         ElementMask
	NumStreams          uint8
	CompactedVertexSize uint8
	NumStreamInfos      uint8
	_                   [2]uint8
	StreamOffsets       [MaxStreams]uint32
}

// encoder writes little-endian values and keeps the first error.
type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) write(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *encoder) count(n int) {
	e.write(uint32(n))
}

// Encode writes g in the asset record order: magic, version, bones, meshes,
// submeshes, LODs, display lists, data blob, then the scalar header.
func Encode(w io.Writer, g *Geom) error {
	meshes := make([]meshRecord, len(g.Meshes))
	for i, m := range g.Meshes {
		if len(m.Name) >= MeshNameSize {
			return fmt.Errorf("%w: %q", ErrNameTooLong, m.Name)
		}
		copy(meshes[i].Name[:], m.Name)
		meshes[i].WorldPixelSize = m.WorldPixelSize
		meshes[i].BBox = m.BBox
		meshes[i].NumLODs = m.NumLODs
		meshes[i].LOD = m.LOD
	}
	if len(g.StreamInfos) > 255 {
		return fmt.Errorf("%w: %d descriptors", ErrInvalidLayout, len(g.StreamInfos))
	}

	e := &encoder{w: w}
	e.write([]byte(magic))
	e.write(uint32(Version))

	e.count(len(g.Bones))
	e.write(g.Bones)
	e.count(len(meshes))
	e.write(meshes)
	e.count(len(g.Submeshes))
	e.write(g.Submeshes)
	e.count(len(g.LODs))
	e.write(g.LODs)
	e.count(len(g.DLists))
	e.write(g.DLists)
	e.count(len(g.Data))
	e.write(g.Data)

	e.write(header{
		BBox:                g.BBox,
		NumIndices:          g.NumIndices,
		NumVertices:         g.NumVertices,
		NumMaterials:        g.NumMaterials,
		StreamTypes:         g.StreamTypes,
		NumStreams:          g.NumStreams,
		CompactedVertexSize: g.CompactedVertexSize,
		NumStreamInfos:      uint8(len(g.StreamInfos)),
		StreamOffsets:       g.StreamOffsets,
	})
	e.write(g.StreamInfos)

	if e.err != nil {
		return fmt.Errorf("encoding geometry: %w", e.err)
	}
	return nil
}

// Marshal returns the encoded form of g.
func Marshal(g *Geom) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes g to path. The asset is written to a temporary file in
// the same directory and renamed into place, so a failed write leaves no
// partial file behind.
func WriteFile(path string, g *Geom) error {
	data, err := Marshal(g)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}

// decoder reads little-endian values and keeps the first error.
type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) read(v any) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d.r, binary.LittleEndian, v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrTruncated
		}
		d.err = err
	}
}

// count reads a table length and checks that n records of recordSize bytes
// fit in the remaining input.
func (d *decoder) count(recordSize int) int {
	var n uint32
	d.read(&n)
	if d.err != nil {
		return 0
	}
	if uint64(n)*uint64(recordSize) > uint64(d.r.Len()) {
		d.err = fmt.Errorf("%w: %d records of %d bytes", ErrTruncated, n, recordSize)
		return 0
	}
	return int(n)
}

// Parse decodes a geometry asset from data and validates its tables.
func Parse(data []byte) (*Geom, error) {
	if len(data) < 8 {
		return nil, ErrTruncated
	}
	if string(data[:4]) != magic {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	d := &decoder{r: bytes.NewReader(data[8:])}
	g := &Geom{}

	g.Bones = make([]Bone, d.count(binary.Size(Bone{})))
	d.read(g.Bones)

	meshes := make([]meshRecord, d.count(binary.Size(meshRecord{})))
	d.read(meshes)

	g.Submeshes = make([]Submesh, d.count(binary.Size(Submesh{})))
	d.read(g.Submeshes)
	g.LODs = make([]LOD, d.count(binary.Size(LOD{})))
	d.read(g.LODs)
	g.DLists = make([]Cmd, d.count(binary.Size(Cmd{})))
	d.read(g.DLists)
	g.Data = make([]byte, d.count(1))
	d.read(g.Data)

	var h header
	d.read(&h)
	g.StreamInfos = make([]StreamInfo, h.NumStreamInfos)
	d.read(g.StreamInfos)

	if d.err != nil {
		return nil, fmt.Errorf("decoding geometry: %w", d.err)
	}

	g.Meshes = make([]Mesh, len(meshes))
	for i, m := range meshes {
		g.Meshes[i] = Mesh{
			Name:           readString(m.Name[:]),
			WorldPixelSize: m.WorldPixelSize,
			BBox:           m.BBox,
			NumLODs:        m.NumLODs,
			LOD:            m.LOD,
		}
	}
	g.BBox = h.BBox
	g.NumIndices = h.NumIndices
	g.NumVertices = h.NumVertices
	g.NumMaterials = h.NumMaterials
	g.StreamTypes = h.StreamTypes
	g.NumStreams = h.NumStreams
	g.CompactedVertexSize = h.CompactedVertexSize
	g.StreamOffsets = h.StreamOffsets

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("decoding geometry: %w", err)
	}
	return g, nil
}

// ReadFile reads and decodes the asset at path.
func ReadFile(path string) (*Geom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading geometry file: %w", err)
	}
	return Parse(data)
}

// readString reads a null-terminated string from a fixed-size buffer.
func readString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
