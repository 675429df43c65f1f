// Package xgeom defines the runtime geometry asset produced by the compiler.
//
// A Geom holds descriptor tables (meshes, LODs, submeshes) and one packed data
// blob split into physical streams. Each StreamInfo says which attribute
// category it carries, how it is encoded and where it sits inside its stream.
package xgeom

import (
	"errors"
	"fmt"
	"math"

	"github.com/flywave/go3d/vec3"
)

// Asset constants.
const (
	Version      = 1
	MaxStreams   = 7  // one per attribute category
	MaxAlignment = 16 // alignment of every physical stream and of the data blob
	MeshNameSize = 32 // bytes reserved for a mesh name, null terminator included
)

// Errors returned by Validate.
var (
	ErrInvalidLayout = errors.New("invalid stream layout")
	ErrInvalidIndex  = errors.New("index out of range")
)

// Bone is the per-bone bounding volume used for culling skinned meshes.
type Bone struct {
	BBox vec3.Box
}

// Mesh is a named sub-object. Its LODs are LODs[LOD : LOD+NumLODs], LOD 0
// included.
type Mesh struct {
	Name           string
	WorldPixelSize float32
	BBox           vec3.Box
	NumLODs        uint16
	LOD            uint16
}

// LOD groups the submeshes drawn at one level of detail.
type LOD struct {
	ScreenArea   float32
	Submesh      uint16
	NumSubmeshes uint16
}

// Submesh is a draw call: NumIndices indices starting at Index, all of them
// addressing the shared vertex array.
type Submesh struct {
	BaseSortKey uint32
	Index       uint32
	NumIndices  uint32
	DList       uint16
	NumDLists   uint16
	Material    uint16
	_           uint16
}

// CmdType identifies a display-list command.
type CmdType uint8

// Display-list commands.
const (
	CmdEnd CmdType = iota
	CmdUploadMatrices
	CmdDraw
)

// Cmd is one display-list command.
type Cmd struct {
	Type CmdType
	_    [3]uint8
	Arg  uint32
}

// StreamInfo describes one attribute category inside a physical stream.
type StreamInfo struct {
	Elements    ElementMask
	Format      Format
	VectorCount uint8 // vectors per element, e.g. number of UV sets
	Offset      uint8 // byte offset inside one element of the stream
	Stream      uint8 // physical stream index
}

// Size returns the bytes this descriptor occupies per element.
func (s StreamInfo) Size() uint32 {
	return s.Format.VectorSize() * uint32(s.VectorCount)
}

// Alignment returns the natural alignment of the descriptor's element type.
func (s StreamInfo) Alignment() uint32 {
	return s.Format.Alignment()
}

// End returns Offset + Size.
func (s StreamInfo) End() uint32 {
	return uint32(s.Offset) + s.Size()
}

// Geom is a compiled geometry asset.
type Geom struct {
	Bones     []Bone
	Meshes    []Mesh
	Submeshes []Submesh
	LODs      []LOD
	DLists    []Cmd
	Data      []byte

	BBox                vec3.Box
	NumIndices          uint32
	NumVertices         uint32
	NumMaterials        uint16
	StreamTypes         ElementMask // union of all descriptors' elements
	NumStreams          uint8
	CompactedVertexSize uint8 // interleaved vertex stride, 0 in element-streams mode
	StreamOffsets       [MaxStreams]uint32
	StreamInfos         []StreamInfo
}

// Reset releases all tables and the data blob.
func (g *Geom) Reset() {
	*g = Geom{}
}

// FindMesh returns the index of the mesh called name, or -1.
func (g *Geom) FindMesh(name string) int {
	for i := range g.Meshes {
		if g.Meshes[i].Name == name {
			return i
		}
	}
	return -1
}

// FaceCount returns the number of triangles drawn at LOD 0 over all meshes.
func (g *Geom) FaceCount() int {
	n := 0
	for _, m := range g.Meshes {
		if m.NumLODs == 0 || int(m.LOD) >= len(g.LODs) {
			continue
		}
		lod := g.LODs[m.LOD]
		for i := 0; i < int(lod.NumSubmeshes); i++ {
			s := int(lod.Submesh) + i
			if s < len(g.Submeshes) {
				n += int(g.Submeshes[s].NumIndices) / 3
			}
		}
	}
	return n
}

// streamHasIndex reports whether physical stream s carries indices.
func (g *Geom) streamHasIndex(s int) bool {
	for _, info := range g.StreamInfos {
		if int(info.Stream) == s && info.Elements.Has(ElementIndex) {
			return true
		}
	}
	return false
}

// StreamPopulation returns the number of elements in stream s: the index
// count for the index stream, the vertex count otherwise.
func (g *Geom) StreamPopulation(s int) uint32 {
	if g.streamHasIndex(s) {
		return g.NumIndices
	}
	return g.NumVertices
}

// StreamStride returns the bytes per element of physical stream s.
func (g *Geom) StreamStride(s int) uint32 {
	if g.CompactedVertexSize != 0 && s == int(g.NumStreams)-1 && !g.streamHasIndex(s) {
		return uint32(g.CompactedVertexSize)
	}
	var end, align uint32 = 0, 1
	for _, info := range g.StreamInfos {
		if int(info.Stream) != s {
			continue
		}
		if e := info.End(); e > end {
			end = e
		}
		if a := info.Alignment(); a > align {
			align = a
		}
	}
	if g.streamHasIndex(s) {
		return end
	}
	return Align(end, align)
}

// StreamSize returns the unpadded byte size of physical stream s.
func (g *Geom) StreamSize(s int) uint32 {
	return g.StreamStride(s) * g.StreamPopulation(s)
}

// LayoutStreams computes StreamOffsets from the descriptor table and returns
// the total data size. Every stream starts on a MaxAlignment boundary.
func (g *Geom) LayoutStreams() uint32 {
	var total uint32
	for s := 0; s < MaxStreams; s++ {
		g.StreamOffsets[s] = 0
		if s >= int(g.NumStreams) {
			continue
		}
		g.StreamOffsets[s] = total
		total += Align(g.StreamSize(s), MaxAlignment)
	}
	return total
}

// StreamInfoData returns the data of descriptor i starting at its first
// element. Consecutive elements are StreamStride(info.Stream) bytes apart.
func (g *Geom) StreamInfoData(i int) []byte {
	info := g.StreamInfos[i]
	start := g.StreamOffsets[info.Stream] + uint32(info.Offset)
	if int(start) > len(g.Data) {
		return nil
	}
	return g.Data[start:]
}

// FindStreamInfo returns the index of the first descriptor carrying e, or -1.
func (g *Geom) FindStreamInfo(e ElementMask) int {
	for i, info := range g.StreamInfos {
		if info.Elements.Has(e) {
			return i
		}
	}
	return -1
}

// Vector decodes element n of descriptor i into VectorCount*Dimensions values.
func (g *Geom) Vector(i, n int) []float64 {
	info := g.StreamInfos[i]
	vi := info.Format.Info()
	stride := g.StreamStride(int(info.Stream))
	data := g.StreamInfoData(i)
	base := uint32(n) * stride

	out := make([]float64, 0, int(info.VectorCount)*int(vi.Dimensions))
	for v := 0; v < int(info.VectorCount); v++ {
		for d := 0; d < int(vi.Dimensions); d++ {
			off := base + uint32(v)*info.Format.VectorSize() + uint32(d)*uint32(vi.ElementSize)
			out = append(out, Element(data[off:], info.Format))
		}
	}
	return out
}

// Indices decodes the whole index stream.
func (g *Geom) Indices() []uint32 {
	i := g.FindStreamInfo(ElementIndex)
	if i < 0 {
		return nil
	}
	out := make([]uint32, g.NumIndices)
	for n := range out {
		out[n] = uint32(g.Vector(i, n)[0])
	}
	return out
}

// Validate checks the descriptor table, the table ranges and the index
// range invariants. A Geom that passes can be read with StreamInfoData,
// Vector and Indices without going out of bounds.
func (g *Geom) Validate() error {
	if int(g.NumStreams) > MaxStreams {
		return fmt.Errorf("%w: %d streams", ErrInvalidLayout, g.NumStreams)
	}
	for i, info := range g.StreamInfos {
		if !info.Format.Valid() {
			return fmt.Errorf("%w: descriptor %d has format %s", ErrInvalidLayout, i, info.Format)
		}
		if info.VectorCount == 0 {
			return fmt.Errorf("%w: descriptor %d has no vectors", ErrInvalidLayout, i)
		}
		if int(info.Stream) >= int(g.NumStreams) {
			return fmt.Errorf("%w: descriptor %d in stream %d of %d", ErrInvalidLayout, i, info.Stream, g.NumStreams)
		}
		if uint32(info.Offset)%info.Alignment() != 0 {
			return fmt.Errorf("%w: descriptor %d offset %d not aligned to %d", ErrInvalidLayout, i, info.Offset, info.Alignment())
		}
		if stride := g.StreamStride(int(info.Stream)); info.End() > stride {
			return fmt.Errorf("%w: descriptor %d ends at %d past stride %d", ErrInvalidLayout, i, info.End(), stride)
		}
		if i == 0 {
			continue
		}
		prev := g.StreamInfos[i-1]
		if prev.Stream == info.Stream && prev.End() > uint32(info.Offset) {
			return fmt.Errorf("%w: descriptors %d and %d overlap", ErrInvalidLayout, i-1, i)
		}
		if prev.Stream > info.Stream {
			return fmt.Errorf("%w: descriptor %d out of stream order", ErrInvalidLayout, i)
		}
	}
	for s := 0; s < int(g.NumStreams); s++ {
		if g.StreamOffsets[s]%MaxAlignment != 0 {
			return fmt.Errorf("%w: stream %d offset %d", ErrInvalidLayout, s, g.StreamOffsets[s])
		}
		end := uint64(g.StreamOffsets[s]) + uint64(g.StreamStride(s))*uint64(g.StreamPopulation(s))
		if end > uint64(len(g.Data)) {
			return fmt.Errorf("%w: stream %d ends at %d past data size %d", ErrInvalidLayout, s, end, len(g.Data))
		}
	}

	for i, m := range g.Meshes {
		if int(m.LOD)+int(m.NumLODs) > len(g.LODs) {
			return fmt.Errorf("%w: mesh %d LODs [%d,%d) past %d", ErrInvalidIndex, i, m.LOD, int(m.LOD)+int(m.NumLODs), len(g.LODs))
		}
	}
	for i, lod := range g.LODs {
		if int(lod.Submesh)+int(lod.NumSubmeshes) > len(g.Submeshes) {
			return fmt.Errorf("%w: LOD %d submeshes [%d,%d) past %d", ErrInvalidIndex, i, lod.Submesh, int(lod.Submesh)+int(lod.NumSubmeshes), len(g.Submeshes))
		}
	}
	for i, sm := range g.Submeshes {
		if uint64(sm.Index)+uint64(sm.NumIndices) > uint64(g.NumIndices) {
			return fmt.Errorf("%w: submesh indices [%d,%d) past %d", ErrInvalidIndex, sm.Index, uint64(sm.Index)+uint64(sm.NumIndices), g.NumIndices)
		}
		if int(sm.DList)+int(sm.NumDLists) > len(g.DLists) {
			return fmt.Errorf("%w: submesh %d display lists [%d,%d) past %d", ErrInvalidIndex, i, sm.DList, int(sm.DList)+int(sm.NumDLists), len(g.DLists))
		}
	}
	if g.NumIndices > 0 && g.FindStreamInfo(ElementIndex) < 0 {
		return fmt.Errorf("%w: %d indices without an index descriptor", ErrInvalidLayout, g.NumIndices)
	}
	for n, idx := range g.Indices() {
		if idx >= g.NumVertices {
			return fmt.Errorf("%w: index %d is %d, vertex count %d", ErrInvalidIndex, n, idx, g.NumVertices)
		}
	}
	return nil
}

// EmptyBox returns a box that any point extends.
func EmptyBox() vec3.Box {
	return vec3.Box{
		Min: vec3.T{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: vec3.T{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Extend grows b to contain p.
func Extend(b *vec3.Box, p vec3.T) {
	for k := 0; k < 3; k++ {
		if p[k] < b.Min[k] {
			b.Min[k] = p[k]
		}
		if p[k] > b.Max[k] {
			b.Max[k] = p[k]
		}
	}
}

// Merge grows b to contain o. An empty o leaves b unchanged.
func Merge(b *vec3.Box, o vec3.Box) {
	if o.Min[0] > o.Max[0] {
		return
	}
	Extend(b, o.Min)
	Extend(b, o.Max)
}
