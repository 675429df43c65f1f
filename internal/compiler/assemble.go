package compiler

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/flywave/go3d/vec3"

	"github.com/Faultbox/geomc/pkg/meshopt"
	"github.com/Faultbox/geomc/pkg/xgeom"
)

// assembly is the merged geometry of all meshes before stream layout.
type assembly struct {
	Vertices  []vertex
	Indices   []uint32
	Meshes    []xgeom.Mesh
	LODs      []xgeom.LOD
	Submeshes []xgeom.Submesh
	BBox      vec3.Box

	// Union of the submeshes' observed attributes.
	NumUVs     int
	NumWeights int
	HasColor   bool
	HasNormal  bool
	HasBTN     bool
}

// assemble merges the submesh buffers of meshes into one vertex array and one
// index array. Each mesh lays down its LOD 0 submeshes, which fixes their
// base vertices, then one LOD record per rank for as long as some submesh
// has a LOD at that rank. Vertices are finally reordered for fetch locality.
func assemble(meshes []mesh) (*assembly, error) {
	a := &assembly{BBox: xgeom.EmptyBox()}

	for mi := range meshes {
		m := &meshes[mi]
		rec := xgeom.Mesh{
			Name: meshName(m.Name),
			BBox: xgeom.EmptyBox(),
			LOD:  uint16(len(a.LODs)),
		}

		bases := make([]uint32, len(m.Submeshes))
		lod0 := xgeom.LOD{Submesh: uint16(len(a.Submeshes))}
		for si := range m.Submeshes {
			sm := &m.Submeshes[si]
			bases[si] = uint32(len(a.Vertices))
			for _, v := range sm.Vertices {
				xgeom.Extend(&rec.BBox, v.Position)
			}
			a.Vertices = append(a.Vertices, sm.Vertices...)
			a.addSubmesh(sm.Material, sm.Indices, bases[si])
			a.observe(sm)
			lod0.NumSubmeshes++
		}
		a.LODs = append(a.LODs, lod0)
		rec.NumLODs = 1

		for rank := 1; ; rank++ {
			l := xgeom.LOD{Submesh: uint16(len(a.Submeshes))}
			for si := range m.Submeshes {
				sm := &m.Submeshes[si]
				if len(sm.LODs) < rank {
					continue
				}
				a.addSubmesh(sm.Material, sm.LODs[rank-1].Indices, bases[si])
				l.NumSubmeshes++
			}
			if l.NumSubmeshes == 0 {
				break
			}
			a.LODs = append(a.LODs, l)
			rec.NumLODs++
		}

		xgeom.Merge(&a.BBox, rec.BBox)
		a.Meshes = append(a.Meshes, rec)
	}

	if err := a.checkLimits(); err != nil {
		return nil, err
	}

	// Must run last: it renumbers every vertex.
	a.Vertices, a.Indices = meshopt.OptimizeVertexFetch(a.Indices, a.Vertices)
	return a, nil
}

func (a *assembly) addSubmesh(material int, indices []uint32, base uint32) {
	a.Submeshes = append(a.Submeshes, xgeom.Submesh{
		Index:      uint32(len(a.Indices)),
		NumIndices: uint32(len(indices)),
		Material:   uint16(material),
	})
	for _, idx := range indices {
		a.Indices = append(a.Indices, idx+base)
	}
}

func (a *assembly) observe(sm *submesh) {
	a.NumUVs = max(a.NumUVs, sm.NumUVs)
	a.NumWeights = max(a.NumWeights, sm.NumWeights)
	a.HasColor = a.HasColor || sm.HasColor
	a.HasNormal = a.HasNormal || sm.HasNormal
	a.HasBTN = a.HasBTN || sm.HasBTN
}

func (a *assembly) checkLimits() error {
	switch {
	case len(a.Submeshes) > math.MaxUint16:
		return fmt.Errorf("%w: %d submeshes", ErrLimit, len(a.Submeshes))
	case len(a.LODs) > math.MaxUint16:
		return fmt.Errorf("%w: %d LODs", ErrLimit, len(a.LODs))
	}
	return nil
}

// meshName truncates name to fit the fixed-size name field without splitting
// a UTF-8 sequence.
func meshName(name string) string {
	if len(name) < xgeom.MeshNameSize {
		return name
	}
	n := xgeom.MeshNameSize - 1
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return name[:n]
}
