package compiler

import (
	"go.uber.org/zap"

	"github.com/Faultbox/geomc/pkg/raw3d"
)

// buildState is the fold state threaded through the facet walk.
type buildState struct {
	raw *raw3d.Geom
	log *zap.Logger

	meshes []mesh

	meshIndex int // raw mesh of the open mesh, -1 before the first facet
	material  int // raw material of the open submesh, -1 when none is open

	// remap maps a raw vertex to its index in the open submesh, -1 if unseen.
	// Only [lo, hi] can hold live entries.
	remap  []int
	lo, hi int
}

// buildMeshes groups the facets of raw into per-mesh, per-material submeshes
// with deduplicated vertices. raw must be sorted by mesh, then material, both
// ascending; a facet that breaks the order panics with *ContractViolation.
func buildMeshes(raw *raw3d.Geom, log *zap.Logger) []mesh {
	s := &buildState{
		raw:       raw,
		log:       log,
		meshIndex: -1,
		material:  -1,
		remap:     make([]int, len(raw.Vertices)),
		lo:        len(raw.Vertices),
		hi:        -1,
	}
	for i := range s.remap {
		s.remap[i] = -1
	}

	for fi := range raw.Facets {
		s.addFacet(fi)
	}
	return s.meshes
}

func (s *buildState) addFacet(fi int) {
	f := s.raw.Facets[fi]

	if f.Mesh < 0 || f.Mesh >= len(s.raw.Meshes) {
		violate(fi, "mesh index %d out of range [0,%d)", f.Mesh, len(s.raw.Meshes))
	}
	if f.Material < 0 || f.Material >= len(s.raw.Materials) {
		violate(fi, "material index %d out of range [0,%d)", f.Material, len(s.raw.Materials))
	}
	if f.Mesh < s.meshIndex {
		violate(fi, "mesh index %d follows mesh %d", f.Mesh, s.meshIndex)
	}

	if f.Mesh != s.meshIndex {
		s.openMesh(f.Mesh)
	}
	if f.Material != s.material {
		if f.Material < s.material {
			violate(fi, "material %d follows material %d in mesh %d", f.Material, s.material, f.Mesh)
		}
		s.openSubmesh(f.Material)
	}

	m := &s.meshes[len(s.meshes)-1]
	sm := &m.Submeshes[len(m.Submeshes)-1]
	for _, vi := range f.Vertex {
		if vi < 0 || vi >= len(s.raw.Vertices) {
			violate(fi, "vertex index %d out of range [0,%d)", vi, len(s.raw.Vertices))
		}
		if vi < s.lo {
			s.lo = vi
		}
		if vi > s.hi {
			s.hi = vi
		}
		if s.remap[vi] < 0 {
			s.remap[vi] = len(sm.Vertices)
			s.addVertex(m.Name, sm, &s.raw.Vertices[vi])
		}
		sm.Indices = append(sm.Indices, uint32(s.remap[vi]))
	}
}

func (s *buildState) openMesh(index int) {
	s.meshes = append(s.meshes, mesh{Name: s.raw.Meshes[index].Name})
	s.meshIndex = index
	s.material = -1
}

func (s *buildState) openSubmesh(material int) {
	s.material = material

	for i := s.lo; i <= s.hi; i++ {
		s.remap[i] = -1
	}
	s.lo, s.hi = len(s.remap), -1

	m := &s.meshes[len(s.meshes)-1]
	m.Submeshes = append(m.Submeshes, submesh{Material: material})
}

func (s *buildState) addVertex(meshName string, sm *submesh, rv *raw3d.Vertex) {
	v := vertex{
		Position: rv.Position,
		Color:    rv.Colors[0],
		BTN:      rv.BTN[0],
	}

	// A vertex with fewer UV sets than the submesh already carries gets none.
	if len(sm.Indices) > 0 && sm.NumUVs != 0 && rv.NumUVs < sm.NumUVs {
		s.log.Warn("vertex has fewer UV sets than its submesh",
			zap.String("mesh", meshName),
			zap.Int("expected", sm.NumUVs),
			zap.Int("found", rv.NumUVs))
	} else {
		sm.NumUVs = rv.NumUVs
		copy(v.UV[:], rv.UV[:rv.NumUVs])
	}

	if rv.NumWeights > sm.NumWeights {
		sm.NumWeights = rv.NumWeights
	}
	copy(v.Weights[:], rv.Weights[:rv.NumWeights])

	if rv.NumColors > 0 {
		sm.HasColor = true
	}
	if rv.NumNormals > 0 {
		sm.HasNormal = true
	}
	if rv.NumTangents > 0 {
		sm.HasBTN = true
	}

	sm.Vertices = append(sm.Vertices, v)
}
