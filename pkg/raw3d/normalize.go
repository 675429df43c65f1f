package raw3d

import (
	"math"
	"sort"
)

// ForceAddColorIfNone gives every vertex a white color when no vertex has one.
func (g *Geom) ForceAddColorIfNone() {
	if g.HasColor() {
		return
	}
	for i := range g.Vertices {
		g.Vertices[i].Colors[0] = White
		g.Vertices[i].NumColors = 1
	}
}

// CollapseMeshes merges every mesh into a single mesh called name.
func (g *Geom) CollapseMeshes(name string) {
	if len(g.Meshes) == 0 {
		return
	}
	for i := range g.Facets {
		g.Facets[i].Mesh = 0
	}
	g.Meshes = []Mesh{{Name: name}}
}

// CleanMesh drops degenerate facets, merges bit-identical vertices and drops
// vertices no facet references. Facet order is preserved.
func (g *Geom) CleanMesh() {
	facets := g.Facets[:0]
	for _, f := range g.Facets {
		if f.Vertex[0] == f.Vertex[1] || f.Vertex[1] == f.Vertex[2] || f.Vertex[0] == f.Vertex[2] {
			continue
		}
		facets = append(facets, f)
	}
	g.Facets = facets

	unique := make(map[vertexKey]int, len(g.Vertices))
	remap := make([]int, len(g.Vertices))
	for i := range remap {
		remap[i] = -1
	}

	var vertices []Vertex
	for fi := range g.Facets {
		f := &g.Facets[fi]
		for k, vi := range f.Vertex {
			if vi < 0 || vi >= len(g.Vertices) {
				// Left for the compiler to reject.
				continue
			}
			if remap[vi] == -1 {
				v := &g.Vertices[vi]
				key := keyOf(v)
				if idx, ok := unique[key]; ok {
					remap[vi] = idx
				} else {
					remap[vi] = len(vertices)
					unique[key] = remap[vi]
					vertices = append(vertices, *v)
				}
			}
			f.Vertex[k] = remap[vi]
		}
	}
	g.Vertices = vertices

	// Merging can turn a facet degenerate.
	facets = g.Facets[:0]
	for _, f := range g.Facets {
		if f.Vertex[0] == f.Vertex[1] || f.Vertex[1] == f.Vertex[2] || f.Vertex[0] == f.Vertex[2] {
			continue
		}
		facets = append(facets, f)
	}
	g.Facets = facets
}

// vertexKey is a vertex as raw bits: -0 and +0 differ, and equal NaNs match.
type vertexKey [64]uint32

func keyOf(v *Vertex) vertexKey {
	var k vertexKey
	n := 0
	put := func(fs ...float32) {
		for _, f := range fs {
			k[n] = math.Float32bits(f)
			n++
		}
	}

	put(v.Position[:]...)
	for _, uv := range v.UV {
		put(uv[:]...)
	}
	for _, b := range v.BTN {
		put(b.Binormal[:]...)
		put(b.Tangent[:]...)
		put(b.Normal[:]...)
	}
	for _, w := range v.Weights {
		put(w.Weight)
		k[n] = uint32(w.Bone)
		n++
	}
	for _, c := range v.Colors {
		k[n] = uint32(c[0]) | uint32(c[1])<<8 | uint32(c[2])<<16 | uint32(c[3])<<24
		n++
	}
	for _, c := range [...]int{v.NumUVs, v.NumColors, v.NumNormals, v.NumTangents, v.NumWeights} {
		k[n] = uint32(c)
		n++
	}
	return k
}

// SortFacetsByMeshMaterial orders facets by mesh, then material, keeping the
// relative order of facets that share both.
func (g *Geom) SortFacetsByMeshMaterial() {
	sort.SliceStable(g.Facets, func(i, j int) bool {
		a, b := g.Facets[i], g.Facets[j]
		if a.Mesh != b.Mesh {
			return a.Mesh < b.Mesh
		}
		return a.Material < b.Material
	})
}
