// Package raw3d holds the raw triangle-soup mesh produced by importers.
//
// A Geom is a flat list of facets referencing a shared vertex pool. Each facet
// names its parent mesh and material instance. The compiler requires facets to
// be grouped by mesh and, inside a mesh, by material; SortFacetsByMeshMaterial
// establishes that order.
package raw3d

import (
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
)

// Fixed per-vertex attribute capacities.
const (
	MaxUVs     = 4
	MaxWeights = 4
	MaxColors  = 4
	MaxBTNs    = 4
)

// Weight binds a vertex to a bone.
type Weight struct {
	Bone   int32
	Weight float32
}

// BTN is a tangent frame: binormal, tangent and normal.
type BTN struct {
	Binormal vec3.T
	Tangent  vec3.T
	Normal   vec3.T
}

// Color is an 8-bit RGBA color.
type Color [4]uint8

// White is the color used when a mesh has no vertex colors.
var White = Color{255, 255, 255, 255}

// Vertex is one raw vertex. Only the first NumX entries of each array are
// meaningful.
type Vertex struct {
	Position vec3.T

	UV     [MaxUVs]vec2.T
	NumUVs int

	Colors    [MaxColors]Color
	NumColors int

	BTN         [MaxBTNs]BTN
	NumNormals  int
	NumTangents int

	Weights    [MaxWeights]Weight
	NumWeights int
}

// Facet is a triangle of the raw mesh.
type Facet struct {
	Mesh     int    // index into Geom.Meshes
	Material int    // index into Geom.Materials
	Vertex   [3]int // indices into Geom.Vertices
}

// Mesh names a sub-object of the source asset.
type Mesh struct {
	Name string
}

// Material is a material instance referenced by facets.
type Material struct {
	Name string
}

// Bone is a skeleton bone. Only the count matters to geometry compilation.
type Bone struct {
	Name   string
	Parent int
}

// Geom is the raw mesh handed over by an importer.
type Geom struct {
	Meshes    []Mesh
	Materials []Material
	Bones     []Bone
	Vertices  []Vertex
	Facets    []Facet
}

// HasColor reports whether any vertex carries a color.
func (g *Geom) HasColor() bool {
	for i := range g.Vertices {
		if g.Vertices[i].NumColors > 0 {
			return true
		}
	}
	return false
}

// FacetCount returns the number of facets per mesh.
func (g *Geom) FacetCount() []int {
	counts := make([]int, len(g.Meshes))
	for _, f := range g.Facets {
		if f.Mesh >= 0 && f.Mesh < len(counts) {
			counts[f.Mesh]++
		}
	}
	return counts
}

// Clone returns a deep copy of g.
func (g *Geom) Clone() *Geom {
	return &Geom{
		Meshes:    append([]Mesh(nil), g.Meshes...),
		Materials: append([]Material(nil), g.Materials...),
		Bones:     append([]Bone(nil), g.Bones...),
		Vertices:  append([]Vertex(nil), g.Vertices...),
		Facets:    append([]Facet(nil), g.Facets...),
	}
}
