package compiler

import (
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"

	"github.com/Faultbox/geomc/pkg/raw3d"
)

// vertex is a deduplicated submesh vertex.
type vertex struct {
	Position vec3.T
	UV       [raw3d.MaxUVs]vec2.T
	Color    raw3d.Color
	BTN      raw3d.BTN
	Weights  [raw3d.MaxWeights]raw3d.Weight
}

// lod is a reduced index buffer over its submesh's vertices.
type lod struct {
	Indices []uint32
}

// submesh holds the triangles of one mesh that share a material.
type submesh struct {
	Material int
	Vertices []vertex
	Indices  []uint32
	LODs     []lod

	// Attribute presence observed while building.
	NumUVs     int
	NumWeights int
	HasColor   bool
	HasNormal  bool
	HasBTN     bool
}

func (s *submesh) positions() []vec3.T {
	out := make([]vec3.T, len(s.Vertices))
	for i := range s.Vertices {
		out[i] = s.Vertices[i].Position
	}
	return out
}

type mesh struct {
	Name      string
	Submeshes []submesh
}
