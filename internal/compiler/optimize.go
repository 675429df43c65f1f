package compiler

import (
	"github.com/flywave/go3d/vec3"

	"github.com/Faultbox/geomc/pkg/meshopt"
)

// overdrawThreshold allows overdraw sorting to worsen the cache miss ratio
// by at most this factor.
const overdrawThreshold = 1.0

// optimizeSubmesh reorders the base indices and every LOD for the vertex
// cache, then for overdraw. Vertices are left untouched.
func optimizeSubmesh(sm *submesh) {
	positions := sm.positions()
	sm.Indices = optimizeIndices(sm.Indices, positions)
	for i := range sm.LODs {
		sm.LODs[i].Indices = optimizeIndices(sm.LODs[i].Indices, positions)
	}
}

func optimizeIndices(indices []uint32, positions []vec3.T) []uint32 {
	indices = meshopt.OptimizeVertexCache(indices, len(positions))
	return meshopt.OptimizeOverdraw(indices, positions, overdrawThreshold)
}
