// Package meshopt implements the index and vertex reordering, simplification
// and analysis primitives used by the geometry compiler.
//
// All functions work on triangle lists: three indices per triangle, each
// addressing a vertex array the caller owns. Index-only transforms never
// change the set of triangles, only their order.
package meshopt

import (
	"github.com/chewxy/math32"
	"github.com/flywave/go3d/vec3"
)

// CacheSize is the simulated post-transform cache size used by the optimizers.
const CacheSize = 16

// triangleAdjacency lists, per vertex, the triangles that reference it.
type triangleAdjacency struct {
	counts  []uint32
	offsets []uint32
	data    []uint32
}

func buildTriangleAdjacency(indices []uint32, vertexCount int) *triangleAdjacency {
	adj := &triangleAdjacency{
		counts:  make([]uint32, vertexCount),
		offsets: make([]uint32, vertexCount),
		data:    make([]uint32, len(indices)),
	}
	for _, v := range indices {
		adj.counts[v]++
	}
	var offset uint32
	for v := range adj.counts {
		adj.offsets[v] = offset
		offset += adj.counts[v]
	}

	fill := make([]uint32, vertexCount)
	for i, v := range indices {
		adj.data[adj.offsets[v]+fill[v]] = uint32(i / 3)
		fill[v]++
	}
	return adj
}

// triangles returns the live triangles of vertex v.
func (a *triangleAdjacency) triangles(v uint32) []uint32 {
	return a.data[a.offsets[v] : a.offsets[v]+a.counts[v]]
}

// remove drops triangle t from the list of vertex v.
func (a *triangleAdjacency) remove(v, t uint32) {
	list := a.triangles(v)
	for i, x := range list {
		if x == t {
			list[i] = list[len(list)-1]
			a.counts[v]--
			return
		}
	}
}

// updateCache simulates a FIFO cache of the given size with timestamps and
// returns the number of misses for triangle (a, b, c).
func updateCache(a, b, c uint32, cacheSize uint32, timestamps []uint32, timestamp *uint32) int {
	misses := 0
	for _, v := range [3]uint32{a, b, c} {
		if *timestamp-timestamps[v] > cacheSize {
			timestamps[v] = *timestamp
			*timestamp++
			misses++
		}
	}
	return misses
}

// bounds returns the minimum corner and the largest extent of positions.
func bounds(positions []vec3.T) (vec3.T, float32) {
	if len(positions) == 0 {
		return vec3.T{}, 0
	}
	lo, hi := positions[0], positions[0]
	for _, p := range positions[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = math32.Min(lo[k], p[k])
			hi[k] = math32.Max(hi[k], p[k])
		}
	}
	extent := math32.Max(hi[0]-lo[0], math32.Max(hi[1]-lo[1], hi[2]-lo[2]))
	return lo, extent
}
