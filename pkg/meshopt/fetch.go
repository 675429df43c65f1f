package meshopt

// Unused marks a vertex no index references in a remap table.
const Unused = ^uint32(0)

// VertexFetchRemap returns a table mapping each old vertex to its position in
// first-use order of indices. Unreferenced vertices map to Unused. The second
// result is the number of referenced vertices.
func VertexFetchRemap(indices []uint32, vertexCount int) ([]uint32, int) {
	remap := make([]uint32, vertexCount)
	for i := range remap {
		remap[i] = Unused
	}

	next := uint32(0)
	for _, idx := range indices {
		if remap[idx] == Unused {
			remap[idx] = next
			next++
		}
	}
	return remap, int(next)
}

// OptimizeVertexFetch reorders vertices into the order indices first
// reference them and rewrites indices to match. Vertices no index references
// are dropped.
func OptimizeVertexFetch[V any](indices []uint32, vertices []V) ([]V, []uint32) {
	remap, count := VertexFetchRemap(indices, len(vertices))

	out := make([]V, count)
	for old, n := range remap {
		if n != Unused {
			out[n] = vertices[old]
		}
	}

	remapped := make([]uint32, len(indices))
	for i, idx := range indices {
		remapped[i] = remap[idx]
	}
	return out, remapped
}

// VertexFetchStatistics reports memory traffic of vertex fetches.
type VertexFetchStatistics struct {
	BytesFetched int
	Overfetch    float32 // fetched bytes / unique vertex bytes
}

const (
	fetchCacheLine = 64
	fetchCacheSize = 128 * 1024
)

// AnalyzeVertexFetch models a direct-mapped cache of 64-byte lines over a
// vertex buffer with the given stride.
func AnalyzeVertexFetch(indices []uint32, vertexCount, vertexSize int) VertexFetchStatistics {
	var st VertexFetchStatistics
	if vertexSize <= 0 {
		return st
	}

	visited := make([]bool, vertexCount)
	unique := 0
	var cache [fetchCacheSize / fetchCacheLine]int

	for _, idx := range indices {
		if !visited[idx] {
			visited[idx] = true
			unique++
		}

		start := int(idx) * vertexSize
		end := start + vertexSize
		for tag := start / fetchCacheLine; tag < (end+fetchCacheLine-1)/fetchCacheLine; tag++ {
			line := tag % len(cache)
			// Lines hold tag+1 so that zero means empty.
			if cache[line] != tag+1 {
				st.BytesFetched += fetchCacheLine
				cache[line] = tag + 1
			}
		}
	}

	if unique > 0 {
		st.Overfetch = float32(st.BytesFetched) / float32(unique*vertexSize)
	}
	return st
}
