package meshopt

import "github.com/chewxy/math32"

const (
	cacheDecayPower   = 1.5
	lastTriangleScore = 0.75
	valenceBoostScale = 2.0
	valenceBoostPower = 0.5
)

// vertexScore rates a vertex by its cache position (-1 when not cached) and
// the number of triangles still waiting to be emitted.
func vertexScore(cachePosition int, liveTriangles uint32) float32 {
	if liveTriangles == 0 {
		return -1
	}

	var score float32
	switch {
	case cachePosition < 0:
	case cachePosition < 3:
		score = lastTriangleScore
	default:
		scaler := 1 / float32(CacheSize-3)
		score = math32.Pow(1-float32(cachePosition-3)*scaler, cacheDecayPower)
	}
	return score + valenceBoostScale*math32.Pow(float32(liveTriangles), -valenceBoostPower)
}

// OptimizeVertexCache reorders triangles so that consecutive triangles share
// vertices, improving post-transform cache hits. It greedily emits the best
// scored triangle adjacent to the simulated cache and falls back to input
// order when the cache has nothing left to offer.
func OptimizeVertexCache(indices []uint32, vertexCount int) []uint32 {
	faceCount := len(indices) / 3
	out := make([]uint32, 0, faceCount*3)
	if faceCount == 0 {
		return out
	}

	adj := buildTriangleAdjacency(indices[:faceCount*3], vertexCount)

	cachePos := make([]int, vertexCount)
	vScore := make([]float32, vertexCount)
	for v := range cachePos {
		cachePos[v] = -1
		vScore[v] = vertexScore(-1, adj.counts[v])
	}

	tScore := make([]float32, faceCount)
	for t := range tScore {
		tri := indices[t*3 : t*3+3]
		tScore[t] = vScore[tri[0]] + vScore[tri[1]] + vScore[tri[2]]
	}

	emitted := make([]bool, faceCount)
	cache := make([]uint32, 0, CacheSize+3)
	next := make([]uint32, 0, CacheSize+3)
	cursor := 0
	current := 0

	for current >= 0 {
		tri := indices[current*3 : current*3+3]
		out = append(out, tri...)
		emitted[current] = true
		tScore[current] = 0

		// New cache: emitted vertices first, then the previous contents.
		next = append(next[:0], tri...)
		for _, v := range cache {
			if v != tri[0] && v != tri[1] && v != tri[2] {
				next = append(next, v)
			}
		}

		for _, v := range tri {
			adj.remove(v, uint32(current))
		}

		best := -1
		var bestScore float32
		for i, v := range next {
			pos := -1
			if i < CacheSize {
				pos = i
			}
			cachePos[v] = pos

			score := vertexScore(pos, adj.counts[v])
			diff := score - vScore[v]
			vScore[v] = score

			for _, t := range adj.triangles(v) {
				tScore[t] += diff
				if pos >= 0 && (best < 0 || tScore[t] > bestScore || (tScore[t] == bestScore && int(t) < best)) {
					best = int(t)
					bestScore = tScore[t]
				}
			}
		}

		if len(next) > CacheSize {
			next = next[:CacheSize]
		}
		cache, next = next, cache

		if best < 0 {
			for cursor < faceCount && emitted[cursor] {
				cursor++
			}
			if cursor == faceCount {
				break
			}
			best = cursor
		}
		current = best
	}
	return out
}

// VertexCacheStatistics reports post-transform cache efficiency.
type VertexCacheStatistics struct {
	VerticesTransformed int
	WarpsExecuted       int
	ACMR                float32 // transformed vertices per triangle
	ATVR                float32 // transformed vertices per unique vertex
}

// AnalyzeVertexCache simulates a FIFO cache of cacheSize entries. warpSize
// and primGroupSize model GPUs that flush the cache per warp or primitive
// group; zero disables either limit.
func AnalyzeVertexCache(indices []uint32, vertexCount, cacheSize, warpSize, primGroupSize int) VertexCacheStatistics {
	var st VertexCacheStatistics

	timestamps := make([]uint32, vertexCount)
	size := uint32(cacheSize)
	timestamp := size + 1
	warpOffset, primOffset := 0, 0

	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]

		misses := 0
		for _, v := range [3]uint32{a, b, c} {
			if timestamp-timestamps[v] > size {
				misses++
			}
		}
		if (primGroupSize > 0 && primOffset == primGroupSize) || (warpSize > 0 && warpOffset+misses > warpSize) {
			if warpOffset > 0 {
				st.WarpsExecuted++
			}
			warpOffset, primOffset = 0, 0
			timestamp += size + 1
		}

		for _, v := range [3]uint32{a, b, c} {
			if timestamp-timestamps[v] > size {
				timestamps[v] = timestamp
				timestamp++
				st.VerticesTransformed++
				warpOffset++
			}
		}
		primOffset++
	}
	if warpOffset > 0 {
		st.WarpsExecuted++
	}

	unique := 0
	for _, ts := range timestamps {
		if ts > 0 {
			unique++
		}
	}
	if n := len(indices) / 3; n > 0 {
		st.ACMR = float32(st.VerticesTransformed) / float32(n)
	}
	if unique > 0 {
		st.ATVR = float32(st.VerticesTransformed) / float32(unique)
	}
	return st
}
