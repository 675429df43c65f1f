package meshopt

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/flywave/go3d/vec3"
)

// hardBoundaries splits the triangle list where the simulated cache misses
// all three vertices of a triangle. Such a triangle usually starts a patch
// disjoint from the previous ones.
func hardBoundaries(indices []uint32, vertexCount int) []int {
	timestamps := make([]uint32, vertexCount)
	timestamp := uint32(CacheSize + 1)

	var clusters []int
	for i := 0; i < len(indices)/3; i++ {
		misses := updateCache(indices[i*3], indices[i*3+1], indices[i*3+2], CacheSize, timestamps, &timestamp)
		if i == 0 || misses == 3 {
			clusters = append(clusters, i)
		}
	}
	return clusters
}

// softBoundaries splits each hard cluster further whenever the running ACMR
// of the current piece drops to threshold times the cluster's ACMR.
func softBoundaries(indices []uint32, vertexCount int, hard []int, threshold float32) []int {
	timestamps := make([]uint32, vertexCount)
	timestamp := uint32(0)
	faceCount := len(indices) / 3

	var clusters []int
	for h, start := range hard {
		end := faceCount
		if h+1 < len(hard) {
			end = hard[h+1]
		}

		timestamp += CacheSize + 1
		misses := 0
		for i := start; i < end; i++ {
			misses += updateCache(indices[i*3], indices[i*3+1], indices[i*3+2], CacheSize, timestamps, &timestamp)
		}
		clusterThreshold := threshold * float32(misses) / float32(end-start)

		clusters = append(clusters, start)
		timestamp += CacheSize + 1

		runningMisses, runningFaces := 0, 0
		for i := start; i < end; i++ {
			runningMisses += updateCache(indices[i*3], indices[i*3+1], indices[i*3+2], CacheSize, timestamps, &timestamp)
			runningFaces++

			if float32(runningMisses)/float32(runningFaces) <= clusterThreshold {
				clusters = append(clusters, i+1)
				timestamp += CacheSize + 1
				runningMisses, runningFaces = 0, 0
			}
		}

		// The last split may land exactly on the cluster end.
		if clusters[len(clusters)-1] == end {
			clusters = clusters[:len(clusters)-1]
		}
	}
	return clusters
}

// OptimizeOverdraw reorders clusters of triangles so that outward-facing
// clusters are drawn first, reducing overdraw. Clusters come from the
// vertex-cache order of indices, so each cluster keeps its cache locality;
// threshold bounds how much ACMR the split may cost (1.0 keeps it unchanged).
func OptimizeOverdraw(indices []uint32, positions []vec3.T, threshold float32) []uint32 {
	faceCount := len(indices) / 3
	out := make([]uint32, 0, faceCount*3)
	if faceCount == 0 {
		return out
	}

	hard := hardBoundaries(indices, len(positions))
	clusters := softBoundaries(indices, len(positions), hard, threshold)

	var meshCentroid vec3.T
	for _, idx := range indices[:faceCount*3] {
		meshCentroid.Add(&positions[idx])
	}
	meshCentroid.Scale(1 / float32(faceCount*3))

	keys := make([]float32, len(clusters))
	for c, start := range clusters {
		end := faceCount
		if c+1 < len(clusters) {
			end = clusters[c+1]
		}

		var centroid, normal vec3.T
		var area float32
		for i := start; i < end; i++ {
			p0 := positions[indices[i*3]]
			p1 := positions[indices[i*3+1]]
			p2 := positions[indices[i*3+2]]

			e1 := vec3.Sub(&p1, &p0)
			e2 := vec3.Sub(&p2, &p0)
			n := vec3.Cross(&e1, &e2)
			a := n.Length()

			for k := 0; k < 3; k++ {
				centroid[k] += (p0[k] + p1[k] + p2[k]) / 3 * a
			}
			normal.Add(&n)
			area += a
		}

		if area > 0 {
			centroid.Scale(1 / area)
		}
		if l := normal.Length(); l > 0 {
			normal.Scale(1 / l)
		}
		d := vec3.Sub(&centroid, &meshCentroid)
		keys[c] = vec3.Dot(&d, &normal)
	}

	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return keys[order[i]] > keys[order[j]]
	})

	for _, c := range order {
		start := clusters[c]
		end := faceCount
		if c+1 < len(clusters) {
			end = clusters[c+1]
		}
		out = append(out, indices[start*3:end*3]...)
	}
	return out
}

// OverdrawStatistics reports pixels covered and shaded by a software
// rasterizer looking at the mesh along each axis from both sides.
type OverdrawStatistics struct {
	PixelsCovered int
	PixelsShaded  int
	Overdraw      float32 // shaded / covered
}

const viewport = 256

// AnalyzeOverdraw rasterizes the triangles in order into six axis-aligned
// views with back-face culling and a depth test.
func AnalyzeOverdraw(indices []uint32, positions []vec3.T) OverdrawStatistics {
	var st OverdrawStatistics

	lo, extent := bounds(positions)
	if extent == 0 || len(indices) < 3 {
		return st
	}
	scale := float32(viewport) / extent

	depth := make([]float32, viewport*viewport)
	for axis := 0; axis < 3; axis++ {
		for _, side := range [2]float32{1, -1} {
			for i := range depth {
				depth[i] = math32.Inf(1)
			}

			for i := 0; i+2 < len(indices); i += 3 {
				var tri [3]vec3.T
				for k := 0; k < 3; k++ {
					p := positions[indices[i+k]]
					// Project so that the view axis becomes depth.
					x := (p[(axis+1)%3] - lo[(axis+1)%3]) * scale
					y := (p[(axis+2)%3] - lo[(axis+2)%3]) * scale
					z := (p[axis] - lo[axis]) * scale * side
					tri[k] = vec3.T{x, y, z}
				}
				st.PixelsShaded += rasterize(depth, tri, side)
			}

			for _, z := range depth {
				if !math32.IsInf(z, 1) {
					st.PixelsCovered++
				}
			}
		}
	}

	if st.PixelsCovered > 0 {
		st.Overdraw = float32(st.PixelsShaded) / float32(st.PixelsCovered)
	}
	return st
}

// rasterize draws a front-facing triangle into depth and returns how many
// pixels passed the depth test. Front-facing means counter-clockwise for
// side 1 and clockwise for side -1.
func rasterize(depth []float32, tri [3]vec3.T, side float32) int {
	area := (tri[1][0]-tri[0][0])*(tri[2][1]-tri[0][1]) - (tri[2][0]-tri[0][0])*(tri[1][1]-tri[0][1])
	if area*side <= 0 {
		return 0
	}
	if area < 0 {
		tri[1], tri[2] = tri[2], tri[1]
		area = -area
	}

	minX := clampPixel(math32.Floor(math32.Min(tri[0][0], math32.Min(tri[1][0], tri[2][0]))))
	maxX := clampPixel(math32.Ceil(math32.Max(tri[0][0], math32.Max(tri[1][0], tri[2][0]))))
	minY := clampPixel(math32.Floor(math32.Min(tri[0][1], math32.Min(tri[1][1], tri[2][1]))))
	maxY := clampPixel(math32.Ceil(math32.Max(tri[0][1], math32.Max(tri[1][1], tri[2][1]))))

	shaded := 0
	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5

			w0 := edge(tri[1], tri[2], px, py)
			w1 := edge(tri[2], tri[0], px, py)
			w2 := edge(tri[0], tri[1], px, py)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			z := (w0*tri[0][2] + w1*tri[1][2] + w2*tri[2][2]) / area
			if z < depth[y*viewport+x] {
				depth[y*viewport+x] = z
				shaded++
			}
		}
	}
	return shaded
}

func edge(a, b vec3.T, x, y float32) float32 {
	return (b[0]-a[0])*(y-a[1]) - (b[1]-a[1])*(x-a[0])
}

func clampPixel(v float32) int {
	if v < 0 {
		return 0
	}
	if v > viewport-1 {
		return viewport - 1
	}
	return int(v)
}
