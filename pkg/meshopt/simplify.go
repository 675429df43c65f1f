package meshopt

import (
	"math"
	"sort"

	"github.com/flywave/go3d/vec3"
	"gonum.org/v1/gonum/spatial/r3"
)

// quadric is a symmetric plane-distance error form: for a point p the error
// is pᵀAp + 2b·p + c, accumulated with an area weight w.
type quadric struct {
	a00, a11, a22 float64
	a01, a02, a12 float64
	b0, b1, b2    float64
	c, w          float64
}

func planeQuadric(n r3.Vec, d, weight float64) quadric {
	return quadric{
		a00: n.X * n.X * weight, a11: n.Y * n.Y * weight, a22: n.Z * n.Z * weight,
		a01: n.X * n.Y * weight, a02: n.X * n.Z * weight, a12: n.Y * n.Z * weight,
		b0: n.X * d * weight, b1: n.Y * d * weight, b2: n.Z * d * weight,
		c: d * d * weight,
		w: weight,
	}
}

func (q *quadric) add(o quadric) {
	q.a00 += o.a00
	q.a11 += o.a11
	q.a22 += o.a22
	q.a01 += o.a01
	q.a02 += o.a02
	q.a12 += o.a12
	q.b0 += o.b0
	q.b1 += o.b1
	q.b2 += o.b2
	q.c += o.c
	q.w += o.w
}

// error returns the weighted mean squared distance of p to the planes.
func (q quadric) error(p r3.Vec) float64 {
	rx := q.a00*p.X + q.a01*p.Y + q.a02*p.Z
	ry := q.a01*p.X + q.a11*p.Y + q.a12*p.Z
	rz := q.a02*p.X + q.a12*p.Y + q.a22*p.Z
	r := rx*p.X + ry*p.Y + rz*p.Z + 2*(q.b0*p.X+q.b1*p.Y+q.b2*p.Z) + q.c
	if q.w > 0 {
		r /= q.w
	}
	return math.Abs(r)
}

type collapse struct {
	from, to uint32
	cost     float64
}

// Simplify reduces the triangle count towards targetCount indices by edge
// collapses. A collapse moves one vertex onto a neighbour, so no vertex or
// position is created. Collapses whose error exceeds targetError, relative
// to the mesh extent, are rejected, so the result may stay above
// targetCount. Border and non-manifold vertices never move.
func Simplify(indices []uint32, positions []vec3.T, targetCount int, targetError float32) []uint32 {
	result := append([]uint32(nil), indices[:len(indices)/3*3]...)
	if targetCount >= len(result) || len(result) == 0 {
		return result
	}

	lo, extent := bounds(positions)
	scale := 1.0
	if extent > 0 {
		scale = 1 / float64(extent)
	}
	pos := make([]r3.Vec, len(positions))
	for i, p := range positions {
		pos[i] = r3.Scale(scale, r3.Vec{
			X: float64(p[0] - lo[0]),
			Y: float64(p[1] - lo[1]),
			Z: float64(p[2] - lo[2]),
		})
	}

	locked := lockedVertices(result, len(positions))

	quadrics := make([]quadric, len(positions))
	for i := 0; i < len(result); i += 3 {
		p0, p1, p2 := pos[result[i]], pos[result[i+1]], pos[result[i+2]]
		n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
		area := r3.Norm(n)
		if area == 0 {
			continue
		}
		n = r3.Scale(1/area, n)
		q := planeQuadric(n, -r3.Dot(n, p0), area*0.5)
		for k := 0; k < 3; k++ {
			quadrics[result[i+k]].add(q)
		}
	}

	maxError := float64(targetError) * float64(targetError)
	remap := make([]uint32, len(positions))
	for i := range remap {
		remap[i] = uint32(i)
	}

	for len(result) > targetCount {
		adj := buildTriangleAdjacency(result, len(positions))

		var candidates []collapse
		for i := 0; i < len(result); i += 3 {
			for k := 0; k < 3; k++ {
				a, b := result[i+k], result[i+(k+1)%3]
				for _, e := range [2][2]uint32{{a, b}, {b, a}} {
					if locked[e[0]] {
						continue
					}
					q := quadrics[e[0]]
					q.add(quadrics[e[1]])
					candidates = append(candidates, collapse{from: e[0], to: e[1], cost: q.error(pos[e[1]])})
				}
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			ci, cj := candidates[i], candidates[j]
			if ci.cost != cj.cost {
				return ci.cost < cj.cost
			}
			if ci.from != cj.from {
				return ci.from < cj.from
			}
			return ci.to < cj.to
		})

		touched := make([]bool, len(positions))
		triangles := len(result) / 3
		collapsed := 0
		for _, c := range candidates {
			if c.cost > maxError || triangles*3 <= targetCount {
				break
			}
			if touched[c.from] || touched[c.to] {
				continue
			}
			if flips(result, adj, pos, c.from, c.to) {
				continue
			}

			removed := 0
			for _, t := range adj.triangles(c.from) {
				tri := result[t*3 : t*3+3]
				for _, v := range tri {
					touched[v] = true
				}
				if tri[0] == c.to || tri[1] == c.to || tri[2] == c.to {
					removed++
				}
			}
			remap[c.from] = c.to
			quadrics[c.to].add(quadrics[c.from])
			triangles -= removed
			collapsed++
		}
		if collapsed == 0 {
			break
		}

		out := result[:0]
		for i := 0; i < len(result); i += 3 {
			a, b, c := remap[result[i]], remap[result[i+1]], remap[result[i+2]]
			if a == b || b == c || a == c {
				continue
			}
			out = append(out, a, b, c)
		}
		result = out
	}
	return result
}

// lockedVertices marks vertices on open borders and non-manifold edges.
func lockedVertices(indices []uint32, vertexCount int) []bool {
	type edge struct{ a, b uint32 }
	edges := make(map[edge]int, len(indices))
	for i := 0; i < len(indices); i += 3 {
		for k := 0; k < 3; k++ {
			edges[edge{indices[i+k], indices[i+(k+1)%3]}]++
		}
	}

	locked := make([]bool, vertexCount)
	for e, n := range edges {
		if n != 1 || edges[edge{e.b, e.a}] != 1 {
			locked[e.a] = true
			locked[e.b] = true
		}
	}
	return locked
}

// flips reports whether moving vertex from onto vertex to would invert a
// triangle around from that survives the collapse.
func flips(indices []uint32, adj *triangleAdjacency, pos []r3.Vec, from, to uint32) bool {
	for _, t := range adj.triangles(from) {
		tri := indices[t*3 : t*3+3]
		if tri[0] == to || tri[1] == to || tri[2] == to {
			continue
		}

		var before, after [3]r3.Vec
		for k, v := range tri {
			before[k] = pos[v]
			after[k] = pos[v]
			if v == from {
				after[k] = pos[to]
			}
		}
		n0 := r3.Cross(r3.Sub(before[1], before[0]), r3.Sub(before[2], before[0]))
		n1 := r3.Cross(r3.Sub(after[1], after[0]), r3.Sub(after[2], after[0]))
		if r3.Dot(n0, n1) <= 0 {
			return true
		}
	}
	return false
}
