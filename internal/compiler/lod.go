package compiler

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/geomc/pkg/meshopt"
)

// lodTargetError is the simplifier error bound, relative to the mesh extent.
const lodTargetError = 1e-2

// lodTarget returns the index count aimed at by LOD rank, a whole number of
// triangles.
func lodTarget(base int, reduction float32, rank int) int {
	n := int(math32.Floor(float32(base) * math32.Pow(reduction, float32(rank))))
	return n / 3 * 3
}

// generateLODs appends up to maxLODs-1 simplified index buffers to sm. Each
// step simplifies the previous LOD.
func generateLODs(sm *submesh, reduction float32, maxLODs int) {
	positions := sm.positions()
	base := len(sm.Indices)
	src := sm.Indices

	for rank := 1; rank < maxLODs; rank++ {
		target := lodTarget(base, reduction, rank)
		if target < 3 || len(src) < target {
			break
		}

		out := meshopt.Simplify(src, positions, target, lodTargetError)
		if len(out) >= len(src) {
			break
		}
		sm.LODs = append(sm.LODs, lod{Indices: out})
		src = out

		// The simplifier hit its error bound before the target.
		if len(out) > target {
			break
		}
	}
}
