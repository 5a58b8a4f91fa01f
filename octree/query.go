package octree

import (
	"math"

	"github.com/golang/geo/r3"
)

// RadiusQuery collects the indices of every point within radius of p by
// scanning the cells of the given level that overlap the ball. A query point
// belonging to the cloud is itself part of the result. The result is appended
// to buf, which is reset first and may be reused across queries. Cell scan
// order is fixed, so the result order is deterministic.
func (ot *Octree) RadiusQuery(p r3.Vector, radius float64, lvl int, buf []int) []int {
	out := buf[:0]
	if radius < 0 || lvl < 1 || lvl > ot.maxBuilt {
		return out
	}
	lv := ot.levels[lvl]
	rr := radius * radius

	lo := ot.keyForPoint(r3.Vector{X: p.X - radius, Y: p.Y - radius, Z: p.Z - radius}, lvl)
	hi := ot.keyForPoint(r3.Vector{X: p.X + radius, Y: p.Y + radius, Z: p.Z + radius}, lvl)

	for i := lo.I; i <= hi.I; i++ {
		for j := lo.J; j <= hi.J; j++ {
			for k := lo.K; k <= hi.K; k++ {
				indices, ok := lv.cells[CellKey{I: i, J: j, K: k}]
				if !ok {
					continue
				}
				for _, idx := range indices {
					if ot.cloud.At(idx).Sub(p).Norm2() <= rr {
						out = append(out, idx)
					}
				}
			}
		}
	}
	return out
}

// NearestNeighbor returns the index of and distance to the point nearest to
// point i, never i itself. Cell shells around i's cell at the deepest built
// level are expanded until no unvisited cell can hold a closer point. On a
// cloud with no other point it returns (-1, +Inf).
func (ot *Octree) NearestNeighbor(i int) (int, float64) {
	lvl := ot.maxBuilt
	lv := ot.levels[lvl]
	p := ot.cloud.At(i)
	home := ot.keyForPoint(p, lvl)
	n := int64(1) << lvl

	best := -1
	bestDist := math.Inf(1)

	for shell := int64(0); shell <= n; shell++ {
		// no cell on this shell or beyond can beat the current best
		if best >= 0 && float64(shell-1)*lv.cellSize > bestDist {
			break
		}
		for ci := home.I - shell; ci <= home.I+shell; ci++ {
			for cj := home.J - shell; cj <= home.J+shell; cj++ {
				for ck := home.K - shell; ck <= home.K+shell; ck++ {
					if chebyshev(ci-home.I, cj-home.J, ck-home.K) != shell {
						continue
					}
					indices, ok := lv.cells[CellKey{I: ci, J: cj, K: ck}]
					if !ok {
						continue
					}
					for _, idx := range indices {
						if idx == i {
							continue
						}
						if d := ot.cloud.At(idx).Sub(p).Norm(); d < bestDist {
							best = idx
							bestDist = d
						}
					}
				}
			}
		}
	}
	return best, bestDist
}

func chebyshev(di, dj, dk int64) int64 {
	if di < 0 {
		di = -di
	}
	if dj < 0 {
		dj = -dj
	}
	if dk < 0 {
		dk = -dk
	}
	m := di
	if dj > m {
		m = dj
	}
	if dk > m {
		m = dk
	}
	return m
}
