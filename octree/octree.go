// Package octree implements a level addressed octree partition of a point
// cloud, with neighborhood queries and a cell parallel executor built on it.
//
// The octree covers the cloud's bounding cube. Level L splits the cube into
// 2^L cells per axis; the cells of one level are disjoint and together hold
// every point index of the cloud, so per cell work can run in parallel
// without locking as long as each unit writes only to its own cell's points.
package octree

import (
	"context"
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	pc "github.com/viam-labs/pointcloud-analysis/pointcloud"
)

// MaxLevel is the deepest subdivision level an octree will build.
const MaxLevel = 10

// CellKey addresses one cell within a level of the octree grid.
type CellKey struct {
	I, J, K int64
}

// Cell is the set of point indices one octree cell holds at some level.
type Cell struct {
	Level   int
	Key     CellKey
	Indices []int
}

type level struct {
	cellSize   float64
	cells      map[CellKey][]int
	sortedKeys []CellKey
}

// Octree indexes a point cloud for neighborhood queries and cell traversal.
// It is immutable once built and safe for concurrent use.
type Octree struct {
	cloud      pc.PointCloud
	center     r3.Vector
	sideLength float64
	minCorner  r3.Vector
	maxBuilt   int
	levels     []level // levels[0] unused, subdivision starts at 1
}

// Build indexes the given cloud. The bounding cube is taken from the cloud's
// metadata; a degenerate cloud of coincident points still gets a positive
// cube. Levels deeper than the cloud's occupancy warrants are not built.
func Build(ctx context.Context, cloud pc.PointCloud, logger golog.Logger) (*Octree, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.New("cannot build an octree over an empty point cloud")
	}

	meta := cloud.MetaData()
	sideLength := meta.MaxSideLength()
	if sideLength <= 0 {
		logger.Debug("cloud has no extent, indexing it in a unit cube")
		sideLength = 1.0
	}
	center := meta.Center()

	maxBuilt := occupancyLevel(cloud.Size())
	ot := &Octree{
		cloud:      cloud,
		center:     center,
		sideLength: sideLength,
		minCorner: r3.Vector{
			X: center.X - sideLength/2,
			Y: center.Y - sideLength/2,
			Z: center.Z - sideLength/2,
		},
		maxBuilt: maxBuilt,
		levels:   make([]level, maxBuilt+1),
	}

	for lvl := 1; lvl <= maxBuilt; lvl++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lv := level{
			cellSize: sideLength / float64(int64(1)<<lvl),
			cells:    make(map[CellKey][]int),
		}
		cloud.Iterate(0, 0, func(i int, p r3.Vector) bool {
			key := ot.keyForPoint(p, lvl)
			lv.cells[key] = append(lv.cells[key], i)
			return true
		})
		lv.sortedKeys = make([]CellKey, 0, len(lv.cells))
		for key := range lv.cells {
			lv.sortedKeys = append(lv.sortedKeys, key)
		}
		sort.Slice(lv.sortedKeys, func(a, b int) bool {
			ka, kb := lv.sortedKeys[a], lv.sortedKeys[b]
			if ka.I != kb.I {
				return ka.I < kb.I
			}
			if ka.J != kb.J {
				return ka.J < kb.J
			}
			return ka.K < kb.K
		})
		ot.levels[lvl] = lv
	}
	logger.Debugf("indexed %d points down to level %d", cloud.Size(), maxBuilt)

	return ot, nil
}

// occupancyLevel picks the deepest level worth building: roughly one point
// per cell, one level of headroom, never past MaxLevel.
func occupancyLevel(size int) int {
	lvl := int(math.Ceil(math.Log2(float64(size))/3)) + 1
	if lvl < 1 {
		lvl = 1
	}
	if lvl > MaxLevel {
		lvl = MaxLevel
	}
	return lvl
}

// Size returns the number of points the octree indexes.
func (ot *Octree) Size() int {
	return ot.cloud.Size()
}

// Center returns the center of the octree's bounding cube.
func (ot *Octree) Center() r3.Vector {
	return ot.center
}

// SideLength returns the side length of the octree's bounding cube.
func (ot *Octree) SideLength() float64 {
	return ot.sideLength
}

// MaxBuiltLevel returns the deepest level this octree holds cells for.
func (ot *Octree) MaxBuiltLevel() int {
	return ot.maxBuilt
}

// CellSizeAtLevel returns the cell side length at the given level.
func (ot *Octree) CellSizeAtLevel(lvl int) float64 {
	return ot.sideLength / float64(int64(1)<<lvl)
}

// BestLevelForRadius returns the deepest built level whose cells are at least
// as wide as the given radius, so a ball of that radius overlaps a bounded
// number of cells.
func (ot *Octree) BestLevelForRadius(radius float64) int {
	if radius <= 0 {
		return ot.maxBuilt
	}
	lvl := int(math.Floor(math.Log2(ot.sideLength / radius)))
	if lvl < 1 {
		return 1
	}
	if lvl > ot.maxBuilt {
		return ot.maxBuilt
	}
	return lvl
}

// CellsAtLevel returns the non-empty cells of a level, ordered by key. The
// returned cells share the octree's index storage and must not be mutated.
// Levels outside [1, MaxBuiltLevel] yield nil.
func (ot *Octree) CellsAtLevel(lvl int) []Cell {
	if lvl < 1 || lvl > ot.maxBuilt {
		return nil
	}
	lv := ot.levels[lvl]
	out := make([]Cell, 0, len(lv.sortedKeys))
	for _, key := range lv.sortedKeys {
		out = append(out, Cell{Level: lvl, Key: key, Indices: lv.cells[key]})
	}
	return out
}

func (ot *Octree) keyForPoint(p r3.Vector, lvl int) CellKey {
	cellSize := ot.sideLength / float64(int64(1)<<lvl)
	n := int64(1) << lvl
	return CellKey{
		I: clampCellCoord(math.Floor((p.X-ot.minCorner.X)/cellSize), n),
		J: clampCellCoord(math.Floor((p.Y-ot.minCorner.Y)/cellSize), n),
		K: clampCellCoord(math.Floor((p.Z-ot.minCorner.Z)/cellSize), n),
	}
}

// clampCellCoord keeps boundary points (and float roundoff at the cube faces)
// inside the grid.
func clampCellCoord(c float64, n int64) int64 {
	i := int64(c)
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
