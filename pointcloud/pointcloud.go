// Package pointcloud defines point cloud containers and the per point scalar
// fields that geometric analysis routines read from and write to.
//
// The basic implementation is an ordered, slice backed cloud addressed by
// point index. Duplicate positions are allowed and preserved, and indices are
// stable for the lifetime of the cloud, so a scalar field produced for a cloud
// stays aligned with it.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// PointCloud is a general purpose container of points. It does not
// dictate whether or not the cloud is sparse or dense. The current
// basic implementation keeps points in insertion order.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns meta data
	MetaData() MetaData

	// At returns the point stored at the given index. Indices follow
	// insertion order. Like a slice access, it panics if the index is
	// out of range.
	At(i int) r3.Vector

	// Append adds a point at the end of the cloud, after the ones
	// already stored.
	Append(p r3.Vector)

	// Iterate iterates over all points in the cloud and calls the given
	// function for each point. If the supplied function returns false,
	// iteration will stop after the function returns.
	// numBatches lets you divide up the work. 0 means don't divide
	// myBatch is used iff numBatches > 0 and is which batch you want
	Iterate(numBatches, myBatch int, fn func(i int, p r3.Vector) bool)
}

// NewMetaData creates a new MetaData
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the meta data with the new point
func (meta *MetaData) Merge(v r3.Vector) {
	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
}

// Center returns the center of the bounding box of the points.
func (meta *MetaData) Center() r3.Vector {
	if meta.MaxX < meta.MinX {
		return r3.Vector{}
	}
	return r3.Vector{
		X: (meta.MaxX + meta.MinX) / 2,
		Y: (meta.MaxY + meta.MinY) / 2,
		Z: (meta.MaxZ + meta.MinZ) / 2,
	}
}

// MaxSideLength returns the largest side length of the bounding box.
func (meta *MetaData) MaxSideLength() float64 {
	if meta.MaxX < meta.MinX {
		return 0
	}
	return math.Max(meta.MaxX-meta.MinX, math.Max(meta.MaxY-meta.MinY, meta.MaxZ-meta.MinZ))
}
