package pointcloud

import (
	"github.com/golang/geo/r3"
)

// basicPointCloud is the basic implementation of the PointCloud interface backed by
// a slice of points kept in insertion order. The same position may appear more than
// once; nothing collapses duplicates.
type basicPointCloud struct {
	points []r3.Vector
	meta   MetaData
}

// New returns an empty PointCloud backed by a basicPointCloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated PointCloud backed by a basicPointCloud.
func NewWithPrealloc(size int) PointCloud {
	return &basicPointCloud{
		points: make([]r3.Vector, 0, size),
		meta:   NewMetaData(),
	}
}

// NewFromPoints returns a PointCloud holding the given points in the given order.
// The slice is copied.
func NewFromPoints(pts []r3.Vector) PointCloud {
	cloud := NewWithPrealloc(len(pts))
	for _, p := range pts {
		cloud.Append(p)
	}
	return cloud
}

func (cloud *basicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(i int) r3.Vector {
	return cloud.points[i]
}

func (cloud *basicPointCloud) Append(p r3.Vector) {
	cloud.points = append(cloud.points, p)
	cloud.meta.Merge(p)
}

func (cloud *basicPointCloud) Iterate(numBatches, myBatch int, fn func(i int, p r3.Vector) bool) {
	if numBatches > 0 && myBatch >= numBatches {
		return
	}
	lowerBound := 0
	upperBound := len(cloud.points)
	if numBatches > 0 {
		batchSize := (len(cloud.points) + numBatches - 1) / numBatches
		lowerBound = myBatch * batchSize
		upperBound = (myBatch + 1) * batchSize
	}
	if upperBound > len(cloud.points) {
		upperBound = len(cloud.points)
	}
	for i := lowerBound; i < upperBound; i++ {
		if cont := fn(i, cloud.points[i]); !cont {
			return
		}
	}
}
