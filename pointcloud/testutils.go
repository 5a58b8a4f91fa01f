package pointcloud

import (
	"math/rand"

	"github.com/golang/geo/r3"
)

// GenerateUniformCloud creates a test point cloud of n points drawn uniformly
// inside an axis aligned cube of the given side length centered at the origin.
func GenerateUniformCloud(n int, sideLength float64, r *rand.Rand) PointCloud {
	cloud := NewWithPrealloc(n)
	for i := 0; i < n; i++ {
		cloud.Append(r3.Vector{
			X: (r.Float64() - 0.5) * sideLength,
			Y: (r.Float64() - 0.5) * sideLength,
			Z: (r.Float64() - 0.5) * sideLength,
		})
	}
	return cloud
}

// GenerateSphereCloud creates a test point cloud of n points on the surface of
// the sphere with the given center and radius. A normalized gaussian triple is
// uniform on the unit sphere.
func GenerateSphereCloud(n int, center r3.Vector, radius float64, r *rand.Rand) PointCloud {
	cloud := NewWithPrealloc(n)
	for i := 0; i < n; i++ {
		v := r3.Vector{X: r.NormFloat64(), Y: r.NormFloat64(), Z: r.NormFloat64()}
		for v.Norm() < 1e-9 {
			v = r3.Vector{X: r.NormFloat64(), Y: r.NormFloat64(), Z: r.NormFloat64()}
		}
		cloud.Append(center.Add(v.Normalize().Mul(radius)))
	}
	return cloud
}
