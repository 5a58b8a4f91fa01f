// Package analysis computes per point geometric characteristics over 3D
// point clouds: local shape features, curvature, density, roughness and first
// order moments, plus the gravity center and covariance accumulations used by
// rigid registration, and a duplicate point flagger.
//
// Per point characteristics run cell by cell over an octree partition of the
// cloud, in parallel by default, writing into a caller owned scalar field.
// Points whose neighborhood cannot support the requested quantity keep the
// field's invalid sentinel.
package analysis

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/viam-labs/pointcloud-analysis/octree"
	pc "github.com/viam-labs/pointcloud-analysis/pointcloud"
)

// GeomFeature selects the eigenvalue based shape descriptor a Feature
// characteristic produces. Eigenvalues of the neighborhood covariance are
// sorted in decreasing order, so EigenValue1 is the largest.
type GeomFeature int

// The supported geometric features.
const (
	EigenValuesSum GeomFeature = iota
	Omnivariance
	EigenEntropy
	Anisotropy
	Planarity
	Linearity
	PCA1
	PCA2
	SurfaceVariation
	Sphericity
	Verticality
	EigenValue1
	EigenValue2
	EigenValue3
)

// CurvatureType selects the curvature estimator.
type CurvatureType int

// Gaussian and mean curvature come from a least squares quadric fitted to
// the neighborhood; the normal change rate is the ratio of the smallest
// covariance eigenvalue to the eigenvalue sum.
const (
	GaussianCurvature CurvatureType = iota
	MeanCurvature
	NormalChangeRate
)

// DensityType selects how a neighbor count or spacing turns into a density.
type DensityType int

// DensityKNN reports the raw count (or inverse spacing for the approximate
// estimator); Density2D normalizes by the kernel disk area, Density3D by the
// kernel ball volume.
const (
	DensityKNN DensityType = iota
	Density2D
	Density3D
)

// Characteristic selects the per point quantity Compute produces. The
// characteristic types in this package are the only implementations.
type Characteristic interface {
	// cellFunc binds the characteristic to one pass's shared state.
	cellFunc(cc *computeContext) octree.CellFunc
	// minCloudSize is the smallest cloud the characteristic is defined on.
	minCloudSize() int
	// usesKernelRadius reports whether the pass reads the kernel radius.
	usesKernelRadius() bool
	// validate rejects sub-options that are not valid for the kind.
	validate() error
}

// Feature computes an eigenvalue based local shape descriptor per point.
type Feature struct {
	F GeomFeature
}

// Curvature computes a curvature estimate per point.
type Curvature struct {
	C CurvatureType
}

// LocalDensity counts the neighbors inside the kernel sphere, the point
// itself included, normalized per the density type.
type LocalDensity struct {
	D DensityType
}

// ApproxLocalDensity derives density from the distance to the single nearest
// neighbor instead of a full radius count. It is faster than LocalDensity
// and biased relative to it; the kernel radius is ignored.
type ApproxLocalDensity struct {
	D DensityType
}

// Roughness is the distance of a point to the least squares plane of its
// neighbors, the point itself left out of the fit. With UpDir set the
// distance is signed along the plane normal oriented toward UpDir;
// otherwise it is unsigned.
type Roughness struct {
	UpDir *r3.Vector
}

// MomentOrder1 is the first order moment of the neighbor set about the
// point, taken along the second eigenvector of the neighborhood.
type MomentOrder1 struct{}

// ProgressFunc receives the fraction of work completed so far, in (0, 1].
// Calls are serialized; keep the callback fast.
type ProgressFunc func(fractionDone float64)

// Config adjusts how a pass runs. The zero value builds a fresh octree, runs
// cells in parallel and reports nothing.
type Config struct {
	// Octree is a prebuilt index over the same cloud. Left nil, one is
	// built for the duration of the call.
	Octree *octree.Octree
	// Progress, when not nil, is called after each completed cell.
	Progress ProgressFunc
	// Sequential keeps the cell pass on the calling goroutine.
	Sequential bool
	// Logger is used when building an index. Left nil, a default is made.
	Logger golog.Logger
}

func (cfg *Config) logger() golog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return golog.NewLogger("pointcloud-analysis")
}

// computeContext carries the state one characteristic pass shares across
// cells. Cells read it concurrently; only out is written, each cell writing
// the slots of its own indices.
type computeContext struct {
	cloud        pc.PointCloud
	ot           *octree.Octree
	level        int
	kernelRadius float64
	out          *pc.ScalarField
}

// runPointwise adapts a per point evaluator to a cell function. eval receives
// a point index and the indices within the kernel radius around it, the point
// itself included, and reports whether it produced a value.
func runPointwise(cc *computeContext, eval func(idx int, neighbors []int) (float64, bool)) octree.CellFunc {
	return func(ctx context.Context, cell octree.Cell) error {
		var buf []int
		for _, idx := range cell.Indices {
			buf = cc.ot.RadiusQuery(cc.cloud.At(idx), cc.kernelRadius, cc.level, buf)
			if v, ok := eval(idx, buf); ok {
				cc.out.Set(idx, v)
			}
		}
		return nil
	}
}

// Compute evaluates the characteristic for every point of the cloud and
// writes the values into out, which must hold exactly one entry per point.
// Isolated points and neighborhoods too small for the requested quantity
// keep the invalid sentinel. On cancellation it returns ErrCancelled and
// the entries of unfinished cells keep the sentinel.
func Compute(ctx context.Context, char Characteristic, cloud pc.PointCloud, kernelRadius float64, out *pc.ScalarField, cfg *Config) error {
	if char == nil {
		return errors.Wrap(ErrUnhandledCharacteristic, "no characteristic given")
	}
	if err := char.validate(); err != nil {
		return err
	}
	if cloud == nil || cloud.Size() == 0 {
		return errors.Wrap(ErrInvalidInput, "empty point cloud")
	}
	if out == nil || out.Len() != cloud.Size() {
		return errors.Wrap(ErrInvalidInput, "output field does not match the cloud")
	}
	if char.usesKernelRadius() && kernelRadius <= 0 {
		return errors.Wrapf(ErrInvalidInput, "kernel radius %f is not positive", kernelRadius)
	}
	if cloud.Size() < char.minCloudSize() {
		return errors.Wrapf(ErrNotEnoughPoints, "cloud of %d, need at least %d", cloud.Size(), char.minCloudSize())
	}
	if cfg == nil {
		cfg = &Config{}
	}

	ot := cfg.Octree
	if ot == nil {
		var err error
		ot, err = octree.Build(ctx, cloud, cfg.logger())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ErrCancelled
			}
			return errors.Wrapf(ErrOctreeComputation, "%v", err)
		}
	}

	level := ot.MaxBuiltLevel()
	if char.usesKernelRadius() {
		level = ot.BestLevelForRadius(kernelRadius)
	}
	cc := &computeContext{
		cloud:        cloud,
		ot:           ot,
		level:        level,
		kernelRadius: kernelRadius,
		out:          out,
	}

	err := octree.RunOverCells(ctx, ot.CellsAtLevel(level), char.cellFunc(cc), !cfg.Sequential, cfg.Progress)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ErrCancelled
		}
		return errors.Wrapf(ErrProcessFailed, "%v", err)
	}
	return nil
}

func (f Feature) cellFunc(cc *computeContext) octree.CellFunc {
	return runPointwise(cc, func(idx int, neighbors []int) (float64, bool) {
		nb, ok := newNeighborhood(cc.cloud, neighbors, -1)
		if !ok {
			return 0, false
		}
		return nb.feature(f.F)
	})
}

func (f Feature) minCloudSize() int { return 3 }

func (f Feature) usesKernelRadius() bool { return true }

func (f Feature) validate() error {
	if f.F < EigenValuesSum || f.F > EigenValue3 {
		return errors.Wrapf(ErrUnhandledCharacteristic, "unknown geometric feature %d", f.F)
	}
	return nil
}

func (c Curvature) cellFunc(cc *computeContext) octree.CellFunc {
	return runPointwise(cc, func(idx int, neighbors []int) (float64, bool) {
		if c.C == NormalChangeRate {
			nb, ok := newNeighborhood(cc.cloud, neighbors, -1)
			if !ok {
				return 0, false
			}
			return nb.normalChangeRate()
		}
		return quadricCurvature(cc.cloud, cc.cloud.At(idx), neighbors, c.C)
	})
}

func (c Curvature) minCloudSize() int { return 3 }

func (c Curvature) usesKernelRadius() bool { return true }

func (c Curvature) validate() error {
	if c.C < GaussianCurvature || c.C > NormalChangeRate {
		return errors.Wrapf(ErrUnhandledCharacteristic, "unknown curvature type %d", c.C)
	}
	return nil
}

func (d LocalDensity) cellFunc(cc *computeContext) octree.CellFunc {
	return runPointwise(cc, func(idx int, neighbors []int) (float64, bool) {
		return densityFromCount(d.D, len(neighbors), cc.kernelRadius), true
	})
}

func (d LocalDensity) minCloudSize() int { return 3 }

func (d LocalDensity) usesKernelRadius() bool { return true }

func (d LocalDensity) validate() error {
	return validateDensityType(d.D)
}

func (d ApproxLocalDensity) cellFunc(cc *computeContext) octree.CellFunc {
	return func(ctx context.Context, cell octree.Cell) error {
		for _, idx := range cell.Indices {
			nn, dist := cc.ot.NearestNeighbor(idx)
			if nn < 0 || dist <= 0 {
				// no neighbor, or a coincident duplicate
				continue
			}
			cc.out.Set(idx, densityFromSpacing(d.D, dist))
		}
		return nil
	}
}

func (d ApproxLocalDensity) minCloudSize() int { return 2 }

func (d ApproxLocalDensity) usesKernelRadius() bool { return false }

func (d ApproxLocalDensity) validate() error {
	return validateDensityType(d.D)
}

func validateDensityType(d DensityType) error {
	if d < DensityKNN || d > Density3D {
		return errors.Wrapf(ErrUnhandledCharacteristic, "unknown density type %d", d)
	}
	return nil
}

func (r Roughness) cellFunc(cc *computeContext) octree.CellFunc {
	return runPointwise(cc, func(idx int, neighbors []int) (float64, bool) {
		nb, ok := newNeighborhood(cc.cloud, neighbors, idx)
		if !ok {
			return 0, false
		}
		return nb.roughness(cc.cloud.At(idx), r.UpDir)
	})
}

func (r Roughness) minCloudSize() int { return 3 }

func (r Roughness) usesKernelRadius() bool { return true }

func (r Roughness) validate() error { return nil }

func (m MomentOrder1) cellFunc(cc *computeContext) octree.CellFunc {
	return runPointwise(cc, func(idx int, neighbors []int) (float64, bool) {
		nb, ok := newNeighborhood(cc.cloud, neighbors, -1)
		if !ok {
			return 0, false
		}
		return nb.momentOrder1(cc.cloud.At(idx))
	})
}

func (m MomentOrder1) minCloudSize() int { return 3 }

func (m MomentOrder1) usesKernelRadius() bool { return true }

func (m MomentOrder1) validate() error { return nil }
