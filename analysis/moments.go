package analysis

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	pc "github.com/viam-labs/pointcloud-analysis/pointcloud"
)

// GravityCenter returns the mean position of the cloud. An empty or nil
// cloud gets the zero vector.
func GravityCenter(cloud pc.PointCloud) r3.Vector {
	if cloud == nil || cloud.Size() == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	cloud.Iterate(0, 0, func(i int, p r3.Vector) bool {
		sum = sum.Add(p)
		return true
	})
	return sum.Mul(1 / float64(cloud.Size()))
}

// WeightedGravityCenter returns the weighted mean position of the cloud.
// Weights fold to their absolute value and weights that are not finite count
// as zero. When every weight folds to zero the unweighted center is returned,
// and a nil weights slice means plain unweighted too.
func WeightedGravityCenter(cloud pc.PointCloud, weights []float64) (r3.Vector, error) {
	if cloud == nil || cloud.Size() == 0 {
		return r3.Vector{}, errors.Wrap(ErrInvalidInput, "empty point cloud")
	}
	if weights == nil {
		return GravityCenter(cloud), nil
	}
	if len(weights) != cloud.Size() {
		return r3.Vector{}, errors.Wrapf(ErrInvalidInput,
			"%d weights for %d points", len(weights), cloud.Size())
	}
	var sum r3.Vector
	var wSum float64
	cloud.Iterate(0, 0, func(i int, p r3.Vector) bool {
		w := foldWeight(weights[i])
		sum = sum.Add(p.Mul(w))
		wSum += w
		return true
	})
	if wSum <= 0 {
		return GravityCenter(cloud), nil
	}
	return sum.Mul(1 / wSum), nil
}

// foldWeight maps a raw weight to the nonnegative value actually used.
func foldWeight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0
	}
	return math.Abs(w)
}

// CovarianceMatrix returns the 3x3 covariance of the cloud about center,
// normalized by the point count. A nil center means the gravity center.
func CovarianceMatrix(cloud pc.PointCloud, center *r3.Vector) (*mat.SymDense, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "empty point cloud")
	}
	c := GravityCenter(cloud)
	if center != nil {
		c = *center
	}
	var xx, xy, xz, yy, yz, zz float64
	cloud.Iterate(0, 0, func(i int, p r3.Vector) bool {
		d := p.Sub(c)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
		return true
	})
	n := float64(cloud.Size())
	return mat.NewSymDense(3, []float64{
		xx / n, xy / n, xz / n,
		xy / n, yy / n, yz / n,
		xz / n, yz / n, zz / n,
	}), nil
}

// CrossCovarianceMatrix returns the 3x3 cross covariance of two same size
// clouds about their gravity centers, normalized by the point count. Row
// indices follow q, column indices follow p, so the entry at (r, c) is the
// mean of (q_i - meanQ)[r] * (p_i - meanP)[c]. Points pair up by index.
func CrossCovarianceMatrix(p, q pc.PointCloud) (*mat.Dense, error) {
	return WeightedCrossCovarianceMatrix(p, q, nil)
}

// WeightedCrossCovarianceMatrix is CrossCovarianceMatrix with a weight per
// point pair, normalized by the weight sum. Weights fold as in
// WeightedGravityCenter; nil weights or weights folding to all zeros mean
// the unweighted matrix.
func WeightedCrossCovarianceMatrix(p, q pc.PointCloud, weights []float64) (*mat.Dense, error) {
	if p == nil || p.Size() == 0 || q == nil || q.Size() == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "empty point cloud")
	}
	if p.Size() != q.Size() {
		return nil, errors.Wrapf(ErrInvalidInput,
			"cloud sizes %d and %d differ", p.Size(), q.Size())
	}
	if weights != nil && len(weights) != p.Size() {
		return nil, errors.Wrapf(ErrInvalidInput,
			"%d weights for %d point pairs", len(weights), p.Size())
	}

	meanP, err := WeightedGravityCenter(p, weights)
	if err != nil {
		return nil, err
	}
	meanQ, err := WeightedGravityCenter(q, weights)
	if err != nil {
		return nil, err
	}

	useWeights := false
	wSum := float64(p.Size())
	if weights != nil {
		total := 0.0
		for _, w := range weights {
			total += foldWeight(w)
		}
		if total > 0 {
			useWeights = true
			wSum = total
		}
	}

	var acc [9]float64
	for i := 0; i < p.Size(); i++ {
		w := 1.0
		if useWeights {
			w = foldWeight(weights[i])
		}
		dp := p.At(i).Sub(meanP)
		dq := q.At(i).Sub(meanQ)
		acc[0] += w * dq.X * dp.X
		acc[1] += w * dq.X * dp.Y
		acc[2] += w * dq.X * dp.Z
		acc[3] += w * dq.Y * dp.X
		acc[4] += w * dq.Y * dp.Y
		acc[5] += w * dq.Y * dp.Z
		acc[6] += w * dq.Z * dp.X
		acc[7] += w * dq.Z * dp.Y
		acc[8] += w * dq.Z * dp.Z
	}
	out := mat.NewDense(3, 3, acc[:])
	out.Scale(1/wSum, out)
	return out, nil
}
