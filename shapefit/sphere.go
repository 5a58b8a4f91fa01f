// Package shapefit fits geometric primitives to point clouds: a robust
// random sample consensus sphere detector and a least squares circle
// detector. Failures use the error taxonomy of package analysis.
package shapefit

import (
	"context"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-labs/pointcloud-analysis/analysis"
	pc "github.com/viam-labs/pointcloud-analysis/pointcloud"
	"github.com/viam-labs/pointcloud-analysis/utils"
)

// Sphere is a fitted sphere with the root mean square surface distance of
// the points that support it.
type Sphere struct {
	Center r3.Vector
	Radius float64
	RMSE   float64
}

// SphereOptions tunes DetectSphere. The zero value means 99% confidence and
// an entropy seeded generator.
type SphereOptions struct {
	// Confidence is the target probability of drawing at least one all
	// inlier sample, in (0, 1). Zero means 0.99.
	Confidence float64
	// Seed seeds the sampling generator. Zero draws a seed at random, so
	// set it for reproducible runs.
	Seed uint64
	// Progress, when not nil, receives the fraction of planned samples
	// consumed so far.
	Progress analysis.ProgressFunc
}

const (
	sphereSampleSize = 4
	// robust standard deviation factor from Zhang, "Parameter Estimation
	// Techniques: A Tutorial" (least median of squares section)
	lmedsSigmaFactor = 1.4826
	lmedsInlierGate  = 2.5
)

// DetectSphere looks for the sphere best supported by the cloud. It draws
// minimal four point samples, keeps the candidate with the least median of
// squared surface distances and refines the winner on its inliers, so it
// tolerates up to outliersRatio of the points lying far off the sphere.
// Cancelling the context discards any candidate found so far.
func DetectSphere(ctx context.Context, cloud pc.PointCloud, outliersRatio float64, opts *SphereOptions) (Sphere, error) {
	if opts == nil {
		opts = &SphereOptions{}
	}
	confidence := opts.Confidence
	if confidence == 0 {
		confidence = 0.99
	}
	if cloud == nil || cloud.Size() < sphereSampleSize {
		return Sphere{}, errors.Wrap(analysis.ErrNotEnoughPoints, "a sphere needs at least four points")
	}
	if outliersRatio < 0 || outliersRatio >= 1 {
		return Sphere{}, errors.Wrapf(analysis.ErrInvalidInput, "outliers ratio %f outside [0, 1)", outliersRatio)
	}
	if confidence <= 0 || confidence >= 1 {
		return Sphere{}, errors.Wrapf(analysis.ErrInvalidInput, "confidence %f outside (0, 1)", confidence)
	}

	seed := int64(opts.Seed)
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	n := cloud.Size()
	needed := samplesNeeded(confidence, 1-outliersRatio)

	var (
		best      Sphere
		bestFound bool
		bestMedSq = math.Inf(1)
		sqDists   = make([]float64, n)
	)
	samples := 0
	for attempts := 0; samples < needed && attempts < 2*needed; attempts++ {
		if ctx.Err() != nil {
			return Sphere{}, analysis.ErrCancelled
		}

		picks := utils.SampleNDistinctIntegers(sphereSampleSize, 0, n-1, rng)
		candidate, err := SphereFrom4Points([4]r3.Vector{
			cloud.At(picks[0]), cloud.At(picks[1]), cloud.At(picks[2]), cloud.At(picks[3]),
		})
		if err != nil {
			// a degenerate draw burns an attempt, not a sample
			continue
		}
		samples++

		for i := 0; i < n; i++ {
			sqDists[i] = utils.Square(cloud.At(i).Sub(candidate.Center).Norm() - candidate.Radius)
		}
		medSq, err := stats.Median(sqDists)
		if err != nil {
			return Sphere{}, errors.Wrapf(analysis.ErrProcessFailed, "%v", err)
		}
		if medSq < bestMedSq {
			bestMedSq = medSq
			best = candidate
			bestFound = true

			// the better the fit looks, the fewer samples are still needed
			gate := lmedsInlierGate * robustSigma(medSq, n)
			inliers := countWithin(cloud, best, gate)
			if update := samplesNeeded(confidence, float64(inliers)/float64(n)); update < needed {
				needed = update
			}
		}
		if opts.Progress != nil {
			fraction := float64(samples) / float64(needed)
			if fraction > 1 {
				fraction = 1
			}
			opts.Progress(fraction)
		}
	}
	if !bestFound {
		return Sphere{}, errors.Wrap(analysis.ErrProcessFailed, "no sphere supported by the cloud")
	}

	gate := lmedsInlierGate * robustSigma(bestMedSq, n)
	inliers := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if math.Abs(cloud.At(i).Sub(best.Center).Norm()-best.Radius) <= gate {
			inliers = append(inliers, i)
		}
	}
	if refined, ok := refineSphereLS(cloud, inliers, best); ok {
		best = refined
	}

	var sqSum float64
	for _, idx := range inliers {
		sqSum += utils.Square(cloud.At(idx).Sub(best.Center).Norm() - best.Radius)
	}
	best.RMSE = math.Sqrt(sqSum / float64(len(inliers)))
	return best, nil
}

// SphereFrom4Points returns the sphere passing through the four given points.
// Coplanar points admit no single sphere and give ErrProcessFailed.
func SphereFrom4Points(pts [4]r3.Vector) (Sphere, error) {
	// subtracting the sphere equation of pts[0] from the others leaves a
	// linear system in the center
	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	n0 := pts[0].Norm2()
	for i := 1; i < 4; i++ {
		d := pts[i].Sub(pts[0])
		a.SetRow(i-1, []float64{d.X, d.Y, d.Z})
		b.SetVec(i-1, (pts[i].Norm2()-n0)/2)
	}
	var c mat.VecDense
	if err := c.SolveVec(a, b); err != nil {
		return Sphere{}, errors.Wrap(analysis.ErrProcessFailed, "the four points are coplanar")
	}
	center := r3.Vector{X: c.AtVec(0), Y: c.AtVec(1), Z: c.AtVec(2)}
	return Sphere{Center: center, Radius: pts[0].Sub(center).Norm()}, nil
}

// samplesNeeded is the number of minimal samples to draw so that at least
// one of them is all inliers with the asked confidence, given the inlier
// ratio w.
func samplesNeeded(confidence, w float64) int {
	denom := math.Log(1 - math.Pow(w, sphereSampleSize))
	if denom >= 0 || math.IsNaN(denom) {
		// w so small the failure probability rounds to one
		return math.MaxInt32
	}
	m := int(math.Ceil(math.Log(1-confidence) / denom))
	if m < 1 {
		m = 1
	}
	return m
}

// robustSigma estimates the residual standard deviation from the median of
// squared residuals, with Zhang's finite sample correction.
func robustSigma(medSq float64, n int) float64 {
	return lmedsSigmaFactor * (1 + 5/float64(n-sphereSampleSize)) * math.Sqrt(medSq)
}

func countWithin(cloud pc.PointCloud, s Sphere, gate float64) int {
	count := 0
	for i := 0; i < cloud.Size(); i++ {
		if math.Abs(cloud.At(i).Sub(s.Center).Norm()-s.Radius) <= gate {
			count++
		}
	}
	return count
}

// refineSphereLS iteratively re-centers the sphere on the given points: the
// radius becomes the mean distance to the center and the center moves to the
// point centroid pushed along the mean point-to-center direction by that
// radius. It reports false when the points cannot support the iteration.
func refineSphereLS(cloud pc.PointCloud, indices []int, start Sphere) (Sphere, bool) {
	if len(indices) < sphereSampleSize {
		return Sphere{}, false
	}
	var centroid r3.Vector
	for _, idx := range indices {
		centroid = centroid.Add(cloud.At(idx))
	}
	k := float64(len(indices))
	centroid = centroid.Mul(1 / k)

	center := start.Center
	radius := start.Radius
	for iter := 0; iter < 100; iter++ {
		var meanDist float64
		var dirSum r3.Vector
		for _, idx := range indices {
			toCenter := center.Sub(cloud.At(idx))
			dist := toCenter.Norm()
			meanDist += dist
			if dist > 0 {
				dirSum = dirSum.Add(toCenter.Mul(1 / dist))
			}
		}
		meanDist /= k
		if meanDist <= 0 {
			return Sphere{}, false
		}
		next := centroid.Add(dirSum.Mul(meanDist / k))
		shift := next.Sub(center).Norm()
		center = next
		radius = meanDist
		if shift < 1e-3*radius {
			break
		}
	}
	return Sphere{Center: center, Radius: radius}, true
}
