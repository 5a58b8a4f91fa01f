package shapefit

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-labs/pointcloud-analysis/analysis"
	pc "github.com/viam-labs/pointcloud-analysis/pointcloud"
	"github.com/viam-labs/pointcloud-analysis/utils"
)

// Circle is a fitted circle in 3D, lying in the plane through Center with
// unit normal Normal. RMSE is over the in plane radial residuals.
type Circle struct {
	Center r3.Vector
	Normal r3.Vector
	Radius float64
	RMSE   float64
}

// DetectCircle fits a circle through the cloud: a least squares plane first,
// then an algebraic circle fit of the points projected into that plane.
// Collinear or coincident clouds support no circle and give ErrProcessFailed.
func DetectCircle(ctx context.Context, cloud pc.PointCloud) (Circle, error) {
	if cloud == nil || cloud.Size() < 3 {
		return Circle{}, errors.Wrap(analysis.ErrNotEnoughPoints, "a circle needs at least three points")
	}
	if ctx.Err() != nil {
		return Circle{}, analysis.ErrCancelled
	}

	cov, err := analysis.CovarianceMatrix(cloud, nil)
	if err != nil {
		return Circle{}, err
	}
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return Circle{}, errors.Wrap(analysis.ErrProcessFailed, "plane eigen factorization failed")
	}
	vals := eig.Values(nil) // ascending
	if vals[1] <= 0 {
		return Circle{}, errors.Wrap(analysis.ErrProcessFailed, "the points are collinear")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	normal := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	axisU := r3.Vector{X: vecs.At(0, 2), Y: vecs.At(1, 2), Z: vecs.At(2, 2)}
	axisV := r3.Vector{X: vecs.At(0, 1), Y: vecs.At(1, 1), Z: vecs.At(2, 1)}
	g := analysis.GravityCenter(cloud)

	if ctx.Err() != nil {
		return Circle{}, analysis.ErrCancelled
	}

	// project about the gravity center; the projected centroid is zero, so
	// the algebraic circle fit reduces to normal equations in raw moments
	n := cloud.Size()
	us := make([]float64, n)
	vs := make([]float64, n)
	var suu, svv, suv, suuu, svvv, suvv, svuu float64
	for i := 0; i < n; i++ {
		d := cloud.At(i).Sub(g)
		u, v := d.Dot(axisU), d.Dot(axisV)
		us[i], vs[i] = u, v
		suu += u * u
		svv += v * v
		suv += u * v
		suuu += u * u * u
		svvv += v * v * v
		suvv += u * v * v
		svuu += v * u * u
	}

	lhs := mat.NewDense(2, 2, []float64{suu, suv, suv, svv})
	rhs := mat.NewVecDense(2, []float64{(suuu + suvv) / 2, (svvv + svuu) / 2})
	var sol mat.VecDense
	if err := sol.SolveVec(lhs, rhs); err != nil {
		return Circle{}, errors.Wrap(analysis.ErrProcessFailed, "the projected points admit no circle")
	}
	a, b := sol.AtVec(0), sol.AtVec(1)
	radius := math.Sqrt(a*a + b*b + (suu+svv)/float64(n))

	var sqSum float64
	for i := 0; i < n; i++ {
		sqSum += utils.Square(math.Hypot(us[i]-a, vs[i]-b) - radius)
	}

	return Circle{
		Center: g.Add(axisU.Mul(a)).Add(axisV.Mul(b)),
		Normal: normal,
		Radius: radius,
		RMSE:   math.Sqrt(sqSum / float64(n)),
	}, nil
}
