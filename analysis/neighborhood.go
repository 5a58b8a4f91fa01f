package analysis

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	pc "github.com/viam-labs/pointcloud-analysis/pointcloud"
)

// neighborhood summarizes one point's local environment: the gravity center
// of the points inside the kernel sphere and the eigen decomposition of their
// covariance. Eigenvalues are clamped to zero from below and ordered
// l1 >= l2 >= l3; e1, e2, e3 are the matching unit eigenvectors, so e3 is the
// least squares plane normal.
type neighborhood struct {
	cloud   pc.PointCloud
	indices []int
	exclude int
	count   int
	gravity r3.Vector

	l1, l2, l3 float64
	e1, e2, e3 r3.Vector
}

// newNeighborhood summarizes the points at the given indices. exclude, when
// not negative, drops that index from the summary; roughness uses it to keep
// the queried point out of its own plane fit. It reports false when fewer
// than three points remain or the eigen factorization fails.
func newNeighborhood(cloud pc.PointCloud, indices []int, exclude int) (*neighborhood, bool) {
	count := 0
	var sum r3.Vector
	for _, idx := range indices {
		if idx == exclude {
			continue
		}
		sum = sum.Add(cloud.At(idx))
		count++
	}
	if count < 3 {
		return nil, false
	}
	g := sum.Mul(1 / float64(count))

	var xx, xy, xz, yy, yz, zz float64
	for _, idx := range indices {
		if idx == exclude {
			continue
		}
		d := cloud.At(idx).Sub(g)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
	}
	n := float64(count)
	sym := mat.NewSymDense(3, []float64{
		xx / n, xy / n, xz / n,
		xy / n, yy / n, yz / n,
		xz / n, yz / n, zz / n,
	})

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, false
	}
	// gonum reports eigenvalues in ascending order
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	nb := &neighborhood{
		cloud:   cloud,
		indices: indices,
		exclude: exclude,
		count:   count,
		gravity: g,
		l1:      math.Max(vals[2], 0),
		l2:      math.Max(vals[1], 0),
		l3:      math.Max(vals[0], 0),
		e1:      eigenVector(&vecs, 2),
		e2:      eigenVector(&vecs, 1),
		e3:      eigenVector(&vecs, 0),
	}
	return nb, true
}

func eigenVector(vecs *mat.Dense, j int) r3.Vector {
	return r3.Vector{X: vecs.At(0, j), Y: vecs.At(1, j), Z: vecs.At(2, j)}
}

// feature evaluates one eigenvalue based shape descriptor. Descriptors that
// divide by a vanishing eigenvalue or take the log of zero report false.
func (nb *neighborhood) feature(f GeomFeature) (float64, bool) {
	switch f {
	case EigenValuesSum:
		return nb.l1 + nb.l2 + nb.l3, true
	case Omnivariance:
		return math.Cbrt(nb.l1 * nb.l2 * nb.l3), true
	case EigenEntropy:
		if nb.l1 <= 0 || nb.l2 <= 0 || nb.l3 <= 0 {
			return 0, false
		}
		return -(nb.l1*math.Log(nb.l1) + nb.l2*math.Log(nb.l2) + nb.l3*math.Log(nb.l3)), true
	case Anisotropy:
		if nb.l1 <= 0 {
			return 0, false
		}
		return (nb.l1 - nb.l3) / nb.l1, true
	case Planarity:
		if nb.l1 <= 0 {
			return 0, false
		}
		return (nb.l2 - nb.l3) / nb.l1, true
	case Linearity:
		if nb.l1 <= 0 {
			return 0, false
		}
		return (nb.l1 - nb.l2) / nb.l1, true
	case PCA1:
		return nb.eigenValueShare(nb.l1)
	case PCA2:
		return nb.eigenValueShare(nb.l2)
	case SurfaceVariation:
		return nb.eigenValueShare(nb.l3)
	case Sphericity:
		if nb.l1 <= 0 {
			return 0, false
		}
		return nb.l3 / nb.l1, true
	case Verticality:
		return 1 - math.Abs(nb.e3.Z), true
	case EigenValue1:
		return nb.l1, true
	case EigenValue2:
		return nb.l2, true
	case EigenValue3:
		return nb.l3, true
	default:
		return 0, false
	}
}

func (nb *neighborhood) eigenValueShare(l float64) (float64, bool) {
	sum := nb.l1 + nb.l2 + nb.l3
	if sum <= 0 {
		return 0, false
	}
	return l / sum, true
}

// normalChangeRate is the share of the variance along the plane normal, a
// cheap curvature proxy. It needs at least four points to be meaningful.
func (nb *neighborhood) normalChangeRate() (float64, bool) {
	if nb.count < 4 {
		return 0, false
	}
	return nb.eigenValueShare(nb.l3)
}

// roughness is the distance from p to the least squares plane of the
// neighborhood. With upDir the distance is signed along the plane normal
// oriented toward upDir, otherwise it is unsigned.
func (nb *neighborhood) roughness(p r3.Vector, upDir *r3.Vector) (float64, bool) {
	d := p.Sub(nb.gravity).Dot(nb.e3)
	if upDir == nil {
		return math.Abs(d), true
	}
	if nb.e3.Dot(*upDir) < 0 {
		d = -d
	}
	return d, true
}

// momentOrder1 projects the neighbors onto the second eigenvector about p
// and returns the first raw moment normalized by the second, following
// "Contour detection in unstructured 3D point clouds" (Hackel et al.).
func (nb *neighborhood) momentOrder1(p r3.Vector) (float64, bool) {
	var m1, m2 float64
	for _, idx := range nb.indices {
		if idx == nb.exclude {
			continue
		}
		d := nb.cloud.At(idx).Sub(p).Dot(nb.e2)
		m1 += d
		m2 += d * d
	}
	if m2 <= 0 {
		return 0, false
	}
	return math.Abs(m1) / math.Sqrt(m2), true
}

// quadricCurvature fits the height function
//
//	h(u, v) = a + b*u + c*v + d*u^2 + e*u*v + f*v^2
//
// over the neighborhood expressed in its eigen frame (u along e1, v along
// e2, h along e3) and evaluates the Gaussian or mean curvature of the fitted
// surface at p. The fit has six unknowns so it needs at least six points.
func quadricCurvature(cloud pc.PointCloud, p r3.Vector, neighbors []int, ct CurvatureType) (float64, bool) {
	if len(neighbors) < 6 {
		return 0, false
	}
	nb, ok := newNeighborhood(cloud, neighbors, -1)
	if !ok {
		return 0, false
	}

	design := mat.NewDense(len(neighbors), 6, nil)
	heights := mat.NewVecDense(len(neighbors), nil)
	for row, idx := range neighbors {
		d := cloud.At(idx).Sub(nb.gravity)
		u, v := d.Dot(nb.e1), d.Dot(nb.e2)
		design.SetRow(row, []float64{1, u, v, u * u, u * v, v * v})
		heights.SetVec(row, d.Dot(nb.e3))
	}
	var coef mat.VecDense
	if err := coef.SolveVec(design, heights); err != nil {
		// rank deficient or hopelessly conditioned neighborhood
		return 0, false
	}

	d := p.Sub(nb.gravity)
	u, v := d.Dot(nb.e1), d.Dot(nb.e2)
	fx := coef.AtVec(1) + 2*coef.AtVec(3)*u + coef.AtVec(4)*v
	fy := coef.AtVec(2) + coef.AtVec(4)*u + 2*coef.AtVec(5)*v
	fxx := 2 * coef.AtVec(3)
	fyy := 2 * coef.AtVec(5)
	fxy := coef.AtVec(4)

	switch ct {
	case GaussianCurvature:
		den := 1 + fx*fx + fy*fy
		return math.Abs((fxx*fyy - fxy*fxy) / (den * den)), true
	case MeanCurvature:
		num := (1+fx*fx)*fyy - 2*fx*fy*fxy + (1+fy*fy)*fxx
		den := 2 * math.Pow(1+fx*fx+fy*fy, 1.5)
		return math.Abs(num / den), true
	default:
		return 0, false
	}
}
