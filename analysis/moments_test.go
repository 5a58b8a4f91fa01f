package analysis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	pc "github.com/viam-labs/pointcloud-analysis/pointcloud"
)

func translated(cloud pc.PointCloud, offset r3.Vector) pc.PointCloud {
	out := pc.NewWithPrealloc(cloud.Size())
	cloud.Iterate(0, 0, func(i int, p r3.Vector) bool {
		out.Append(p.Add(offset))
		return true
	})
	return out
}

func TestGravityCenter(t *testing.T) {
	t.Run("empty cloud", func(t *testing.T) {
		test.That(t, GravityCenter(nil), test.ShouldResemble, r3.Vector{})
		test.That(t, GravityCenter(pc.New()), test.ShouldResemble, r3.Vector{})
	})

	t.Run("known cloud", func(t *testing.T) {
		cloud := pc.NewFromPoints([]r3.Vector{
			{X: 1},
			{X: 3},
			{X: 2, Y: 6},
			{X: 2, Z: 9},
		})
		c := GravityCenter(cloud)
		test.That(t, c.X, test.ShouldAlmostEqual, 2)
		test.That(t, c.Y, test.ShouldAlmostEqual, 1.5)
		test.That(t, c.Z, test.ShouldAlmostEqual, 2.25)
	})
}

func TestWeightedGravityCenter(t *testing.T) {
	cloud := pc.NewFromPoints([]r3.Vector{{}, {X: 2}})

	t.Run("plain weights", func(t *testing.T) {
		c, err := WeightedGravityCenter(cloud, []float64{1, 3})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.X, test.ShouldAlmostEqual, 1.5)
	})

	t.Run("negative weights fold to their magnitude", func(t *testing.T) {
		c, err := WeightedGravityCenter(cloud, []float64{1, -3})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.X, test.ShouldAlmostEqual, 1.5)
	})

	t.Run("non finite weights count as zero", func(t *testing.T) {
		c, err := WeightedGravityCenter(cloud, []float64{1, math.NaN()})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.X, test.ShouldAlmostEqual, 0)

		c, err = WeightedGravityCenter(cloud, []float64{math.Inf(1), 1})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.X, test.ShouldAlmostEqual, 2)
	})

	t.Run("all zero weights fall back to the plain center", func(t *testing.T) {
		c, err := WeightedGravityCenter(cloud, []float64{0, 0})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.X, test.ShouldAlmostEqual, 1)
	})

	t.Run("nil weights mean unweighted", func(t *testing.T) {
		c, err := WeightedGravityCenter(cloud, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.X, test.ShouldAlmostEqual, 1)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := WeightedGravityCenter(cloud, []float64{1})
		test.That(t, err, test.ShouldWrap, ErrInvalidInput)
	})

	t.Run("empty cloud", func(t *testing.T) {
		_, err := WeightedGravityCenter(pc.New(), nil)
		test.That(t, err, test.ShouldWrap, ErrInvalidInput)
	})
}

func TestCovarianceMatrix(t *testing.T) {
	t.Run("known diagonal", func(t *testing.T) {
		cloud := pc.NewFromPoints([]r3.Vector{
			{X: 1},
			{X: -1},
			{Y: 2},
			{Y: -2},
		})
		cov, err := CovarianceMatrix(cloud, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cov.At(0, 0), test.ShouldAlmostEqual, 0.5)
		test.That(t, cov.At(1, 1), test.ShouldAlmostEqual, 2)
		test.That(t, cov.At(2, 2), test.ShouldEqual, 0.0)
		test.That(t, cov.At(0, 1), test.ShouldEqual, 0.0)
	})

	t.Run("planar cloud has a zero z row and column", func(t *testing.T) {
		cloud := makePlaneGrid(7, 9, 0.5, 5)
		cov, err := CovarianceMatrix(cloud, nil)
		test.That(t, err, test.ShouldBeNil)
		for j := 0; j < 3; j++ {
			test.That(t, cov.At(2, j), test.ShouldEqual, 0.0)
			test.That(t, cov.At(j, 2), test.ShouldEqual, 0.0)
		}
	})

	t.Run("about a supplied center", func(t *testing.T) {
		cloud := pc.NewFromPoints([]r3.Vector{{X: 1, Y: 1, Z: 1}})
		center := r3.Vector{}
		cov, err := CovarianceMatrix(cloud, &center)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, cov.At(i, j), test.ShouldEqual, 1.0)
			}
		}
	})

	t.Run("single point about its own center", func(t *testing.T) {
		cloud := pc.NewFromPoints([]r3.Vector{{X: 4, Y: -2, Z: 7}})
		cov, err := CovarianceMatrix(cloud, nil)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, cov.At(i, j), test.ShouldEqual, 0.0)
			}
		}
	})

	t.Run("empty cloud", func(t *testing.T) {
		_, err := CovarianceMatrix(pc.New(), nil)
		test.That(t, err, test.ShouldWrap, ErrInvalidInput)
	})
}

func TestCrossCovarianceMatrix(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	p := pc.GenerateUniformCloud(50, 4, r)
	q := pc.GenerateUniformCloud(50, 4, r)

	t.Run("against itself it matches the covariance", func(t *testing.T) {
		cross, err := CrossCovarianceMatrix(p, p)
		test.That(t, err, test.ShouldBeNil)
		cov, err := CovarianceMatrix(p, nil)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, cross.At(i, j), test.ShouldAlmostEqual, cov.At(i, j), 1e-12)
			}
		}
	})

	t.Run("translation invariance", func(t *testing.T) {
		want, err := CrossCovarianceMatrix(p, q)
		test.That(t, err, test.ShouldBeNil)
		got, err := CrossCovarianceMatrix(
			translated(p, r3.Vector{X: -3, Y: 7, Z: 1}),
			translated(q, r3.Vector{X: 10, Y: -4, Z: 2}),
		)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, got.At(i, j), test.ShouldAlmostEqual, want.At(i, j), 1e-9)
			}
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		_, err := CrossCovarianceMatrix(p, makeLine(3, 1.0))
		test.That(t, err, test.ShouldWrap, ErrInvalidInput)
	})

	t.Run("weights replicate points", func(t *testing.T) {
		p4 := pc.NewFromPoints([]r3.Vector{{X: 1}, {Y: 2}, {Z: 3}, {X: -1, Y: 1}})
		q4 := pc.NewFromPoints([]r3.Vector{{Y: 1}, {Z: 2}, {X: 3}, {Z: -1}})
		weighted, err := WeightedCrossCovarianceMatrix(p4, q4, []float64{2, 1, 1, 1})
		test.That(t, err, test.ShouldBeNil)

		p5 := pc.NewFromPoints([]r3.Vector{{X: 1}, {X: 1}, {Y: 2}, {Z: 3}, {X: -1, Y: 1}})
		q5 := pc.NewFromPoints([]r3.Vector{{Y: 1}, {Y: 1}, {Z: 2}, {X: 3}, {Z: -1}})
		doubled, err := CrossCovarianceMatrix(p5, q5)
		test.That(t, err, test.ShouldBeNil)

		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, weighted.At(i, j), test.ShouldAlmostEqual, doubled.At(i, j), 1e-12)
			}
		}
	})

	t.Run("weight length mismatch", func(t *testing.T) {
		_, err := WeightedCrossCovarianceMatrix(p, q, []float64{1, 2})
		test.That(t, err, test.ShouldWrap, ErrInvalidInput)
	})
}
