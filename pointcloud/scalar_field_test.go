package pointcloud

import (
	"testing"

	"go.viam.com/test"
)

func TestScalarField(t *testing.T) {
	sf := NewScalarField(5)
	test.That(t, sf.Len(), test.ShouldEqual, 5)
	test.That(t, sf.CountValid(), test.ShouldEqual, 0)
	for i := 0; i < 5; i++ {
		test.That(t, IsValidValue(sf.At(i)), test.ShouldBeFalse)
	}

	sf.Set(2, 1.5)
	sf.Set(4, -3.0)
	test.That(t, sf.CountValid(), test.ShouldEqual, 2)
	test.That(t, sf.At(2), test.ShouldEqual, 1.5)
	test.That(t, sf.At(4), test.ShouldEqual, -3.0)
	test.That(t, IsValidValue(sf.At(0)), test.ShouldBeFalse)

	// zero is a written value, not a hole
	sf.Set(0, 0)
	test.That(t, IsValidValue(sf.At(0)), test.ShouldBeTrue)
	test.That(t, sf.CountValid(), test.ShouldEqual, 3)

	sf.Fill(0)
	test.That(t, sf.CountValid(), test.ShouldEqual, 5)

	// the sentinel itself is never valid
	sf.Set(1, InvalidValue())
	test.That(t, IsValidValue(sf.At(1)), test.ShouldBeFalse)
	test.That(t, sf.CountValid(), test.ShouldEqual, 4)

	empty := NewScalarField(0)
	test.That(t, empty.Len(), test.ShouldEqual, 0)
	test.That(t, empty.CountValid(), test.ShouldEqual, 0)
}
