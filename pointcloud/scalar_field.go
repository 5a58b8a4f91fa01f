package pointcloud

import "math"

// ScalarField is a dense layer of per point values aligned with a cloud by
// index. Every entry starts out invalid and stays that way until written.
type ScalarField struct {
	values []float64
}

// InvalidValue returns the sentinel held at unwritten indices. The sentinel
// does not compare equal to itself; test values with IsValidValue.
func InvalidValue() float64 {
	return math.NaN()
}

// IsValidValue reports whether v is a written field value rather than the
// sentinel.
func IsValidValue(v float64) bool {
	return !math.IsNaN(v)
}

// NewScalarField returns a field of n entries, all invalid.
func NewScalarField(n int) *ScalarField {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return &ScalarField{values: values}
}

// Len returns the number of entries in the field.
func (sf *ScalarField) Len() int {
	return len(sf.values)
}

// At returns the value at index i.
func (sf *ScalarField) At(i int) float64 {
	return sf.values[i]
}

// Set stores v at index i.
func (sf *ScalarField) Set(i int, v float64) {
	sf.values[i] = v
}

// Fill sets every entry of the field to v.
func (sf *ScalarField) Fill(v float64) {
	for i := range sf.values {
		sf.values[i] = v
	}
}

// CountValid returns how many entries hold a written value.
func (sf *ScalarField) CountValid() int {
	n := 0
	for _, v := range sf.values {
		if IsValidValue(v) {
			n++
		}
	}
	return n
}
