package utils

import (
	"math/rand"
)

// Math.pow( x, 2 ) is slow, this is faster
func Square(n float64) float64 {
	return n * n
}

// SampleRandomInt samples a random integer within a range given by [min, max]
// using the given rand.Rand
func SampleRandomIntRange(min, max int, r *rand.Rand) int {
	return r.Intn(max-min+1) + min
}

// SampleNDistinctIntegers samples n distinct integers within the range given by
// [min, max] using the given rand.Rand. The range must hold at least n values.
func SampleNDistinctIntegers(n, min, max int, r *rand.Rand) []int {
	z := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for len(z) < n {
		v := SampleRandomIntRange(min, max, r)
		if seen[v] {
			continue
		}
		seen[v] = true
		z = append(z, v)
	}
	return z
}
