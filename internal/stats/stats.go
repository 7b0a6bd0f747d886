// Package stats turns a window of valid trade records into market snapshots
// and decides when the expensive AI narrative needs regenerating. Everything
// here is pure arithmetic over in-memory slices.
package stats

import (
	"math"
	"sort"
)

// Median returns the middle value of xs, averaging the two middle values for
// even lengths. Empty input yields 0. The input slice is not mutated.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Percentile returns the p-th percentile of xs using linear interpolation
// between the bracketing order statistics at fractional rank p/100*(n-1).
// Empty input yields 0. The input slice is not mutated.
func Percentile(xs []float64, p float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if n == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo, hi = 0, 0
	}
	if hi > n-1 {
		lo, hi = n-1, n-1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
