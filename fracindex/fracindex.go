// Package fracindex computes fractional sort keys so a board item can be
// inserted between two neighbours without renumbering the rest of the column.
package fracindex

import "sort"

// Seed is the key assigned to the first item of an empty column.
const Seed = 0.5

// Epsilon is the minimum adjacent gap below which a column needs rebalancing.
const Epsilon = 1e-4

// GenerateBetween returns a sort key ordered between prev and next. A nil prev
// means "before everything", a nil next means "after everything". When both
// neighbours exist the arithmetic midpoint is used; once repeated subdivision
// exhausts float precision the degenerate spacing is caught by NeedsRebalance
// rather than papered over here.
func GenerateBetween(prev, next *float64) float64 {
	switch {
	case prev == nil && next == nil:
		return Seed
	case prev == nil:
		return *next - 1
	case next == nil:
		return *prev + 1
	default:
		return *prev + (*next-*prev)/2
	}
}

// NeedsRebalance reports whether any two adjacent keys of the sorted input are
// closer than Epsilon. The input slice is not modified.
func NeedsRebalance(indices []float64) bool {
	if len(indices) < 2 {
		return false
	}
	sorted := append([]float64(nil), indices...)
	sort.Float64s(sorted)
	for i := 0; i < len(sorted)-1; i++ {
		if sorted[i+1]-sorted[i] < Epsilon {
			return true
		}
	}
	return false
}

// Rebalance re-assigns integer-spaced keys (0, 1, 2, ...) to the sorted input,
// preserving relative order. The input slice is not modified.
func Rebalance(indices []float64) []float64 {
	sorted := append([]float64(nil), indices...)
	sort.Float64s(sorted)
	out := make([]float64, len(sorted))
	for i := range sorted {
		out[i] = float64(i)
	}
	return out
}
