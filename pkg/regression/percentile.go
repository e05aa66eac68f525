package regression

import (
	"math"
	"sort"
)

// Percentile returns the nearest-rank p-th percentile of the finite,
// non-negative samples. ok is false when no such sample exists.
func Percentile(samples []float64, p float64) (value float64, ok bool) {
	filtered := make([]float64, 0, len(samples))
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return 0, false
	}
	sort.Float64s(filtered)

	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	rank := int(math.Ceil(p * float64(len(filtered))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(filtered) {
		rank = len(filtered)
	}
	return filtered[rank-1], true
}
