package indicator

import "sort"

// Percentile returns the pct-th percentile (0..100) of values using linear
// interpolation between closest ranks. values is not modified.
func Percentile(values []float64, pct float64) (float64, bool) {
	s := sortedFinite(values)
	if len(s) == 0 || !finite(pct) {
		return 0, false
	}
	if pct <= 0 {
		return s[0], true
	}
	if pct >= 100 {
		return s[len(s)-1], true
	}
	pos := pct / 100 * float64(len(s)-1)
	lo := int(pos)
	if lo >= len(s)-1 {
		return s[len(s)-1], true
	}
	frac := pos - float64(lo)
	return s[lo] + frac*(s[lo+1]-s[lo]), true
}

// PercentileRank returns the percentile (0..100) at which v falls within
// values, interpolating linearly between neighbouring order statistics.
// It is the inverse of Percentile on sorted distinct input.
func PercentileRank(values []float64, v float64) (float64, bool) {
	s := sortedFinite(values)
	if len(s) == 0 || !finite(v) {
		return 0, false
	}
	n := len(s)
	if n == 1 {
		switch {
		case v < s[0]:
			return 0, true
		case v > s[0]:
			return 100, true
		}
		return 50, true
	}
	if v <= s[0] {
		return 0, true
	}
	if v >= s[n-1] {
		return 100, true
	}
	// First index with s[i] > v; v lies in [s[i-1], s[i]).
	i := sort.SearchFloat64s(s, v)
	for i < n && s[i] <= v {
		i++
	}
	lo := i - 1
	frac := 0.0
	if d := s[i] - s[lo]; d > 0 {
		frac = (v - s[lo]) / d
	}
	return (float64(lo) + frac) / float64(n-1) * 100, true
}

func sortedFinite(values []float64) []float64 {
	s := make([]float64, 0, len(values))
	for _, v := range values {
		if finite(v) {
			s = append(s, v)
		}
	}
	sort.Float64s(s)
	return s
}
