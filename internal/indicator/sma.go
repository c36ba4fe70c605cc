package indicator

// SMASeries calculates the Simple Moving Average over a sliding window.
// The first value is at index period-1. A window holding a non-finite input
// repeats the previous mean.
func SMASeries(values []float64, period int) Series {
	n := len(values)
	if period <= 0 || n < period {
		return notReady(n)
	}
	out := make([]float64, n)
	start := n
	var sum float64
	bad := 0
	for i, v := range values {
		if finite(v) {
			sum += v
		} else {
			bad++
		}
		if i >= period {
			if old := values[i-period]; finite(old) {
				sum -= old
			} else {
				bad--
			}
		}
		if i < period-1 {
			continue
		}
		switch {
		case bad == 0:
			out[i] = sum / float64(period)
			if start == n {
				start = i
			}
		case start < n:
			out[i] = out[i-1]
		}
	}
	return Series{Values: out, Start: start}
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		if !finite(v) {
			return 0, false
		}
		sum += v
	}
	return sum / float64(len(values)), true
}
