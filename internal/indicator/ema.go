package indicator

// EMASeries calculates the recursive Exponential Moving Average of values.
//
// k = 2/(period+1). The series is seeded with the first finite input;
// non-finite inputs repeat the previous EMA. Output length equals input length.
func EMASeries(values []float64, period int) Series {
	n := len(values)
	if period <= 0 {
		return notReady(n)
	}
	out := make([]float64, n)
	k := 2.0 / float64(period+1)
	start := n
	var cur float64
	for i, v := range values {
		if start == n {
			if !finite(v) {
				continue
			}
			start = i
			cur = v
			out[i] = cur
			continue
		}
		if finite(v) {
			cur = v*k + cur*(1-k)
		}
		out[i] = cur
	}
	return Series{Values: out, Start: start}
}

// EMA returns the last value of EMASeries.
func EMA(values []float64, period int) (float64, bool) {
	return EMASeries(values, period).Last()
}
