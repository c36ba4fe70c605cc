package indicator

// RSISeries calculates the Relative Strength Index using Wilder's smoothing.
//
// The first value is at index period. RSI is 100 when the average loss is 0
// and the average gain positive, and 50 when both are 0. Non-finite inputs
// are skipped (the previous finite price is kept).
func RSISeries(values []float64, period int) Series {
	n := len(values)
	if period <= 0 || n < period+1 {
		return notReady(n)
	}
	out := make([]float64, n)
	gains := newWilder(period)
	losses := newWilder(period)
	start := n
	prev, havePrev := 0.0, false
	for i, v := range values {
		if !finite(v) {
			if start < n {
				out[i] = out[i-1]
			}
			continue
		}
		if !havePrev {
			prev, havePrev = v, true
			continue
		}
		change := v - prev
		prev = v
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain, ok := gains.push(gain)
		avgLoss, _ := losses.push(loss)
		if !ok {
			continue
		}
		out[i] = rsiValue(avgGain, avgLoss)
		if start == n {
			start = i
		}
	}
	return Series{Values: out, Start: start}
}

// RSI returns the last RSI value.
func RSI(values []float64, period int) (float64, bool) {
	return RSISeries(values, period).Last()
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
