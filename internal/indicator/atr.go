package indicator

import "github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"

// ATRSeries calculates the Average True Range with Wilder smoothing.
//
// True range starts at index 1 (it needs a previous close). The first ATR is
// the simple average of the first period true ranges, at index period.
func ATRSeries(candles []model.Candle, period int) Series {
	n := len(candles)
	if period <= 0 || n < period+1 {
		return notReady(n)
	}
	out := make([]float64, n)
	w := newWilder(period)
	start := n
	for i := 1; i < n; i++ {
		v, ok := w.push(TrueRange(candles[i], candles[i-1].Close))
		if !ok {
			continue
		}
		if !finite(v) {
			return notReady(n)
		}
		out[i] = v
		if start == n {
			start = i
		}
	}
	return Series{Values: out, Start: start}
}

// ATR returns the last ATR value.
func ATR(candles []model.Candle, period int) (float64, bool) {
	return ATRSeries(candles, period).Last()
}
