package indicator

// wilder is Wilder-style smoothing (SMMA).
// First value is the simple average of the first period inputs, then
// current = (prev*(period-1) + x) / period.
type wilder struct {
	period  int
	count   int
	sum     float64
	current float64
}

func newWilder(period int) *wilder {
	return &wilder{period: period}
}

// push feeds x and reports the smoothed value once period inputs were seen.
func (w *wilder) push(x float64) (float64, bool) {
	w.count++
	if w.count <= w.period {
		w.sum += x
		if w.count == w.period {
			w.current = w.sum / float64(w.period)
			return w.current, true
		}
		return 0, false
	}
	w.current = (w.current*float64(w.period-1) + x) / float64(w.period)
	return w.current, true
}

func (w *wilder) ready() bool { return w.count >= w.period }
