package evalctx

// Metrics is the JSON view of a context for diagnostics.
// Absent values are omitted.
type Metrics struct {
	Candles   int             `json:"candles"`
	LastOpen  int64           `json:"last_open_time,omitempty"`
	LastClose int64           `json:"last_close_time,omitempty"`
	Close     *float64        `json:"close,omitempty"`
	EMA       map[int]float64 `json:"ema,omitempty"`
	Slope     map[int]float64 `json:"slope,omitempty"`
	Distance  map[int]float64 `json:"distance,omitempty"`
	ATR       *float64        `json:"atr,omitempty"`
	ATRNorm   *float64        `json:"atr_norm,omitempty"`
	VolumeNow *float64        `json:"volume_now,omitempty"`
	VolumeAvg *float64        `json:"volume_avg20,omitempty"`
	RSI       *float64        `json:"rsi,omitempty"`
	ADX       *float64        `json:"adx,omitempty"`
	VWAP      *float64        `json:"vwap,omitempty"`
	Regimes   map[int]Regime  `json:"regimes,omitempty"`
}

// Metrics returns the diagnostic view of the context.
func (c *Context) Metrics() Metrics {
	m := Metrics{Candles: len(c.candles)}
	if !c.Ready() {
		return m
	}
	m.LastOpen = c.last.OpenTime
	m.LastClose = c.last.CloseTime
	m.Close = ptr(c.Price())
	for _, p := range c.EMAPeriods() {
		if v, ok := c.EMA(p); ok {
			if m.EMA == nil {
				m.EMA = make(map[int]float64)
			}
			m.EMA[p] = v
		}
		if v, ok := c.Slope(p); ok {
			if m.Slope == nil {
				m.Slope = make(map[int]float64)
			}
			m.Slope[p] = v
		}
		if v, ok := c.Distance(p); ok {
			if m.Distance == nil {
				m.Distance = make(map[int]float64)
			}
			m.Distance[p] = v
		}
	}
	m.ATR = ptr(c.ATR())
	m.ATRNorm = ptr(c.ATRNorm())
	m.VolumeNow = ptr(c.VolumeNow())
	m.VolumeAvg = ptr(c.VolumeAvg())
	m.RSI = ptr(c.RSI())
	if d, ok := c.ADX(); ok {
		m.ADX = ptr(d.ADX, true)
	}
	m.VWAP = ptr(c.VWAP())
	if len(c.regimes) > 0 {
		m.Regimes = make(map[int]Regime, len(c.regimes))
		for tf, r := range c.regimes {
			m.Regimes[tf] = r
		}
	}
	return m
}

func ptr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
