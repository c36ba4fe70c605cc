// Package evalctx builds the shared, read-only indicator context that every
// strategy and guard of one evaluation reads from.
package evalctx

import (
	"math"
	"sort"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/indicator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/markethours"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// Requirements lists what a context must carry.
type Requirements struct {
	EMAPeriods    []int
	SlopeLookback int
	ATRPeriod     int
	VolumeWindow  int
	RSIPeriod     int
	ADXPeriod     int
	Session       markethours.Session

	// Regime holds closed candles of higher timeframes keyed by timeframe
	// seconds, summarised with RegimeFast/RegimeSlow EMAs and ADX.
	Regime     map[int][]model.Candle
	RegimeFast int
	RegimeSlow int
}

// withDefaults fills unset periods.
func (r Requirements) withDefaults() Requirements {
	if r.SlopeLookback <= 0 {
		r.SlopeLookback = 3
	}
	if r.ATRPeriod <= 0 {
		r.ATRPeriod = 14
	}
	if r.VolumeWindow <= 0 {
		r.VolumeWindow = 20
	}
	if r.RSIPeriod <= 0 {
		r.RSIPeriod = 14
	}
	if r.ADXPeriod <= 0 {
		r.ADXPeriod = 14
	}
	if r.RegimeFast <= 0 {
		r.RegimeFast = 20
	}
	if r.RegimeSlow <= 0 {
		r.RegimeSlow = 50
	}
	return r
}

// Regime summarises one higher timeframe.
type Regime struct {
	ADX      float64 `json:"adx"`
	ADXReady bool    `json:"adx_ready"`

	// Trend is +1 when fast EMA > slow EMA, -1 when below, 0 when equal or unknown.
	Trend int `json:"trend"`
}

// Context is the per-evaluation indicator snapshot over closed candles.
// All accessors report false when a value is not ready; no accessor ever
// returns NaN.
type Context struct {
	candles       []model.Candle
	last          model.Candle
	slopeLookback int

	emas  map[int]indicator.Series
	atr   indicator.Series
	rsi   indicator.Series
	dmi   indicator.DMI
	dmiOK bool

	priceOK bool

	volumeNow   float64
	volumeOK    bool
	volumeAvg   float64
	volumeAvgOK bool

	anchor int64
	vwap   float64
	vwapOK bool

	regimes map[int]Regime
}

// Build computes a context from candles. Trailing unclosed candles are
// ignored and the input slice is never modified. Each EMA period is
// computed once. A last closed bar without a finite close leaves the
// context not ready.
func Build(candles []model.Candle, req Requirements) *Context {
	req = req.withDefaults()
	closed := model.ClosedOnly(candles)
	c := &Context{
		candles:       closed,
		slopeLookback: req.SlopeLookback,
		emas:          make(map[int]indicator.Series),
		regimes:       make(map[int]Regime),
	}
	if len(closed) == 0 {
		return c
	}
	c.last = closed[len(closed)-1]
	c.priceOK = finite(c.last.Close)

	closes := indicator.Closes(closed)
	for _, p := range req.EMAPeriods {
		if p <= 0 {
			continue
		}
		if _, done := c.emas[p]; done {
			continue
		}
		c.emas[p] = indicator.EMASeries(closes, p)
	}
	c.atr = indicator.ATRSeries(closed, req.ATRPeriod)
	c.rsi = indicator.RSISeries(closes, req.RSIPeriod)
	c.dmi, c.dmiOK = indicator.ADX(closed, req.ADXPeriod)

	c.volumeNow, c.volumeOK = c.last.Volume, finite(c.last.Volume)
	if n := len(closed); n > req.VolumeWindow {
		c.volumeAvg, c.volumeAvgOK = indicator.Mean(indicator.Volumes(closed[n-1-req.VolumeWindow : n-1]))
	}

	c.anchor = req.Session.AnchorMs(c.last.OpenTime)
	c.vwap, c.vwapOK = indicator.AnchoredVWAP(closed, c.anchor)

	for tf, series := range req.Regime {
		c.regimes[tf] = summariseRegime(model.ClosedOnly(series), req)
	}
	return c
}

func summariseRegime(candles []model.Candle, req Requirements) Regime {
	var r Regime
	if d, ok := indicator.ADX(candles, req.ADXPeriod); ok && finite(d.ADX) {
		r.ADX, r.ADXReady = d.ADX, true
	}
	if len(candles) < req.RegimeSlow {
		return r
	}
	closes := indicator.Closes(candles)
	fast, ok1 := indicator.EMA(closes, req.RegimeFast)
	slow, ok2 := indicator.EMA(closes, req.RegimeSlow)
	if ok1 && ok2 {
		switch {
		case fast > slow:
			r.Trend = 1
		case fast < slow:
			r.Trend = -1
		}
	}
	return r
}

// Ready reports whether the context holds at least one closed candle with
// a finite close.
func (c *Context) Ready() bool { return len(c.candles) > 0 && c.priceOK }

// Len returns the number of closed candles.
func (c *Context) Len() int { return len(c.candles) }

// Candles returns the closed candles the context was built from. Read-only.
func (c *Context) Candles() []model.Candle { return c.candles }

// Last returns the last closed candle.
func (c *Context) Last() model.Candle { return c.last }

// Close returns the last closed price. Callers must check Ready first.
func (c *Context) Close() float64 { return c.last.Close }

// Price returns the last closed price, absent when it is not finite.
func (c *Context) Price() (float64, bool) {
	return checked(c.last.Close, c.Ready())
}

// Now returns the close time of the last closed candle in Unix ms.
func (c *Context) Now() int64 { return c.last.CloseTime }

// SlopeLookback returns the default slope lookback.
func (c *Context) SlopeLookback() int { return c.slopeLookback }

// EMA returns the EMA of period at the last candle. An EMA is not ready
// until at least period candles have closed.
func (c *Context) EMA(period int) (float64, bool) {
	s, ok := c.EMASeries(period)
	if !ok {
		return 0, false
	}
	return checked(s.Last())
}

// EMAAt returns the EMA of period bars back from the last candle
// (back=0 is the last candle).
func (c *Context) EMAAt(period, back int) (float64, bool) {
	s, ok := c.EMASeries(period)
	if !ok {
		return 0, false
	}
	return checked(s.At(s.Len() - 1 - back))
}

// EMASeries returns the full EMA series of period.
func (c *Context) EMASeries(period int) (indicator.Series, bool) {
	s, ok := c.emas[period]
	if !ok || len(c.candles) < period {
		return indicator.Series{}, false
	}
	return s, true
}

// Slope returns the relative EMA slope over the default lookback.
func (c *Context) Slope(period int) (float64, bool) {
	return c.SlopeOver(period, c.slopeLookback)
}

// SlopeOver returns (ema[t]-ema[t-lookback])/|ema[t-lookback]|.
func (c *Context) SlopeOver(period, lookback int) (float64, bool) {
	s, ok := c.EMASeries(period)
	if !ok {
		return 0, false
	}
	return checked(indicator.Slope(s, lookback))
}

// Distance returns |close-ema|/atr.
func (c *Context) Distance(period int) (float64, bool) {
	price, ok := c.Price()
	if !ok {
		return 0, false
	}
	ema, ok := c.EMA(period)
	if !ok {
		return 0, false
	}
	atr, ok := c.ATR()
	if !ok || atr == 0 {
		return 0, false
	}
	return checked(math.Abs(price-ema)/atr, true)
}

// ATR returns the absolute ATR.
func (c *Context) ATR() (float64, bool) { return checked(c.atr.Last()) }

// ATRSeries returns the full ATR series.
func (c *Context) ATRSeries() indicator.Series { return c.atr }

// ATRNorm returns ATR/close.
func (c *Context) ATRNorm() (float64, bool) {
	atr, ok := c.ATR()
	price, pok := c.Price()
	if !ok || !pok || price == 0 {
		return 0, false
	}
	return checked(atr/price, true)
}

// VolumeNow returns the last closed candle's volume.
func (c *Context) VolumeNow() (float64, bool) {
	return c.volumeNow, len(c.candles) > 0 && c.volumeOK
}

// VolumeAvg returns the mean volume of the bars preceding the last one.
func (c *Context) VolumeAvg() (float64, bool) { return checked(c.volumeAvg, c.volumeAvgOK) }

// VolumeRatio returns VolumeNow/VolumeAvg.
func (c *Context) VolumeRatio() (float64, bool) {
	now, ok1 := c.VolumeNow()
	avg, ok2 := c.VolumeAvg()
	if !ok1 || !ok2 || avg == 0 {
		return 0, false
	}
	return checked(now/avg, true)
}

// RSI returns the last RSI.
func (c *Context) RSI() (float64, bool) { return checked(c.rsi.Last()) }

// RSISeries returns the full RSI series.
func (c *Context) RSISeries() indicator.Series { return c.rsi }

// ADX returns the directional movement reading.
func (c *Context) ADX() (indicator.DMI, bool) {
	ok := c.dmiOK && finite(c.dmi.ADX) && finite(c.dmi.PlusDI) && finite(c.dmi.MinusDI)
	return c.dmi, ok
}

// SessionAnchor returns the open of the session the last candle belongs to.
func (c *Context) SessionAnchor() int64 { return c.anchor }

// VWAP returns the session-anchored VWAP.
func (c *Context) VWAP() (float64, bool) { return checked(c.vwap, c.vwapOK) }

// Regime returns the summary of a higher timeframe.
func (c *Context) Regime(tf int) (Regime, bool) {
	r, ok := c.regimes[tf]
	return r, ok
}

// EMAPeriods returns the computed EMA periods in ascending order.
func (c *Context) EMAPeriods() []int {
	out := make([]int, 0, len(c.emas))
	for p := range c.emas {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// RegimeTFs returns the regime timeframes in ascending order.
func (c *Context) RegimeTFs() []int {
	out := make([]int, 0, len(c.regimes))
	for tf := range c.regimes {
		out = append(out, tf)
	}
	sort.Ints(out)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// checked reports a non-finite value as absent.
func checked(v float64, ok bool) (float64, bool) {
	if !ok || !finite(v) {
		return 0, false
	}
	return v, true
}
