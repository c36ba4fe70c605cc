// Package indicator provides pure technical indicator calculations over
// candle data.
//
// Functions never panic on short or malformed input. Values that cannot be
// computed yet are reported as not ready (a false second return, or a
// Series whose Start is past the requested index) and never as NaN.
package indicator

import (
	"math"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// Series is an indicator output aligned index-for-index with its input.
// Values before Start are zero and must not be read.
type Series struct {
	Values []float64
	Start  int
}

// Len returns the length of the underlying input.
func (s Series) Len() int { return len(s.Values) }

// Ready reports whether at least one value is available.
func (s Series) Ready() bool { return s.Start < len(s.Values) }

// At returns the value at index i.
func (s Series) At(i int) (float64, bool) {
	if i < s.Start || i < 0 || i >= len(s.Values) {
		return 0, false
	}
	return s.Values[i], true
}

// Last returns the most recent value.
func (s Series) Last() (float64, bool) {
	return s.At(len(s.Values) - 1)
}

// Tail returns the ready values ending at the last index, at most n of them.
func (s Series) Tail(n int) []float64 {
	if !s.Ready() || n <= 0 {
		return nil
	}
	from := len(s.Values) - n
	if from < s.Start {
		from = s.Start
	}
	out := make([]float64, len(s.Values)-from)
	copy(out, s.Values[from:])
	return out
}

func notReady(n int) Series {
	return Series{Values: make([]float64, n), Start: n}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Closes extracts close prices.
func Closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts volumes.
func Volumes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// Highest returns the max High over candles.
func Highest(candles []model.Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	h := candles[0].High
	for _, c := range candles[1:] {
		if c.High > h {
			h = c.High
		}
	}
	return h, true
}

// Lowest returns the min Low over candles.
func Lowest(candles []model.Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	l := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < l {
			l = c.Low
		}
	}
	return l, true
}

// TrueRange returns max(h-l, |h-prevClose|, |l-prevClose|).
func TrueRange(c model.Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if d := math.Abs(c.High - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(c.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// Slope returns the relative change (s[t]-s[t-lookback])/|s[t-lookback]|
// at the last index of s.
func Slope(s Series, lookback int) (float64, bool) {
	return SlopeAt(s, s.Len()-1, lookback)
}

// SlopeAt is Slope evaluated at index i.
func SlopeAt(s Series, i, lookback int) (float64, bool) {
	if lookback <= 0 {
		return 0, false
	}
	now, ok := s.At(i)
	if !ok {
		return 0, false
	}
	prev, ok := s.At(i - lookback)
	if !ok || prev == 0 {
		return 0, false
	}
	return (now - prev) / math.Abs(prev), true
}
