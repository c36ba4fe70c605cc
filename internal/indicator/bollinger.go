package indicator

import (
	"github.com/markcheno/go-talib"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// Bands is one Bollinger Bands reading.
type Bands struct {
	Width float64 `json:"width"`
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
	Basis float64 `json:"basis"`
}

// BollingerWidth returns the bands of the last candle.
// The basis is the SMA of closes and the deviation is the population
// standard deviation; width = (upper-lower)/basis.
func BollingerWidth(candles []model.Candle, period int, mult float64) (Bands, bool) {
	upper, middle, lower, ok := bbands(candles, period, mult)
	if !ok {
		return Bands{}, false
	}
	i := len(candles) - 1
	b := Bands{Upper: upper[i], Lower: lower[i], Basis: middle[i]}
	if b.Basis == 0 || !finite(b.Upper) || !finite(b.Lower) {
		return Bands{}, false
	}
	b.Width = (b.Upper - b.Lower) / b.Basis
	return b, true
}

// BollingerWidthSeries returns the band width for every candle from index
// period-1. Bars with a zero basis report width 0.
func BollingerWidthSeries(candles []model.Candle, period int, mult float64) Series {
	n := len(candles)
	upper, middle, lower, ok := bbands(candles, period, mult)
	if !ok {
		return notReady(n)
	}
	out := make([]float64, n)
	for i := period - 1; i < n; i++ {
		if middle[i] == 0 {
			continue
		}
		w := (upper[i] - lower[i]) / middle[i]
		if finite(w) {
			out[i] = w
		}
	}
	return Series{Values: out, Start: period - 1}
}

func bbands(candles []model.Candle, period int, mult float64) (upper, middle, lower []float64, ok bool) {
	if period < 2 || len(candles) < period || !finite(mult) || mult <= 0 {
		return nil, nil, nil, false
	}
	closes := Closes(candles)
	for _, c := range closes {
		if !finite(c) {
			return nil, nil, nil, false
		}
	}
	upper, middle, lower = talib.BBands(closes, period, mult, mult, talib.SMA)
	return upper, middle, lower, true
}
