package indicator

import (
	"math"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// DMI is the directional movement system output for the last candle.
type DMI struct {
	ADX     float64 `json:"adx"`
	PlusDI  float64 `json:"plus_di"`
	MinusDI float64 `json:"minus_di"`
}

// ADX calculates the Average Directional Index with Wilder smoothing.
//
// Smoothed TR, +DM and -DM are seeded with the sum of the first period raw
// values. DX = 100*|DI+ - DI-|/(DI+ + DI-), 0 when the denominator is 0.
// ADX is the mean of the first period DX values and Wilder-smoothed after
// that; while fewer than period DX values exist it is the mean of those
// available. Returns false with fewer than period+1 candles.
func ADX(candles []model.Candle, period int) (DMI, bool) {
	n := len(candles)
	if period <= 0 || n < period+1 {
		return DMI{}, false
	}
	var sTR, sPlus, sMinus float64
	var adx, dxSum float64
	dxCount := 0
	var last DMI
	p := float64(period)

	for i := 1; i < n; i++ {
		cur, prev := candles[i], candles[i-1]
		tr := TrueRange(cur, prev.Close)
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		var plusDM, minusDM float64
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}

		if i <= period {
			sTR += tr
			sPlus += plusDM
			sMinus += minusDM
			if i < period {
				continue
			}
		} else {
			sTR = sTR - sTR/p + tr
			sPlus = sPlus - sPlus/p + plusDM
			sMinus = sMinus - sMinus/p + minusDM
		}

		var plusDI, minusDI float64
		if sTR > 0 {
			plusDI = 100 * sPlus / sTR
			minusDI = 100 * sMinus / sTR
		}
		var dx float64
		if sum := plusDI + minusDI; sum > 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / sum
		}

		dxCount++
		if dxCount <= period {
			dxSum += dx
			adx = dxSum / float64(dxCount)
		} else {
			adx = (adx*(p-1) + dx) / p
		}
		last = DMI{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}
	}
	if !finite(last.ADX) || !finite(last.PlusDI) || !finite(last.MinusDI) {
		return DMI{}, false
	}
	return last, true
}
